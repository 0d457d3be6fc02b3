package http

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func (h *LoanHandler) Eligibility(c echo.Context) error {
	farmerID := c.Param("farmer_id")
	if !reUserRef.MatchString(farmerID) {
		return badRequest(c, "invalid farmer_id path param")
	}
	amount, err := decimal.NewFromString(c.QueryParam("amount"))
	if err != nil || !amount.IsPositive() {
		return badRequest(c, "amount query param must be a positive decimal")
	}
	res, err := h.calc.CheckEligibility(c.Request().Context(), farmerID, amount)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

type interestQuoteReq struct {
	Principal    decimal.Decimal `json:"principal"     validate:"dpos,dec6"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"dnonneg"`
	TermMonths   int             `json:"term_months"   validate:"required,gte=1,lte=120"`
}

func (h *LoanHandler) InterestQuote(c echo.Context) error {
	var req interestQuoteReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	q, err := h.calc.CalculateInterest(req.Principal, req.InterestRate, req.TermMonths)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, q)
}

func (h *LoanHandler) LenderPortfolio(c echo.Context) error {
	lenderID := c.Param("lender_id")
	if !reUserRef.MatchString(lenderID) {
		return badRequest(c, "invalid lender_id path param")
	}
	p, err := h.svc.GetLenderPortfolio(c.Request().Context(), lenderID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}
