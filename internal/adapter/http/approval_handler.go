package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"mazaochain/internal/usecase/loan"
)

type approveLoanReq struct {
	// pointer so an explicit false is told apart from a missing field
	Approved      *bool  `json:"approved"       validate:"required"`
	LenderID      string `json:"lender_id"      validate:"max=64"`
	CooperativeID string `json:"cooperative_id" validate:"required,max=64"`
	Reason        string `json:"reason"         validate:"max=500"`
}

// ApproveLoan records the cooperative decision. An approval with a lender
// disburses immediately; a failed disbursement is reported in the body
// while the approval itself stands.
func (h *LoanHandler) ApproveLoan(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	var req approveLoanReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}

	dto, err := h.svc.ApproveLoanRequest(c.Request().Context(), loan.ApproveInput{
		LoanID:        loanID,
		Approved:      *req.Approved,
		LenderID:      req.LenderID,
		CooperativeID: req.CooperativeID,
		Reason:        req.Reason,
	})
	if err != nil {
		return writeError(c, err)
	}
	if dto.DisbursementErrorCode != "" {
		return c.JSON(http.StatusAccepted, dto)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) RetryDisbursement(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	dto, err := h.svc.RetryFailedDisbursement(c.Request().Context(), loanID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) ValidateDisbursement(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	issues, err := h.svc.ValidateLoanForDisbursement(c.Request().Context(), loanID)
	if err != nil {
		return writeError(c, err)
	}
	if issues == nil {
		issues = []string{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"loan_id": loanID,
		"ready":   len(issues) == 0,
		"issues":  issues,
	})
}
