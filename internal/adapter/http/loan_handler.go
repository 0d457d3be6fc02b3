package http

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"mazaochain/internal/domain/transaction"
	"mazaochain/internal/usecase/eligibility"
	"mazaochain/internal/usecase/loan"
)

// LoanService is the orchestrator surface exposed over HTTP.
type LoanService interface {
	CreateLoanRequest(ctx context.Context, in loan.CreateLoanInput) (*loan.LoanDTO, error)
	ApproveLoanRequest(ctx context.Context, in loan.ApproveInput) (*loan.ApprovalDTO, error)
	RetryFailedDisbursement(ctx context.Context, loanID string) (*loan.DisbursementDTO, error)
	ValidateLoanForDisbursement(ctx context.Context, loanID string) ([]string, error)
	RepayLoan(ctx context.Context, in loan.RepaymentInput) (*loan.RepaymentDTO, error)
	LiquidateLoan(ctx context.Context, loanID string) (*loan.LiquidationDTO, error)
	GetLoan(ctx context.Context, loanID string) (*loan.LoanDTO, error)
	GetTransactions(ctx context.Context, loanID string) ([]transaction.Record, error)
	GetLenderPortfolio(ctx context.Context, lenderID string) (*loan.LenderPortfolio, error)
}

// Calculator answers read-only eligibility and pricing questions.
type Calculator interface {
	CheckEligibility(ctx context.Context, farmerID string, amount decimal.Decimal) (*eligibility.EligibilityResult, error)
	CalculateInterest(principal, annualRate decimal.Decimal, termMonths int) (*eligibility.InterestCalculation, error)
	GetOutstandingBalance(ctx context.Context, loanID string) (*eligibility.OutstandingBalance, error)
}

type LoanHandler struct {
	svc  LoanService
	calc Calculator
}

func NewLoanHandler(svc LoanService, calc Calculator) *LoanHandler {
	return &LoanHandler{svc: svc, calc: calc}
}

type createLoanReq struct {
	BorrowerID   string          `json:"borrower_id"   validate:"required,max=64"`
	Amount       decimal.Decimal `json:"amount"        validate:"dpos,dec6"`
	InterestRate decimal.Decimal `json:"interest_rate" validate:"dnonneg"`
	TermMonths   int             `json:"term_months"   validate:"required,gte=1,lte=120"`
}

func (h *LoanHandler) CreateLoan(c echo.Context) error {
	var req createLoanReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.svc.CreateLoanRequest(c.Request().Context(), loan.CreateLoanInput(req))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, dto)
}

func (h *LoanHandler) GetLoan(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	dto, err := h.svc.GetLoan(c.Request().Context(), loanID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

type repaymentReq struct {
	BorrowerID  string           `json:"borrower_id"  validate:"required,max=64"`
	Amount      decimal.Decimal  `json:"amount"       validate:"dpos,dec6"`
	PaymentType loan.PaymentType `json:"payment_type" validate:"required,oneof=full partial"`
}

func (h *LoanHandler) Repay(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	var req repaymentReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	if err := c.Validate(&req); err != nil {
		return validationFailed(c, err)
	}
	dto, err := h.svc.RepayLoan(c.Request().Context(), loan.RepaymentInput{
		LoanID:      loanID,
		BorrowerID:  req.BorrowerID,
		Amount:      req.Amount,
		PaymentType: req.PaymentType,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) Liquidate(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	dto, err := h.svc.LiquidateLoan(c.Request().Context(), loanID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, dto)
}

func (h *LoanHandler) Balance(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	bal, err := h.calc.GetOutstandingBalance(c.Request().Context(), loanID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, bal)
}

func (h *LoanHandler) Transactions(c echo.Context) error {
	loanID, ok := loanIDParam(c)
	if !ok {
		return badRequest(c, "invalid loan_id path param")
	}
	recs, err := h.svc.GetTransactions(c.Request().Context(), loanID)
	if err != nil {
		return writeError(c, err)
	}
	if recs == nil {
		recs = []transaction.Record{}
	}
	return c.JSON(http.StatusOK, map[string]any{"loan_id": loanID, "transactions": recs})
}
