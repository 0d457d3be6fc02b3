package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"mazaochain/internal/domain/transaction"
	"mazaochain/internal/usecase/eligibility"
	"mazaochain/internal/usecase/loan"
)

type fakeLoans struct {
	CreateFn       func(ctx context.Context, in loan.CreateLoanInput) (*loan.LoanDTO, error)
	ApproveFn      func(ctx context.Context, in loan.ApproveInput) (*loan.ApprovalDTO, error)
	RetryFn        func(ctx context.Context, loanID string) (*loan.DisbursementDTO, error)
	ValidateFn     func(ctx context.Context, loanID string) ([]string, error)
	RepayFn        func(ctx context.Context, in loan.RepaymentInput) (*loan.RepaymentDTO, error)
	LiquidateFn    func(ctx context.Context, loanID string) (*loan.LiquidationDTO, error)
	GetFn          func(ctx context.Context, loanID string) (*loan.LoanDTO, error)
	TransactionsFn func(ctx context.Context, loanID string) ([]transaction.Record, error)
	PortfolioFn    func(ctx context.Context, lenderID string) (*loan.LenderPortfolio, error)
}

func (f *fakeLoans) CreateLoanRequest(ctx context.Context, in loan.CreateLoanInput) (*loan.LoanDTO, error) {
	return f.CreateFn(ctx, in)
}
func (f *fakeLoans) ApproveLoanRequest(ctx context.Context, in loan.ApproveInput) (*loan.ApprovalDTO, error) {
	return f.ApproveFn(ctx, in)
}
func (f *fakeLoans) RetryFailedDisbursement(ctx context.Context, loanID string) (*loan.DisbursementDTO, error) {
	return f.RetryFn(ctx, loanID)
}
func (f *fakeLoans) ValidateLoanForDisbursement(ctx context.Context, loanID string) ([]string, error) {
	return f.ValidateFn(ctx, loanID)
}
func (f *fakeLoans) RepayLoan(ctx context.Context, in loan.RepaymentInput) (*loan.RepaymentDTO, error) {
	return f.RepayFn(ctx, in)
}
func (f *fakeLoans) LiquidateLoan(ctx context.Context, loanID string) (*loan.LiquidationDTO, error) {
	return f.LiquidateFn(ctx, loanID)
}
func (f *fakeLoans) GetLoan(ctx context.Context, loanID string) (*loan.LoanDTO, error) {
	return f.GetFn(ctx, loanID)
}
func (f *fakeLoans) GetTransactions(ctx context.Context, loanID string) ([]transaction.Record, error) {
	return f.TransactionsFn(ctx, loanID)
}
func (f *fakeLoans) GetLenderPortfolio(ctx context.Context, lenderID string) (*loan.LenderPortfolio, error) {
	return f.PortfolioFn(ctx, lenderID)
}

type fakeCalc struct {
	EligibilityFn func(ctx context.Context, farmerID string, amount decimal.Decimal) (*eligibility.EligibilityResult, error)
	InterestFn    func(principal, rate decimal.Decimal, term int) (*eligibility.InterestCalculation, error)
	BalanceFn     func(ctx context.Context, loanID string) (*eligibility.OutstandingBalance, error)
}

func (f *fakeCalc) CheckEligibility(ctx context.Context, farmerID string, amount decimal.Decimal) (*eligibility.EligibilityResult, error) {
	return f.EligibilityFn(ctx, farmerID, amount)
}
func (f *fakeCalc) CalculateInterest(principal, rate decimal.Decimal, term int) (*eligibility.InterestCalculation, error) {
	return f.InterestFn(principal, rate, term)
}
func (f *fakeCalc) GetOutstandingBalance(ctx context.Context, loanID string) (*eligibility.OutstandingBalance, error) {
	return f.BalanceFn(ctx, loanID)
}

// -------- helpers --------

const testLoanID = "0123456789abcdef0123456789abcdef"

// newServer mounts every route so paths and params resolve as in production.
func newServer(svc LoanService, calc Calculator) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	Register(e, NewHandler(nil), NewLoanHandler(svc, calc), nil, nil)
	return e
}

func mustJSON(v any) io.Reader {
	b, _ := json.Marshal(v)
	return bytes.NewReader(b)
}

func do(t *testing.T, e *echo.Echo, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		r = mustJSON(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeErr(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var er ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &er); err != nil {
		t.Fatalf("invalid error JSON: %v; raw=%s", err, rec.Body.String())
	}
	return er
}
