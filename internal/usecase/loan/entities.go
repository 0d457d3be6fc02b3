package loan

import (
	"time"

	"github.com/shopspring/decimal"

	"mazaochain/internal/domain/approval"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/usecase/eligibility"
)

type PaymentType string

const (
	PaymentFull    PaymentType = "full"
	PaymentPartial PaymentType = "partial"
)

type CreateLoanInput struct {
	BorrowerID   string          `json:"borrower_id"`
	Amount       decimal.Decimal `json:"amount"`
	InterestRate decimal.Decimal `json:"interest_rate"`
	TermMonths   int             `json:"term_months"`
}

type ApproveInput struct {
	LoanID        string
	Approved      bool
	LenderID      string
	CooperativeID string
	Reason        string
}

type RepaymentInput struct {
	LoanID      string
	BorrowerID  string
	Amount      decimal.Decimal
	PaymentType PaymentType
}

type LoanDTO struct {
	LoanID             string          `json:"loan_id"`
	BorrowerID         string          `json:"borrower_id"`
	LenderID           string          `json:"lender_id,omitempty"`
	Principal          decimal.Decimal `json:"principal"`
	CollateralAmount   decimal.Decimal `json:"collateral_amount"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	OutstandingBalance decimal.Decimal `json:"outstanding_balance"`
	DueDate            time.Time       `json:"due_date"`
	Status             string          `json:"status"`
	CreatedAt          time.Time       `json:"created_at"`
	DisbursedAt        *time.Time      `json:"disbursed_at,omitempty"`
	RepaidAt           *time.Time      `json:"repaid_at,omitempty"`

	// set on creation only
	Interest *eligibility.InterestCalculation `json:"interest,omitempty"`
}

func toDTO(l *loan.Loan) *LoanDTO {
	return &LoanDTO{
		LoanID:             l.LoanID,
		BorrowerID:         l.BorrowerID,
		LenderID:           l.Lender(),
		Principal:          l.Principal,
		CollateralAmount:   l.CollateralAmount,
		InterestRate:       l.InterestRate,
		TermMonths:         l.TermMonths,
		OutstandingBalance: l.OutstandingBalance,
		DueDate:            l.DueDate,
		Status:             string(l.Status),
		CreatedAt:          l.CreatedAt,
		DisbursedAt:        l.DisbursedAt,
		RepaidAt:           l.RepaidAt,
	}
}

type ApprovalDTO struct {
	ApprovalID string            `json:"approval_id"`
	LoanID     string            `json:"loan_id"`
	Decision   approval.Decision `json:"decision"`
	LenderID   string            `json:"lender_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	DecidedAt  time.Time         `json:"decided_at"`
	Status     string            `json:"status"`

	Disbursement *DisbursementDTO `json:"disbursement,omitempty"`

	// the approval stands when disbursement fails; the loan stays approved for a retry
	DisbursementError     string `json:"disbursement_error,omitempty"`
	DisbursementErrorCode string `json:"disbursement_error_code,omitempty"`
}

type DisbursementDTO struct {
	LoanID           string    `json:"loan_id"`
	LenderID         string    `json:"lender_id"`
	Status           string    `json:"status"`
	DisbursementTxID string    `json:"disbursement_tx_id"`
	EscrowTxIDs      []string  `json:"escrow_tx_ids"`
	ReceiptID        string    `json:"receipt_id,omitempty"`
	DisbursedAt      time.Time `json:"disbursed_at"`
}

type RepaymentDTO struct {
	LoanID             string          `json:"loan_id"`
	TransactionID      string          `json:"transaction_id"`
	ExternalTxID       string          `json:"external_tx_id"`
	PaymentType        PaymentType     `json:"payment_type"`
	Amount             decimal.Decimal `json:"amount"`
	RemainingBalance   decimal.Decimal `json:"remaining_balance"`
	Status             string          `json:"status"`
	CollateralReleased bool            `json:"collateral_released"`
	ReleaseErrors      []string        `json:"release_errors,omitempty"`
	DistributionTxID   string          `json:"distribution_tx_id,omitempty"`
}

type LiquidationDTO struct {
	LoanID           string          `json:"loan_id"`
	Status           string          `json:"status"`
	LenderID         string          `json:"lender_id"`
	CollateralSeized decimal.Decimal `json:"collateral_seized"`
	LiquidationTxIDs []string        `json:"liquidation_tx_ids"`
}

type LenderPortfolio struct {
	LenderID       string          `json:"lender_id"`
	TotalLoans     int             `json:"total_loans"`
	ActiveLoans    int             `json:"active_loans"`
	CompletedLoans int             `json:"completed_loans"`
	DefaultedLoans int             `json:"defaulted_loans"`
	TotalLent      decimal.Decimal `json:"total_lent"`
	TotalReturned  decimal.Decimal `json:"total_returned"`
	Profit         decimal.Decimal `json:"profit"`
	Loans          []LoanDTO       `json:"loans"`
}
