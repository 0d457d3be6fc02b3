package eligibility

import (
	"time"

	"github.com/shopspring/decimal"
)

type EligibilityResult struct {
	FarmerID            string          `json:"farmer_id"`
	IsEligible          bool            `json:"is_eligible"`
	RequestedAmount     decimal.Decimal `json:"requested_amount"`
	RequiredCollateral  decimal.Decimal `json:"required_collateral"`
	AvailableCollateral decimal.Decimal `json:"available_collateral"`
	MaxLoanAmount       decimal.Decimal `json:"max_loan_amount"`
	CollateralRatio     decimal.Decimal `json:"collateral_ratio"`
	ActiveTokens        int             `json:"active_tokens"`
	Reasons             []string        `json:"reasons"`
}

type InterestCalculation struct {
	Principal      decimal.Decimal `json:"principal"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	TermMonths     int             `json:"term_months"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type OutstandingBalance struct {
	LoanID          string          `json:"loan_id"`
	Principal       decimal.Decimal `json:"principal"`
	AccruedInterest decimal.Decimal `json:"accrued_interest"`
	TotalDue        decimal.Decimal `json:"total_due"`
	Remaining       decimal.Decimal `json:"remaining"`
	MonthsElapsed   int             `json:"months_elapsed"`
	NextPaymentDue  time.Time       `json:"next_payment_due"`
	DueDate         time.Time       `json:"due_date"`
}
