package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusActive    Status = "active"
	StatusRepaid    Status = "repaid"
	StatusRejected  Status = "rejected"
	StatusDefaulted Status = "defaulted"
)

// CollateralRatio is the required collateral value per unit of principal (200%).
var CollateralRatio = decimal.NewFromInt(2)

// OpenStatuses are the statuses that block a borrower from requesting another loan.
var OpenStatuses = []Status{StatusPending, StatusApproved, StatusActive}

var transitions = map[Status][]Status{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusActive},
	StatusActive:   {StatusRepaid, StatusDefaulted},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool { return len(transitions[s]) == 0 }

func (s Status) Open() bool {
	for _, o := range OpenStatuses {
		if s == o {
			return true
		}
	}
	return false
}

type Loan struct {
	ID                 uint64          `gorm:"primaryKey;column:id" json:"-"`
	LoanID             string          `gorm:"size:32;uniqueIndex:ux_loans_loan_id" json:"loan_id"`
	BorrowerID         string          `gorm:"size:64;index:idx_loans_borrower_status" json:"borrower_id"`
	LenderID           *string         `gorm:"size:64;index:idx_loans_lender" json:"lender_id,omitempty"`
	Principal          decimal.Decimal `gorm:"type:numeric(20,6)" json:"principal"`
	CollateralAmount   decimal.Decimal `gorm:"type:numeric(20,6)" json:"collateral_amount"`
	InterestRate       decimal.Decimal `gorm:"type:numeric(9,6)" json:"interest_rate"`
	TermMonths         int             `json:"term_months"`
	OutstandingBalance decimal.Decimal `gorm:"type:numeric(20,6)" json:"outstanding_balance"`
	DueDate            time.Time       `json:"due_date"`
	Status             Status          `gorm:"type:varchar(16);default:'pending';index:idx_loans_borrower_status" json:"status"`
	StatusUpdatedAt    time.Time       `json:"status_updated_at"`
	DisbursedAt        *time.Time      `json:"disbursed_at,omitempty"`
	RepaidAt           *time.Time      `json:"repaid_at,omitempty"`
	CreatedAt          time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Loan) TableName() string { return "loans" }

// Lender returns the assigned lender id, or "" while unfunded.
func (l *Loan) Lender() string {
	if l.LenderID == nil {
		return ""
	}
	return *l.LenderID
}

// Changes are the optional columns written alongside a status transition.
type Changes struct {
	LenderID    *string
	DisbursedAt *time.Time
	RepaidAt    *time.Time
}
