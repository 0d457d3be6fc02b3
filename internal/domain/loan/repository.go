package loan

import (
	"context"

	"github.com/shopspring/decimal"
)

type Repository interface {
	Create(ctx context.Context, l *Loan) error
	GetByLoanID(ctx context.Context, loanID string) (*Loan, error)
	// row lock; only meaningful inside a UnitOfWork transaction
	GetByLoanIDForUpdate(ctx context.Context, loanID string) (*Loan, error)
	GetOpenLoanByBorrowerID(ctx context.Context, borrowerID string) (*Loan, error)
	// UpdateStatus is a compare-and-swap on status; ErrStaleStatus when from no longer holds.
	UpdateStatus(ctx context.Context, loanID string, from, to Status, ch Changes) error
	SetOutstandingBalance(ctx context.Context, loanID string, balance decimal.Decimal) error
	ListByLender(ctx context.Context, lenderID string) ([]Loan, error)
}
