package approval

import "context"

type Repository interface {
	// Create a decision (DB uniqueness ensures at most one per loan)
	Create(ctx context.Context, a *Approval) error

	// Get decision by numeric loan id
	GetByLoanID(ctx context.Context, loanID uint64) (*Approval, error)
}
