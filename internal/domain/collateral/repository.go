package collateral

import "context"

// Repository doubles as the Collateral Portfolio Provider.
type Repository interface {
	GetFarmerPortfolio(ctx context.Context, farmerID string) (*Portfolio, error)
	ListEscrowedByLoan(ctx context.Context, loanID string) ([]Token, error)
	MarkEscrowed(ctx context.Context, tokenRowID uint64, loanID string) error
	ClearEscrow(ctx context.Context, tokenRowID uint64) error
	// Deactivate retires a token after it was liquidated to a lender.
	Deactivate(ctx context.Context, tokenRowID uint64) error
}
