package collateralmock

import (
	"context"

	domain "mazaochain/internal/domain/collateral"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	GetFarmerPortfolioFn func(ctx context.Context, farmerID string) (*domain.Portfolio, error)
	ListEscrowedByLoanFn func(ctx context.Context, loanID string) ([]domain.Token, error)
	MarkEscrowedFn       func(ctx context.Context, tokenRowID uint64, loanID string) error
	ClearEscrowFn        func(ctx context.Context, tokenRowID uint64) error
	DeactivateFn         func(ctx context.Context, tokenRowID uint64) error
}

func (m *Repo) GetFarmerPortfolio(ctx context.Context, farmerID string) (*domain.Portfolio, error) {
	if m.GetFarmerPortfolioFn != nil {
		return m.GetFarmerPortfolioFn(ctx, farmerID)
	}
	return nil, context.Canceled
}

func (m *Repo) ListEscrowedByLoan(ctx context.Context, loanID string) ([]domain.Token, error) {
	if m.ListEscrowedByLoanFn != nil {
		return m.ListEscrowedByLoanFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) MarkEscrowed(ctx context.Context, tokenRowID uint64, loanID string) error {
	if m.MarkEscrowedFn != nil {
		return m.MarkEscrowedFn(ctx, tokenRowID, loanID)
	}
	return nil
}

func (m *Repo) ClearEscrow(ctx context.Context, tokenRowID uint64) error {
	if m.ClearEscrowFn != nil {
		return m.ClearEscrowFn(ctx, tokenRowID)
	}
	return nil
}

func (m *Repo) Deactivate(ctx context.Context, tokenRowID uint64) error {
	if m.DeactivateFn != nil {
		return m.DeactivateFn(ctx, tokenRowID)
	}
	return nil
}
