package loanmock

import (
	"context"

	"github.com/shopspring/decimal"

	domain "mazaochain/internal/domain/loan"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Reads default to context.Canceled, writes to nil.
type Repo struct {
	CreateFn                  func(ctx context.Context, l *domain.Loan) error
	GetByLoanIDFn             func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetByLoanIDForUpdateFn    func(ctx context.Context, loanID string) (*domain.Loan, error)
	GetOpenLoanByBorrowerIDFn func(ctx context.Context, borrowerID string) (*domain.Loan, error)
	UpdateStatusFn            func(ctx context.Context, loanID string, from, to domain.Status, ch domain.Changes) error
	SetOutstandingBalanceFn   func(ctx context.Context, loanID string, balance decimal.Decimal) error
	ListByLenderFn            func(ctx context.Context, lenderID string) ([]domain.Loan, error)
}

func (m *Repo) Create(ctx context.Context, l *domain.Loan) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, l)
	}
	return nil
}

func (m *Repo) GetByLoanID(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDFn != nil {
		return m.GetByLoanIDFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetByLoanIDForUpdate(ctx context.Context, loanID string) (*domain.Loan, error) {
	if m.GetByLoanIDForUpdateFn != nil {
		return m.GetByLoanIDForUpdateFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) GetOpenLoanByBorrowerID(ctx context.Context, borrowerID string) (*domain.Loan, error) {
	if m.GetOpenLoanByBorrowerIDFn != nil {
		return m.GetOpenLoanByBorrowerIDFn(ctx, borrowerID)
	}
	return nil, context.Canceled
}

func (m *Repo) UpdateStatus(ctx context.Context, loanID string, from, to domain.Status, ch domain.Changes) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, loanID, from, to, ch)
	}
	return nil
}

func (m *Repo) SetOutstandingBalance(ctx context.Context, loanID string, balance decimal.Decimal) error {
	if m.SetOutstandingBalanceFn != nil {
		return m.SetOutstandingBalanceFn(ctx, loanID, balance)
	}
	return nil
}

func (m *Repo) ListByLender(ctx context.Context, lenderID string) ([]domain.Loan, error) {
	if m.ListByLenderFn != nil {
		return m.ListByLenderFn(ctx, lenderID)
	}
	return nil, context.Canceled
}
