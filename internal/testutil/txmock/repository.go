package txmock

import (
	"context"

	domain "mazaochain/internal/domain/transaction"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
type Repo struct {
	CreateFn             func(ctx context.Context, r *domain.Record) error
	UpdateStatusFn       func(ctx context.Context, transactionID string, status domain.Status, externalTxID, errMsg string) error
	GetByTransactionIDFn func(ctx context.Context, transactionID string) (*domain.Record, error)
	ListByLoanFn         func(ctx context.Context, loanID string) ([]domain.Record, error)
	CreateReceiptFn      func(ctx context.Context, rc *domain.Receipt) error
	GetReceiptByLoanFn   func(ctx context.Context, loanID string) (*domain.Receipt, error)
}

func (m *Repo) Create(ctx context.Context, r *domain.Record) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, r)
	}
	return nil
}

func (m *Repo) UpdateStatus(ctx context.Context, transactionID string, status domain.Status, externalTxID, errMsg string) error {
	if m.UpdateStatusFn != nil {
		return m.UpdateStatusFn(ctx, transactionID, status, externalTxID, errMsg)
	}
	return nil
}

func (m *Repo) GetByTransactionID(ctx context.Context, transactionID string) (*domain.Record, error) {
	if m.GetByTransactionIDFn != nil {
		return m.GetByTransactionIDFn(ctx, transactionID)
	}
	return nil, context.Canceled
}

func (m *Repo) ListByLoan(ctx context.Context, loanID string) ([]domain.Record, error) {
	if m.ListByLoanFn != nil {
		return m.ListByLoanFn(ctx, loanID)
	}
	return nil, context.Canceled
}

func (m *Repo) CreateReceipt(ctx context.Context, rc *domain.Receipt) error {
	if m.CreateReceiptFn != nil {
		return m.CreateReceiptFn(ctx, rc)
	}
	return nil
}

func (m *Repo) GetReceiptByLoan(ctx context.Context, loanID string) (*domain.Receipt, error) {
	if m.GetReceiptByLoanFn != nil {
		return m.GetReceiptByLoanFn(ctx, loanID)
	}
	return nil, context.Canceled
}
