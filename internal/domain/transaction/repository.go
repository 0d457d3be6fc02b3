package transaction

import "context"

type Repository interface {
	Create(ctx context.Context, r *Record) error
	// UpdateStatus settles a pending record; ErrNotPending when it was already settled.
	UpdateStatus(ctx context.Context, transactionID string, status Status, externalTxID, errMsg string) error
	GetByTransactionID(ctx context.Context, transactionID string) (*Record, error)
	// ListByLoan returns records newest first.
	ListByLoan(ctx context.Context, loanID string) ([]Record, error)
	CreateReceipt(ctx context.Context, rc *Receipt) error
	GetReceiptByLoan(ctx context.Context, loanID string) (*Receipt, error)
}
