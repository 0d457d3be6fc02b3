package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	txDomain "mazaochain/internal/domain/transaction"
)

type TransactionRepository struct{ db *gorm.DB }

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, rec *txDomain.Record) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *TransactionRepository) UpdateStatus(ctx context.Context, transactionID string, status txDomain.Status, externalTxID, errMsg string) error {
	updates := map[string]any{"status": status}
	if externalTxID != "" {
		updates["external_transaction_id"] = externalTxID
	}
	if errMsg != "" {
		updates["error_message"] = errMsg
	}
	res := r.db.WithContext(ctx).
		Model(&txDomain.Record{}).
		Where("transaction_id = ? AND status = ?", transactionID, txDomain.StatusPending).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := r.GetByTransactionID(ctx, transactionID); err != nil {
		return err
	}
	return txDomain.ErrNotPending
}

func (r *TransactionRepository) GetByTransactionID(ctx context.Context, transactionID string) (*txDomain.Record, error) {
	var out txDomain.Record
	res := r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}

// ListByLoan orders by insertion id; created_at can tie within a single flow.
func (r *TransactionRepository) ListByLoan(ctx context.Context, loanID string) ([]txDomain.Record, error) {
	var out []txDomain.Record
	err := r.db.WithContext(ctx).
		Where("loan_id = ?", loanID).
		Order("id DESC").
		Find(&out).Error
	return out, err
}

func (r *TransactionRepository) CreateReceipt(ctx context.Context, rc *txDomain.Receipt) error {
	return r.db.WithContext(ctx).Create(rc).Error
}

func (r *TransactionRepository) GetReceiptByLoan(ctx context.Context, loanID string) (*txDomain.Receipt, error) {
	var out txDomain.Receipt
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanID).Order("id DESC").First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, txDomain.ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}
