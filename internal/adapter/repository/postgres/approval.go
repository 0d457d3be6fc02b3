package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	approvalDomain "mazaochain/internal/domain/approval"
)

type ApprovalRepository struct{ db *gorm.DB }

func NewApprovalRepository(db *gorm.DB) *ApprovalRepository { return &ApprovalRepository{db: db} }

func (r *ApprovalRepository) Create(ctx context.Context, a *approvalDomain.Approval) error {
	err := r.db.WithContext(ctx).Create(a).Error
	if c, ok := uniqueViolation(err); ok && (c == "ux_approvals_loan" || c == "approvals.loan_id") {
		return approvalDomain.ErrAlreadyDecided
	}
	return err
}

func (r *ApprovalRepository) GetByLoanID(ctx context.Context, loanNumericID uint64) (*approvalDomain.Approval, error) {
	var out approvalDomain.Approval
	res := r.db.WithContext(ctx).Where("loan_id = ?", loanNumericID).First(&out)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return nil, approvalDomain.ErrNotFound
	}
	if res.Error != nil {
		return nil, res.Error
	}
	return &out, nil
}
