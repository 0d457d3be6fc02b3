package postgres

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"mazaochain/internal/domain/collateral"
)

type CollateralRepository struct{ db *gorm.DB }

func NewCollateralRepository(db *gorm.DB) *CollateralRepository {
	return &CollateralRepository{db: db}
}

// GetFarmerPortfolio returns the farmer's unencumbered active tokens, oldest
// harvest first. A farmer without tokens gets an empty portfolio.
func (r *CollateralRepository) GetFarmerPortfolio(ctx context.Context, farmerID string) (*collateral.Portfolio, error) {
	var tokens []collateral.Token
	err := r.db.WithContext(ctx).
		Where("farmer_id = ? AND is_active = ? AND escrow_loan_id IS NULL", farmerID, true).
		Order("harvest_date ASC, id ASC").
		Find(&tokens).Error
	if err != nil {
		return nil, err
	}
	total := decimal.Zero
	for _, t := range tokens {
		total = total.Add(t.CurrentValue)
	}
	return &collateral.Portfolio{FarmerID: farmerID, TotalValue: total, Tokens: tokens}, nil
}

func (r *CollateralRepository) ListEscrowedByLoan(ctx context.Context, loanID string) ([]collateral.Token, error) {
	var out []collateral.Token
	err := r.db.WithContext(ctx).
		Where("escrow_loan_id = ?", loanID).
		Order("id ASC").
		Find(&out).Error
	return out, err
}

func (r *CollateralRepository) MarkEscrowed(ctx context.Context, tokenRowID uint64, loanID string) error {
	res := r.db.WithContext(ctx).
		Model(&collateral.Token{}).
		Where("id = ? AND is_active = ? AND escrow_loan_id IS NULL", tokenRowID, true).
		Update("escrow_loan_id", loanID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return collateral.ErrUnavailable
	}
	return nil
}

func (r *CollateralRepository) ClearEscrow(ctx context.Context, tokenRowID uint64) error {
	res := r.db.WithContext(ctx).
		Model(&collateral.Token{}).
		Where("id = ?", tokenRowID).
		Update("escrow_loan_id", gorm.Expr("NULL"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return collateral.ErrNotFound
	}
	return nil
}

func (r *CollateralRepository) Deactivate(ctx context.Context, tokenRowID uint64) error {
	res := r.db.WithContext(ctx).
		Model(&collateral.Token{}).
		Where("id = ?", tokenRowID).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return collateral.ErrNotFound
	}
	return nil
}
