package collateral

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound    = errors.New("collateral token not found")
	ErrUnavailable = errors.New("collateral token already escrowed or inactive")
)

// Token is one tokenized crop valuation pledged by a farmer. While a loan is
// active the row is earmarked with EscrowLoanID.
type Token struct {
	ID           uint64          `gorm:"primaryKey;column:id" json:"-"`
	TokenID      string          `gorm:"size:32;not null" json:"token_id"`
	Symbol       string          `gorm:"size:16" json:"symbol"`
	FarmerID     string          `gorm:"size:64;index:idx_collateral_farmer" json:"farmer_id"`
	CropType     string          `gorm:"size:32" json:"crop_type"`
	CurrentValue decimal.Decimal `gorm:"type:numeric(20,6)" json:"current_value"`
	HarvestDate  time.Time       `json:"harvest_date"`
	IsActive     bool            `gorm:"default:true" json:"is_active"`
	EvaluationID string          `gorm:"size:64" json:"evaluation_id"`
	EscrowLoanID *string         `gorm:"size:32;index:idx_collateral_escrow" json:"escrow_loan_id,omitempty"`
	CreatedAt    time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Token) TableName() string { return "collateral_tokens" }

type Portfolio struct {
	FarmerID   string          `json:"farmer_id"`
	TotalValue decimal.Decimal `json:"total_value"`
	Tokens     []Token         `json:"tokens"`
}

// ActiveTokens returns the tokens still usable as collateral.
func (p *Portfolio) ActiveTokens() []Token {
	out := make([]Token, 0, len(p.Tokens))
	for _, t := range p.Tokens {
		if t.IsActive && t.EscrowLoanID == nil {
			out = append(out, t)
		}
	}
	return out
}
