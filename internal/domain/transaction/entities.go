package transaction

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("transaction record not found")
	ErrNotPending = errors.New("transaction record already settled")
)

type Type string

const (
	TypeEscrow       Type = "escrow"
	TypeDisbursement Type = "disbursement"
	TypeRepayment    Type = "repayment"
	TypeRelease      Type = "release"
	TypeDistribution Type = "distribution"
	TypeLiquidation  Type = "liquidation"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

type TokenType string

const (
	TokenUSDC  TokenType = "USDC"
	TokenMAZAO TokenType = "MAZAO"
)

// Record is the audit entry for one ledger operation attempt.
type Record struct {
	ID                    uint64          `gorm:"primaryKey;column:id" json:"-"`
	TransactionID         string          `gorm:"size:36;uniqueIndex:ux_tx_records_transaction_id" json:"transaction_id"`
	LoanID                string          `gorm:"size:32;index:idx_tx_records_loan" json:"loan_id"`
	UserID                string          `gorm:"size:64" json:"user_id"`
	Type                  Type            `gorm:"column:transaction_type;type:varchar(16)" json:"transaction_type"`
	Amount                decimal.Decimal `gorm:"type:numeric(20,6)" json:"amount"`
	TokenType             TokenType       `gorm:"type:varchar(8)" json:"token_type"`
	TokenID               string          `gorm:"size:32" json:"token_id,omitempty"`
	FromAddress           string          `gorm:"size:64" json:"from_address"`
	ToAddress             string          `gorm:"size:64" json:"to_address"`
	ExternalTransactionID string          `gorm:"size:96" json:"external_transaction_id,omitempty"`
	Status                Status          `gorm:"type:varchar(16)" json:"status"`
	ErrorMessage          string          `gorm:"type:text" json:"error_message,omitempty"`
	Memo                  string          `gorm:"size:100" json:"memo,omitempty"`
	CreatedAt             time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Record) TableName() string { return "transaction_records" }

// Receipt summarizes a completed disbursement for display. It is not a ledger artifact.
type Receipt struct {
	ID                        uint64          `gorm:"primaryKey;column:id" json:"-"`
	ReceiptID                 string          `gorm:"size:36;uniqueIndex:ux_receipts_receipt_id" json:"receipt_id"`
	LoanID                    string          `gorm:"size:32;index:idx_receipts_loan" json:"loan_id"`
	BorrowerID                string          `gorm:"size:64" json:"borrower_id"`
	LenderID                  string          `gorm:"size:64" json:"lender_id"`
	Amount                    decimal.Decimal `gorm:"type:numeric(20,6)" json:"amount"`
	CollateralAmount          decimal.Decimal `gorm:"type:numeric(20,6)" json:"collateral_amount"`
	EscrowTransactionIDs      string          `gorm:"type:text" json:"escrow_transaction_ids"`
	DisbursementTransactionID string          `gorm:"size:96" json:"disbursement_transaction_id"`
	IssuedAt                  time.Time       `json:"issued_at"`
}

func (Receipt) TableName() string { return "disbursement_receipts" }
