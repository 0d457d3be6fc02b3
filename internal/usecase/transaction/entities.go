package transaction

import (
	"time"

	"github.com/shopspring/decimal"

	domain "mazaochain/internal/domain/transaction"
)

type RecordInput struct {
	LoanID       string
	Type         domain.Type
	Amount       decimal.Decimal
	TokenType    domain.TokenType
	TokenID      string
	From         string
	To           string
	Memo         string
	Status       domain.Status // defaults to pending
	ExternalTxID string
	ErrorMessage string
}

type ReceiptInput struct {
	LoanID                    string
	BorrowerID                string
	LenderID                  string
	Amount                    decimal.Decimal
	CollateralAmount          decimal.Decimal
	EscrowTransactionIDs      []string
	DisbursementTransactionID string
}

// EscrowLeg is one collateral token still held in escrow for a loan.
type EscrowLeg struct {
	TransactionID string
	ExternalTxID  string
	TokenID       string
	Amount        decimal.Decimal
	From          string // farmer wallet the leg came from
	Escrow        string
	ConfirmedAt   time.Time
}
