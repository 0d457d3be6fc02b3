package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"mazaochain/internal/domain/collateral"
	loanDomain "mazaochain/internal/domain/loan"
)

// openTestDB runs the production migration against in-memory sqlite. The
// domain models carry no dialect-specific column types, so no shadow schema
// is needed.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func makeLoan(loanID, borrowerID string) *loanDomain.Loan {
	now := time.Now().UTC()
	principal := decimal.NewFromInt(1000)
	return &loanDomain.Loan{
		LoanID:             loanID,
		BorrowerID:         borrowerID,
		Principal:          principal,
		CollateralAmount:   principal.Mul(loanDomain.CollateralRatio),
		InterestRate:       decimal.RequireFromString("0.12"),
		TermMonths:         6,
		OutstandingBalance: principal,
		DueDate:            now.AddDate(0, 0, 180),
		Status:             loanDomain.StatusPending,
		StatusUpdatedAt:    now,
	}
}

func seedToken(t *testing.T, db *gorm.DB, tokenID, farmerID string, value int64, harvest time.Time) *collateral.Token {
	t.Helper()
	tok := &collateral.Token{
		TokenID:      tokenID,
		Symbol:       "MZC-" + tokenID,
		FarmerID:     farmerID,
		CropType:     "manioc",
		CurrentValue: decimal.NewFromInt(value),
		HarvestDate:  harvest,
		IsActive:     true,
	}
	if err := db.Create(tok).Error; err != nil {
		t.Fatalf("seed token: %v", err)
	}
	return tok
}
