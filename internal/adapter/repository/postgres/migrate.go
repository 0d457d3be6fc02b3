package postgres

import (
	"fmt"

	"gorm.io/gorm"

	"mazaochain/internal/domain/approval"
	"mazaochain/internal/domain/collateral"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/transaction"
)

const openLoanIndex = "ux_loans_borrower_open"

// Migrate creates the tables owned by this service. profiles belongs to the
// onboarding side and is not migrated here.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&loan.Loan{},
		&approval.Approval{},
		&transaction.Record{},
		&transaction.Receipt{},
		&collateral.Token{},
	); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	// one open loan per borrower; MySQL has no partial indexes, the usecase check covers it there
	if db.Dialector.Name() == "mysql" {
		return nil
	}
	stmt := fmt.Sprintf(
		"CREATE UNIQUE INDEX IF NOT EXISTS %s ON loans (borrower_id) WHERE status IN ('%s','%s','%s')",
		openLoanIndex, loan.StatusPending, loan.StatusApproved, loan.StatusActive,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("create %s: %w", openLoanIndex, err)
	}
	return nil
}
