package uow

import (
	"context"

	"mazaochain/internal/domain/approval"
	"mazaochain/internal/domain/collateral"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/transaction"
)

type Repos struct {
	Loans        loan.Repository
	Approvals    approval.Repository
	Transactions transaction.Repository
	Collateral   collateral.Repository
}

type UnitOfWork interface {
	// plain tx
	WithinTx(ctx context.Context, fn func(r Repos) error) error
	// convenience: lock loan first, then pass it in
	WithinLoanTx(ctx context.Context, loanID string, fn func(r Repos, l *loan.Loan) error) error
}
