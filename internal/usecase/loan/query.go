package loan

import (
	"context"

	"github.com/shopspring/decimal"

	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/transaction"
	"mazaochain/pkg/apperr"
)

func (o *Orchestrator) GetLoan(ctx context.Context, loanID string) (*LoanDTO, error) {
	l, err := o.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	return toDTO(l), nil
}

// GetTransactions returns the loan's ledger entries newest first.
func (o *Orchestrator) GetTransactions(ctx context.Context, loanID string) ([]transaction.Record, error) {
	if _, err := o.loadLoan(ctx, loanID); err != nil {
		return nil, err
	}
	return o.records.GetByLoan(ctx, loanID)
}

// GetLenderPortfolio summarizes a lender's loans. Returned funds are the
// confirmed distributions; profit is what came back on repaid loans beyond
// their principal.
func (o *Orchestrator) GetLenderPortfolio(ctx context.Context, lenderID string) (*LenderPortfolio, error) {
	if lenderID == "" {
		return nil, apperr.New(apperr.CodeValidation, "lender id is required")
	}
	loans, err := o.loans.ListByLender(ctx, lenderID)
	if err != nil {
		return nil, storeErr("list lender loans", err)
	}

	out := &LenderPortfolio{
		LenderID:      lenderID,
		TotalLoans:    len(loans),
		TotalLent:     decimal.Zero,
		TotalReturned: decimal.Zero,
		Loans:         make([]LoanDTO, 0, len(loans)),
	}
	repaidPrincipal := decimal.Zero
	for i := range loans {
		l := &loans[i]
		out.Loans = append(out.Loans, *toDTO(l))

		switch l.Status {
		case loan.StatusActive:
			out.ActiveLoans++
		case loan.StatusRepaid:
			out.CompletedLoans++
			repaidPrincipal = repaidPrincipal.Add(l.Principal)
		case loan.StatusDefaulted:
			out.DefaultedLoans++
		}
		if l.DisbursedAt == nil {
			continue
		}
		out.TotalLent = out.TotalLent.Add(l.Principal)

		records, err := o.records.GetByLoan(ctx, l.LoanID)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if r.Type == transaction.TypeDistribution && r.Status == transaction.StatusConfirmed {
				out.TotalReturned = out.TotalReturned.Add(r.Amount)
			}
		}
	}
	out.Profit = out.TotalReturned.Sub(repaidPrincipal)
	return out, nil
}
