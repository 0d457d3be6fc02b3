package loan

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mazaochain/internal/adapter/ledger"
	"mazaochain/internal/adapter/notification"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/transaction"
	txuc "mazaochain/internal/usecase/transaction"
	"mazaochain/pkg/apperr"
)

// LiquidateLoan hands the escrowed collateral of an overdue loan to its lender
// and marks the loan defaulted. If any leg fails the loan stays active; a
// second call moves only the legs still in escrow.
func (o *Orchestrator) LiquidateLoan(ctx context.Context, loanID string) (_ *LiquidationDTO, err error) {
	ctx, end := o.begin(ctx, flowLiquidation, loanID)
	defer end(&err)

	release, err := o.acquire(ctx, loanID)
	if err != nil {
		return nil, err
	}
	defer release()

	l, err := o.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Status != loan.StatusActive {
		return nil, invalidState(l, loan.StatusActive)
	}
	if !o.now().After(l.DueDate) {
		return nil, apperr.Newf(apperr.CodeInvalidState, "loan %s is not past due (due %s)", l.LoanID, l.DueDate.Format("2006-01-02")).
			WithUserMessage("Only overdue loans can be liquidated.")
	}
	lender := l.Lender()
	if lender == "" {
		return nil, apperr.Newf(apperr.CodeInvalidState, "active loan %s has no lender", l.LoanID)
	}
	lenderAcct, err := o.wallet(ctx, lender)
	if err != nil {
		return nil, err
	}

	records, err := o.records.GetByLoan(ctx, l.LoanID)
	if err != nil {
		return nil, err
	}
	if _, err := o.reconcile(ctx, l.LoanID, records); err != nil {
		return nil, err
	}
	legs := txuc.CollateralEscrowed(records)
	rows := map[string]uint64{}
	if earmarked, err := o.collateral.ListEscrowedByLoan(ctx, l.LoanID); err == nil {
		for _, t := range earmarked {
			rows[t.TokenID] = t.ID
		}
	}

	log := o.logger(ctx, l.LoanID)
	seized := decimal.Zero
	var txIDs []string
	var errs []error
	for _, leg := range legs {
		leg := leg
		_, res, err := o.move(ctx, lender, txuc.RecordInput{
			LoanID:    l.LoanID,
			Type:      transaction.TypeLiquidation,
			Amount:    leg.Amount,
			TokenType: transaction.TokenMAZAO,
			TokenID:   leg.TokenID,
			From:      leg.Escrow,
			To:        lenderAcct,
			Memo:      ledger.Memo("liquidation", l.LoanID),
		}, func(ctx context.Context) ledger.TransferResult {
			return o.gateway.LiquidateCollateralToLender(ctx, leg.TokenID, leg.Amount, lenderAcct, l.LoanID)
		})
		if err != nil {
			log.Error("liquidation leg failed", zap.String("token_id", leg.TokenID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		seized = seized.Add(leg.Amount)
		txIDs = append(txIDs, res.ExternalTxID)
		if row, ok := rows[leg.TokenID]; ok {
			if err := o.collateral.Deactivate(ctx, row); err != nil {
				log.Warn("deactivate liquidated token", zap.String("token_id", leg.TokenID), zap.Error(err))
			}
		}
	}
	if len(errs) > 0 {
		return nil, apperr.Wrap(apperr.CodeTransactionFailed,
			"liquidation incomplete", errors.Join(errs...)).
			WithUserMessage("Some collateral could not be transferred. The loan stays active; retry the liquidation.")
	}

	if err := o.loans.UpdateStatus(ctx, l.LoanID, loan.StatusActive, loan.StatusDefaulted, loan.Changes{}); err != nil {
		return nil, storeErr("mark loan defaulted", err)
	}
	log.Info("loan liquidated", zap.String("seized", seized.String()), zap.Int("legs", len(txIDs)))

	o.notifier.SendLoanNotification(ctx, l.BorrowerID, notification.EventLoanDefaulted, map[string]any{
		"loan_id":           l.LoanID,
		"collateral_seized": seized.String(),
	})
	o.notifier.SendLoanNotification(ctx, lender, notification.EventCollateralSeized, map[string]any{
		"loan_id":           l.LoanID,
		"collateral_seized": seized.String(),
		"tx_ids":            txIDs,
	})

	return &LiquidationDTO{
		LoanID:           l.LoanID,
		Status:           string(loan.StatusDefaulted),
		LenderID:         lender,
		CollateralSeized: seized,
		LiquidationTxIDs: txIDs,
	}, nil
}
