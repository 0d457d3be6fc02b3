package loan

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"mazaochain/internal/adapter/ledger"
	"mazaochain/internal/adapter/notification"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/transaction"
	txuc "mazaochain/internal/usecase/transaction"
	"mazaochain/pkg/apperr"
)

// DisbursementFlow escrows the borrower's collateral, pays out the principal
// and activates the loan. Collateral escrowed by this call is returned when a
// later step fails. Confirmed escrow legs and a confirmed disbursement from an
// earlier attempt are reused, never repeated. A disbursement that timed out
// after submission keeps its collateral in escrow and is looked up on the
// ledger before any new attempt.
func (o *Orchestrator) DisbursementFlow(ctx context.Context, loanID, lenderID string) (_ *DisbursementDTO, err error) {
	ctx, end := o.begin(ctx, flowDisbursement, loanID)
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
	if l.Status != loan.StatusApproved {
		return nil, invalidState(l, loan.StatusApproved)
	}
	switch {
	case lenderID == "":
		lenderID = l.Lender()
	case l.Lender() != "" && l.Lender() != lenderID:
		return nil, apperr.Newf(apperr.CodeValidation, "loan %s is funded by %s, not %s", l.LoanID, l.Lender(), lenderID)
	}
	if lenderID == "" {
		return nil, apperr.Newf(apperr.CodeValidation, "loan %s has no lender", l.LoanID)
	}

	borrowerAcct, err := o.wallet(ctx, l.BorrowerID)
	if err != nil {
		return nil, err
	}
	if _, err := o.wallet(ctx, lenderID); err != nil {
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
	log := o.logger(ctx, l.LoanID)

	var disbTxID string
	if d := txuc.Disbursed(records); d != nil {
		log.Info("disbursement already confirmed, activating", zap.String("transaction_id", d.TransactionID))
		disbTxID = d.ExternalTransactionID
	} else {
		fresh, err := o.escrowCollateral(ctx, l, borrowerAcct, legs)
		if err != nil {
			return nil, err
		}
		legs = append(legs, fresh...)

		txID, res, err := o.move(ctx, l.BorrowerID, txuc.RecordInput{
			LoanID:    l.LoanID,
			Type:      transaction.TypeDisbursement,
			Amount:    l.Principal,
			TokenType: transaction.TokenUSDC,
			From:      o.treasury,
			To:        borrowerAcct,
			Memo:      ledger.Memo("disbursement", l.LoanID),
		}, func(ctx context.Context) ledger.TransferResult {
			return o.gateway.Disburse(ctx, borrowerAcct, l.Principal, l.LoanID)
		})
		if res.Unresolved() {
			log.Warn("disbursement awaits ledger confirmation, collateral stays in escrow",
				zap.String("transaction_id", txID),
				zap.String("ledger_tx", res.ExternalTxID),
				zap.Error(err),
			)
			return nil, err
		}
		if err != nil {
			log.Error("disbursement failed, releasing collateral", zap.Int("legs", len(legs)), zap.Error(err))
			if errs := o.releaseLegs(ctx, l, legs); len(errs) > 0 {
				log.Error("collateral release incomplete", zap.Error(errors.Join(errs...)))
			}
			return nil, err
		}
		disbTxID = res.ExternalTxID
	}

	now := o.now().UTC()
	lender := lenderID
	if err := o.loans.UpdateStatus(ctx, l.LoanID, loan.StatusApproved, loan.StatusActive, loan.Changes{
		LenderID:    &lender,
		DisbursedAt: &now,
	}); err != nil {
		return nil, storeErr("activate loan", err)
	}
	log.Info("loan disbursed", zap.String("lender_id", lenderID), zap.String("ledger_tx", disbTxID))

	escrowIDs := make([]string, 0, len(legs))
	for _, leg := range legs {
		escrowIDs = append(escrowIDs, leg.ExternalTxID)
	}
	receiptID, rerr := o.records.GenerateDisbursementReceipt(ctx, txuc.ReceiptInput{
		LoanID:                    l.LoanID,
		BorrowerID:                l.BorrowerID,
		LenderID:                  lenderID,
		Amount:                    l.Principal,
		CollateralAmount:          legsTotal(legs),
		EscrowTransactionIDs:      escrowIDs,
		DisbursementTransactionID: disbTxID,
	})
	if rerr != nil {
		log.Warn("disbursement receipt not stored", zap.Error(rerr))
	}

	payload := map[string]any{
		"loan_id": l.LoanID,
		"amount":  l.Principal.String(),
		"tx_id":   disbTxID,
	}
	o.notifier.SendLoanNotification(ctx, l.BorrowerID, notification.EventLoanDisbursed, payload)
	o.notifier.SendLoanNotification(ctx, lenderID, notification.EventLoanDisbursed, payload)

	return &DisbursementDTO{
		LoanID:           l.LoanID,
		LenderID:         lenderID,
		Status:           string(loan.StatusActive),
		DisbursementTxID: disbTxID,
		EscrowTxIDs:      escrowIDs,
		ReceiptID:        receiptID,
		DisbursedAt:      now,
	}, nil
}

// escrowCollateral tops up the held legs until they cover the loan's
// collateral amount. On failure the legs escrowed here are released again.
func (o *Orchestrator) escrowCollateral(ctx context.Context, l *loan.Loan, borrowerAcct string, held []txuc.EscrowLeg) ([]txuc.EscrowLeg, error) {
	need := l.CollateralAmount.Sub(legsTotal(held))
	if !need.IsPositive() {
		return nil, nil
	}
	p, err := o.collateral.GetFarmerPortfolio(ctx, l.BorrowerID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabase, "load collateral portfolio", err)
	}
	skip := make(map[string]bool, len(held))
	for _, leg := range held {
		skip[leg.TokenID] = true
	}
	tokens, ok := selectCollateral(p.ActiveTokens(), skip, need, o.decimals)
	if !ok {
		return nil, apperr.Newf(apperr.CodeInsufficientCollateral,
			"collateral for loan %s short: need %s more, portfolio holds %s", l.LoanID, need, p.TotalValue)
	}

	var fresh []txuc.EscrowLeg
	for _, tok := range tokens {
		leg, err := o.escrowLeg(ctx, l, tok, borrowerAcct)
		if err != nil {
			o.logger(ctx, l.LoanID).Error("collateral escrow failed",
				zap.String("token_id", tok.TokenID),
				zap.Int("rollback_legs", len(fresh)),
				zap.Error(err),
			)
			if errs := o.releaseLegs(ctx, l, fresh); len(errs) > 0 {
				o.logger(ctx, l.LoanID).Error("collateral rollback incomplete", zap.Error(errors.Join(errs...)))
			}
			return nil, err
		}
		fresh = append(fresh, leg)
	}
	return fresh, nil
}

// RetryFailedDisbursement re-runs disbursement for a loan left approved by an
// earlier failure.
func (o *Orchestrator) RetryFailedDisbursement(ctx context.Context, loanID string) (*DisbursementDTO, error) {
	l, err := o.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if l.Status != loan.StatusApproved {
		return nil, invalidState(l, loan.StatusApproved)
	}
	if l.Lender() == "" {
		return nil, apperr.Newf(apperr.CodeValidation, "loan %s has no lender to disburse for", l.LoanID)
	}
	return o.DisbursementFlow(ctx, loanID, l.Lender())
}

// ValidateLoanForDisbursement lists every precondition DisbursementFlow would
// reject. It does not touch the ledger.
func (o *Orchestrator) ValidateLoanForDisbursement(ctx context.Context, loanID string) ([]string, error) {
	l, err := o.loadLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	var issues []string
	if l.Status != loan.StatusApproved {
		issues = append(issues, "loan status is "+string(l.Status)+", expected approved")
	}
	if l.Lender() == "" {
		issues = append(issues, "no lender assigned")
	}

	for _, u := range []struct{ role, id string }{{"borrower", l.BorrowerID}, {"lender", l.Lender()}} {
		if u.id == "" {
			continue
		}
		if _, err := o.wallet(ctx, u.id); err != nil {
			if !apperr.Is(err, apperr.CodeValidation) {
				return nil, err
			}
			issues = append(issues, u.role+" wallet: "+apperr.From(err).Message)
		}
	}

	records, err := o.records.GetByLoan(ctx, l.LoanID)
	if err != nil {
		return nil, err
	}
	for _, r := range txuc.Unresolved(records) {
		issues = append(issues, string(r.Type)+" "+r.ExternalTransactionID+" awaits ledger confirmation")
	}
	if txuc.Disbursed(records) != nil {
		return issues, nil
	}
	held := txuc.CollateralEscrowed(records)
	need := l.CollateralAmount.Sub(legsTotal(held))
	if need.IsPositive() {
		p, err := o.collateral.GetFarmerPortfolio(ctx, l.BorrowerID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeDatabase, "load collateral portfolio", err)
		}
		skip := make(map[string]bool, len(held))
		for _, leg := range held {
			skip[leg.TokenID] = true
		}
		if _, ok := selectCollateral(p.ActiveTokens(), skip, need, o.decimals); !ok {
			issues = append(issues, "insufficient collateral: need "+need.String()+" more")
		}
	}
	return issues, nil
}
