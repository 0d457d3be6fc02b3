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
	"mazaochain/internal/domain/uow"
	txuc "mazaochain/internal/usecase/transaction"
	"mazaochain/pkg/apperr"
)

// RepayLoan collects a repayment from the borrower. A full repayment charges
// exactly the outstanding balance, returns the collateral and pays the lender;
// collateral and lender steps are best-effort once the repayment is confirmed.
// Repayments left pending by a ledger timeout are resolved first, and an
// active loan with nothing outstanding is closed without a transfer.
func (o *Orchestrator) RepayLoan(ctx context.Context, in RepaymentInput) (_ *RepaymentDTO, err error) {
	ctx, end := o.begin(ctx, flowRepayment, in.LoanID)
	defer end(&err)

	if in.LoanID == "" {
		return nil, apperr.New(apperr.CodeValidation, "loan id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeValidation, "repayment amount must be positive, got %s", in.Amount)
	}
	if in.PaymentType != PaymentFull && in.PaymentType != PaymentPartial {
		return nil, apperr.Newf(apperr.CodeValidation, "unknown payment type %q", in.PaymentType)
	}

	release, err := o.acquire(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	defer release()

	l, err := o.loadLoan(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if l.Status != loan.StatusActive {
		return nil, invalidState(l, loan.StatusActive)
	}
	if in.BorrowerID != "" && in.BorrowerID != l.BorrowerID {
		return nil, apperr.Newf(apperr.CodeValidation, "user %s is not the borrower of loan %s", in.BorrowerID, l.LoanID)
	}

	records, err := o.records.GetByLoan(ctx, l.LoanID)
	if err != nil {
		return nil, err
	}
	confirmed, err := o.reconcile(ctx, l.LoanID, records)
	if err != nil {
		return nil, err
	}
	late := decimal.Zero
	for _, r := range confirmed {
		if r.Type == transaction.TypeRepayment {
			late = late.Add(r.Amount)
		}
	}
	if late.IsPositive() {
		if l.OutstandingBalance, err = o.applyRepayment(ctx, l.LoanID, late); err != nil {
			return nil, storeErr("apply resolved repayment", err)
		}
	}

	if !l.OutstandingBalance.IsPositive() {
		o.logger(ctx, l.LoanID).Info("nothing outstanding, closing loan without transfer")
		dto := &RepaymentDTO{
			LoanID:           l.LoanID,
			PaymentType:      in.PaymentType,
			Amount:           decimal.Zero,
			RemainingBalance: decimal.Zero,
			Status:           string(l.Status),
		}
		if err := o.settleFull(ctx, l, "", decimal.Zero, dto); err != nil {
			return nil, err
		}
		return dto, nil
	}

	charge := in.Amount
	switch in.PaymentType {
	case PaymentFull:
		if in.Amount.LessThan(l.OutstandingBalance) {
			return nil, apperr.Newf(apperr.CodeValidation, "full repayment of %s below outstanding %s", in.Amount, l.OutstandingBalance).
				WithUserMessage("A full repayment must cover the outstanding balance of " + l.OutstandingBalance.String() + " USDC.")
		}
		charge = l.OutstandingBalance
	case PaymentPartial:
		if in.Amount.GreaterThanOrEqual(l.OutstandingBalance) {
			return nil, apperr.Newf(apperr.CodeValidation, "partial repayment of %s covers outstanding %s", in.Amount, l.OutstandingBalance).
				WithUserMessage("This amount settles the loan; use a full repayment instead.")
		}
	}

	borrowerAcct, err := o.wallet(ctx, l.BorrowerID)
	if err != nil {
		return nil, err
	}

	txID, res, err := o.move(ctx, l.BorrowerID, txuc.RecordInput{
		LoanID:    l.LoanID,
		Type:      transaction.TypeRepayment,
		Amount:    charge,
		TokenType: transaction.TokenUSDC,
		From:      borrowerAcct,
		To:        o.treasury,
		Memo:      ledger.Memo("repayment", l.LoanID),
	}, func(ctx context.Context) ledger.TransferResult {
		return o.gateway.ReceiveRepayment(ctx, borrowerAcct, charge, l.LoanID)
	})
	if err != nil {
		return nil, err
	}
	log := o.logger(ctx, l.LoanID).With(zap.String("transaction_id", txID))

	remaining, err := o.applyRepayment(ctx, l.LoanID, charge)
	if err != nil {
		log.Error("confirmed repayment not applied to balance", zap.String("amount", charge.String()), zap.Error(err))
		return nil, storeErr("apply repayment", err)
	}

	dto := &RepaymentDTO{
		LoanID:           l.LoanID,
		TransactionID:    txID,
		ExternalTxID:     res.ExternalTxID,
		PaymentType:      in.PaymentType,
		Amount:           charge,
		RemainingBalance: remaining,
		Status:           string(l.Status),
	}

	if in.PaymentType == PaymentPartial {
		log.Info("partial repayment applied", zap.String("remaining", remaining.String()))
		o.notifier.SendRepaymentNotification(ctx, l.BorrowerID, l.LoanID, charge, remaining)
		return dto, nil
	}

	if err := o.settleFull(ctx, l, txID, charge, dto); err != nil {
		return nil, err
	}
	return dto, nil
}

// applyRepayment lowers the outstanding balance by amount, floored at zero,
// and returns what is left.
func (o *Orchestrator) applyRepayment(ctx context.Context, loanID string, amount decimal.Decimal) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := o.uow.WithinLoanTx(ctx, loanID, func(r uow.Repos, cur *loan.Loan) error {
		remaining = cur.OutstandingBalance.Sub(amount)
		if remaining.IsNegative() {
			remaining = decimal.Zero
		}
		return r.Loans.SetOutstandingBalance(ctx, cur.LoanID, remaining)
	})
	return remaining, err
}

// settleFull releases the collateral, pays the lender everything collected
// on the loan and not yet paid out, and closes the loan. txID is the
// repayment that cleared the balance, or "" when none was needed.
func (o *Orchestrator) settleFull(ctx context.Context, l *loan.Loan, txID string, charge decimal.Decimal, dto *RepaymentDTO) error {
	log := o.logger(ctx, l.LoanID)

	var legs []txuc.EscrowLeg
	payout := charge
	records, err := o.records.GetByLoan(ctx, l.LoanID)
	if err != nil {
		log.Error("load escrow legs for release", zap.Error(err))
		dto.ReleaseErrors = append(dto.ReleaseErrors, apperr.UserMessageOf(err))
	} else {
		legs = txuc.CollateralEscrowed(records)
		for _, e := range o.releaseLegs(ctx, l, legs) {
			dto.ReleaseErrors = append(dto.ReleaseErrors, e.Error())
		}
		// the clearing repayment counts once whether or not its record settled
		earlier := make([]transaction.Record, 0, len(records))
		for _, r := range records {
			if txID == "" || r.TransactionID != txID {
				earlier = append(earlier, r)
			}
		}
		payout = txuc.Undistributed(earlier).Add(charge)
	}
	dto.CollateralReleased = len(dto.ReleaseErrors) == 0

	if lender := l.Lender(); lender != "" {
		dto.DistributionTxID = o.distribute(ctx, l, lender, payout)
	}

	now := o.now().UTC()
	if err := o.loans.UpdateStatus(ctx, l.LoanID, loan.StatusActive, loan.StatusRepaid, loan.Changes{RepaidAt: &now}); err != nil {
		log.Error("repaid loan not closed", zap.Error(err))
		return storeErr("close repaid loan", err)
	}
	dto.Status = string(loan.StatusRepaid)
	log.Info("loan repaid",
		zap.Bool("collateral_released", dto.CollateralReleased),
		zap.Int("release_errors", len(dto.ReleaseErrors)),
	)

	if charge.IsPositive() {
		o.notifier.SendRepaymentNotification(ctx, l.BorrowerID, l.LoanID, charge, decimal.Zero)
	}
	if dto.CollateralReleased && len(legs) > 0 {
		o.notifier.SendCollateralReleaseNotification(ctx, l.BorrowerID, l.LoanID, legsTotal(legs))
	}
	if lender := l.Lender(); lender != "" {
		o.notifier.SendLoanNotification(ctx, lender, notification.EventLoanRepaid, map[string]any{
			"loan_id": l.LoanID,
			"amount":  payout.String(),
		})
	}
	return nil
}

// distribute pays the collected amount out to the lender. It returns the
// ledger transaction id, or "" when the payout did not go through.
func (o *Orchestrator) distribute(ctx context.Context, l *loan.Loan, lender string, amount decimal.Decimal) string {
	log := o.logger(ctx, l.LoanID).With(zap.String("lender_id", lender))
	if !amount.IsPositive() {
		log.Info("nothing to distribute")
		return ""
	}
	acct, err := o.wallet(ctx, lender)
	if err != nil {
		log.Error("lender distribution skipped", zap.Error(err))
		return ""
	}
	_, res, err := o.move(ctx, lender, txuc.RecordInput{
		LoanID:    l.LoanID,
		Type:      transaction.TypeDistribution,
		Amount:    amount,
		TokenType: transaction.TokenUSDC,
		From:      o.treasury,
		To:        acct,
		Memo:      ledger.Memo("lender distribution", l.LoanID),
	}, func(ctx context.Context) ledger.TransferResult {
		return o.gateway.ReleaseLenderFunds(ctx, acct, amount, l.LoanID)
	})
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			log = log.With(zap.String("code", string(ae.Code)))
		}
		log.Error("lender distribution failed", zap.Error(err))
		return ""
	}
	return res.ExternalTxID
}
