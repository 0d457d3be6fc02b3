package loan

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"mazaochain/internal/adapter/ledger"
	"mazaochain/internal/adapter/notification"
	"mazaochain/internal/domain/approval"
	"mazaochain/internal/domain/collateral"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/profile"
	"mazaochain/internal/domain/transaction"
	"mazaochain/internal/domain/uow"
	"mazaochain/internal/infrastructure/logger"
	"mazaochain/internal/infrastructure/metrics"
	"mazaochain/internal/infrastructure/telemetry"
	"mazaochain/internal/usecase/eligibility"
	txuc "mazaochain/internal/usecase/transaction"
	"mazaochain/pkg/apperr"
	"mazaochain/pkg/retry"
)

// Gateway is the subset of the ledger gateway the orchestrator drives.
type Gateway interface {
	Disburse(ctx context.Context, borrowerAcct string, amount decimal.Decimal, loanID string) ledger.TransferResult
	ReceiveRepayment(ctx context.Context, borrowerAcct string, amount decimal.Decimal, loanID string) ledger.TransferResult
	EscrowCollateral(ctx context.Context, tokenID string, amount decimal.Decimal, fromAcct, escrowAcct, loanID string) ledger.TransferResult
	ReleaseCollateral(ctx context.Context, tokenID string, amount decimal.Decimal, fromAcct, toAcct, loanID string) ledger.TransferResult
	ReleaseLenderFunds(ctx context.Context, lenderAcct string, amount decimal.Decimal, loanID string) ledger.TransferResult
	LiquidateCollateralToLender(ctx context.Context, tokenID string, amount decimal.Decimal, lenderAcct, loanID string) ledger.TransferResult
	Resolve(ctx context.Context, externalTxID string) ledger.TransferResult
}

type Notifier interface {
	SendLoanNotification(ctx context.Context, userID string, event notification.Event, payload map[string]any)
	SendRepaymentNotification(ctx context.Context, userID, loanID string, amount, remaining decimal.Decimal)
	SendCollateralReleaseNotification(ctx context.Context, userID, loanID string, amount decimal.Decimal)
}

// Locker hands out per-loan exclusive locks; Acquire fails with loan.ErrLocked when taken.
type Locker interface {
	Acquire(ctx context.Context, loanID string) (func(), error)
}

const (
	flowCreate       = "create"
	flowApprove      = "approve"
	flowDisbursement = "disbursement"
	flowRepayment    = "repayment"
	flowLiquidation  = "liquidation"
)

type Deps struct {
	Loans      loan.Repository
	Profiles   profile.Repository
	Collateral collateral.Repository
	Records    *txuc.Service
	Calculator *eligibility.Calculator
	Gateway    Gateway
	Notifier   Notifier
	Locker     Locker
	UoW        uow.UnitOfWork
	Retry      retry.Policies
	Log        *zap.Logger

	TreasuryAccount string
	EscrowAccount   string

	// CollateralDecimals is the precision of the collateral token on the
	// ledger; escrow legs are truncated to it.
	CollateralDecimals int32

	Now func() time.Time
}

type Orchestrator struct {
	loans      loan.Repository
	profiles   profile.Repository
	collateral collateral.Repository
	records    *txuc.Service
	calc       *eligibility.Calculator
	gateway    Gateway
	notifier   Notifier
	locker     Locker
	uow        uow.UnitOfWork
	retry      retry.Policies
	log        *zap.Logger
	treasury   string
	escrow     string
	decimals   int32
	now        func() time.Time
}

func NewOrchestrator(d Deps) *Orchestrator {
	o := &Orchestrator{
		loans:      d.Loans,
		profiles:   d.Profiles,
		collateral: d.Collateral,
		records:    d.Records,
		calc:       d.Calculator,
		gateway:    d.Gateway,
		notifier:   d.Notifier,
		locker:     d.Locker,
		uow:        d.UoW,
		retry:      d.Retry,
		log:        d.Log,
		treasury:   d.TreasuryAccount,
		escrow:     d.EscrowAccount,
		decimals:   d.CollateralDecimals,
		now:        d.Now,
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.log == nil {
		o.log = zap.NewNop()
	}
	return o
}

// begin opens a span for flow; the returned func closes it and records the
// outcome of *errp.
func (o *Orchestrator) begin(ctx context.Context, flow, loanID string) (context.Context, func(errp *error)) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "loan."+flow,
		trace.WithAttributes(attribute.String("loan.id", loanID)))
	return ctx, func(errp *error) {
		if err := *errp; err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		metrics.ObserveFlow(flow, start, *errp)
	}
}

func (o *Orchestrator) logger(ctx context.Context, loanID string) *zap.Logger {
	return logger.WithTrace(ctx, o.log).With(zap.String("loan_id", loanID))
}

func (o *Orchestrator) acquire(ctx context.Context, loanID string) (func(), error) {
	if o.locker == nil {
		return func() {}, nil
	}
	release, err := o.locker.Acquire(ctx, loanID)
	if errors.Is(err, loan.ErrLocked) {
		return nil, apperr.Newf(apperr.CodeConflict, "loan %s is busy", loanID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabase, "acquire loan lock", err)
	}
	return release, nil
}

func (o *Orchestrator) loadLoan(ctx context.Context, loanID string) (*loan.Loan, error) {
	return retry.Execute(ctx, o.retry.Get(retry.PolicyDatabase), func(ctx context.Context) (*loan.Loan, error) {
		l, err := o.loans.GetByLoanID(ctx, loanID)
		if err != nil {
			return nil, storeErr("load loan", err)
		}
		return l, nil
	})
}

// wallet resolves a user's ledger account.
func (o *Orchestrator) wallet(ctx context.Context, userID string) (string, error) {
	p, err := o.profiles.GetByUserID(ctx, userID)
	if errors.Is(err, profile.ErrNotFound) {
		return "", apperr.Newf(apperr.CodeValidation, "no profile for user %s", userID).
			WithUserMessage("The user has no MazaoChain profile.")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.CodeDatabase, "load profile", err)
	}
	if p.WalletAddress == "" {
		return "", apperr.Newf(apperr.CodeValidation, "user %s has no wallet", userID).
			WithUserMessage("A wallet must be connected before funds can move.")
	}
	return p.WalletAddress, nil
}

// transfer runs one gateway call under the ledger policy. Only network
// failures that never produced a ledger transaction id are retried, so a
// transfer that may have landed is never submitted twice.
func (o *Orchestrator) transfer(ctx context.Context, fn func(ctx context.Context) ledger.TransferResult) ledger.TransferResult {
	var res ledger.TransferResult
	p := o.retry.Get(retry.PolicyLedger)
	p.Retryable = func(err error) bool {
		return apperr.Is(err, apperr.CodeNetwork) && res.ExternalTxID == ""
	}
	_ = retry.Do(ctx, p, func(ctx context.Context) error {
		res = fn(ctx)
		return res.Err
	})
	if !res.Success && res.Err == nil {
		res.Err = apperr.New(apperr.CodeTransactionFailed, "ledger transfer not confirmed")
	}
	return res
}

// storeErr maps repository errors onto the taxonomy; *apperr.Error passes through.
func storeErr(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae
	}
	switch {
	case errors.Is(err, loan.ErrNotFound):
		return apperr.Wrap(apperr.CodeNotFound, op, err)
	case errors.Is(err, loan.ErrStaleStatus), errors.Is(err, loan.ErrLocked):
		return apperr.Wrap(apperr.CodeConflict, op, err)
	case errors.Is(err, loan.ErrOpenLoanExists):
		return apperr.Wrap(apperr.CodeConflict, op, err).
			WithUserMessage("You already have a loan in progress.")
	case errors.Is(err, loan.ErrInvalidTransition), errors.Is(err, approval.ErrAlreadyDecided):
		return apperr.Wrap(apperr.CodeInvalidState, op, err)
	default:
		return apperr.Wrap(apperr.CodeDatabase, op, err)
	}
}

func invalidState(l *loan.Loan, want loan.Status) error {
	return apperr.Newf(apperr.CodeInvalidState, "loan %s is %s, want %s", l.LoanID, l.Status, want)
}

// move records a pending entry, runs the transfer and settles the entry with
// the outcome. Nothing reaches the ledger unless the entry was stored.
func (o *Orchestrator) move(ctx context.Context, userID string, in txuc.RecordInput, call func(ctx context.Context) ledger.TransferResult) (string, ledger.TransferResult, error) {
	txID, err := o.records.Record(ctx, userID, in)
	if err != nil {
		return "", ledger.TransferResult{}, err
	}
	res := o.transfer(ctx, call)
	if res.Unresolved() {
		o.records.Hold(ctx, txID, res.ExternalTxID, res.Err)
	} else {
		o.records.Settle(ctx, txID, res.ExternalTxID, res.Err)
	}
	if res.Err != nil {
		return txID, res, apperr.From(res.Err)
	}
	return txID, res, nil
}

// reconcile looks up the ledger outcome of records left pending by an earlier
// timeout and settles them. records is updated in place; the records that
// turned out confirmed are returned. A transfer the ledger still cannot
// account for stops the flow, so nothing is compensated or sent twice.
func (o *Orchestrator) reconcile(ctx context.Context, loanID string, records []transaction.Record) ([]transaction.Record, error) {
	var confirmed []transaction.Record
	for _, r := range txuc.Unresolved(records) {
		res := o.gateway.Resolve(ctx, r.ExternalTransactionID)
		if res.Unresolved() {
			return nil, apperr.Newf(apperr.CodeTransactionTimeout, "%s %s awaits ledger confirmation", r.Type, r.ExternalTransactionID).
				WithUserMessage("A previous transfer for this loan is still being confirmed. Try again shortly.")
		}
		o.records.Settle(ctx, r.TransactionID, r.ExternalTransactionID, res.Err)
		o.logger(ctx, loanID).Info("pending ledger transfer resolved",
			zap.String("transaction_id", r.TransactionID),
			zap.String("type", string(r.Type)),
			zap.Bool("confirmed", res.Err == nil),
		)
		if res.Err != nil {
			r.Status = transaction.StatusFailed
			continue
		}
		r.Status = transaction.StatusConfirmed
		confirmed = append(confirmed, *r)
	}
	return confirmed, nil
}

// escrowLeg moves one collateral token from the borrower into escrow and earmarks it.
func (o *Orchestrator) escrowLeg(ctx context.Context, l *loan.Loan, tok collateral.Token, borrowerAcct string) (txuc.EscrowLeg, error) {
	txID, res, err := o.move(ctx, l.BorrowerID, txuc.RecordInput{
		LoanID:    l.LoanID,
		Type:      transaction.TypeEscrow,
		Amount:    tok.CurrentValue,
		TokenType: transaction.TokenMAZAO,
		TokenID:   tok.TokenID,
		From:      borrowerAcct,
		To:        o.escrow,
		Memo:      ledger.Memo("collateral escrow", l.LoanID),
	}, func(ctx context.Context) ledger.TransferResult {
		return o.gateway.EscrowCollateral(ctx, tok.TokenID, tok.CurrentValue, borrowerAcct, o.escrow, l.LoanID)
	})
	if err != nil {
		return txuc.EscrowLeg{}, err
	}
	if err := o.collateral.MarkEscrowed(ctx, tok.ID, l.LoanID); err != nil {
		o.logger(ctx, l.LoanID).Warn("earmark collateral token", zap.String("token_id", tok.TokenID), zap.Error(err))
	}
	return txuc.EscrowLeg{
		TransactionID: txID,
		ExternalTxID:  res.ExternalTxID,
		TokenID:       tok.TokenID,
		Amount:        tok.CurrentValue,
		From:          borrowerAcct,
		Escrow:        o.escrow,
		ConfirmedAt:   o.now().UTC(),
	}, nil
}

// releaseLegs returns every leg to the account it came from, each exactly
// once. Failures are collected, not fatal.
func (o *Orchestrator) releaseLegs(ctx context.Context, l *loan.Loan, legs []txuc.EscrowLeg) []error {
	if len(legs) == 0 {
		return nil
	}
	rows := map[string]uint64{}
	if earmarked, err := o.collateral.ListEscrowedByLoan(ctx, l.LoanID); err == nil {
		for _, t := range earmarked {
			rows[t.TokenID] = t.ID
		}
	}

	var errs []error
	for _, leg := range legs {
		leg := leg
		_, _, err := o.move(ctx, l.BorrowerID, txuc.RecordInput{
			LoanID:    l.LoanID,
			Type:      transaction.TypeRelease,
			Amount:    leg.Amount,
			TokenType: transaction.TokenMAZAO,
			TokenID:   leg.TokenID,
			From:      leg.Escrow,
			To:        leg.From,
			Memo:      ledger.Memo("collateral release", l.LoanID),
		}, func(ctx context.Context) ledger.TransferResult {
			return o.gateway.ReleaseCollateral(ctx, leg.TokenID, leg.Amount, leg.Escrow, leg.From, l.LoanID)
		})
		if err != nil {
			o.logger(ctx, l.LoanID).Error("release collateral leg",
				zap.String("token_id", leg.TokenID),
				zap.String("escrow_tx", leg.TransactionID),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if row, ok := rows[leg.TokenID]; ok {
			if err := o.collateral.ClearEscrow(ctx, row); err != nil {
				o.logger(ctx, l.LoanID).Warn("clear collateral earmark", zap.String("token_id", leg.TokenID), zap.Error(err))
			}
		}
	}
	return errs
}

// selectCollateral picks tokens in portfolio order until need is covered.
// Tokens already held for the loan are skipped. Picked tokens carry their
// value truncated to the ledger's decimals, which is what gets escrowed.
func selectCollateral(tokens []collateral.Token, held map[string]bool, need decimal.Decimal, decimals int32) ([]collateral.Token, bool) {
	if !need.IsPositive() {
		return nil, true
	}
	var picked []collateral.Token
	sum := decimal.Zero
	for _, t := range tokens {
		t.CurrentValue = t.CurrentValue.Truncate(decimals)
		if held[t.TokenID] || !t.IsActive || !t.CurrentValue.IsPositive() {
			continue
		}
		picked = append(picked, t)
		sum = sum.Add(t.CurrentValue)
		if sum.GreaterThanOrEqual(need) {
			return picked, true
		}
	}
	return picked, false
}

func legsTotal(legs []txuc.EscrowLeg) decimal.Decimal {
	sum := decimal.Zero
	for _, leg := range legs {
		sum = sum.Add(leg.Amount)
	}
	return sum
}

func (o *Orchestrator) notifyCooperative(ctx context.Context, l *loan.Loan, event notification.Event, payload map[string]any) {
	p, err := o.profiles.GetByUserID(ctx, l.BorrowerID)
	if err != nil || p.Cooperative() == "" {
		o.logger(ctx, l.LoanID).Warn("no cooperative to notify", zap.String("event", string(event)), zap.Error(err))
		return
	}
	o.notifier.SendLoanNotification(ctx, p.Cooperative(), event, payload)
}
