package loan

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"mazaochain/internal/adapter/notification"
	"mazaochain/internal/domain/approval"
	"mazaochain/internal/domain/loan"
	"mazaochain/internal/domain/profile"
	"mazaochain/internal/domain/uow"
	"mazaochain/internal/usecase/eligibility"
	"mazaochain/pkg/apperr"
	"mazaochain/pkg/id"
)

// CreateLoanRequest opens a pending loan for an eligible borrower.
func (o *Orchestrator) CreateLoanRequest(ctx context.Context, in CreateLoanInput) (_ *LoanDTO, err error) {
	ctx, end := o.begin(ctx, flowCreate, "")
	defer end(&err)

	if in.BorrowerID == "" {
		return nil, apperr.New(apperr.CodeValidation, "borrower id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, apperr.Newf(apperr.CodeValidation, "loan amount must be positive, got %s", in.Amount)
	}

	elig, err := o.calc.CheckEligibility(ctx, in.BorrowerID, in.Amount)
	if err != nil {
		return nil, apperr.From(err)
	}
	if !elig.IsEligible {
		code := apperr.CodeInsufficientCollateral
		if elig.ActiveTokens > 0 && elig.AvailableCollateral.GreaterThanOrEqual(elig.RequiredCollateral) {
			code = apperr.CodeConflict
		}
		msg := strings.Join(elig.Reasons, "; ")
		return nil, apperr.New(code, "borrower not eligible: "+msg).WithUserMessage(msg)
	}

	quote, err := o.calc.CalculateInterest(in.Amount, in.InterestRate, in.TermMonths)
	if err != nil {
		return nil, apperr.From(err)
	}

	now := o.now().UTC()
	l := &loan.Loan{
		LoanID:             id.NewID32(),
		BorrowerID:         in.BorrowerID,
		Principal:          in.Amount,
		CollateralAmount:   in.Amount.Mul(loan.CollateralRatio),
		InterestRate:       in.InterestRate,
		TermMonths:         in.TermMonths,
		OutstandingBalance: quote.TotalAmount,
		DueDate:            now.Add(eligibility.Period * time.Duration(in.TermMonths)),
		Status:             loan.StatusPending,
		StatusUpdatedAt:    now,
	}
	if err := o.loans.Create(ctx, l); err != nil {
		return nil, storeErr("create loan", err)
	}
	o.logger(ctx, l.LoanID).Info("loan requested",
		zap.String("borrower_id", l.BorrowerID),
		zap.String("principal", l.Principal.String()),
	)

	o.notifyCooperative(ctx, l, notification.EventLoanRequested, map[string]any{
		"loan_id":     l.LoanID,
		"borrower_id": l.BorrowerID,
		"amount":      l.Principal.String(),
	})

	dto := toDTO(l)
	dto.Interest = quote
	return dto, nil
}

// ApproveLoanRequest records the cooperative decision. An approval that names
// a lender goes straight into disbursement; a failed disbursement leaves the
// loan approved and is reported on the result.
func (o *Orchestrator) ApproveLoanRequest(ctx context.Context, in ApproveInput) (_ *ApprovalDTO, err error) {
	if in.LoanID == "" || in.CooperativeID == "" {
		return nil, apperr.New(apperr.CodeValidation, "loan id and cooperative id are required")
	}
	if !in.Approved && in.LenderID != "" {
		return nil, apperr.New(apperr.CodeValidation, "a rejected loan cannot name a lender")
	}

	dto, err := o.decide(ctx, in)
	if err != nil {
		return nil, err
	}

	if !in.Approved || in.LenderID == "" {
		return dto, nil
	}
	disb, derr := o.DisbursementFlow(ctx, in.LoanID, in.LenderID)
	if derr != nil {
		o.logger(ctx, in.LoanID).Error("disbursement after approval failed", zap.Error(derr))
		dto.DisbursementError = apperr.UserMessageOf(derr)
		dto.DisbursementErrorCode = string(apperr.CodeOf(derr))
		return dto, nil
	}
	dto.Disbursement = disb
	dto.Status = disb.Status
	return dto, nil
}

func (o *Orchestrator) decide(ctx context.Context, in ApproveInput) (_ *ApprovalDTO, err error) {
	ctx, end := o.begin(ctx, flowApprove, in.LoanID)
	defer end(&err)

	l, err := o.loadLoan(ctx, in.LoanID)
	if err != nil {
		return nil, err
	}
	if err := o.checkCooperative(ctx, l, in.CooperativeID); err != nil {
		return nil, err
	}

	decision, next := approval.DecisionRejected, loan.StatusRejected
	if in.Approved {
		decision, next = approval.DecisionApproved, loan.StatusApproved
	}
	now := o.now().UTC()
	a := &approval.Approval{
		ApprovalID:    id.NewID32(),
		CooperativeID: in.CooperativeID,
		Decision:      decision,
		Reason:        in.Reason,
		DecidedAt:     now,
	}
	var ch loan.Changes
	if in.LenderID != "" {
		lender := in.LenderID
		a.LenderID, ch.LenderID = &lender, &lender
	}

	err = o.uow.WithinLoanTx(ctx, in.LoanID, func(r uow.Repos, cur *loan.Loan) error {
		if cur.Status != loan.StatusPending {
			return invalidState(cur, loan.StatusPending)
		}
		a.LoanID = cur.ID
		if err := r.Approvals.Create(ctx, a); err != nil {
			return err
		}
		return r.Loans.UpdateStatus(ctx, cur.LoanID, loan.StatusPending, next, ch)
	})
	if err != nil {
		return nil, storeErr("record approval decision", err)
	}

	event := notification.EventLoanRejected
	if in.Approved {
		event = notification.EventLoanApproved
	}
	o.notifier.SendLoanNotification(ctx, l.BorrowerID, event, map[string]any{
		"loan_id": l.LoanID,
		"reason":  in.Reason,
	})
	o.logger(ctx, l.LoanID).Info("loan decision recorded", zap.String("decision", string(decision)))

	return &ApprovalDTO{
		ApprovalID: a.ApprovalID,
		LoanID:     l.LoanID,
		Decision:   decision,
		LenderID:   in.LenderID,
		Reason:     in.Reason,
		DecidedAt:  now,
		Status:     string(next),
	}, nil
}

// checkCooperative rejects decisions from a cooperative the borrower does not
// belong to. Borrowers without a profile or cooperative are not checked.
func (o *Orchestrator) checkCooperative(ctx context.Context, l *loan.Loan, cooperativeID string) error {
	p, err := o.profiles.GetByUserID(ctx, l.BorrowerID)
	if errors.Is(err, profile.ErrNotFound) {
		return nil
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeDatabase, "load borrower profile", err)
	}
	if coop := p.Cooperative(); coop != "" && coop != cooperativeID {
		return apperr.Newf(apperr.CodeValidation, "cooperative %s does not manage borrower %s", cooperativeID, l.BorrowerID).
			WithUserMessage("This cooperative cannot decide on the loan.")
	}
	return nil
}
