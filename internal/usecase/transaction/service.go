package transaction

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	domain "mazaochain/internal/domain/transaction"
	"mazaochain/pkg/apperr"
)

// Service is the audit trail of ledger attempts. Records are immutable apart
// from UpdateStatus.
type Service struct {
	repo domain.Repository
	log  *zap.Logger
}

func NewService(repo domain.Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

func (s *Service) Record(ctx context.Context, userID string, in RecordInput) (string, error) {
	if in.LoanID == "" || in.Type == "" {
		return "", apperr.New(apperr.CodeValidation, "loan id and transaction type are required")
	}
	status := in.Status
	if status == "" {
		status = domain.StatusPending
	}
	rec := &domain.Record{
		TransactionID:         uuid.NewString(),
		LoanID:                in.LoanID,
		UserID:                userID,
		Type:                  in.Type,
		Amount:                in.Amount,
		TokenType:             in.TokenType,
		TokenID:               in.TokenID,
		FromAddress:           in.From,
		ToAddress:             in.To,
		ExternalTransactionID: in.ExternalTxID,
		Status:                status,
		ErrorMessage:          in.ErrorMessage,
		Memo:                  in.Memo,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", apperr.Wrap(apperr.CodeDatabase, "record transaction", err)
	}
	return rec.TransactionID, nil
}

func (s *Service) UpdateStatus(ctx context.Context, transactionID string, status domain.Status, externalTxID, errMsg string) error {
	err := s.repo.UpdateStatus(ctx, transactionID, status, externalTxID, errMsg)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return apperr.Newf(apperr.CodeNotFound, "transaction %s not found", transactionID)
	case errors.Is(err, domain.ErrNotPending):
		return apperr.Newf(apperr.CodeInvalidState, "transaction %s already settled", transactionID)
	default:
		return apperr.Wrap(apperr.CodeDatabase, "update transaction status", err)
	}
}

// GetByLoan returns the loan's records newest first.
func (s *Service) GetByLoan(ctx context.Context, loanID string) ([]domain.Record, error) {
	out, err := s.repo.ListByLoan(ctx, loanID)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabase, "list transactions", err)
	}
	return out, nil
}

func (s *Service) GenerateDisbursementReceipt(ctx context.Context, in ReceiptInput) (string, error) {
	rc := &domain.Receipt{
		ReceiptID:                 uuid.NewString(),
		LoanID:                    in.LoanID,
		BorrowerID:                in.BorrowerID,
		LenderID:                  in.LenderID,
		Amount:                    in.Amount,
		CollateralAmount:          in.CollateralAmount,
		EscrowTransactionIDs:      strings.Join(in.EscrowTransactionIDs, ","),
		DisbursementTransactionID: in.DisbursementTransactionID,
		IssuedAt:                  time.Now().UTC(),
	}
	if err := s.repo.CreateReceipt(ctx, rc); err != nil {
		return "", apperr.Wrap(apperr.CodeDatabase, "store disbursement receipt", err)
	}
	return rc.ReceiptID, nil
}

func (s *Service) GetReceipt(ctx context.Context, loanID string) (*domain.Receipt, error) {
	rc, err := s.repo.GetReceiptByLoan(ctx, loanID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, apperr.Newf(apperr.CodeNotFound, "no disbursement receipt for loan %s", loanID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeDatabase, "load receipt", err)
	}
	return rc, nil
}

// Settle marks a record confirmed or failed from a ledger outcome. Failures
// to persist are logged; the ledger outcome is what callers act on.
func (s *Service) Settle(ctx context.Context, transactionID, externalTxID string, ledgerErr error) {
	status, msg := domain.StatusConfirmed, ""
	if ledgerErr != nil {
		status, msg = domain.StatusFailed, ledgerErr.Error()
	}
	if err := s.UpdateStatus(ctx, transactionID, status, externalTxID, msg); err != nil {
		s.log.Error("settle transaction record",
			zap.String("transaction_id", transactionID),
			zap.String("status", string(status)),
			zap.Error(err),
		)
	}
}

// Hold keeps a record pending while the ledger outcome of a submitted
// transaction is unknown, storing the ledger id so it can be resolved later.
func (s *Service) Hold(ctx context.Context, transactionID, externalTxID string, ledgerErr error) {
	msg := ""
	if ledgerErr != nil {
		msg = ledgerErr.Error()
	}
	if err := s.UpdateStatus(ctx, transactionID, domain.StatusPending, externalTxID, msg); err != nil {
		s.log.Error("hold transaction record",
			zap.String("transaction_id", transactionID),
			zap.String("external_tx_id", externalTxID),
			zap.Error(err),
		)
	}
}

// Unresolved returns pending records that were submitted to the ledger.
func Unresolved(records []domain.Record) []*domain.Record {
	var out []*domain.Record
	for i := range records {
		r := &records[i]
		if r.Status == domain.StatusPending && r.ExternalTransactionID != "" {
			out = append(out, r)
		}
	}
	return out
}

// Undistributed is what borrowers paid that has not reached the lender yet:
// confirmed repayments less confirmed distributions.
func Undistributed(records []domain.Record) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		if r.Status != domain.StatusConfirmed {
			continue
		}
		switch r.Type {
		case domain.TypeRepayment:
			total = total.Add(r.Amount)
		case domain.TypeDistribution:
			total = total.Sub(r.Amount)
		}
	}
	return total
}

// LatestByType returns the newest record of typ, optionally restricted to a status.
func LatestByType(records []domain.Record, typ domain.Type, status domain.Status) *domain.Record {
	for i := range records {
		r := &records[i]
		if r.Type == typ && (status == "" || r.Status == status) {
			return r
		}
	}
	return nil
}

// Disbursed returns the confirmed disbursement, if any.
func Disbursed(records []domain.Record) *domain.Record {
	return LatestByType(records, domain.TypeDisbursement, domain.StatusConfirmed)
}

// CollateralEscrowed replays confirmed collateral movements oldest first and
// returns the legs still held in escrow, in escrow order.
func CollateralEscrowed(records []domain.Record) []EscrowLeg {
	held := map[string]EscrowLeg{}
	seen := map[string]bool{}
	var order []string
	for i := len(records) - 1; i >= 0; i-- {
		r := records[i]
		if r.Status != domain.StatusConfirmed || r.TokenType != domain.TokenMAZAO {
			continue
		}
		switch r.Type {
		case domain.TypeEscrow:
			if !seen[r.TokenID] {
				seen[r.TokenID] = true
				order = append(order, r.TokenID)
			}
			held[r.TokenID] = EscrowLeg{
				TransactionID: r.TransactionID,
				ExternalTxID:  r.ExternalTransactionID,
				TokenID:       r.TokenID,
				Amount:        r.Amount,
				From:          r.FromAddress,
				Escrow:        r.ToAddress,
				ConfirmedAt:   r.UpdatedAt,
			}
		case domain.TypeRelease, domain.TypeLiquidation:
			delete(held, r.TokenID)
		}
	}
	out := make([]EscrowLeg, 0, len(held))
	for _, tok := range order {
		if leg, ok := held[tok]; ok {
			out = append(out, leg)
		}
	}
	return out
}
