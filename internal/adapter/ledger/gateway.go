package ledger

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"mazaochain/internal/domain/transaction"
	"mazaochain/internal/infrastructure/metrics"
	"mazaochain/pkg/apperr"
)

// Ledger submits one token transfer in smallest units and blocks until the
// network confirms or rejects it.
type Ledger interface {
	TransferToken(ctx context.Context, tokenID, from, to string, units int64, memo string) (string, error)
	// ReceiptStatus looks up a submitted transaction; nil means it reached
	// consensus with SUCCESS.
	ReceiptStatus(ctx context.Context, txID string) error
}

type Config struct {
	USDCTokenID     string
	USDCDecimals    int32
	MazaoDecimals   int32
	TreasuryAccount string
	EscrowAccount   string
}

type TransferRequest struct {
	Kind      transaction.Type
	TokenType transaction.TokenType
	// TokenID is required for MAZAO collateral tokens; USDC uses the configured id.
	TokenID string
	From    string
	To      string
	Amount  decimal.Decimal
	Memo    string
}

type TransferResult struct {
	Success      bool
	ExternalTxID string
	Err          error
}

// Unresolved reports a transfer that was submitted but never got a receipt.
// It may still land, so it must be looked up with Resolve before anything
// is compensated or sent again.
func (r TransferResult) Unresolved() bool {
	if r.Success || r.Err == nil || r.ExternalTxID == "" {
		return false
	}
	switch apperr.CodeOf(r.Err) {
	case apperr.CodeTransactionTimeout, apperr.CodeNetwork:
		return true
	}
	return false
}

// Gateway turns loan-level movements into ledger transfers. It never retries;
// callers decide.
type Gateway struct {
	ledger Ledger
	cfg    Config
	log    *zap.Logger
}

func NewGateway(l Ledger, cfg Config, log *zap.Logger) *Gateway {
	return &Gateway{ledger: l, cfg: cfg, log: log}
}

func (g *Gateway) Config() Config { return g.cfg }

func (g *Gateway) Transfer(ctx context.Context, req TransferRequest) TransferResult {
	start := time.Now()
	kind := string(req.Kind)
	if kind == "" {
		kind = "transfer"
	}

	tokenID, units, err := g.prepare(req)
	if err != nil {
		metrics.ObserveTransfer(kind, start, err)
		return TransferResult{Err: err}
	}

	txID, err := g.ledger.TransferToken(ctx, tokenID, req.From, req.To, units, req.Memo)
	metrics.ObserveTransfer(kind, start, err)
	if err != nil {
		ae := apperr.From(err)
		if apperr.CodeOf(err) == "" {
			// unclassified ledger errors are transport failures, not storage ones
			ae = apperr.Wrap(apperr.CodeNetwork, "ledger transfer", err)
		}
		g.log.Warn("ledger transfer failed",
			zap.String("kind", kind),
			zap.String("token_id", tokenID),
			zap.String("from", req.From),
			zap.String("to", req.To),
			zap.String("amount", req.Amount.String()),
			zap.String("code", string(ae.Code)),
			zap.Error(err),
		)
		return TransferResult{ExternalTxID: txID, Err: ae}
	}
	g.log.Info("ledger transfer confirmed",
		zap.String("kind", kind),
		zap.String("external_tx_id", txID),
		zap.String("amount", req.Amount.String()),
	)
	return TransferResult{Success: true, ExternalTxID: txID}
}

// Resolve fetches the final outcome of a transfer left unresolved. A lookup
// that still has no answer comes back unresolved again.
func (g *Gateway) Resolve(ctx context.Context, externalTxID string) TransferResult {
	if externalTxID == "" {
		return TransferResult{Err: apperr.New(apperr.CodeValidation, "external transaction id is required")}
	}
	err := g.ledger.ReceiptStatus(ctx, externalTxID)
	if err == nil {
		g.log.Info("ledger transfer resolved", zap.String("external_tx_id", externalTxID))
		return TransferResult{Success: true, ExternalTxID: externalTxID}
	}
	ae := apperr.From(err)
	if apperr.CodeOf(err) == "" {
		ae = apperr.Wrap(apperr.CodeNetwork, "ledger receipt lookup", err)
	}
	g.log.Warn("ledger transfer not resolved",
		zap.String("external_tx_id", externalTxID),
		zap.String("code", string(ae.Code)),
		zap.Error(err),
	)
	return TransferResult{ExternalTxID: externalTxID, Err: ae}
}

func (g *Gateway) prepare(req TransferRequest) (string, int64, error) {
	var tokenID string
	var decimals int32
	switch req.TokenType {
	case transaction.TokenUSDC:
		tokenID, decimals = g.cfg.USDCTokenID, g.cfg.USDCDecimals
	case transaction.TokenMAZAO:
		tokenID, decimals = req.TokenID, g.cfg.MazaoDecimals
	default:
		return "", 0, apperr.Newf(apperr.CodeValidation, "unknown token type %q", req.TokenType)
	}
	if tokenID == "" {
		return "", 0, apperr.New(apperr.CodeValidation, "token id is required")
	}
	if req.From == "" || req.To == "" {
		return "", 0, apperr.New(apperr.CodeValidation, "source and destination accounts are required")
	}
	units, err := ToUnits(req.Amount, decimals)
	if err != nil {
		return "", 0, err
	}
	return tokenID, units, nil
}

var maxUnits = decimal.NewFromInt(math.MaxInt64)

// ToUnits converts a token amount into the ledger's integer units. Zero,
// negative and sub-unit amounts are rejected.
func ToUnits(amount decimal.Decimal, decimals int32) (int64, error) {
	if !amount.IsPositive() {
		return 0, apperr.Newf(apperr.CodeValidation, "amount must be positive, got %s", amount)
	}
	u := amount.Shift(decimals)
	if !u.Equal(u.Truncate(0)) {
		return 0, apperr.Newf(apperr.CodeValidation, "amount %s has more than %d decimal places", amount, decimals)
	}
	if u.GreaterThan(maxUnits) {
		return 0, apperr.Newf(apperr.CodeValidation, "amount %s overflows ledger units", amount)
	}
	return u.IntPart(), nil
}

// Memo is the ledger memo for a loan movement.
func Memo(action, loanID string) string { return fmt.Sprintf("MazaoChain %s loan %s", action, loanID) }

func (g *Gateway) escrow(acct string) string {
	if acct != "" {
		return acct
	}
	return g.cfg.EscrowAccount
}

// Disburse pays the principal from the treasury to the borrower.
func (g *Gateway) Disburse(ctx context.Context, borrowerAcct string, amount decimal.Decimal, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeDisbursement, TokenType: transaction.TokenUSDC,
		From: g.cfg.TreasuryAccount, To: borrowerAcct, Amount: amount, Memo: Memo("disbursement", loanID),
	})
}

func (g *Gateway) ReceiveRepayment(ctx context.Context, borrowerAcct string, amount decimal.Decimal, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeRepayment, TokenType: transaction.TokenUSDC,
		From: borrowerAcct, To: g.cfg.TreasuryAccount, Amount: amount, Memo: Memo("repayment", loanID),
	})
}

// EscrowCollateral locks a collateral token leg; an empty escrowAcct uses the configured escrow account.
func (g *Gateway) EscrowCollateral(ctx context.Context, tokenID string, amount decimal.Decimal, fromAcct, escrowAcct, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeEscrow, TokenType: transaction.TokenMAZAO, TokenID: tokenID,
		From: fromAcct, To: g.escrow(escrowAcct), Amount: amount, Memo: Memo("collateral escrow", loanID),
	})
}

func (g *Gateway) ReleaseCollateral(ctx context.Context, tokenID string, amount decimal.Decimal, fromAcct, toAcct, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeRelease, TokenType: transaction.TokenMAZAO, TokenID: tokenID,
		From: g.escrow(fromAcct), To: toAcct, Amount: amount, Memo: Memo("collateral release", loanID),
	})
}

// EscrowLenderFunds moves a lender's commitment into the treasury pool.
func (g *Gateway) EscrowLenderFunds(ctx context.Context, lenderAcct string, amount decimal.Decimal, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeEscrow, TokenType: transaction.TokenUSDC,
		From: lenderAcct, To: g.cfg.TreasuryAccount, Amount: amount, Memo: Memo("lender escrow", loanID),
	})
}

// ReleaseLenderFunds pays a lender out of the treasury pool.
func (g *Gateway) ReleaseLenderFunds(ctx context.Context, lenderAcct string, amount decimal.Decimal, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeDistribution, TokenType: transaction.TokenUSDC,
		From: g.cfg.TreasuryAccount, To: lenderAcct, Amount: amount, Memo: Memo("lender distribution", loanID),
	})
}

func (g *Gateway) LiquidateCollateralToLender(ctx context.Context, tokenID string, amount decimal.Decimal, lenderAcct, loanID string) TransferResult {
	return g.Transfer(ctx, TransferRequest{
		Kind: transaction.TypeLiquidation, TokenType: transaction.TokenMAZAO, TokenID: tokenID,
		From: g.cfg.EscrowAccount, To: lenderAcct, Amount: amount, Memo: Memo("liquidation", loanID),
	})
}
