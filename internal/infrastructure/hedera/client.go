package hedera

import (
	"context"
	"errors"
	"fmt"

	hsdk "github.com/hashgraph/hedera-sdk-go/v2"

	"mazaochain/pkg/apperr"
)

const maxMemoBytes = 100

type Config struct {
	Network     string // mainnet | testnet | previewnet
	OperatorID  string
	OperatorKey string
	// extra signing keys keyed by account id, for accounts the operator does not control
	SignerKeys map[string]string
}

// Client submits HTS token transfers and waits for the receipt.
type Client struct {
	client  *hsdk.Client
	signers map[string]hsdk.PrivateKey
}

func NewClient(cfg Config) (*Client, error) {
	operatorID, err := hsdk.AccountIDFromString(cfg.OperatorID)
	if err != nil {
		return nil, fmt.Errorf("operator id: %w", err)
	}
	operatorKey, err := hsdk.PrivateKeyFromString(cfg.OperatorKey)
	if err != nil {
		return nil, fmt.Errorf("operator key: %w", err)
	}
	signers := make(map[string]hsdk.PrivateKey, len(cfg.SignerKeys))
	for acct, raw := range cfg.SignerKeys {
		k, err := hsdk.PrivateKeyFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("signer key for %s: %w", acct, err)
		}
		signers[acct] = k
	}

	c, err := hsdk.ClientForName(cfg.Network)
	if err != nil {
		return nil, fmt.Errorf("hedera network %q: %w", cfg.Network, err)
	}
	c.SetOperator(operatorID, operatorKey)
	return &Client{client: c, signers: signers}, nil
}

func (c *Client) Close() error { return c.client.Close() }

// TransferToken moves units of tokenID from one account to another and returns
// the ledger transaction id once the receipt reports SUCCESS. The SDK is not
// context aware, so ctx is only checked before submission.
func (c *Client) TransferToken(ctx context.Context, tokenID, from, to string, units int64, memo string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", apperr.Wrap(apperr.CodeTransactionTimeout, "transfer not submitted", err)
	}
	token, err := hsdk.TokenIDFromString(tokenID)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, "invalid token id "+tokenID, err)
	}
	fromID, err := hsdk.AccountIDFromString(from)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, "invalid source account "+from, err)
	}
	toID, err := hsdk.AccountIDFromString(to)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeValidation, "invalid destination account "+to, err)
	}
	if len(memo) > maxMemoBytes {
		memo = memo[:maxMemoBytes]
	}

	tx, err := hsdk.NewTransferTransaction().
		AddTokenTransfer(token, fromID, -units).
		AddTokenTransfer(token, toID, units).
		SetTransactionMemo(memo).
		FreezeWith(c.client)
	if err != nil {
		return "", apperr.Wrap(apperr.CodeTransactionFailed, "freeze transfer", err)
	}
	if key, ok := c.signers[from]; ok {
		tx = tx.Sign(key)
	}

	txID := tx.GetTransactionID().String()
	resp, err := tx.Execute(c.client)
	if err != nil {
		var pre hsdk.ErrHederaPreCheckStatus
		if errors.As(err, &pre) {
			// rejected by the node, never reached consensus
			return "", classify("submit transfer", err)
		}
		return txID, classify("submit transfer", err)
	}
	receipt, err := resp.GetReceipt(c.client)
	if err != nil {
		return resp.TransactionID.String(), classify("transfer receipt", err)
	}
	if receipt.Status != hsdk.StatusSuccess {
		return resp.TransactionID.String(), apperr.Newf(apperr.CodeTransactionFailed, "transfer receipt status %s", receipt.Status)
	}
	return resp.TransactionID.String(), nil
}

// ReceiptStatus queries the receipt of a transaction submitted earlier.
func (c *Client) ReceiptStatus(ctx context.Context, txID string) error {
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.CodeTransactionTimeout, "receipt lookup not sent", err)
	}
	id, err := hsdk.TransactionIdFromString(txID)
	if err != nil {
		return apperr.Wrap(apperr.CodeValidation, "invalid transaction id "+txID, err)
	}
	receipt, err := hsdk.NewTransactionReceiptQuery().
		SetTransactionID(id).
		Execute(c.client)
	if err != nil {
		return classify("receipt lookup", err)
	}
	if receipt.Status != hsdk.StatusSuccess {
		if code := statusCode(receipt.Status); code == apperr.CodeTransactionTimeout {
			return apperr.Newf(code, "receipt status %s", receipt.Status)
		}
		return apperr.Newf(apperr.CodeTransactionFailed, "transfer receipt status %s", receipt.Status)
	}
	return nil
}

// classify maps SDK failures onto the error taxonomy.
func classify(op string, err error) error {
	var pre hsdk.ErrHederaPreCheckStatus
	if errors.As(err, &pre) {
		return apperr.Wrap(statusCode(pre.Status), op+": precheck "+pre.Status.String(), err)
	}
	var rec hsdk.ErrHederaReceiptStatus
	if errors.As(err, &rec) {
		return apperr.Wrap(statusCode(rec.Status), op+": receipt "+rec.Status.String(), err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.CodeTransactionTimeout, op, err)
	}
	return apperr.Wrap(apperr.CodeNetwork, op, err)
}

func statusCode(s hsdk.Status) apperr.Code {
	switch s {
	case hsdk.StatusBusy, hsdk.StatusPlatformNotActive, hsdk.StatusPlatformTransactionNotCreated:
		return apperr.CodeNetwork
	case hsdk.StatusReceiptNotFound, hsdk.StatusUnknown, hsdk.StatusTransactionExpired:
		return apperr.CodeTransactionTimeout
	case hsdk.StatusInsufficientTokenBalance, hsdk.StatusInsufficientAccountBalance, hsdk.StatusInsufficientPayerBalance:
		return apperr.CodeInsufficientBalance
	default:
		return apperr.CodeTransactionFailed
	}
}
