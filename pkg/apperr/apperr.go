package apperr

import (
	"context"
	"errors"
	"fmt"
)

type Code string

const (
	CodeValidation             Code = "VALIDATION"
	CodeInsufficientCollateral Code = "INSUFFICIENT_COLLATERAL"
	CodeInsufficientBalance    Code = "INSUFFICIENT_BALANCE"
	CodeNetwork                Code = "NETWORK_ERROR"
	CodeTransactionTimeout     Code = "TRANSACTION_TIMEOUT"
	CodeTransactionFailed      Code = "TRANSACTION_FAILED"
	CodeDatabase               Code = "DATABASE_ERROR"
	CodeNotFound               Code = "NOT_FOUND"
	CodeInvalidState           Code = "INVALID_STATE"
	CodeConflict               Code = "CONFLICT"
)

// default user-facing messages, used when a constructor is not given one
var userMessages = map[Code]string{
	CodeValidation:             "The request contains invalid data.",
	CodeInsufficientCollateral: "Your collateral does not cover the requested amount.",
	CodeInsufficientBalance:    "The account balance is too low for this operation.",
	CodeNetwork:                "The ledger network is unreachable. Please retry.",
	CodeTransactionTimeout:     "The ledger did not confirm the transaction in time. Please retry.",
	CodeTransactionFailed:      "The ledger rejected the transaction.",
	CodeDatabase:               "A storage error occurred. Please retry.",
	CodeNotFound:               "The requested resource was not found.",
	CodeInvalidState:           "The loan is not in a state that allows this operation.",
	CodeConflict:               "Another operation is in progress for this loan. Please retry.",
}

// Error carries an internal message for logs and a separate message safe to display.
type Error struct {
	Code        Code
	Message     string
	UserMessage string
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a generic retry wrapper may re-run the failed operation.
func (e *Error) Retryable() bool {
	switch e.Code {
	case CodeNetwork, CodeTransactionTimeout, CodeDatabase, CodeConflict:
		return true
	}
	return false
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, UserMessage: userMessages[code]}
}

func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

func Wrap(code Code, msg string, err error) *Error {
	return &Error{Code: code, Message: msg, UserMessage: userMessages[code], Err: err}
}

// WithUserMessage returns a copy of e with a specific display message.
func (e *Error) WithUserMessage(msg string) *Error {
	cp := *e
	cp.UserMessage = msg
	return &cp
}

// From normalizes any error into *Error. Unknown errors become DATABASE_ERROR
// unless they are context cancellations, which map to TRANSACTION_TIMEOUT.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Wrap(CodeTransactionTimeout, "operation interrupted", err)
	}
	return Wrap(CodeDatabase, "unexpected failure", err)
}

func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func Is(err error, code Code) bool { return CodeOf(err) == code }

func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}

// UserMessageOf returns the display message of err, falling back to a generic one.
func UserMessageOf(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.UserMessage != "" {
		return ae.UserMessage
	}
	return "Something went wrong. Please try again later."
}
