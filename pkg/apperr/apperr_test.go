package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRetryable(t *testing.T) {
	tests := []struct {
		code Code
		want bool
	}{
		{CodeValidation, false},
		{CodeInsufficientCollateral, false},
		{CodeInsufficientBalance, false},
		{CodeNetwork, true},
		{CodeTransactionTimeout, true},
		{CodeTransactionFailed, false},
		{CodeDatabase, true},
		{CodeNotFound, false},
		{CodeInvalidState, false},
		{CodeConflict, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.code, "x").Retryable())
		})
	}
}

func TestFrom(t *testing.T) {
	orig := New(CodeNotFound, "loan missing")
	wrapped := fmt.Errorf("outer: %w", orig)
	assert.Same(t, orig, From(wrapped))

	assert.Nil(t, From(nil))
	assert.Equal(t, CodeTransactionTimeout, From(context.DeadlineExceeded).Code)
	assert.Equal(t, CodeDatabase, From(errors.New("boom")).Code)
}

func TestUserMessageDistinctFromInternal(t *testing.T) {
	err := Wrap(CodeNetwork, "hedera precheck BUSY", errors.New("busy"))
	assert.Contains(t, err.Error(), "hedera precheck BUSY")
	assert.NotContains(t, err.UserMessage, "hedera")
	assert.Equal(t, "custom", UserMessageOf(err.WithUserMessage("custom")))
	assert.NotEmpty(t, UserMessageOf(errors.New("plain")))
	assert.True(t, errors.Is(err, err.Err))
}

func TestIsAndCodeOf(t *testing.T) {
	err := fmt.Errorf("ctx: %w", Newf(CodeConflict, "loan %s locked", "abc"))
	assert.True(t, Is(err, CodeConflict))
	assert.True(t, IsRetryable(err))
	assert.Equal(t, Code(""), CodeOf(errors.New("x")))
	assert.False(t, IsRetryable(errors.New("x")))
}
