package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mazaochain/internal/domain/loan"
	"mazaochain/pkg/id"
)

// ErrHeld is returned when another operation owns the loan.
var ErrHeld = loan.ErrLocked

// release only if we still own the key
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// LoanLocker serializes ledger flows per loan across instances.
type LoanLocker struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewLoanLocker(rdb *redis.Client, ttl time.Duration) *LoanLocker {
	return &LoanLocker{rdb: rdb, ttl: ttl}
}

func key(loanID string) string { return "mazao:lock:loan:" + loanID }

// Acquire takes the lock or returns ErrHeld. The returned func releases it
// and is safe to call after the ttl expired.
func (l *LoanLocker) Acquire(ctx context.Context, loanID string) (func(), error) {
	token := id.NewID32()
	ok, err := l.rdb.SetNX(ctx, key(loanID), token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(relCtx, l.rdb, []string{key(loanID)}, token).Err()
	}, nil
}
