package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const Channel = "mazao:notifications"

type Event string

const (
	EventLoanRequested      Event = "loan_requested"
	EventLoanApproved       Event = "loan_approved"
	EventLoanRejected       Event = "loan_rejected"
	EventLoanDisbursed      Event = "loan_disbursed"
	EventLoanRepaid         Event = "loan_repaid"
	EventLoanDefaulted      Event = "loan_defaulted"
	EventRepaymentReceived  Event = "repayment_received"
	EventCollateralReleased Event = "collateral_released"
	EventCollateralSeized   Event = "collateral_liquidated"
)

// Envelope is the JSON message published for every event.
type Envelope struct {
	UserID  string         `json:"user_id"`
	Event   Event          `json:"event"`
	Payload map[string]any `json:"payload,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// Dispatcher publishes fire-and-forget notifications. Delivery failures are
// logged and swallowed.
type Dispatcher struct {
	rdb *redis.Client
	log *zap.Logger
}

func NewDispatcher(rdb *redis.Client, log *zap.Logger) *Dispatcher {
	return &Dispatcher{rdb: rdb, log: log}
}

func (d *Dispatcher) SendLoanNotification(ctx context.Context, userID string, event Event, payload map[string]any) {
	d.publish(ctx, Envelope{UserID: userID, Event: event, Payload: payload})
}

func (d *Dispatcher) SendRepaymentNotification(ctx context.Context, userID, loanID string, amount decimal.Decimal, remaining decimal.Decimal) {
	d.publish(ctx, Envelope{UserID: userID, Event: EventRepaymentReceived, Payload: map[string]any{
		"loan_id":   loanID,
		"amount":    amount.String(),
		"remaining": remaining.String(),
	}})
}

func (d *Dispatcher) SendCollateralReleaseNotification(ctx context.Context, userID, loanID string, amount decimal.Decimal) {
	d.publish(ctx, Envelope{UserID: userID, Event: EventCollateralReleased, Payload: map[string]any{
		"loan_id": loanID,
		"amount":  amount.String(),
	}})
}

func (d *Dispatcher) publish(ctx context.Context, env Envelope) {
	if env.UserID == "" {
		d.log.Warn("notification skipped, no recipient", zap.String("event", string(env.Event)))
		return
	}
	env.SentAt = time.Now().UTC()
	b, err := json.Marshal(env)
	if err != nil {
		d.log.Error("notification encode", zap.String("event", string(env.Event)), zap.Error(err))
		return
	}
	// detached so a cancelled request still gets its notification out
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := d.rdb.Publish(pubCtx, Channel, b).Err(); err != nil {
		d.log.Warn("notification publish failed",
			zap.String("event", string(env.Event)),
			zap.String("user_id", env.UserID),
			zap.Error(err),
		)
	}
}
