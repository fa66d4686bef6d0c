// Package dispatcher serializes outbound replies per phone. A cooldown
// window keeps the bot from machine-gunning a customer who sends several
// messages in a row; the check-then-arm step is atomic under the mutex so
// two concurrent pipeline workers cannot both win for the same phone.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/wdespachante/wa-service/internal/apperrors"
	"github.com/wdespachante/wa-service/internal/gateway"
	"github.com/wdespachante/wa-service/internal/observer"
	"github.com/wdespachante/wa-service/pkg/logger"
	"github.com/wdespachante/wa-service/pkg/utils"
)

// Dispatch outcomes, also used as metric labels.
const (
	OutcomeSent         = "sent"
	OutcomeCooldown     = "cooldown"
	OutcomeGatewayError = "gateway_error"
)

// SendResult reports what happened to one reply attempt.
type SendResult struct {
	Sent              bool          `json:"sent"`
	CooldownActive    bool          `json:"cooldown_active,omitempty"`
	CooldownRemaining time.Duration `json:"cooldown_remaining,omitempty"`
	GatewayError      string        `json:"gateway_error,omitempty"`
}

// Outcome returns the metric label for the result.
func (r SendResult) Outcome() string {
	switch {
	case r.Sent:
		return OutcomeSent
	case r.CooldownActive:
		return OutcomeCooldown
	default:
		return OutcomeGatewayError
	}
}

// Dispatcher sends replies through the gateway, one per phone per
// cooldown window.
type Dispatcher struct {
	sender   gateway.Sender
	cooldown time.Duration
	mu       sync.Mutex
	recent   *cache.Cache
	now      func() time.Time
}

// New creates a dispatcher. The cooldown cache expires entries on its own;
// the janitor runs at the cooldown interval.
func New(sender gateway.Sender, cooldown time.Duration) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		cooldown: cooldown,
		recent:   cache.New(cooldown, cooldown),
		now:      time.Now,
	}
}

// Send attempts to deliver one reply. The phone is normalized first so
// the cooldown key and the gateway see the same number regardless of how
// the caller formatted it. The cooldown slot is reserved atomically
// before the gateway call, so concurrent attempts for the same phone let
// exactly one through; a failed send releases the slot so the phone stays
// free to retry.
func (d *Dispatcher) Send(ctx context.Context, phone, message string) (SendResult, error) {
	phone = utils.NormalizePhone(phone)

	remaining, won := d.tryReserve(phone)
	if !won {
		logger.FromContext(ctx).Info("Reply suppressed by cooldown",
			zap.String("phone", phone),
			zap.Duration("remaining", remaining))
		observer.IncReply(OutcomeCooldown)
		return SendResult{CooldownActive: true, CooldownRemaining: remaining},
			fmt.Errorf("%w: %s for another %s", apperrors.ErrCooldownActive, phone, remaining.Round(time.Second))
	}

	if err := d.sender.SendText(ctx, phone, message); err != nil {
		d.release(phone)
		observer.IncReply(OutcomeGatewayError)
		return SendResult{GatewayError: err.Error()}, err
	}

	observer.IncReply(OutcomeSent)
	return SendResult{Sent: true}, nil
}

// CooldownRemaining reports how long the phone stays muted, zero if free.
func (d *Dispatcher) CooldownRemaining(phone string) time.Duration {
	remaining, _ := d.check(utils.NormalizePhone(phone))
	return remaining
}

// tryReserve atomically claims the phone's cooldown slot. Returns the
// remaining window when another send already holds it.
func (d *Dispatcher) tryReserve(phone string) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if remaining, active := d.remainingLocked(phone); active {
		return remaining, false
	}
	d.recent.Set(phone, d.now(), cache.DefaultExpiration)
	return 0, true
}

func (d *Dispatcher) release(phone string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recent.Delete(phone)
}

func (d *Dispatcher) check(phone string) (time.Duration, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.remainingLocked(phone)
}

func (d *Dispatcher) remainingLocked(phone string) (time.Duration, bool) {
	v, found := d.recent.Get(phone)
	if !found {
		return 0, false
	}
	armedAt, ok := v.(time.Time)
	if !ok {
		return 0, false
	}
	remaining := d.cooldown - d.now().Sub(armedAt)
	if remaining <= 0 {
		d.recent.Delete(phone)
		return 0, false
	}
	return remaining, true
}
