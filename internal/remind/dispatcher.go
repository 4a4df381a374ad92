package remind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"notlarim/internal/push"
	"notlarim/pkg/logx"
)

// dedupRetention keeps idempotency keys long enough to survive any
// plausible restart or duplicate trigger inside the same window.
const dedupRetention = 24 * time.Hour

// Dispatcher resolves a user's delivery target and hands one
// notification to the push channel. Exactly one delivery attempt per
// fired rule per tick; failures are isolated to the notification.
type Dispatcher struct {
	targets UserSource
	pusher  push.Pusher
	dedup   DedupStore // nil when idempotency keys are disabled
	limiter *rate.Limiter
	log     logx.Logger
}

func NewDispatcher(targets UserSource, pusher push.Pusher, dedup DedupStore, ratePerSec int, log logx.Logger) *Dispatcher {
	var lim *rate.Limiter
	if ratePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec)
	}
	return &Dispatcher{targets: targets, pusher: pusher, dedup: dedup, limiter: lim, log: log}
}

// SetRate adjusts an existing dispatch rate limit at runtime. It
// reports false when rate limiting was disabled at construction; a
// limiter cannot be added after the fact.
func (d *Dispatcher) SetRate(perSec int) bool {
	if d.limiter == nil || perSec <= 0 {
		return false
	}
	d.limiter.SetLimit(rate.Limit(perSec))
	d.limiter.SetBurst(perSec)
	return true
}

// Dispatch delivers one due reminder. A user without a registered
// delivery target is a silent no-op, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, due Due, win Window) Outcome {
	target, err := d.targets.DeliveryTarget(ctx, due.UserID)
	if err != nil {
		d.log.Warn("delivery target lookup failed",
			logx.String("user", due.UserID), logx.String("event", due.EventID), logx.Err(err))
		return OutcomeFailed
	}
	if target == "" {
		return OutcomeNoTarget
	}

	key := dedupKey(due, win)
	if d.dedup != nil {
		if _, ok, err := d.dedup.GetDedup(ctx, key); err == nil && ok {
			return OutcomeDeduped
		}
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx); err != nil {
			return OutcomeFailed
		}
	}

	msg := formatNotification(due)
	if err := d.pusher.Send(ctx, target, msg); err != nil {
		if errors.Is(err, push.ErrBadTarget) {
			// Stale registration is configuration-grade, not transient.
			d.log.Debug("delivery target rejected",
				logx.String("user", due.UserID), logx.String("event", due.EventID))
		} else {
			d.log.Warn("push send failed",
				logx.String("user", due.UserID), logx.String("event", due.EventID), logx.Err(err))
		}
		return OutcomeFailed
	}

	if d.dedup != nil {
		if err := d.dedup.PutDedup(ctx, key, win.Lo.Add(dedupRetention)); err != nil {
			d.log.Warn("dedup key write failed", logx.String("key", key), logx.Err(err))
		}
	}

	d.log.Debug("reminder dispatched",
		logx.String("user", due.UserID), logx.String("event", due.EventID),
		logx.Int("rule", due.RuleIndex), logx.Time("fire_at", due.FireAt))
	return OutcomeSent
}

// dedupKey identifies one (event, rule, window) intersection.
func dedupKey(due Due, win Window) string {
	return fmt.Sprintf("remind:%s:%d:%d", due.EventID, due.RuleIndex, win.Lo.UnixMilli())
}

// formatNotification renders the user-facing message the way the app
// shows it: "Yaklaşan etkinlik: <title>" / "<n> <unit> sonra başlayacak".
func formatNotification(due Due) push.Message {
	return push.Message{
		Title: "Yaklaşan etkinlik: " + due.EventTitle,
		Body:  fmt.Sprintf("%d %s sonra başlayacak", due.Rule.Value, due.Rule.Unit.Turkish()),
		Data: map[string]string{
			"eventId": due.EventID,
			"type":    "calendar_event",
		},
	}
}
