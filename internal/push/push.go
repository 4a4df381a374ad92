// Package push abstracts the delivery channel that carries reminder
// notifications to a user's device. The dispatcher only sees the
// Pusher interface; the concrete channel (FCM, Telegram) is selected
// by configuration.
package push

import (
	"context"
	"errors"
	"strings"

	"notlarim/pkg/logx"
)

// Message is one notification handed to the channel. Data travels as
// string key/value pairs, matching what mobile push payloads allow.
type Message struct {
	Title string
	Body  string
	Data  map[string]string
}

// Pusher sends a message to a single delivery target (device token or
// channel-specific address). Implementations must be safe for
// concurrent use; the dispatcher calls Send from worker goroutines.
type Pusher interface {
	Send(ctx context.Context, target string, msg Message) error
	Close() error
}

// ErrBadTarget marks a target the channel permanently rejects
// (unregistered device token, malformed chat id). The dispatcher
// treats it as configuration-grade, not transient.
var ErrBadTarget = errors.New("delivery target rejected")

// Config selects and configures the delivery channel.
type Config struct {
	Channel string // fcm | telegram | none

	// FCM.
	CredentialsFile string

	// Telegram.
	BotToken string
}

// New builds the configured channel. Channel "none" (or empty)
// returns a discarding pusher so the engine can run without delivery
// wired up (useful in tests and dry deployments).
func New(ctx context.Context, cfg Config, log logx.Logger) (Pusher, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Channel)) {
	case "", "none":
		return nopPusher{}, nil
	case "fcm":
		return newFCM(ctx, cfg, log)
	case "telegram":
		return newTelegram(cfg, log)
	default:
		return nil, errors.New("unknown push channel: " + cfg.Channel)
	}
}

type nopPusher struct{}

func (nopPusher) Send(ctx context.Context, target string, msg Message) error { return nil }
func (nopPusher) Close() error                                               { return nil }
