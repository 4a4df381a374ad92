package push

import (
	"context"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"

	"notlarim/pkg/logx"
)

// fcmPusher delivers via Firebase Cloud Messaging. The payload shape
// (high-priority Android config + APNS alert) matches what the mobile
// app expects.
type fcmPusher struct {
	client *messaging.Client
	log    logx.Logger
}

func newFCM(ctx context.Context, cfg Config, log logx.Logger) (Pusher, error) {
	var opts []option.ClientOption
	if strings.TrimSpace(cfg.CredentialsFile) != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, nil, opts...)
	if err != nil {
		return nil, err
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, err
	}
	return &fcmPusher{client: client, log: log}, nil
}

func (p *fcmPusher) Send(ctx context.Context, target string, msg Message) error {
	m := &messaging.Message{
		Token: target,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Data: msg.Data,
		Android: &messaging.AndroidConfig{
			Priority: "high",
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Alert: &messaging.ApsAlert{
						Title: msg.Title,
						Body:  msg.Body,
					},
				},
			},
		},
	}

	id, err := p.client.Send(ctx, m)
	if err != nil {
		if messaging.IsUnregistered(err) {
			// Stale token: the app was uninstalled or the token rotated.
			return ErrBadTarget
		}
		return err
	}
	p.log.Debug("fcm message sent", logx.String("message_id", id))
	return nil
}

func (p *fcmPusher) Close() error { return nil }
