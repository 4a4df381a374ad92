package push

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"

	"notlarim/pkg/logx"
)

// telegramPusher delivers reminders to a Telegram chat. The delivery
// target is the chat ID rendered as a decimal string; users register
// it the same way device tokens are registered.
type telegramPusher struct {
	bot *tele.Bot
	log logx.Logger
}

func newTelegram(cfg Config, log logx.Logger) (Pusher, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, errors.New("telegram bot token is required")
	}
	b, err := tele.NewBot(tele.Settings{Token: cfg.BotToken})
	if err != nil {
		return nil, err
	}
	// Send-only: the bot never polls for updates.
	return &telegramPusher{bot: b, log: log}, nil
}

func (p *telegramPusher) Send(ctx context.Context, target string, msg Message) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(target), 10, 64)
	if err != nil {
		return ErrBadTarget
	}

	text := msg.Title
	if msg.Body != "" {
		text += "\n" + msg.Body
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := p.bot.Send(tele.ChatID(chatID), text); err != nil {
		return err
	}
	p.log.Debug("telegram message sent", logx.Int64("chat_id", chatID))
	return nil
}

func (p *telegramPusher) Close() error { return nil }
