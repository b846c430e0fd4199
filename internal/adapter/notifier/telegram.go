package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Telegram struct {
	bot    sender
	chatID int64
	token  string
}

func NewTelegram(botToken, chatID string) (*Telegram, error) {
	return newTelegram(botToken, chatID, tgbotapi.APIEndpoint, &http.Client{Timeout: 30 * time.Second})
}

func newTelegram(botToken, chatID, endpoint string, client tgbotapi.HTTPClient) (*Telegram, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(chatID), 10, 64)
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, fmt.Sprintf("invalid telegram chat id %q", chatID), err)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, client)
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, "failed to create telegram bot", redact(err, botToken))
	}

	return &Telegram{bot: bot, chatID: id, token: botToken}, nil
}

func (t *Telegram) Notify(ctx context.Context, event domain.BackupEvent) error {
	msg := tgbotapi.NewMessage(t.chatID, FormatEvent(event))
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram notification: %w", redact(err, t.token))
	}
	return nil
}

// redact strips the bot token, which tgbotapi embeds in request URLs.
func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return errors.New(shell.Redact(err.Error(), token))
}

func FormatEvent(event domain.BackupEvent) string {
	if event.Success {
		return fmt.Sprintf(
			"✅ Backup Created\n\n"+
				"🗄 Database: %s\n"+
				"📁 Location: %s\n"+
				"📊 Size: %s\n"+
				"🕐 Duration: %s\n"+
				"🔖 Job: #%d",
			event.TargetName,
			event.Location,
			humanize.Bytes(uint64(event.Size)),
			event.Duration.Round(time.Millisecond),
			event.JobID,
		)
	}

	return fmt.Sprintf(
		"❌ Backup Failed\n\n"+
			"🗄 Database: %s\n"+
			"⚠️ Error: %s\n"+
			"🔖 Job: #%d",
		event.TargetName,
		event.Error,
		event.JobID,
	)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, domain.BackupEvent) error { return nil }
