package notifier

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backuppilot/internal/domain"
)

type fakeSender struct {
	sent []tgbotapi.Chattable
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.sent = append(f.sent, c)
	return tgbotapi.Message{}, f.err
}

const secretToken = "123456:SUPERSECRETTOKEN"

// unreachableClient fails every request the way net/http does when the
// proxy is down, echoing the full request URL.
type unreachableClient struct{}

func (unreachableClient) Do(req *http.Request) (*http.Response, error) {
	return nil, &url.Error{Op: "Post", URL: req.URL.String(), Err: errors.New("proxyconnect tcp: dial tcp 10.0.0.1:3128: connect: connection refused")}
}

func TestTelegram(t *testing.T) {
	Convey("Given a Telegram notifier", t, func() {
		bot := &fakeSender{}
		n := &Telegram{bot: bot, chatID: 42}

		Convey("When a backup succeeds", func() {
			err := n.Notify(context.Background(), domain.BackupEvent{
				JobID: 9, TargetName: "orders", Success: true,
				Location: "/backups/db_1_orders/orders.sql", Size: 2048, Duration: 3 * time.Second,
			})

			Convey("It should send a message to the chat", func() {
				So(err, ShouldBeNil)
				So(bot.sent, ShouldHaveLength, 1)
				msg := bot.sent[0].(tgbotapi.MessageConfig)
				So(msg.ChatID, ShouldEqual, int64(42))
				So(msg.Text, ShouldContainSubstring, "Backup Created")
				So(msg.Text, ShouldContainSubstring, "2.0 kB")
				So(msg.Text, ShouldContainSubstring, "#9")
			})
		})

		Convey("When a backup fails", func() {
			text := FormatEvent(domain.BackupEvent{JobID: 3, TargetName: "crm", Error: "pg_dump failed"})

			Convey("It should include the error", func() {
				So(text, ShouldContainSubstring, "Backup Failed")
				So(text, ShouldContainSubstring, "pg_dump failed")
			})
		})

		Convey("When the API rejects the message", func() {
			bot.err = errors.New("chat not found")
			err := n.Notify(context.Background(), domain.BackupEvent{TargetName: "crm"})

			Convey("It should return a wrapped error", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "failed to send telegram notification")
			})
		})

		Convey("When the API is unreachable the bot token never appears in errors", func() {
			_, err := newTelegram(secretToken, "42", tgbotapi.APIEndpoint, unreachableClient{})
			So(err, ShouldNotBeNil)
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
			So(err.Error(), ShouldContainSubstring, "failed to create telegram bot")
			So(err.Error(), ShouldContainSubstring, "connection refused")
			So(err.Error(), ShouldNotContainSubstring, "SUPERSECRETTOKEN")

			n := &Telegram{bot: bot, chatID: 42, token: secretToken}
			bot.err = &url.Error{Op: "Post", URL: "https://api.telegram.org/bot" + secretToken + "/sendMessage", Err: errors.New("i/o timeout")}
			err = n.Notify(context.Background(), domain.BackupEvent{TargetName: "crm"})
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "i/o timeout")
			So(err.Error(), ShouldNotContainSubstring, "SUPERSECRETTOKEN")
		})

		Convey("NewTelegram should reject a non-numeric chat id", func() {
			_, err := NewTelegram("token", "not-a-number")
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
		})
	})
}
