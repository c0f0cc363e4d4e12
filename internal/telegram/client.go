// Package telegram provides the Telegram bot: operator commands and an optional alert sink.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rewired-gh/pricewatch/internal/control"
	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/notify"
	"github.com/rewired-gh/pricewatch/internal/settings"
)

const usage = "Commands:\n" +
	"/status - show current settings\n" +
	"/set key=value ... - change market, average, up, down, cooldown\n" +
	"/test - send a test alert\n" +
	"/ping - check the bot is alive"

// pollTimeout is the long-poll window for getUpdates; requestTimeout must exceed it.
const (
	pollTimeout    = 60
	requestTimeout = 90 * time.Second
)

// Controller executes operator commands.
type Controller interface {
	Status() control.Status
	Set(p settings.Patch) (models.WatchConfig, error)
	Test(ctx context.Context) (models.AlertEvent, error)
}

// Client wraps the bot API for a single authorised chat.
type Client struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewClient creates a new Telegram client.
func NewClient(botToken, chatID string) (*Client, error) {
	return newClient(botToken, chatID, tgbotapi.APIEndpoint)
}

func newClient(botToken, chatID, endpoint string) (*Client, error) {
	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	bot, err := tgbotapi.NewBotAPIWithClient(botToken, endpoint, &http.Client{Timeout: requestTimeout})
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	return &Client{
		bot:    bot,
		chatID: chatIDInt,
	}, nil
}

// ListenForCommands starts a goroutine that polls for Telegram updates and handles bot commands
// from the configured chat. It returns immediately; the goroutine stops when ctx is cancelled.
func (c *Client) ListenForCommands(ctx context.Context, ctl Controller) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)

	go func() {
		for {
			select {
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case update, ok := <-updates:
				if !ok {
					return
				}
				msg := update.Message
				if msg == nil || !msg.IsCommand() {
					continue
				}
				if msg.Chat.ID != c.chatID {
					logger.Warn("Ignoring /%s from unauthorised chat %d", msg.Command(), msg.Chat.ID)
					continue
				}
				reply := tgbotapi.NewMessage(msg.Chat.ID, Respond(ctx, ctl, msg.Command(), msg.CommandArguments()))
				if _, err := c.bot.Send(reply); err != nil {
					logger.Warn("Failed to reply to /%s: %v", msg.Command(), err)
				}
			}
		}
	}()
}

// Respond executes a bot command and returns the reply text.
func Respond(ctx context.Context, ctl Controller, command, args string) string {
	switch command {
	case "ping":
		return "Pong"
	case "start", "help":
		return usage
	case "status":
		return "📊 Settings\n" + ctl.Status().Text()
	case "set":
		p, err := settings.ParseArgs(args)
		if err != nil {
			return "❌ Error: " + err.Error()
		}
		if _, err := ctl.Set(p); err != nil {
			if errors.Is(err, control.ErrEmptyPatch) {
				return "Usage: /set market=KRW-BTC average=98000000 up=2 down=-1 cooldown=5"
			}
			return "❌ Error: " + err.Error()
		}
		return "✅ Updated\n" + ctl.Status().Text()
	case "test":
		if _, err := ctl.Test(ctx); err != nil {
			return "❌ Error: " + err.Error()
		}
		return "✅ Test alert sent"
	default:
		return "Unknown command /" + command + "\n\n" + usage
	}
}

// Notify sends event to the configured chat. The bot API takes no context, so the send
// runs in its own goroutine and Notify returns when ctx ends; an abandoned send is still
// bounded by the HTTP client timeout.
func (c *Client) Notify(ctx context.Context, event models.AlertEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(c.chatID, FormatAlert(event))
	msg.ParseMode = tgbotapi.ModeMarkdownV2

	result := make(chan error, 1)
	go func() {
		_, err := c.bot.Send(msg)
		result <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		if err != nil {
			return fmt.Errorf("failed to send Telegram message: %w", err)
		}
		return nil
	}
}

// FormatAlert formats an alert as a Telegram MarkdownV2 message.
func FormatAlert(e models.AlertEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n\n", escapeMarkdownV2(notify.Title(e)))
	fmt.Fprintf(&b, "Market: %s\n", escapeMarkdownV2(e.Market))
	fmt.Fprintf(&b, "Price: %s\n", escapeMarkdownV2(notify.FormatPrice(e.Price)+" "+models.QuoteCurrency(e.Market)))
	fmt.Fprintf(&b, "vs\\. average: *%s*\n", escapeMarkdownV2(notify.FormatPct(e.RelativePct)))
	fmt.Fprintf(&b, "Threshold: %s\n", escapeMarkdownV2(notify.FormatThreshold(e)))
	fmt.Fprintf(&b, "📅 %s", escapeMarkdownV2(e.FiredAt.Format("2006-01-02 15:04:05")))
	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4) // pre-allocate with room for escapes
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
