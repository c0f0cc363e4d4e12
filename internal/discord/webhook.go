// Package discord posts alert embeds to a Discord webhook.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/notify"
)

// maxErrorBody caps how much of a failed response body is kept for logging.
const maxErrorBody = 4 << 10

// Webhook sends alerts to a single Discord webhook URL.
type Webhook struct {
	url        string
	username   string
	httpClient *http.Client
}

// StatusError is returned when Discord answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("discord webhook returned status %d: %s", e.StatusCode, e.Body)
}

// Payload is the webhook request body.
type Payload struct {
	Username string  `json:"username,omitempty"`
	Embeds   []Embed `json:"embeds"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title     string  `json:"title"`
	Color     int     `json:"color"`
	Fields    []Field `json:"fields"`
	Timestamp string  `json:"timestamp"`
}

// Field is a single embed field.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// NewWebhook creates a webhook client. timeout bounds each request in addition to the
// caller's context.
func NewWebhook(url, username string, timeout time.Duration) *Webhook {
	return &Webhook{
		url:      url,
		username: username,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify posts event as an embed. It does not retry.
func (w *Webhook) Notify(ctx context.Context, event models.AlertEvent) error {
	body, err := json.Marshal(BuildPayload(event, w.username))
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(raw))
		if text == "" {
			text = "(no body)"
		}
		logger.Error("Discord send failed: status=%d body=%s", resp.StatusCode, text)
		return &StatusError{StatusCode: resp.StatusCode, Body: text}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// BuildPayload renders event as a single-embed webhook payload.
func BuildPayload(event models.AlertEvent, username string) Payload {
	return Payload{
		Username: username,
		Embeds: []Embed{{
			Title: notify.Title(event),
			Color: notify.Color(event),
			Fields: []Field{
				{Name: "Market", Value: event.Market, Inline: true},
				{Name: "Price", Value: notify.FormatPrice(event.Price) + " " + models.QuoteCurrency(event.Market), Inline: true},
				{Name: "vs. average", Value: notify.FormatPct(event.RelativePct), Inline: true},
				{Name: "Threshold", Value: notify.FormatThreshold(event), Inline: true},
			},
			Timestamp: event.FiredAt.UTC().Format(time.RFC3339Nano),
		}},
	}
}
