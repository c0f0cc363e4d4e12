package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent() models.AlertEvent {
	return models.AlertEvent{
		ID:           "a1",
		Direction:    models.DirectionUp,
		Market:       "KRW-BTC",
		Price:        decimal.NewFromInt(101_000_000),
		RelativePct:  decimal.RequireFromString("3.0612244898"),
		ThresholdPct: decimal.NewFromInt(2),
		FiredAt:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestBuildPayload(t *testing.T) {
	p := BuildPayload(testEvent(), "")
	require.Len(t, p.Embeds, 1)
	e := p.Embeds[0]

	assert.Equal(t, "🚀 Upward alert", e.Title)
	assert.Equal(t, 0x16a34a, e.Color)
	assert.Equal(t, "2024-05-01T09:00:00Z", e.Timestamp)
	require.Len(t, e.Fields, 4)
	assert.Equal(t, "KRW-BTC", e.Fields[0].Value)
	assert.Equal(t, "101,000,000 KRW", e.Fields[1].Value)
	assert.Equal(t, "+3.06%", e.Fields[2].Value)
	assert.Equal(t, ">= 2%", e.Fields[3].Value)
}

func TestBuildPayload_Down(t *testing.T) {
	ev := testEvent()
	ev.Direction = models.DirectionDown
	ev.Price = decimal.NewFromInt(96_000_000)
	ev.RelativePct = decimal.RequireFromString("-2.0408163265")
	ev.ThresholdPct = decimal.NewFromInt(-1)

	e := BuildPayload(ev, "").Embeds[0]
	assert.Equal(t, 0xef4444, e.Color)
	assert.Equal(t, "-2.04%", e.Fields[2].Value)
	assert.Equal(t, "<= -1%", e.Fields[3].Value)
}

func TestWebhook_Notify(t *testing.T) {
	var got Payload
	var contentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "pricewatch", 5*time.Second)
	require.NoError(t, w.Notify(context.Background(), testEvent()))

	assert.Equal(t, "application/json", contentType)
	assert.Equal(t, "pricewatch", got.Username)
	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "🚀 Upward alert", got.Embeds[0].Title)
}

func TestWebhook_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"message":"You are being rate limited."}`))
	}))
	defer srv.Close()

	w := NewWebhook(srv.URL, "", 5*time.Second)
	err := w.Notify(context.Background(), testEvent())

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
	assert.Contains(t, se.Body, "rate limited")
}

func TestWebhook_RespectsContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	w := NewWebhook(srv.URL, "", 5*time.Second)
	err := w.Notify(ctx, testEvent())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
