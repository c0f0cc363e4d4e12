// Package control implements the operator commands (status, set, test) shared by the
// chat bot and the admin API.
package control

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/settings"
	"github.com/shopspring/decimal"
)

// ErrEmptyPatch is returned by Set when no field was given.
var ErrEmptyPatch = errors.New("no settings to change")

// defaultTestPct is used for test alerts when the up threshold is disabled or zero.
var defaultTestPct = decimal.NewFromInt(2)

// Store is the settings store the service reads and updates.
type Store interface {
	Current() models.WatchConfig
	Apply(p settings.Patch) (models.WatchConfig, error)
}

// Feed reports the stream connection state.
type Feed interface {
	Status() (models.ConnectionState, int)
}

// Sender delivers an alert synchronously.
type Sender interface {
	Deliver(ctx context.Context, event models.AlertEvent) error
}

// Status is a display-ready snapshot of the watcher.
type Status struct {
	Market     string `json:"market"`
	Average    string `json:"average"`
	UpPct      string `json:"up_pct"`
	DownPct    string `json:"down_pct"`
	Cooldown   string `json:"cooldown"`
	Connection string `json:"connection"`
	Attempts   int    `json:"attempts"`
}

// Text renders the status for chat replies.
func (s Status) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "market: %s\n", s.Market)
	fmt.Fprintf(&b, "average: %s\n", s.Average)
	fmt.Fprintf(&b, "up: %s\n", pctText(s.UpPct))
	fmt.Fprintf(&b, "down: %s\n", pctText(s.DownPct))
	fmt.Fprintf(&b, "cooldown: %s\n", s.Cooldown)
	fmt.Fprintf(&b, "feed: %s", s.Connection)
	if s.Attempts > 0 {
		fmt.Fprintf(&b, " (attempt %d)", s.Attempts)
	}
	return b.String()
}

func pctText(v string) string {
	if v == "off" {
		return v
	}
	return v + "%"
}

// Service executes operator commands.
type Service struct {
	store  Store
	feed   Feed
	sender Sender
	now    func() time.Time
	newID  func() string
}

// NewService wires the command service. feed may be nil before the stream starts.
func NewService(store Store, feed Feed, sender Sender) *Service {
	return &Service{
		store:  store,
		feed:   feed,
		sender: sender,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Status reports the current config and connection state.
func (s *Service) Status() Status {
	cfg := s.store.Current()
	st := Status{
		Market:     cfg.Market,
		Average:    cfg.ReferencePrice.String(),
		UpPct:      models.FormatThreshold(cfg.UpThresholdPct),
		DownPct:    models.FormatThreshold(cfg.DownThresholdPct),
		Cooldown:   cfg.Cooldown.String(),
		Connection: models.StateIdle.String(),
	}
	if s.feed != nil {
		state, attempts := s.feed.Status()
		st.Connection = state.String()
		st.Attempts = attempts
	}
	return st
}

// Set applies a partial update. The store announces the change, which resubscribes the feed.
func (s *Service) Set(p settings.Patch) (models.WatchConfig, error) {
	if p.IsEmpty() {
		return models.WatchConfig{}, ErrEmptyPatch
	}
	return s.store.Apply(p)
}

// Test sends a synthetic upward alert at the up threshold and returns it.
func (s *Service) Test(ctx context.Context) (models.AlertEvent, error) {
	event := TestEvent(s.store.Current(), s.now())
	event.ID = s.newID()
	if err := s.sender.Deliver(ctx, event); err != nil {
		return event, fmt.Errorf("failed to send test alert: %w", err)
	}
	return event, nil
}

// TestEvent builds the synthetic alert for cfg: price = average * (1 + pct/100) where pct
// is the up threshold, or 2 when that is disabled or zero.
func TestEvent(cfg models.WatchConfig, now time.Time) models.AlertEvent {
	pct := defaultTestPct
	if cfg.UpThresholdPct.Valid && !cfg.UpThresholdPct.Decimal.IsZero() {
		pct = cfg.UpThresholdPct.Decimal
	}
	price := cfg.ReferencePrice.Mul(decimal.NewFromInt(1).Add(pct.Div(decimal.NewFromInt(100))))
	return models.AlertEvent{
		Direction:    models.DirectionUp,
		Market:       cfg.Market,
		Price:        price,
		RelativePct:  pct,
		ThresholdPct: pct,
		FiredAt:      now,
		Test:         true,
	}
}
