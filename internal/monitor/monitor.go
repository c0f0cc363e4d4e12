// Package monitor turns price ticks into threshold-crossing alert events.
package monitor

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// RelativePct returns how far price sits from reference, in percent:
// (price / reference - 1) * 100. The single division happens last to keep precision.
func RelativePct(price, reference decimal.Decimal) decimal.Decimal {
	return price.Sub(reference).Mul(hundred).Div(reference)
}

// Evaluate decides which directions fire for tick under cfg, given the previous alert
// state and the caller-supplied current time. It returns the events in up, down order
// together with the updated state. It never reads a clock and has no side effects.
func Evaluate(tick models.PriceTick, cfg models.WatchConfig, state models.AlertState, now time.Time) ([]models.AlertEvent, models.AlertState) {
	rel := RelativePct(tick.Price, cfg.ReferencePrice)

	var events []models.AlertEvent
	if cfg.UpThresholdPct.Valid &&
		rel.GreaterThanOrEqual(cfg.UpThresholdPct.Decimal) &&
		cooledDown(state.LastFired(models.DirectionUp), now, cfg.Cooldown) {
		state.LastUpFiredAt = now
		events = append(events, newEvent(models.DirectionUp, cfg.Market, tick, rel, cfg.UpThresholdPct.Decimal, now))
	}
	if cfg.DownThresholdPct.Valid &&
		rel.LessThanOrEqual(cfg.DownThresholdPct.Decimal) &&
		cooledDown(state.LastFired(models.DirectionDown), now, cfg.Cooldown) {
		state.LastDownFiredAt = now
		events = append(events, newEvent(models.DirectionDown, cfg.Market, tick, rel, cfg.DownThresholdPct.Decimal, now))
	}
	return events, state
}

func cooledDown(last, now time.Time, cooldown time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= cooldown
}

func newEvent(dir models.Direction, market string, tick models.PriceTick, rel, threshold decimal.Decimal, now time.Time) models.AlertEvent {
	return models.AlertEvent{
		Direction:    dir,
		Market:       market,
		Price:        tick.Price,
		RelativePct:  rel,
		ThresholdPct: threshold,
		FiredAt:      now,
	}
}

// Settings supplies the current watch config snapshot.
type Settings interface {
	Current() models.WatchConfig
}

// Sink accepts alert events for delivery. Enqueue must not block.
type Sink interface {
	Enqueue(event models.AlertEvent) bool
}

// Monitor owns the alert state of a running watcher. HandleTick is called from the
// feed goroutine only; Monitor is not safe for concurrent use.
type Monitor struct {
	settings Settings
	sink     Sink
	now      func() time.Time
	newID    func() string
	state    models.AlertState
}

// New creates a Monitor reading config from settings and handing events to sink.
func New(settings Settings, sink Sink) *Monitor {
	return &Monitor{
		settings: settings,
		sink:     sink,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// SetClock replaces the time source used to stamp evaluations.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}

// HandleTick evaluates one tick against the current config snapshot and enqueues any
// resulting events. It returns the events that fired.
func (m *Monitor) HandleTick(tick models.PriceTick) []models.AlertEvent {
	if err := tick.Validate(); err != nil {
		logger.Debug("Ignoring tick for %s: %v", tick.Market, err)
		return nil
	}
	cfg := m.settings.Current()
	if tick.Market != "" && !strings.EqualFold(tick.Market, cfg.Market) {
		logger.Debug("Ignoring tick for %s while watching %s", tick.Market, cfg.Market)
		return nil
	}

	events, state := Evaluate(tick, cfg, m.state, m.now())
	m.state = state

	for i := range events {
		events[i].ID = m.newID()
		e := events[i]
		logger.Info("Alert fired: %s %s price=%s rel=%s%% threshold=%s%%",
			e.Market, e.Direction, e.Price, e.RelativePct.StringFixed(2), e.ThresholdPct)
		if !m.sink.Enqueue(e) {
			logger.Warn("Alert %s for %s was not queued for delivery", e.ID, e.Market)
		}
	}
	return events
}

// State returns a copy of the current alert state.
func (m *Monitor) State() models.AlertState {
	return m.state
}
