package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Direction is the side of the reference price a threshold watches.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// PriceTick is one decoded trade price from the feed.
type PriceTick struct {
	Market     string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Validate checks that the tick can be evaluated.
func (t PriceTick) Validate() error {
	if !t.Price.IsPositive() {
		return errors.New("tick price must be positive")
	}
	return nil
}

// AlertEvent is a single threshold crossing handed to the notifier.
type AlertEvent struct {
	ID           string          `json:"id"`
	Direction    Direction       `json:"direction"`
	Market       string          `json:"market"`
	Price        decimal.Decimal `json:"price"`
	RelativePct  decimal.Decimal `json:"relative_pct"`
	ThresholdPct decimal.Decimal `json:"threshold_pct"`
	FiredAt      time.Time       `json:"fired_at"`
	Test         bool            `json:"test,omitempty"`
}

// IsUp reports whether the event is an upward crossing.
func (e AlertEvent) IsUp() bool {
	return e.Direction == DirectionUp
}
