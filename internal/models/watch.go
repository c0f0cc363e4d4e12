// Package models defines the watcher's domain values: watch settings, price ticks, alert
// state, and alert events.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// WatchConfig holds the user-adjustable watch parameters for the single watched market.
// A zero-valued (invalid) threshold means that direction is disabled.
// Values are replaced as a whole; nothing mutates a published WatchConfig in place.
type WatchConfig struct {
	Market           string
	ReferencePrice   decimal.Decimal
	UpThresholdPct   decimal.NullDecimal
	DownThresholdPct decimal.NullDecimal
	Cooldown         time.Duration
}

// Validate checks watch config field constraints.
func (c WatchConfig) Validate() error {
	if strings.TrimSpace(c.Market) == "" {
		return errors.New("market must not be empty")
	}
	if !c.ReferencePrice.IsPositive() {
		return errors.New("reference price must be positive")
	}
	if c.Cooldown < 0 {
		return errors.New("cooldown must not be negative")
	}
	return nil
}

func (c WatchConfig) String() string {
	return fmt.Sprintf("market=%s average=%s up=%s down=%s cooldown=%v",
		c.Market, c.ReferencePrice, FormatThreshold(c.UpThresholdPct),
		FormatThreshold(c.DownThresholdPct), c.Cooldown)
}

// QuoteCurrency returns the quote side of an Upbit-style market code ("KRW-BTC" -> "KRW").
// Codes without a separator are returned unchanged.
func QuoteCurrency(market string) string {
	if i := strings.IndexByte(market, '-'); i > 0 {
		return market[:i]
	}
	return market
}

// Threshold returns an enabled threshold of pct percent.
func Threshold(pct float64) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.NewFromFloat(pct))
}

// Disabled is the threshold value that never fires.
var Disabled = decimal.NullDecimal{}

// ParseThreshold parses a percentage threshold. "off", "none", "disabled" and the empty
// string disable the direction.
func ParseThreshold(s string) (decimal.NullDecimal, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none", "disabled":
		return Disabled, nil
	}
	d, err := decimal.NewFromString(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	if err != nil {
		return Disabled, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// FormatThreshold renders a threshold for display and persistence.
func FormatThreshold(t decimal.NullDecimal) string {
	if !t.Valid {
		return "off"
	}
	return t.Decimal.String()
}
