package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
)

// Persisted setting keys.
const (
	KeyMarket   = "market"
	KeyAverage  = "average"
	KeyUp       = "up_pct"
	KeyDown     = "down_pct"
	KeyCooldown = "cooldown"
)

// ErrUnknownField is returned when a patch names a field that does not exist.
var ErrUnknownField = errors.New("unknown field")

// Encode flattens cfg into persisted key/value form.
func Encode(cfg models.WatchConfig) map[string]string {
	return map[string]string{
		KeyMarket:   cfg.Market,
		KeyAverage:  cfg.ReferencePrice.String(),
		KeyUp:       models.FormatThreshold(cfg.UpThresholdPct),
		KeyDown:     models.FormatThreshold(cfg.DownThresholdPct),
		KeyCooldown: cfg.Cooldown.String(),
	}
}

// Decode overlays persisted values onto base. Missing keys keep base values.
func Decode(values map[string]string, base models.WatchConfig) (models.WatchConfig, error) {
	p, err := ParseFields(values)
	if err != nil {
		return models.WatchConfig{}, err
	}
	return p.ApplyTo(base), nil
}

// Patch is a partial WatchConfig update; nil fields are left unchanged.
type Patch struct {
	Market           *string
	ReferencePrice   *decimal.Decimal
	UpThresholdPct   *decimal.NullDecimal
	DownThresholdPct *decimal.NullDecimal
	Cooldown         *time.Duration
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Market == nil && p.ReferencePrice == nil && p.UpThresholdPct == nil &&
		p.DownThresholdPct == nil && p.Cooldown == nil
}

// ApplyTo returns cfg with the patch's fields applied.
func (p Patch) ApplyTo(cfg models.WatchConfig) models.WatchConfig {
	if p.Market != nil {
		cfg.Market = *p.Market
	}
	if p.ReferencePrice != nil {
		cfg.ReferencePrice = *p.ReferencePrice
	}
	if p.UpThresholdPct != nil {
		cfg.UpThresholdPct = *p.UpThresholdPct
	}
	if p.DownThresholdPct != nil {
		cfg.DownThresholdPct = *p.DownThresholdPct
	}
	if p.Cooldown != nil {
		cfg.Cooldown = *p.Cooldown
	}
	return cfg
}

// ParseFields builds a Patch from textual field values. Both the persisted keys and the
// short command names (market, average, up, down, cooldown) are accepted.
func ParseFields(fields map[string]string) (Patch, error) {
	var p Patch
	for name, raw := range fields {
		value := strings.TrimSpace(raw)
		switch strings.ToLower(strings.TrimSpace(name)) {
		case KeyMarket:
			m := strings.ToUpper(value)
			p.Market = &m
		case KeyAverage, "avg", "reference":
			d, err := ParsePrice(value)
			if err != nil {
				return Patch{}, err
			}
			p.ReferencePrice = &d
		case KeyUp, "up":
			t, err := models.ParseThreshold(value)
			if err != nil {
				return Patch{}, err
			}
			p.UpThresholdPct = &t
		case KeyDown, "down":
			t, err := models.ParseThreshold(value)
			if err != nil {
				return Patch{}, err
			}
			p.DownThresholdPct = &t
		case KeyCooldown, "cooldown_min":
			d, err := ParseCooldown(value)
			if err != nil {
				return Patch{}, err
			}
			p.Cooldown = &d
		default:
			return Patch{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
	}
	return p, nil
}

// ParseArgs parses "key=value" pairs separated by whitespace, as typed in chat commands.
func ParseArgs(args string) (Patch, error) {
	fields := make(map[string]string)
	for _, tok := range strings.Fields(args) {
		key, value, ok := strings.Cut(tok, "=")
		if !ok || key == "" {
			return Patch{}, fmt.Errorf("expected key=value, got %q", tok)
		}
		fields[key] = value
	}
	return ParseFields(fields)
}

// ParsePrice parses a decimal price, tolerating thousands separators.
func ParsePrice(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return d, nil
}

// ParseCooldown accepts a Go duration ("90s", "5m0s") or a bare number of minutes.
func ParseCooldown(s string) (time.Duration, error) {
	if d, err := decimal.NewFromString(s); err == nil {
		return time.Duration(d.Mul(decimal.NewFromInt(int64(time.Minute))).IntPart()), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid cooldown %q: %w", s, err)
	}
	return d, nil
}
