package notify

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
)

// Embed colours used by chat sinks.
const (
	ColorUp   = 0x16a34a
	ColorDown = 0xef4444
)

// FormatPrice renders a price with thousands grouping and at most eight decimals,
// e.g. 99960000 -> "99,960,000", 1234.5 -> "1,234.5".
func FormatPrice(price decimal.Decimal) string {
	s := price.Round(8).String()
	intPart, frac, _ := strings.Cut(s, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return s
	}
	grouped := humanize.Comma(n)
	if n == 0 && strings.HasPrefix(intPart, "-") {
		grouped = "-0"
	}
	if frac == "" {
		return grouped
	}
	return grouped + "." + frac
}

// FormatPct renders a signed percentage with two decimals, e.g. "+3.00%", "-1.25%".
// The sign comes from the unrounded value, so -0.001 renders as "-0.00%".
func FormatPct(pct decimal.Decimal) string {
	sign := "+"
	if pct.Sign() < 0 {
		sign = "-"
	}
	return sign + pct.Abs().StringFixed(2) + "%"
}

// Comparison returns the operator a direction's threshold is tested with.
func Comparison(d models.Direction) string {
	if d == models.DirectionUp {
		return ">="
	}
	return "<="
}

// FormatThreshold renders the threshold condition, e.g. ">= 2%".
func FormatThreshold(e models.AlertEvent) string {
	return Comparison(e.Direction) + " " + e.ThresholdPct.String() + "%"
}

// Title returns the headline for an alert.
func Title(e models.AlertEvent) string {
	switch {
	case e.Test:
		return "🔔 Test alert"
	case e.IsUp():
		return "🚀 Upward alert"
	default:
		return "📉 Downward alert"
	}
}

// Color returns the embed colour for an alert. Test alerts use the upward colour.
func Color(e models.AlertEvent) int {
	if e.IsUp() {
		return ColorUp
	}
	return ColorDown
}
