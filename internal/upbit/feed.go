// Package upbit encodes subscription requests for and decodes ticker frames from the
// Upbit websocket quotation API.
package upbit

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
)

// DefaultURL is the public quotation websocket endpoint.
const DefaultURL = "wss://api.upbit.com/websocket/v1"

var (
	// ErrNoPrice is returned for frames carrying neither "tp" nor "trade_price".
	ErrNoPrice = errors.New("frame has no trade price")
	// ErrInvalidPrice is returned for non-positive trade prices.
	ErrInvalidPrice = errors.New("trade price must be positive")
)

// FeedError is an error frame sent by the server, e.g. for an unknown market code.
type FeedError struct {
	Name    string
	Message string
}

func (e *FeedError) Error() string {
	return fmt.Sprintf("upbit error %s: %s", e.Name, e.Message)
}

// SubscribeRequest builds the ticker subscription frame for a single market using the
// compact SIMPLE field format.
func SubscribeRequest(ticket, market string) ([]byte, error) {
	frame := []map[string]interface{}{
		{"ticket": ticket},
		{"type": "ticker", "codes": []string{market}},
		{"format": "SIMPLE"},
	}
	b, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode subscription: %w", err)
	}
	return b, nil
}

// tickerFrame covers both SIMPLE (abbreviated) and DEFAULT field names.
type tickerFrame struct {
	Code          string           `json:"cd"`
	CodeLong      string           `json:"code"`
	TradePrice    *decimal.Decimal `json:"tp"`
	TradePriceAlt *decimal.Decimal `json:"trade_price"`
	Timestamp     int64            `json:"tms"`
	TimestampAlt  int64            `json:"timestamp"`
	Error         *struct {
		Name    string `json:"name"`
		Message string `json:"message"`
	} `json:"error"`
}

// DecodeTick extracts a price tick from a raw frame. The trade price is read from "tp"
// first and "trade_price" second; the first one present wins. received is used when
// the frame carries no timestamp.
func DecodeTick(frame []byte, received time.Time) (models.PriceTick, error) {
	var f tickerFrame
	if err := json.Unmarshal(frame, &f); err != nil {
		return models.PriceTick{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Error != nil {
		return models.PriceTick{}, &FeedError{Name: f.Error.Name, Message: f.Error.Message}
	}

	price := f.TradePrice
	if price == nil {
		price = f.TradePriceAlt
	}
	if price == nil {
		return models.PriceTick{}, ErrNoPrice
	}
	if !price.IsPositive() {
		return models.PriceTick{}, ErrInvalidPrice
	}

	tick := models.PriceTick{
		Market:     firstNonEmpty(f.Code, f.CodeLong),
		Price:      *price,
		ObservedAt: received,
	}
	if ms := firstNonZero(f.Timestamp, f.TimestampAlt); ms > 0 {
		tick.ObservedAt = time.UnixMilli(ms)
	}
	return tick, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(values ...int64) int64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
