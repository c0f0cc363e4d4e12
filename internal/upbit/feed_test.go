package upbit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var received = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestSubscribeRequest(t *testing.T) {
	b, err := SubscribeRequest("ticket-1", "KRW-BTC")
	require.NoError(t, err)

	var frame []map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &frame))
	require.Len(t, frame, 3)
	assert.Equal(t, "ticket-1", frame[0]["ticket"])
	assert.Equal(t, "ticker", frame[1]["type"])
	assert.Equal(t, []interface{}{"KRW-BTC"}, frame[1]["codes"])
	assert.Equal(t, "SIMPLE", frame[2]["format"])
}

func TestDecodeTick_SimpleFormat(t *testing.T) {
	tick, err := DecodeTick([]byte(`{"ty":"ticker","cd":"KRW-BTC","tp":98123000.5,"tms":1740819600000}`), received)
	require.NoError(t, err)
	assert.Equal(t, "KRW-BTC", tick.Market)
	assert.Equal(t, "98123000.5", tick.Price.String())
	assert.Equal(t, time.UnixMilli(1740819600000), tick.ObservedAt)
}

func TestDecodeTick_DefaultFormatFallback(t *testing.T) {
	tick, err := DecodeTick([]byte(`{"type":"ticker","code":"KRW-ETH","trade_price":4200000}`), received)
	require.NoError(t, err)
	assert.Equal(t, "KRW-ETH", tick.Market)
	assert.Equal(t, "4200000", tick.Price.String())
	assert.Equal(t, received, tick.ObservedAt)
}

func TestDecodeTick_PrimaryKeyWins(t *testing.T) {
	tick, err := DecodeTick([]byte(`{"cd":"KRW-BTC","tp":100,"trade_price":200}`), received)
	require.NoError(t, err)
	assert.Equal(t, "100", tick.Price.String())
}

func TestDecodeTick_NullPrimaryFallsBack(t *testing.T) {
	tick, err := DecodeTick([]byte(`{"cd":"KRW-BTC","tp":null,"trade_price":"200.25"}`), received)
	require.NoError(t, err)
	assert.Equal(t, "200.25", tick.Price.String())
}

func TestDecodeTick_Errors(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  error
	}{
		{"missing both price keys", `{"ty":"ticker","cd":"KRW-BTC"}`, ErrNoPrice},
		{"status frame", `{"status":"UP"}`, ErrNoPrice},
		{"zero price", `{"cd":"KRW-BTC","tp":0}`, ErrInvalidPrice},
		{"negative price", `{"cd":"KRW-BTC","trade_price":-3}`, ErrInvalidPrice},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeTick([]byte(tt.frame), received)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeTick_Malformed(t *testing.T) {
	for _, frame := range []string{``, `not json`, `[1,2,3]`, `{"tp":"abc"}`} {
		_, err := DecodeTick([]byte(frame), received)
		assert.Error(t, err, "frame %q", frame)
	}
}

func TestDecodeTick_ServerError(t *testing.T) {
	_, err := DecodeTick([]byte(`{"error":{"name":"INVALID_PARAM","message":"unknown code"}}`), received)

	var feedErr *FeedError
	require.True(t, errors.As(err, &feedErr))
	assert.Equal(t, "INVALID_PARAM", feedErr.Name)
	assert.Equal(t, "unknown code", feedErr.Message)
}
