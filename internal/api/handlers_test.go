package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/pricewatch/internal/control"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/settings"
	"github.com/rewired-gh/pricewatch/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sendFunc func(ctx context.Context, e models.AlertEvent) error

func (f sendFunc) Deliver(ctx context.Context, e models.AlertEvent) error { return f(ctx, e) }

type testEnv struct {
	router  http.Handler
	store   *settings.Store
	db      *storage.Storage
	sent    []models.AlertEvent
	sendErr error
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.New(50, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store, err := settings.Load(db, models.WatchConfig{
		Market:           "KRW-BTC",
		ReferencePrice:   decimal.NewFromInt(98_000_000),
		UpThresholdPct:   models.Threshold(2),
		DownThresholdPct: models.Threshold(-1),
		Cooldown:         5 * time.Minute,
	})
	require.NoError(t, err)

	env := &testEnv{store: store, db: db}
	sender := sendFunc(func(_ context.Context, e models.AlertEvent) error {
		if env.sendErr != nil {
			return env.sendErr
		}
		env.sent = append(env.sent, e)
		return db.AddAlert(&e)
	})
	svc := control.NewService(store, nil, sender)
	env.router = SetupRoutes(NewHandler(svc, db))
	return env
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestGetStatus(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st control.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "KRW-BTC", st.Market)
	assert.Equal(t, "98000000", st.Average)
	assert.Equal(t, "idle", st.Connection)
}

func TestUpdateConfig(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPatch, "/api/v1/config", `{"market":"krw-eth","average":5000000,"down":null,"cooldown":"90s"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cfg := env.store.Current()
	assert.Equal(t, "KRW-ETH", cfg.Market)
	assert.True(t, cfg.ReferencePrice.Equal(decimal.NewFromInt(5_000_000)))
	assert.False(t, cfg.DownThresholdPct.Valid)
	assert.Equal(t, 90*time.Second, cfg.Cooldown)

	persisted, err := env.db.GetSettings()
	require.NoError(t, err)
	assert.Equal(t, "KRW-ETH", persisted[settings.KeyMarket])
	assert.Equal(t, "off", persisted[settings.KeyDown])
}

func TestUpdateConfig_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"empty patch", `{}`, http.StatusBadRequest},
		{"unknown field", `{"leverage":3}`, http.StatusBadRequest},
		{"bad number", `{"average":"lots"}`, http.StatusBadRequest},
		{"invalid config", `{"average":0}`, http.StatusBadRequest},
		{"wrong type", `{"up":true}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(http.MethodPatch, "/api/v1/config", tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.Equal(t, "KRW-BTC", env.store.Current().Market)
		})
	}
}

func TestSendTest(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodPost, "/api/v1/test", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, env.sent, 1)
	assert.True(t, env.sent[0].Test)

	var ev models.AlertEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ev))
	assert.True(t, ev.Price.Equal(decimal.NewFromInt(99_960_000)))
}

func TestSendTest_Failure(t *testing.T) {
	env := newTestEnv(t)
	env.sendErr = errors.New("discord webhook returned status 404")
	rec := env.do(http.MethodPost, "/api/v1/test", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "404")
}

func TestGetAlerts(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < 3; i++ {
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/v1/test", "").Code)
	}

	rec := env.do(http.MethodGet, "/api/v1/alerts?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var records []storage.AlertRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
	assert.Len(t, records, 2)

	assert.Equal(t, http.StatusBadRequest, env.do(http.MethodGet, "/api/v1/alerts?limit=-1", "").Code)
}

func TestMethodNotAllowed(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodDelete, "/api/v1/config"},
		{http.MethodGet, "/api/v1/config"},
		{http.MethodGet, "/api/v1/test"},
		{http.MethodPost, "/api/v1/status"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(tt.method, tt.path, "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}
}

func TestUnknownRoute(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(http.MethodGet, "/api/v1/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
