package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func upEvent(id string) models.AlertEvent {
	return models.AlertEvent{
		ID:           id,
		Direction:    models.DirectionUp,
		Market:       "KRW-BTC",
		Price:        decimal.NewFromInt(101_000_000),
		RelativePct:  decimal.RequireFromString("3.0612244898"),
		ThresholdPct: decimal.NewFromInt(2),
		FiredAt:      time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

type recorder struct {
	mu     sync.Mutex
	events []models.AlertEvent
	err    error
	block  chan struct{}
}

func (r *recorder) Notify(ctx context.Context, e models.AlertEvent) error {
	if r.block != nil {
		select {
		case <-r.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recorder) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, len(r.events))
	for i, e := range r.events {
		ids[i] = e.ID
	}
	return ids
}

type memJournal struct {
	mu        sync.Mutex
	added     []string
	delivered map[string]bool
}

func (j *memJournal) AddAlert(a *models.AlertEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.added = append(j.added, a.ID)
	return nil
}

func (j *memJournal) MarkDelivered(id string, ok bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.delivered == nil {
		j.delivered = map[string]bool{}
	}
	j.delivered[id] = ok
	return nil
}

func (j *memJournal) outcome(id string) (bool, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ok, seen := j.delivered[id]
	return ok, seen
}

func TestMulti_JoinsErrorsAndContinues(t *testing.T) {
	first := &recorder{err: errors.New("boom")}
	second := &recorder{}
	m := Multi{{Name: "discord", Notifier: first}, {Name: "kafka", Notifier: second}}

	err := m.Notify(context.Background(), upEvent("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: boom")
	assert.ErrorIs(t, err, first.err)
	assert.Equal(t, []string{"a"}, second.ids(), "later sinks still run")
}

func TestMulti_RecoversPanics(t *testing.T) {
	panicky := NotifierFunc(func(context.Context, models.AlertEvent) error { panic("nil map") })
	m := Multi{{Name: "bad", Notifier: panicky}}

	err := m.Notify(context.Background(), upEvent("a"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifier panic")
}

func testDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{QueueSize: 8, SendTimeout: time.Second}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	rec := &recorder{}
	journal := &memJournal{}
	d := NewDispatcher(rec, journal, testDispatcherConfig())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)

	for i := 0; i < 5; i++ {
		require.True(t, d.Enqueue(upEvent(fmt.Sprintf("e%d", i))))
	}

	require.Eventually(t, func() bool { return len(rec.ids()) == 5 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"e0", "e1", "e2", "e3", "e4"}, rec.ids())
	ok, seen := journal.outcome("e4")
	assert.True(t, seen)
	assert.True(t, ok)

	cancel()
	d.Wait()
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, nil, DispatcherConfig{QueueSize: 2, SendTimeout: time.Second})
	// Worker not started: the queue fills and further events are dropped.
	assert.True(t, d.Enqueue(upEvent("a")))
	assert.True(t, d.Enqueue(upEvent("b")))

	done := make(chan bool, 1)
	go func() { done <- d.Enqueue(upEvent("c")) }()
	select {
	case accepted := <-done:
		assert.False(t, accepted)
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full queue")
	}
}

func TestDispatcher_DeliverReportsFailure(t *testing.T) {
	rec := &recorder{err: errors.New("HTTP 500")}
	journal := &memJournal{}
	d := NewDispatcher(rec, journal, testDispatcherConfig())

	err := d.Deliver(context.Background(), upEvent("x"))
	require.Error(t, err)
	ok, seen := journal.outcome("x")
	assert.True(t, seen)
	assert.False(t, ok)
}

func TestDispatcher_DeliverTimesOut(t *testing.T) {
	rec := &recorder{block: make(chan struct{})}
	d := NewDispatcher(rec, nil, DispatcherConfig{QueueSize: 1, SendTimeout: 20 * time.Millisecond})

	start := time.Now()
	err := d.Deliver(context.Background(), upEvent("slow"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFormatPrice(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"99960000", "99,960,000"},
		{"1234.5", "1,234.5"},
		{"0.0012345", "0.0012345"},
		{"1000000.123456789", "1,000,000.12345679"},
		{"-1500", "-1,500"},
		{"512", "512"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPrice(decimal.RequireFromString(tt.in)))
		})
	}
}

func TestFormatPct(t *testing.T) {
	assert.Equal(t, "+3.00%", FormatPct(decimal.RequireFromString("2.999")))
	assert.Equal(t, "-1.25%", FormatPct(decimal.RequireFromString("-1.25")))
	assert.Equal(t, "+0.00%", FormatPct(decimal.Zero))
	assert.Equal(t, "-0.00%", FormatPct(decimal.RequireFromString("-0.001")))
	assert.Equal(t, "+0.00%", FormatPct(decimal.RequireFromString("0.004")))
	assert.Equal(t, "-0.01%", FormatPct(decimal.RequireFromString("-0.005")))
}

func TestTitleAndColor(t *testing.T) {
	up := upEvent("a")
	down := up
	down.Direction = models.DirectionDown
	test := up
	test.Test = true

	assert.Equal(t, "🚀 Upward alert", Title(up))
	assert.Equal(t, "📉 Downward alert", Title(down))
	assert.Equal(t, "🔔 Test alert", Title(test))
	assert.Equal(t, ColorUp, Color(up))
	assert.Equal(t, ColorDown, Color(down))
	assert.Equal(t, ColorUp, Color(test))
	assert.Equal(t, ">= 2%", FormatThreshold(up))

	down.ThresholdPct = decimal.NewFromInt(-1)
	assert.Equal(t, "<= -1%", FormatThreshold(down))
}
