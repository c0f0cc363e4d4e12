// Package stream supervises the market feed connection: it connects, subscribes,
// reconnects with backoff, and hands each decoded tick to a handler.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"github.com/rewired-gh/pricewatch/internal/upbit"
)

const pingWriteTimeout = 5 * time.Second

// Settings supplies the current watch config snapshot.
type Settings interface {
	Current() models.WatchConfig
}

// TickHandler consumes decoded ticks in arrival order.
type TickHandler interface {
	HandleTick(tick models.PriceTick) []models.AlertEvent
}

// Config tunes the supervisor's connection handling.
type Config struct {
	URL          string
	Backoff      Backoff
	ReadTimeout  time.Duration
	PingInterval time.Duration
}

// Supervisor owns the single feed connection. It walks
// Idle -> Connecting -> Subscribed -> Reconnecting -> Connecting ... until its context ends.
type Supervisor struct {
	cfg      Config
	dialer   Dialer
	settings Settings
	handler  TickHandler
	clock    Clock

	resubscribe chan struct{}

	mu       sync.Mutex
	state    models.ConnectionState
	attempts int
	timer    Timer
	running  bool
}

// Option customizes a Supervisor.
type Option func(*Supervisor)

// WithClock injects the clock used for reconnect timers and tick timestamps.
func WithClock(c Clock) Option {
	return func(s *Supervisor) { s.clock = c }
}

// New creates an idle supervisor.
func New(cfg Config, dialer Dialer, settings Settings, handler TickHandler, opts ...Option) *Supervisor {
	if cfg.URL == "" {
		cfg.URL = upbit.DefaultURL
	}
	if cfg.Backoff == (Backoff{}) {
		cfg.Backoff = DefaultBackoff()
	}
	s := &Supervisor{
		cfg:         cfg,
		dialer:      dialer,
		settings:    settings,
		handler:     handler,
		clock:       realClock{},
		resubscribe: make(chan struct{}, 1),
		state:       models.StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the connection state and the number of consecutive failed attempts.
func (s *Supervisor) Status() (models.ConnectionState, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.attempts
}

// Resubscribe asks the supervisor to drop the current connection and subscribe again
// with the latest config. Requests made while one is pending are coalesced.
func (s *Supervisor) Resubscribe() {
	select {
	case s.resubscribe <- struct{}{}:
	default:
	}
}

// Run connects and keeps the feed alive until ctx is cancelled. Transport failures are
// never returned; they only schedule a reconnect. Run returns an error only if it is
// already running.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("supervisor already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.state = models.StateIdle
		s.mu.Unlock()
	}()

	for {
		s.setState(models.StateConnecting)
		err := s.session(ctx)
		if ctx.Err() != nil {
			logger.Info("Feed supervisor stopped")
			return nil
		}

		delay, attempt := s.scheduleReconnect()
		logger.Warn("Feed connection closed: %v; reconnecting in %v (attempt %d)", err, delay, attempt)
		if !s.wait(ctx, delay) {
			logger.Info("Feed supervisor stopped")
			return nil
		}
	}
}

// scheduleReconnect moves to Reconnecting, computes the delay from the current attempt
// count and then increments it.
func (s *Supervisor) scheduleReconnect() (time.Duration, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delay := s.cfg.Backoff.Delay(s.attempts)
	s.attempts++
	s.state = models.StateReconnecting
	return delay, s.attempts
}

// wait blocks for delay on a fresh timer, replacing any timer still pending.
func (s *Supervisor) wait(ctx context.Context, delay time.Duration) bool {
	timer := s.clock.NewTimer(delay)

	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = timer
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.timer == timer {
			s.timer = nil
		}
		s.mu.Unlock()
		timer.Stop()
	}()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C():
		return true
	}
}

// session runs one connection from dial to close and returns why it ended.
func (s *Supervisor) session(ctx context.Context) error {
	conn, err := s.dialer.Dial(ctx, s.cfg.URL)
	if err != nil {
		return fmt.Errorf("dial %s: %w", s.cfg.URL, err)
	}
	defer conn.Close()

	// Requests that arrived before this point are satisfied by reading the config now.
	s.drainResubscribe()
	cfg := s.settings.Current()

	frame, err := upbit.SubscribeRequest(uuid.NewString(), cfg.Market)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("subscribe %s: %w", cfg.Market, err)
	}

	s.mu.Lock()
	s.attempts = 0
	s.state = models.StateSubscribed
	s.mu.Unlock()
	logger.Info("Watching %s", cfg)

	done := make(chan struct{})
	defer close(done)
	go s.watch(ctx, conn, done)

	return s.readLoop(conn)
}

func (s *Supervisor) readLoop(conn Conn) error {
	for {
		if s.cfg.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		tick, err := upbit.DecodeTick(msg, s.clock.Now())
		if err != nil {
			var feedErr *upbit.FeedError
			if errors.As(err, &feedErr) {
				logger.Warn("Feed reported an error: %v", feedErr)
			} else {
				logger.Debug("Dropping feed frame: %v", err)
			}
			continue
		}
		s.handler.HandleTick(tick)
	}
}

// watch closes conn on shutdown or on a resubscribe request, and keeps it alive with
// pings. It exits when the session ends.
func (s *Supervisor) watch(ctx context.Context, conn Conn, done <-chan struct{}) {
	var ping <-chan time.Time
	if s.cfg.PingInterval > 0 {
		ticker := time.NewTicker(s.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			conn.Close()
			return
		case <-s.resubscribe:
			logger.Info("Config changed; resubscribing")
			conn.Close()
			return
		case <-ping:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(pingWriteTimeout)); err != nil {
				logger.Warn("Feed ping failed: %v", err)
				conn.Close()
				return
			}
		}
	}
}

func (s *Supervisor) drainResubscribe() {
	select {
	case <-s.resubscribe:
	default:
	}
}

func (s *Supervisor) setState(state models.ConnectionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
