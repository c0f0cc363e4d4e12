package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
	"golang.org/x/time/rate"
)

// Journal records alerts and their delivery outcome.
type Journal interface {
	AddAlert(alert *models.AlertEvent) error
	MarkDelivered(id string, delivered bool) error
}

// DispatcherConfig tunes the delivery worker.
type DispatcherConfig struct {
	QueueSize   int           // pending alerts before new ones are dropped
	SendTimeout time.Duration // per-alert delivery bound
	MinInterval time.Duration // minimum spacing between sends; 0 disables throttling
	Burst       int
}

// DefaultDispatcherConfig returns the production delivery settings.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		QueueSize:   64,
		SendTimeout: 10 * time.Second,
		MinInterval: time.Second,
		Burst:       5,
	}
}

// Dispatcher decouples alert production from delivery. A single worker drains a bounded
// FIFO queue, so alerts are delivered in the order they were enqueued.
type Dispatcher struct {
	notifier Notifier
	journal  Journal
	queue    chan models.AlertEvent
	timeout  time.Duration
	limiter  *rate.Limiter
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher delivering through n. journal may be nil.
func NewDispatcher(n Notifier, journal Journal, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.MinInterval > 0 {
		if cfg.Burst <= 0 {
			cfg.Burst = 1
		}
		limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), cfg.Burst)
	}
	return &Dispatcher{
		notifier: n,
		journal:  journal,
		queue:    make(chan models.AlertEvent, cfg.QueueSize),
		timeout:  cfg.SendTimeout,
		limiter:  limiter,
	}
}

// Enqueue hands event to the worker without blocking. It returns false and drops the
// event when the queue is full.
func (d *Dispatcher) Enqueue(event models.AlertEvent) bool {
	select {
	case d.queue <- event:
		return true
	default:
		logger.Warn("Alert queue full (%d), dropping %s alert %s", cap(d.queue), event.Direction, event.ID)
		return false
	}
}

// Start launches the worker. It stops when ctx is cancelled; alerts still queued are
// abandoned.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case event := <-d.queue:
				if err := d.Deliver(ctx, event); err != nil {
					logger.Error("Failed to deliver %s alert %s: %v", event.Direction, event.ID, err)
				}
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Deliver journals and sends event synchronously, bounded by the send timeout.
func (d *Dispatcher) Deliver(ctx context.Context, event models.AlertEvent) error {
	if d.journal != nil {
		if err := d.journal.AddAlert(&event); err != nil {
			logger.Warn("Failed to record alert %s: %v", event.ID, err)
		}
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("throttle: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	err := safeNotify(sendCtx, d.notifier, event)

	if d.journal != nil {
		if jerr := d.journal.MarkDelivered(event.ID, err == nil); jerr != nil {
			logger.Warn("Failed to update alert %s: %v", event.ID, jerr)
		}
	}
	if err != nil {
		return err
	}
	logger.Info("Delivered %s alert %s for %s at %s", event.Direction, event.ID, event.Market, event.Price)
	return nil
}
