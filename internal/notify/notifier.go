// Package notify delivers alert events to external sinks.
package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rewired-gh/pricewatch/internal/models"
)

// Notifier delivers a single alert. Implementations must honour ctx cancellation and
// must not retry on their own.
type Notifier interface {
	Notify(ctx context.Context, event models.AlertEvent) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, event models.AlertEvent) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, event models.AlertEvent) error {
	return f(ctx, event)
}

// Sink is a named Notifier, used to attribute errors.
type Sink struct {
	Name     string
	Notifier Notifier
}

// Multi fans an alert out to every sink in order. One failing sink does not stop the
// others; the returned error joins every failure.
type Multi []Sink

// Notify delivers event to all sinks.
func (m Multi) Notify(ctx context.Context, event models.AlertEvent) error {
	var errs []error
	for _, s := range m {
		if err := safeNotify(ctx, s.Notifier, event); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// safeNotify converts a panicking notifier into an error.
func safeNotify(ctx context.Context, n Notifier, event models.AlertEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	return n.Notify(ctx, event)
}
