// Package settings holds the live watch config: a validated snapshot that is persisted,
// swapped atomically, and announced to listeners whenever it is replaced.
package settings

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rewired-gh/pricewatch/internal/logger"
	"github.com/rewired-gh/pricewatch/internal/models"
)

// KV persists settings as flat key/value pairs.
type KV interface {
	GetSettings() (map[string]string, error)
	PutSettings(map[string]string) error
}

// ErrInvalidConfig wraps validation failures from Replace and Apply.
var ErrInvalidConfig = errors.New("invalid watch config")

// Store serves the current WatchConfig to readers without locking and serializes writers.
type Store struct {
	kv      KV
	current atomic.Pointer[models.WatchConfig]

	mu        sync.Mutex
	listeners []func(models.WatchConfig)
}

// Load builds a Store from defaults overlaid with any settings persisted in kv, then
// writes the effective config back. Persisted values that fail to parse or validate are
// discarded in favour of defaults. A nil kv keeps the config in memory only.
func Load(kv KV, defaults models.WatchConfig) (*Store, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("invalid default watch config: %w", err)
	}

	cfg := defaults
	if kv != nil {
		stored, err := kv.GetSettings()
		if err != nil {
			return nil, fmt.Errorf("failed to load settings: %w", err)
		}
		if len(stored) > 0 {
			merged, err := Decode(stored, defaults)
			if err == nil {
				err = merged.Validate()
			}
			if err != nil {
				logger.Warn("Ignoring persisted settings: %v", err)
			} else {
				cfg = merged
			}
		}
		if err := kv.PutSettings(Encode(cfg)); err != nil {
			return nil, fmt.Errorf("failed to save settings: %w", err)
		}
	}

	s := &Store{kv: kv}
	s.current.Store(&cfg)
	return s, nil
}

// Current returns the latest config snapshot.
func (s *Store) Current() models.WatchConfig {
	return *s.current.Load()
}

// OnReplace registers fn to run after every successful replacement.
// Listeners run on the writer's goroutine and must not block.
func (s *Store) OnReplace(fn func(models.WatchConfig)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Replace validates and persists cfg, then publishes it. Nothing is published when
// validation or persistence fails.
func (s *Store) Replace(cfg models.WatchConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaceLocked(cfg)
}

// Apply replaces the current config with p applied on top of it, as one step.
func (s *Store) Apply(p Patch) (models.WatchConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := p.ApplyTo(*s.current.Load())
	if err := s.replaceLocked(cfg); err != nil {
		return models.WatchConfig{}, err
	}
	return cfg, nil
}

func (s *Store) replaceLocked(cfg models.WatchConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if s.kv != nil {
		if err := s.kv.PutSettings(Encode(cfg)); err != nil {
			return fmt.Errorf("failed to save settings: %w", err)
		}
	}
	s.current.Store(&cfg)
	logger.Info("Watch config updated: %s", cfg)

	for _, fn := range s.listeners {
		fn(cfg)
	}
	return nil
}
