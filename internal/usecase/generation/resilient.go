// Package generation wraps the completion provider with retries and a circuit breaker.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
	"github.com/kailas-cloud/mailrag/internal/metrics"
)

// Config tunes retry and breaker behaviour. Zero values take defaults.
type Config struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// BreakerFailures consecutive failures open the breaker.
	BreakerFailures uint32
	// BreakerTimeout is how long the breaker stays open before a probe.
	BreakerTimeout time.Duration
}

const (
	defaultMaxRetries      = 2
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 5 * time.Second
	defaultBreakerFailures = 5
	defaultBreakerTimeout  = 30 * time.Second
)

func (c *Config) applyDefaults() {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	} else if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = defaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = defaultMaxInterval
	}
	if c.BreakerFailures == 0 {
		c.BreakerFailures = defaultBreakerFailures
	}
	if c.BreakerTimeout <= 0 {
		c.BreakerTimeout = defaultBreakerTimeout
	}
}

// ResilientCompleter retries transient completion failures and stops calling
// a provider that keeps failing. Quota errors are never retried.
type ResilientCompleter struct {
	inner   domain.Completer
	cfg     Config
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewResilientCompleter wraps inner. A negative MaxRetries disables retries.
func NewResilientCompleter(inner domain.Completer, cfg Config, logger *zap.Logger) *ResilientCompleter {
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &ResilientCompleter{inner: inner, cfg: cfg, logger: logger}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "generation",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.GenerationBreakerState.Set(float64(to))
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		// A caller giving up says nothing about provider health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	return c
}

// Complete runs the request through the breaker, retrying with exponential backoff.
func (c *ResilientCompleter) Complete(ctx context.Context, req domain.CompletionRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialInterval
	b.MaxInterval = c.cfg.MaxInterval
	b.MaxElapsedTime = 0

	attempt := 0
	var text string
	operation := func() error {
		attempt++
		if attempt > 1 {
			metrics.GenerationRetriesTotal.Inc()
		}

		v, err := c.breaker.Execute(func() (any, error) {
			return c.inner.Complete(ctx, req)
		})
		if err == nil {
			text = v.(string) //nolint:forcetypeassert // only Complete fills the breaker
			return nil
		}

		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return backoff.Permanent(fmt.Errorf("%w: provider unavailable: %w", domain.ErrGeneration, err))
		case errors.Is(err, domain.ErrGenerationQuota),
			errors.Is(err, context.Canceled),
			errors.Is(err, context.DeadlineExceeded):
			return backoff.Permanent(err)
		}

		c.logger.Debug("Completion attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		return err
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx) //nolint:gosec // non-negative
	if err := backoff.Retry(operation, policy); err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = fmt.Errorf("%w: %w", domain.ErrGeneration, err)
		}
		return "", err
	}
	return text, nil
}

// State reports the breaker state, for health reporting.
func (c *ResilientCompleter) State() gobreaker.State {
	return c.breaker.State()
}

// HealthCheck fails while the breaker is open. It does not call the provider.
func (c *ResilientCompleter) HealthCheck(_ context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit breaker open", domain.ErrGeneration)
	}
	return nil
}
