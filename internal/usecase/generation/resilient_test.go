package generation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/kailas-cloud/mailrag/internal/domain"
)

type mockCompleter struct {
	mu    sync.Mutex
	calls int
	// errs are returned in order; once exhausted the call succeeds.
	errs []error
	text string
}

func (m *mockCompleter) Complete(ctx context.Context, _ domain.CompletionRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		return "", err
	}
	return m.text, nil
}

func (m *mockCompleter) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func fastConfig() Config {
	return Config{
		MaxRetries:      2,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		BreakerFailures: 10,
		BreakerTimeout:  time.Minute,
	}
}

var errTransient = fmt.Errorf("%w: upstream 502", domain.ErrGeneration)

func TestComplete_Success(t *testing.T) {
	inner := &mockCompleter{text: "Thanks, see you then."}
	c := NewResilientCompleter(inner, fastConfig(), zap.NewNop())

	got, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "Thanks, see you then." {
		t.Fatalf("unexpected text %q", got)
	}
	if inner.callCount() != 1 {
		t.Fatalf("expected 1 call, got %d", inner.callCount())
	}
	if err := c.HealthCheck(context.Background()); err != nil {
		t.Fatalf("expected healthy breaker, got %v", err)
	}
}

func TestComplete_RetriesTransientErrors(t *testing.T) {
	inner := &mockCompleter{errs: []error{errTransient, errTransient}, text: "ok"}
	c := NewResilientCompleter(inner, fastConfig(), zap.NewNop())

	got, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got != "ok" || inner.callCount() != 3 {
		t.Fatalf("expected ok after 3 calls, got %q after %d", got, inner.callCount())
	}
}

func TestComplete_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &mockCompleter{errs: []error{errTransient, errTransient, errTransient, errTransient}}
	c := NewResilientCompleter(inner, fastConfig(), zap.NewNop())

	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if inner.callCount() != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.callCount())
	}
}

func TestComplete_QuotaIsNotRetried(t *testing.T) {
	quota := fmt.Errorf("%w: insufficient_quota", domain.ErrGenerationQuota)
	inner := &mockCompleter{errs: []error{quota}}
	c := NewResilientCompleter(inner, fastConfig(), zap.NewNop())

	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrGenerationQuota) {
		t.Fatalf("expected ErrGenerationQuota, got %v", err)
	}
	if inner.callCount() != 1 {
		t.Fatalf("expected a single attempt, got %d", inner.callCount())
	}
}

func TestComplete_PlainErrorIsWrapped(t *testing.T) {
	inner := &mockCompleter{errs: []error{errors.New("boom")}}
	cfg := fastConfig()
	cfg.MaxRetries = -1
	c := NewResilientCompleter(inner, cfg, zap.NewNop())

	_, err := c.Complete(context.Background(), domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected ErrGeneration, got %v", err)
	}
	if inner.callCount() != 1 {
		t.Fatalf("expected retries disabled, got %d calls", inner.callCount())
	}
}

func TestComplete_BreakerOpens(t *testing.T) {
	inner := &mockCompleter{errs: []error{errTransient, errTransient, errTransient}}
	cfg := fastConfig()
	cfg.MaxRetries = -1
	cfg.BreakerFailures = 2
	c := NewResilientCompleter(inner, cfg, zap.NewNop())
	ctx := context.Background()

	for range 2 {
		if _, err := c.Complete(ctx, domain.CompletionRequest{Prompt: "p"}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if c.State() != gobreaker.StateOpen {
		t.Fatalf("expected open breaker, got %s", c.State())
	}
	if err := c.HealthCheck(ctx); !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected unhealthy while open, got %v", err)
	}

	_, err := c.Complete(ctx, domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, domain.ErrGeneration) || !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("expected open-state generation error, got %v", err)
	}
	if inner.callCount() != 2 {
		t.Fatalf("open breaker must not call the provider, got %d calls", inner.callCount())
	}
}

func TestComplete_CancelledContext(t *testing.T) {
	inner := &mockCompleter{text: "never"}
	c := NewResilientCompleter(inner, fastConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Complete(ctx, domain.CompletionRequest{Prompt: "p"})
	if !errors.Is(err, context.Canceled) || !errors.Is(err, domain.ErrGeneration) {
		t.Fatalf("expected cancelled generation error, got %v", err)
	}
	if inner.callCount() != 1 {
		t.Fatalf("cancellation must not be retried, got %d calls", inner.callCount())
	}
	if c.State() != gobreaker.StateClosed {
		t.Fatal("cancellation must not count against the breaker")
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()
	if cfg.MaxRetries != defaultMaxRetries || cfg.BreakerFailures != defaultBreakerFailures {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}

	cfg = Config{MaxRetries: -3}
	cfg.applyDefaults()
	if cfg.MaxRetries != 0 {
		t.Fatalf("negative retries should disable retrying, got %d", cfg.MaxRetries)
	}
}
