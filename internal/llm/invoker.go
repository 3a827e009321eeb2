package llm

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/kartoza/home-energy-assistant/internal/applog"
	"github.com/kartoza/home-energy-assistant/internal/config"
)

// Invoker bounds each provider call with a timeout and retries
// retryable failures
type Invoker struct {
	Provider Provider
	Timeout  time.Duration
	Retries  int
	Backoff  time.Duration
	Logger   *zap.Logger
}

// NewInvoker wraps p. A zero timeout leaves each attempt unbounded.
func NewInvoker(p Provider, timeout time.Duration, retries int, logger *zap.Logger) *Invoker {
	logger = applog.OrNop(logger)
	return &Invoker{
		Provider: p,
		Timeout:  timeout,
		Retries:  retries,
		Backoff:  config.RetryBackoff,
		Logger:   logger,
	}
}

// Name returns the wrapped provider's name
func (inv *Invoker) Name() string { return inv.Provider.Name() }

// Generate calls the provider, retrying up to Retries extra times
func (inv *Invoker) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= inv.Retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		text, err := inv.attempt(ctx, prompt, attempt)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil || !Retryable(err) || attempt > inv.Retries {
			break
		}
		inv.Logger.Warn("LLM call failed, retrying",
			zap.String("provider", inv.Provider.Name()),
			zap.Int("attempt", attempt),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(inv.Backoff * time.Duration(attempt)):
		}
	}
	return "", lastErr
}

func (inv *Invoker) attempt(ctx context.Context, prompt string, n int) (string, error) {
	if inv.Timeout <= 0 {
		return inv.Provider.Generate(ctx, prompt)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, inv.Timeout)
	defer cancel()

	text, err := inv.Provider.Generate(attemptCtx, prompt)
	if err != nil && ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return "", &TimeoutError{After: inv.Timeout.String(), Attempt: n}
	}
	return text, err
}
