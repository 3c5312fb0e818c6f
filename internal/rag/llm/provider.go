package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chatcfd/chatcfd-api/internal/domain/ragModel"
	"github.com/chatcfd/chatcfd-api/pkg/logger_i"
)

// ErrUpstreamUnavailable is returned once a provider call has exhausted its
// retry budget. Handlers map it to a 502 with a generic detail string.
var ErrUpstreamUnavailable = errors.New("model provider unavailable")

// Provider is the one contract every inference backend satisfies. Selection
// between backends happens once at startup; call sites never branch on
// provider kind.
type Provider interface {
	// Complete runs a chat completion over the given conversation. An empty
	// model falls back to the provider's configured default.
	Complete(ctx context.Context, messages []ragModel.ChatMessage, model string) (string, error)

	// Embed turns texts into fixed-length vectors, one per input, in input
	// order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// RetryPolicy bounds every network call a provider makes: each attempt gets
// Timeout, and at most Attempts attempts run before the call fails with
// ErrUpstreamUnavailable. Backoff sleeps between attempts.
type RetryPolicy struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// Do runs fn under the policy. The parent context still wins: if the caller
// is done, no further attempts are made.
func (p RetryPolicy) Do(ctx context.Context, logger *logger_i.Logger, op string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
		lastErr = fn(attemptCtx)
		cancel()

		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
		logger.Warn("Provider call failed", "op", op, "attempt", attempt, "error", lastErr)

		if attempt < attempts && p.Backoff > 0 {
			select {
			case <-time.After(p.Backoff):
			case <-ctx.Done():
				return fmt.Errorf("%s: %v: %w", op, ctx.Err(), ErrUpstreamUnavailable)
			}
		}
	}

	return fmt.Errorf("%s: %v: %w", op, lastErr, ErrUpstreamUnavailable)
}
