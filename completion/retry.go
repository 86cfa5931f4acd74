package completion

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/hupe1980/agentloop/core"
	"github.com/hupe1980/agentloop/logging"
)

// RetryOptions configures WithRetry.
type RetryOptions struct {
	// MaxAttempts bounds the total number of calls (first try included).
	MaxAttempts int
	// AttemptTimeout bounds each individual call so a stalled request
	// becomes a fault instead of a hang. Zero disables the per-call bound.
	AttemptTimeout  time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Logger          logging.Logger
}

// DefaultRetryOptions returns conservative defaults: three attempts, two
// minutes per attempt, 500ms initial backoff.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:     3,
		AttemptTimeout:  2 * time.Minute,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
}

type retryClient struct {
	next core.CompletionClient
	opts RetryOptions
}

// WithRetry wraps client with bounded exponential-backoff retries. When every
// attempt fails the returned error is a *core.CompletionFaultError.
func WithRetry(client core.CompletionClient, optFns ...func(o *RetryOptions)) core.CompletionClient {
	opts := DefaultRetryOptions()
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	return &retryClient{next: client, opts: opts}
}

// Complete implements core.CompletionClient.
func (c *retryClient) Complete(ctx context.Context, req core.CompletionRequest) (string, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.opts.InitialInterval
	b.MaxInterval = c.opts.MaxInterval
	b.MaxElapsedTime = 0
	b.RandomizationFactor = 0.1

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.opts.MaxAttempts-1)), ctx)

	var (
		attempts int
		text     string
	)

	err := backoff.RetryNotify(func() error {
		attempts++

		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if c.opts.AttemptTimeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, c.opts.AttemptTimeout)
		}
		defer cancel()

		out, err := c.next.Complete(callCtx, req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		text = out
		return nil
	}, policy, func(err error, delay time.Duration) {
		c.opts.Logger.Warn("completion.retry", "model", req.Model, "attempt", attempts, "delay", delay, "error", err)
	})
	if err != nil {
		return "", &core.CompletionFaultError{Attempts: attempts, Err: err}
	}

	return text, nil
}
