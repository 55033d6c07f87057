package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"docrag/internal/util"

	"github.com/avast/retry-go/v4"
	"go.temporal.io/sdk/temporal"
)

const (
	defaultAttempts = 3
	defaultDelay    = 500 * time.Millisecond
	defaultMaxDelay = 10 * time.Second
	defaultTimeout  = 30 * time.Second
)

// RetryConfig bounds retries of collaborator calls. Timeout applies to each
// individual attempt.
type RetryConfig struct {
	Attempts uint          `env:"ATTEMPTS" envDefault:"3"`
	Delay    time.Duration `env:"DELAY" envDefault:"500ms"`
	MaxDelay time.Duration `env:"MAX_DELAY" envDefault:"10s"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		MaxDelay: defaultMaxDelay,
		Timeout:  defaultTimeout,
	}
}

func (rc RetryConfig) normalized() RetryConfig {
	d := DefaultRetryConfig()
	if rc.Attempts == 0 {
		rc.Attempts = d.Attempts
	}
	if rc.Delay <= 0 {
		rc.Delay = d.Delay
	}
	if rc.MaxDelay < rc.Delay {
		rc.MaxDelay = rc.Delay
	}
	if rc.Timeout <= 0 {
		rc.Timeout = d.Timeout
	}
	return rc
}

func (rc RetryConfig) ToRetryOptions(ctx context.Context) []retry.Option {
	rc = rc.normalized()
	return []retry.Option{
		retry.Context(ctx),
		retry.Attempts(rc.Attempts),
		retry.Delay(rc.Delay),
		retry.MaxDelay(rc.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(util.Retryable),
	}
}

// ToTemporalPolicy expresses the same budget as an activity retry policy.
func (rc RetryConfig) ToTemporalPolicy() *temporal.RetryPolicy {
	rc = rc.normalized()
	return &temporal.RetryPolicy{
		InitialInterval:    rc.Delay,
		BackoffCoefficient: 2,
		MaximumInterval:    rc.MaxDelay,
		MaximumAttempts:    int32(rc.Attempts),
		NonRetryableErrorTypes: []string{
			util.TypeInvalidFormat,
			util.TypeNoExtractableText,
			util.TypeNotFound,
		},
	}
}

// Do runs fn with a per-attempt timeout and retries transient failures with
// exponential backoff. A deadline hit inside an attempt is reported as
// util.ErrCollaboratorTimeout.
func Do[T any](ctx context.Context, rc RetryConfig, fn func(context.Context) (T, error)) (T, error) {
	rc = rc.normalized()
	return retry.DoWithData(func() (T, error) {
		callCtx, cancel := context.WithTimeout(ctx, rc.Timeout)
		defer cancel()
		out, err := fn(callCtx)
		if err != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			var zero T
			return zero, fmt.Errorf("%w: %w", util.ErrCollaboratorTimeout, err)
		}
		return out, err
	}, rc.ToRetryOptions(ctx)...)
}
