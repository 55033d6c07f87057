package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"docrag/internal/util"

	"github.com/stretchr/testify/require"
)

func fastConfig() RetryConfig {
	return RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Timeout: 50 * time.Millisecond}
}

func TestDoRetriesTransientErrors(t *testing.T) {
	calls := 0
	out, err := Do(context.Background(), fastConfig(), func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", fmt.Errorf("upstream: %w", util.ErrTransient)
		}
		return "ok", nil
	})
	require.NoError(t, err)
	require.Equal(t, "ok", out)
	require.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentErrors(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), fastConfig(), func(context.Context) (int, error) {
		calls++
		return 0, fmt.Errorf("bad request: %w", util.ErrPermanent)
	})
	require.ErrorIs(t, err, util.ErrPermanent)
	require.Equal(t, 1, calls)
}

func TestDoReportsAttemptTimeout(t *testing.T) {
	_, err := Do(context.Background(), fastConfig(), func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})
	require.ErrorIs(t, err, util.ErrCollaboratorTimeout)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestToTemporalPolicy(t *testing.T) {
	p := fastConfig().ToTemporalPolicy()
	require.Equal(t, int32(3), p.MaximumAttempts)
	require.Equal(t, time.Millisecond, p.InitialInterval)
	require.Contains(t, p.NonRetryableErrorTypes, util.TypeNoExtractableText)
}
