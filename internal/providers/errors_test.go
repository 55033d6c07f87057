package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"docrag/internal/util"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota": ErrorQuota,
		"429 rate":           ErrorRate,
		"context too long":   ErrorContext,
		"timeout":            ErrorTransient,
		"bad request":        ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
}

func TestClassifyDeadline(t *testing.T) {
	err := fmt.Errorf("embed: %w", context.DeadlineExceeded)
	if got := ClassifyError(err); got != ErrorTransient {
		t.Fatalf("got %s want transient", got)
	}
}

func TestTagMapsToSentinels(t *testing.T) {
	if err := Tag(errors.New("429 rate limit")); !errors.Is(err, util.ErrRateLimited) || !util.Retryable(err) {
		t.Fatalf("rate limit should be tagged retryable: %v", err)
	}
	if err := Tag(errors.New("invalid api key")); !errors.Is(err, util.ErrPermanent) || util.Retryable(err) {
		t.Fatalf("permanent error should not retry: %v", err)
	}
	if err := Tag(errors.New("insufficient_quota")); util.Retryable(err) {
		t.Fatalf("quota error should not retry: %v", err)
	}
	if Tag(nil) != nil {
		t.Fatalf("nil stays nil")
	}
}
