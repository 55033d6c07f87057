package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docrag/internal/util"

	"github.com/openai/openai-go/v3"
)

type ErrorType string

const (
	ErrorQuota     ErrorType = "quota"
	ErrorRate      ErrorType = "rate"
	ErrorTransient ErrorType = "transient"
	ErrorPermanent ErrorType = "permanent"
	ErrorContext   ErrorType = "context"
)

func ClassifyError(err error) ErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTransient
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests && strings.Contains(strings.ToLower(apiErr.Code), "quota"):
			return ErrorQuota
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ErrorRate
		case apiErr.StatusCode >= 500, apiErr.StatusCode == http.StatusRequestTimeout:
			return ErrorTransient
		case strings.Contains(apiErr.Code, "context_length"):
			return ErrorContext
		}
	}
	e := strings.ToLower(err.Error())
	switch {
	case strings.Contains(e, "quota"), strings.Contains(e, "credit"), strings.Contains(e, "insufficient_quota"):
		return ErrorQuota
	case strings.Contains(e, "rate"), strings.Contains(e, "429"):
		return ErrorRate
	case strings.Contains(e, "context"), strings.Contains(e, "too long"):
		return ErrorContext
	case strings.Contains(e, "timeout"), strings.Contains(e, "temporarily"), strings.Contains(e, "unavailable"),
		strings.Contains(e, "connection refused"), strings.Contains(e, "eof"):
		return ErrorTransient
	default:
		return ErrorPermanent
	}
}

// Tag wraps a provider error with the sentinel of its class so callers can
// decide retryability with errors.Is.
func Tag(err error) error {
	if err == nil {
		return nil
	}
	var sentinel error
	switch ClassifyError(err) {
	case ErrorQuota:
		sentinel = util.ErrQuotaExhausted
	case ErrorRate:
		sentinel = util.ErrRateLimited
	case ErrorTransient:
		sentinel = util.ErrTransient
	case ErrorContext:
		sentinel = util.ErrContextTooLong
	default:
		sentinel = util.ErrPermanent
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

// Failover reports whether another provider is worth trying after err.
func Failover(err error) bool {
	switch ClassifyError(err) {
	case ErrorQuota, ErrorRate, ErrorTransient:
		return true
	}
	return false
}
