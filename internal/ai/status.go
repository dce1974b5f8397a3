package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "campuswatch/internal/errors"
)

// classifyHTTPError maps a non-2xx vendor response to an AppError whose code
// and Retryable flag drive the failover policy: auth and validation failures
// are terminal for the provider, rate limits and server errors are retryable.
func classifyHTTPError(provider string, statusCode int, body string, retryAfterHeader string) error {
	msg := fmt.Sprintf("%s returned status %d", provider, statusCode)
	cause := errors.New(truncateBody(body))

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return apperrors.Wrap(cause, apperrors.ErrCodeProviderAuth, msg)
	case statusCode == http.StatusTooManyRequests:
		appErr := apperrors.WrapRetryable(cause, apperrors.ErrCodeProviderRateLimit, msg)
		if d := parseRetryAfter(retryAfterHeader); d > 0 {
			appErr = appErr.WithRetryAfter(d)
		}
		return appErr
	case statusCode >= 500:
		return apperrors.WrapRetryable(cause, apperrors.ErrCodeProviderServer, msg)
	default:
		return apperrors.Wrap(cause, apperrors.ErrCodeProviderValidation, msg)
	}
}

// classifyTransportError maps client-side call failures. Context deadline and
// cancellation become timeout errors; anything else is a retryable server-side
// class of failure (connection refused, DNS, reset).
func classifyTransportError(provider string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.WrapRetryable(err, apperrors.ErrCodeProviderTimeout,
			fmt.Sprintf("%s call timed out", provider))
	}
	return apperrors.WrapRetryable(err, apperrors.ErrCodeProviderServer,
		fmt.Sprintf("%s call failed", provider))
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func truncateBody(body string) string {
	const max = 512
	if len(body) > max {
		return body[:max]
	}
	return body
}
