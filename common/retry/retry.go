package retry

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"google.golang.org/api/googleapi"
)

const (
	// MaxAttempts is the ceiling for transient-error retries. This is
	// the only retry mechanism in the system; callers must not layer
	// their own backoff on top.
	MaxAttempts = 5

	baseDelay = 1 * time.Second
	maxDelay  = 30 * time.Second
)

// Do runs fn, retrying transient failures with exponential backoff and
// jitter. Non-transient errors propagate immediately. After the final
// attempt the original error is returned.
func Do[T any](ctx context.Context, label string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return zero, err
		}
		if attempt == MaxAttempts {
			slog.ErrorContext(ctx, "all retry attempts failed", "label", label, "attempts", MaxAttempts, "error", err)
			return zero, err
		}

		delay := backoffDelay(attempt)
		if hint, ok := retryAfter(err); ok {
			delay = min(hint, maxDelay)
		}

		slog.WarnContext(ctx, "transient error, retrying", "label", label, "attempt", attempt, "delay_ms", delay.Milliseconds(), "error", err)

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}

	return zero, lastErr
}

// IsTransient classifies an error as retriable: HTTP 429/5xx, known
// transient network error codes, or rate-limit/unavailable message
// markers.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if status, ok := httpStatus(err); ok {
		if status == http.StatusTooManyRequests {
			return true
		}
		if status >= 500 && status < 600 {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Bare status-code digits are deliberately absent here: error text
	// full of ids and byte counts matches them far too easily. Status
	// codes are classified through the typed httpStatus path.
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"rate limit", "quota", "unavailable", "connection reset", "connection refused", "timeout"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}

func httpStatus(err error) (int, bool) {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code, true
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) {
		return oerr.StatusCode, true
	}
	return 0, false
}

// retryAfter extracts a provider-supplied retry hint: either seconds
// or an HTTP date.
func retryAfter(err error) (time.Duration, bool) {
	header := retryAfterHeader(err)
	if header == "" {
		return 0, false
	}

	if secs, parseErr := strconv.Atoi(strings.TrimSpace(header)); parseErr == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}

	if at, parseErr := http.ParseTime(header); parseErr == nil {
		d := time.Until(at)
		if d < 0 {
			d = 0
		}
		return d, true
	}

	return 0, false
}

func retryAfterHeader(err error) string {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Header.Get("Retry-After")
	}
	var oerr *openai.Error
	if errors.As(err, &oerr) && oerr.Response != nil {
		return oerr.Response.Header.Get("Retry-After")
	}
	return ""
}

// backoffDelay doubles the base delay per attempt, caps it, and applies
// symmetric ±25% jitter.
func backoffDelay(attempt int) time.Duration {
	delay := baseDelay << (attempt - 1)
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay)/2+1)) - delay/4
	return delay + jitter
}
