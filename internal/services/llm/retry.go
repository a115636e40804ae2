package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

type statusError struct {
	StatusCode int
	Body       string
	RetryAfter time.Duration
}

func newStatusError(resp *http.Response, body []byte) *statusError {
	return &statusError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}
}

func (e *statusError) Error() string {
	return fmt.Sprintf("llm request: http %d: %s", e.StatusCode, e.Body)
}

func (e *statusError) retryable() bool {
	return e.StatusCode == http.StatusRequestTimeout ||
		e.StatusCode == http.StatusTooManyRequests ||
		e.StatusCode >= http.StatusInternalServerError
}

type emptyContentError struct {
	Op           string
	FinishReason string
	Refusal      string
	Snippet      string
}

func (e *emptyContentError) Error() string {
	return fmt.Sprintf("%s: empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
		e.Op, e.FinishReason, e.Refusal, e.Snippet)
}

// backoff doubles from base up to ceiling between attempts. A server
// Retry-After hint replaces the computed delay but still respects ceiling.
type backoff struct {
	attempts int
	base     time.Duration
	ceiling  time.Duration
	sleeper  func(time.Duration)
}

func defaultBackoff() backoff {
	return backoff{attempts: 5, base: time.Second, ceiling: 10 * time.Second}
}

func (b backoff) run(ctx context.Context, op string, fn func() error) error {
	attempts := max(b.attempts, 1)
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		hint, ok := retryHint(ctx, err)
		if !ok {
			return err
		}
		if attempt >= attempts {
			break
		}
		if serr := b.wait(ctx, b.delay(attempt, hint)); serr != nil {
			return serr
		}
	}
	return fmt.Errorf("%s: failed after %d attempts: %w", op, attempts, err)
}

// retryHint reports whether err is worth another attempt and any delay the
// server asked for.
func retryHint(ctx context.Context, err error) (time.Duration, bool) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return 0, false
	}
	var empty *emptyContentError
	if errors.As(err, &empty) {
		return 0, true
	}
	var status *statusError
	if errors.As(err, &status) {
		return status.RetryAfter, status.retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return 0, true
	}
	return 0, false
}

func (b backoff) limit() time.Duration {
	if b.ceiling > 0 {
		return b.ceiling
	}
	return defaultBackoff().ceiling
}

func (b backoff) delay(attempt int, hint time.Duration) time.Duration {
	ceiling := b.limit()
	if hint > 0 {
		return min(hint, ceiling)
	}
	if b.base <= 0 {
		return 0
	}
	d := b.base
	for i := 1; i < attempt && d < ceiling; i++ {
		d *= 2
	}
	return min(d, ceiling)
}

func (b backoff) wait(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	if b.sleeper != nil {
		b.sleeper(d)
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// parseRetryAfter accepts either delta-seconds or an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return max(time.Duration(secs)*time.Second, 0)
	}
	if when, err := http.ParseTime(value); err == nil {
		return max(when.Sub(now), 0)
	}
	return 0
}
