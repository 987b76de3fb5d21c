package httpclient

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Checker-Finance/tcg-pricing/internal/rate"
)

// Policy bounds retries of a single provider call.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxJitter  time.Duration
	// Clock defaults to the wall clock; tests substitute a fake.
	Clock rate.Clock
}

// DefaultPolicy returns the production retry policy.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   8 * time.Second,
		MaxJitter:  250 * time.Millisecond,
	}
}

// Delay returns the sleep before retry number attempt+1. A larger provider
// Retry-After hint replaces the computed delay.
func (p Policy) Delay(attempt int, retryAfter time.Duration) time.Duration {
	d := p.BaseDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int64N(int64(p.MaxJitter) + 1))
	}
	if retryAfter > d {
		d = retryAfter
	}
	return d
}

func (p Policy) clock() rate.Clock {
	if p.Clock == nil {
		return rate.RealClock{}
	}
	return p.Clock
}

// Target names the call for diagnostics on exhaustion.
type Target struct {
	Provider string
	Query    string
}

// Retry runs op until it succeeds, fails permanently, or the budget is spent.
// Only *StatusError with a retryable status and *TransportError are retried;
// anything else is returned unchanged. Exhaustion yields *ExhaustedError.
func Retry[T any](ctx context.Context, p Policy, target Target, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	var lastErr error
	lastStatus := 0
	attempts := 0

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		attempts++
		v, err := op(ctx, attempt)
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		var retryAfter time.Duration
		var se *StatusError
		var te *TransportError
		switch {
		case errors.As(err, &se):
			if !se.Retryable() {
				return zero, err
			}
			lastStatus = se.Status
			retryAfter = se.RetryAfter
		case errors.As(err, &te):
			lastStatus = 0
		default:
			return zero, err
		}

		if attempt == p.MaxRetries {
			break
		}
		if err := p.clock().Sleep(ctx, p.Delay(attempt, retryAfter)); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{
		Provider:   target.Provider,
		Query:      target.Query,
		LastStatus: lastStatus,
		Attempts:   attempts,
		Err:        lastErr,
	}
}

// ParseRetryAfter reads a Retry-After header given in seconds or as an HTTP date.
func ParseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
