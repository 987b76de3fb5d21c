package httpclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_DelayIsExponentialAndCapped(t *testing.T) {
	p := Policy{BaseDelay: 500 * time.Millisecond, MaxDelay: 3 * time.Second}

	assert.Equal(t, 500*time.Millisecond, p.Delay(0, 0))
	assert.Equal(t, time.Second, p.Delay(1, 0))
	assert.Equal(t, 2*time.Second, p.Delay(2, 0))
	assert.Equal(t, 3*time.Second, p.Delay(3, 0))
	assert.Equal(t, 3*time.Second, p.Delay(10, 0))
}

func TestPolicy_DelayRetryAfterOverridesWhenLarger(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: 8 * time.Second}

	assert.Equal(t, 30*time.Second, p.Delay(0, 30*time.Second))
	assert.Equal(t, 4*time.Second, p.Delay(2, time.Second), "smaller hint must not shorten the backoff")
}

func TestPolicy_DelayJitterBounded(t *testing.T) {
	p := Policy{BaseDelay: time.Second, MaxDelay: time.Second, MaxJitter: 100 * time.Millisecond}
	for i := 0; i < 50; i++ {
		d := p.Delay(0, 0)
		assert.GreaterOrEqual(t, d, time.Second)
		assert.LessOrEqual(t, d, 1100*time.Millisecond)
	}
}

func TestRetry_ReturnsValueAfterTransientFailures(t *testing.T) {
	clock := &recordingClock{}
	p := Policy{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: time.Minute, Clock: clock}

	calls := 0
	v, err := Retry(context.Background(), p, Target{Provider: "browse"}, func(context.Context, int) (int, error) {
		calls++
		if calls < 3 {
			return 0, &StatusError{Provider: "browse", Status: http.StatusServiceUnavailable}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, clock.sleeps())
}

func TestRetry_PermanentErrorReturnedUnchanged(t *testing.T) {
	sentinel := errors.New("malformed payload")
	calls := 0
	_, err := Retry(context.Background(), Policy{MaxRetries: 3, Clock: &recordingClock{}}, Target{}, func(context.Context, int) (int, error) {
		calls++
		return 0, sentinel
	})
	assert.Same(t, sentinel, err)
	assert.Equal(t, 1, calls)
}

func TestRetry_UnauthorizedFailsImmediately(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), Policy{MaxRetries: 3, Clock: &recordingClock{}}, Target{}, func(context.Context, int) (int, error) {
		calls++
		return 0, &StatusError{Provider: "browse", Status: http.StatusUnauthorized}
	})
	assert.True(t, IsStatus(err, http.StatusUnauthorized))
	assert.Equal(t, 1, calls)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 5*time.Second, ParseRetryAfter("5", now))
	assert.Zero(t, ParseRetryAfter("", now))
	assert.Zero(t, ParseRetryAfter("-3", now))
	assert.Zero(t, ParseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, ParseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}
