package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/metrics"
	"github.com/Checker-Finance/tcg-pricing/internal/rate"
)

// maxErrorBody caps how much of an error response is kept for diagnostics.
const maxErrorBody = 2048

// Call describes one logical provider request. Build is invoked once per
// attempt so bodies and headers (e.g. a refreshed bearer token) are fresh.
type Call struct {
	Provider string
	Query    string
	// RateKey selects the provider limiter; defaults to Provider.
	RateKey string
	Build   func(ctx context.Context) (*http.Request, error)
}

// Executor handles rate-limited, retrying HTTP execution with JSON decoding.
type Executor struct {
	logger  *zap.Logger
	rateMgr *rate.Manager
	http    *http.Client
	policy  Policy
}

// New creates an Executor. rateMgr may be nil to disable throttling.
func New(logger *zap.Logger, rateMgr *rate.Manager, httpClient *http.Client, policy Policy) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Executor{
		logger:  logger,
		rateMgr: rateMgr,
		http:    httpClient,
		policy:  policy,
	}
}

// Policy returns the executor's retry policy.
func (e *Executor) Policy() Policy { return e.policy }

// DoJSON executes call with throttling before every attempt and retries on
// 429, 5xx and transport errors, then JSON-decodes the body into out.
func (e *Executor) DoJSON(ctx context.Context, call Call, out any) error {
	rateKey := call.RateKey
	if rateKey == "" {
		rateKey = call.Provider
	}
	target := Target{Provider: call.Provider, Query: call.Query}

	// Attempts run sequentially, so prev needs no locking.
	var prev error
	_, err := Retry(ctx, e.policy, target, func(ctx context.Context, attempt int) (struct{}, error) {
		if attempt > 0 {
			metrics.IncRetry(call.Provider, RetryReason(prev))
		}
		if e.rateMgr != nil {
			if err := e.rateMgr.Wait(ctx, rateKey); err != nil {
				return struct{}{}, fmt.Errorf("rate limit wait: %w", err)
			}
		}
		prev = e.attempt(ctx, call, attempt, out)
		return struct{}{}, prev
	})
	return err
}

func (e *Executor) attempt(ctx context.Context, call Call, attempt int, out any) error {
	req, err := call.Build(ctx)
	if err != nil {
		return fmt.Errorf("%s build request: %w", call.Provider, err)
	}

	start := time.Now()
	resp, err := e.http.Do(req)
	metrics.ObserveDuration(metrics.ProviderRequestDuration, start, call.Provider)
	if err != nil {
		metrics.IncProviderRequest(call.Provider, "transport_error")
		if ctx.Err() != nil {
			return ctx.Err()
		}
		e.logger.Warn(call.Provider+".http_failed",
			zap.String("url", redactURL(req)),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	elapsed := time.Since(start)
	metrics.IncProviderRequest(call.Provider, strconv.Itoa(resp.StatusCode))
	if err != nil {
		e.logger.Warn(call.Provider+".read_failed", zap.Int("attempt", attempt), zap.Error(err))
		return &TransportError{Err: err}
	}

	if resp.StatusCode >= 400 {
		se := &StatusError{
			Provider:   call.Provider,
			Status:     resp.StatusCode,
			Body:       truncate(string(body), maxErrorBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}
		level := e.logger.Warn
		if !se.Retryable() {
			level = e.logger.Error
		}
		level(call.Provider+".http_status",
			zap.Int("status", resp.StatusCode),
			zap.String("url", redactURL(req)),
			zap.Int("attempt", attempt),
			zap.Duration("retry_after", se.RetryAfter),
			zap.Duration("latency", elapsed))
		return se
	}

	if out != nil && len(body) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			e.logger.Warn(call.Provider+".decode_failed",
				zap.Error(err),
				zap.String("url", redactURL(req)),
				zap.String("body", truncate(string(body), maxErrorBody)))
			return fmt.Errorf("decode failed: %w", err)
		}
	}

	e.logger.Debug(call.Provider+".http_success",
		zap.String("url", redactURL(req)),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))
	return nil
}

// redactURL drops the query string, which may carry an API key.
func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery = ""
	return u.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
