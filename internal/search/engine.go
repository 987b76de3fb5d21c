// Package search picks which marketplace source answers a query and falls
// back from the primary to the secondary source in auto mode.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/httpclient"
	"github.com/Checker-Finance/tcg-pricing/internal/marketplace"
	"github.com/Checker-Finance/tcg-pricing/internal/metrics"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// Mode selects the source policy.
type Mode string

const (
	ModeAuto    Mode = "auto"
	ModeBrowse  Mode = "browse"
	ModeFinding Mode = "finding"
)

// ParseMode reads the -engine flag.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAuto, nil
	case ModeAuto, ModeBrowse, ModeFinding:
		return m, nil
	default:
		return "", fmt.Errorf("unknown engine %q (want auto|browse|finding)", s)
	}
}

// Fallback reasons, also used as metric labels.
const (
	ReasonNoPrimary   = "no_primary"
	ReasonRateLimited = "rate_limited"
	ReasonError       = "primary_error"
	ReasonEmpty       = "empty"
)

// Outcome records which source produced a result.
type Outcome struct {
	Source         string
	Fallback       bool
	FallbackReason string
	PrimaryErr     error
}

// Engine runs one search according to Mode.
type Engine struct {
	logger    *zap.Logger
	primary   marketplace.Source
	secondary marketplace.Source
	mode      Mode
	pageSize  int
	maxPages  int
}

// ErrNoSource means the selected mode has no configured source.
var ErrNoSource = errors.New("search: no source configured for mode")

// New creates an Engine. Either source may be nil when its credentials are absent.
func New(logger *zap.Logger, primary, secondary marketplace.Source, mode Mode, pageSize, maxPages int) *Engine {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Engine{
		logger:    logger,
		primary:   primary,
		secondary: secondary,
		mode:      mode,
		pageSize:  pageSize,
		maxPages:  maxPages,
	}
}

func (e *Engine) Mode() Mode { return e.mode }

// SearchPrices returns the observations for query. In auto mode failures of
// the secondary source are absorbed; forced modes propagate every error.
func (e *Engine) SearchPrices(ctx context.Context, query string) ([]model.PriceObservation, Outcome, error) {
	switch e.mode {
	case ModeBrowse:
		return e.forced(ctx, e.primary, query)
	case ModeFinding:
		return e.forced(ctx, e.secondary, query)
	default:
		return e.auto(ctx, query)
	}
}

func (e *Engine) forced(ctx context.Context, src marketplace.Source, query string) ([]model.PriceObservation, Outcome, error) {
	if src == nil {
		return nil, Outcome{}, fmt.Errorf("%w %s", ErrNoSource, e.mode)
	}
	obs, err := src.Search(ctx, query, e.pageSize, e.maxPages)
	return obs, Outcome{Source: src.Name()}, err
}

func (e *Engine) auto(ctx context.Context, query string) ([]model.PriceObservation, Outcome, error) {
	var (
		primaryObs []model.PriceObservation
		out        Outcome
	)

	if e.primary == nil {
		out.FallbackReason = ReasonNoPrimary
	} else {
		obs, err := e.primary.Search(ctx, query, e.pageSize, e.maxPages)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, Outcome{Source: e.primary.Name()}, ctxErr
		}
		switch {
		case err == nil && len(obs) > 0:
			return obs, Outcome{Source: e.primary.Name()}, nil
		case err == nil:
			out.FallbackReason = ReasonEmpty
		case httpclient.IsRateLimited(err):
			out.FallbackReason = ReasonRateLimited
			out.PrimaryErr = err
			e.logger.Warn("search.primary_rate_limited", zap.String("query", query), zap.Error(err))
			obs = nil
		default:
			out.FallbackReason = ReasonError
			out.PrimaryErr = err
			e.logger.Warn("search.primary_failed", zap.String("query", query), zap.Error(err))
			obs = nil
		}
		primaryObs = obs
		out.Source = e.primary.Name()
	}

	if e.secondary == nil {
		if e.primary == nil {
			return nil, out, fmt.Errorf("%w %s", ErrNoSource, e.mode)
		}
		return primaryObs, out, nil
	}

	metrics.IncFallback(out.FallbackReason)
	obs, err := e.secondary.Search(ctx, query, e.pageSize, e.maxPages)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, out, ctxErr
	}
	if err != nil {
		e.logger.Warn("search.secondary_failed",
			zap.String("query", query),
			zap.String("fallback_reason", out.FallbackReason),
			zap.Error(err))
		return primaryObs, out, nil
	}
	if len(obs) == 0 {
		return primaryObs, out, nil
	}

	out.Source = e.secondary.Name()
	out.Fallback = true
	e.logger.Debug("search.fallback_used",
		zap.String("query", query),
		zap.String("reason", out.FallbackReason),
		zap.Int("samples", len(obs)))
	return obs, out, nil
}

// validator is implemented by sources that can check their own configuration.
type validator interface {
	Validate() error
}

// ValidationQuery is the probe search used to check credentials at startup.
const ValidationQuery = "pokemon card"

// Validate checks a forced mode's source with a one-page probe search so bad
// credentials fail the run before any item is touched. Auto mode only needs
// one configured source.
func (e *Engine) Validate(ctx context.Context) error {
	var src marketplace.Source
	switch e.mode {
	case ModeBrowse:
		src = e.primary
	case ModeFinding:
		src = e.secondary
	default:
		if e.primary == nil && e.secondary == nil {
			return fmt.Errorf("%w %s", ErrNoSource, e.mode)
		}
		return nil
	}
	if src == nil {
		return fmt.Errorf("%w %s", ErrNoSource, e.mode)
	}
	if v, ok := src.(validator); ok {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	if _, err := src.Search(ctx, ValidationQuery, 1, 1); err != nil {
		return fmt.Errorf("%s probe search: %w", src.Name(), err)
	}
	return nil
}
