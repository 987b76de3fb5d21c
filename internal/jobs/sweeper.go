package jobs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/catalog"
	"github.com/Checker-Finance/tcg-pricing/internal/metrics"
	"github.com/Checker-Finance/tcg-pricing/internal/publisher"
	"github.com/Checker-Finance/tcg-pricing/internal/rate"
	"github.com/Checker-Finance/tcg-pricing/internal/search"
	"github.com/Checker-Finance/tcg-pricing/internal/stats"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// Searcher resolves a query to listing observations.
type Searcher interface {
	SearchPrices(ctx context.Context, query string) ([]model.PriceObservation, search.Outcome, error)
}

// PriceWriter persists one summary per item.
type PriceWriter interface {
	Upsert(ctx context.Context, game model.Game, key model.ItemKey, s model.PriceSummary) error
}

// Catalog streams the items of one game.
type Catalog interface {
	Each(ctx context.Context, limit int, fn func(context.Context, model.CatalogItem) error) (int, error)
}

// CatalogOpener prepares a game's catalog for iteration. A *catalog.SchemaError
// means the game is skipped for this run.
type CatalogOpener func(ctx context.Context, game model.Game) (Catalog, error)

// Publisher announces written summaries; nil disables events.
type Publisher interface {
	PublishPriceUpdated(ctx context.Context, ev publisher.PriceUpdated) error
}

// Config tunes a sweep.
type Config struct {
	Concurrency    int
	Limit          int
	ProgressEvery  int
	InterGamePause time.Duration
}

// Item outcomes, also used as metric labels.
const (
	OutcomePriced = "priced"
	OutcomeEmpty  = "empty"
	OutcomeFailed = "failed"
)

// GameStats summarizes one game's sweep.
type GameStats struct {
	Game      model.Game
	Processed int
	Priced    int
	Empty     int
	Failed    int
	Fallbacks int
	Duration  time.Duration
	// Err is set when the game could not be swept at all or stopped early.
	Err error
}

// Report is the result of one Run.
type Report struct {
	RunID    uuid.UUID
	Games    []GameStats
	Duration time.Duration
}

// Totals adds up every game.
func (r Report) Totals() GameStats {
	var t GameStats
	for _, g := range r.Games {
		t.Processed += g.Processed
		t.Priced += g.Priced
		t.Empty += g.Empty
		t.Failed += g.Failed
		t.Fallbacks += g.Fallbacks
	}
	t.Duration = r.Duration
	return t
}

// Sweeper prices every catalog item of the selected games: build query,
// search, summarize, upsert, notify.
type Sweeper struct {
	logger   *zap.Logger
	cfg      Config
	open     CatalogOpener
	searcher Searcher
	writer   PriceWriter
	pub      Publisher
	clock    rate.Clock
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewSweeper constructs a Sweeper. pub may be nil.
func NewSweeper(logger *zap.Logger, cfg Config, open CatalogOpener, searcher Searcher, writer PriceWriter, pub Publisher) *Sweeper {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 25
	}
	return &Sweeper{
		logger:   logger,
		cfg:      cfg,
		open:     open,
		searcher: searcher,
		writer:   writer,
		pub:      pub,
		clock:    rate.RealClock{},
		stopCh:   make(chan struct{}),
	}
}

// WithClock replaces the clock used for the inter-game pause.
func (s *Sweeper) WithClock(c rate.Clock) *Sweeper {
	s.clock = c
	return s
}

// Run sweeps games in order, pausing between them. Per-item and per-game
// failures are logged and counted; only cancellation aborts the run.
func (s *Sweeper) Run(ctx context.Context, games []model.Game) (Report, error) {
	start := time.Now()
	report := Report{RunID: uuid.New()}
	s.logger.Info("sweeper.run_started",
		zap.Stringer("run_id", report.RunID),
		zap.Int("games", len(games)),
		zap.Int("concurrency", s.cfg.Concurrency),
		zap.Int("limit", s.cfg.Limit))

	for i, game := range games {
		if i > 0 && s.cfg.InterGamePause > 0 {
			if err := s.clock.Sleep(ctx, s.cfg.InterGamePause); err != nil {
				report.Duration = time.Since(start)
				return report, err
			}
		}
		gs := s.sweepGame(ctx, report.RunID, game)
		report.Games = append(report.Games, gs)
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}
	}

	report.Duration = time.Since(start)
	t := report.Totals()
	s.logger.Info("sweeper.run_finished",
		zap.Stringer("run_id", report.RunID),
		zap.Int("processed", t.Processed),
		zap.Int("priced", t.Priced),
		zap.Int("empty", t.Empty),
		zap.Int("failed", t.Failed),
		zap.Int("fallbacks", t.Fallbacks),
		zap.Duration("duration", report.Duration))
	return report, nil
}

func (s *Sweeper) sweepGame(ctx context.Context, runID uuid.UUID, game model.Game) GameStats {
	start := time.Now()
	gs := GameStats{Game: game}
	defer metrics.ObserveDuration(metrics.SweepDuration, start, string(game))

	cat, err := s.open(ctx, game)
	if err != nil {
		var se *catalog.SchemaError
		if errors.As(err, &se) {
			s.logger.Error("sweeper.game_skipped", zap.String("game", string(game)), zap.Error(err))
		} else {
			s.logger.Error("sweeper.catalog_open_failed", zap.String("game", string(game)), zap.Error(err))
		}
		gs.Err = err
		return gs
	}

	s.logger.Info("sweeper.game_started", zap.String("game", string(game)))

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		jobs = make(chan model.CatalogItem, s.cfg.Concurrency)
	)
	record := func(outcome string, fallback bool) {
		mu.Lock()
		defer mu.Unlock()
		gs.Processed++
		switch outcome {
		case OutcomePriced:
			gs.Priced++
		case OutcomeEmpty:
			gs.Empty++
		default:
			gs.Failed++
		}
		if fallback {
			gs.Fallbacks++
		}
		if gs.Processed%s.cfg.ProgressEvery == 0 {
			s.logger.Info("sweeper.progress",
				zap.String("game", string(game)),
				zap.Int("processed", gs.Processed),
				zap.Int("priced", gs.Priced),
				zap.Int("empty", gs.Empty),
				zap.Int("failed", gs.Failed))
		}
	}

	for w := 0; w < s.cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for item := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcome, fallback := s.safeProcessItem(ctx, runID, item)
				if outcome == "" {
					continue
				}
				metrics.IncItem(string(game), outcome)
				record(outcome, fallback)
			}
		}()
	}

	_, iterErr := cat.Each(ctx, s.cfg.Limit, func(ctx context.Context, item model.CatalogItem) error {
		select {
		case jobs <- item:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	close(jobs)
	wg.Wait()

	if iterErr != nil && ctx.Err() == nil {
		s.logger.Error("sweeper.catalog_iteration_failed", zap.String("game", string(game)), zap.Error(iterErr))
	}
	if iterErr != nil {
		gs.Err = iterErr
	}

	gs.Duration = time.Since(start)
	s.logger.Info("sweeper.game_finished",
		zap.String("game", string(game)),
		zap.Int("processed", gs.Processed),
		zap.Int("priced", gs.Priced),
		zap.Int("empty", gs.Empty),
		zap.Int("failed", gs.Failed),
		zap.Int("fallbacks", gs.Fallbacks),
		zap.Duration("duration", gs.Duration))
	return gs
}

// safeProcessItem runs processItem and turns a panic into a failed outcome
// so one malformed item cannot end the sweep.
func (s *Sweeper) safeProcessItem(ctx context.Context, runID uuid.UUID, item model.CatalogItem) (outcome string, fallback bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("sweeper.item_panicked",
				zap.String("game", string(item.Game)),
				zap.Stringer("key", item.Key),
				zap.Any("panic", r),
				zap.Stack("stack"))
			outcome, fallback = OutcomeFailed, false
		}
	}()
	return s.processItem(ctx, runID, item)
}

// processItem returns the item outcome, or "" when the run was cancelled
// mid-item and nothing should be counted.
func (s *Sweeper) processItem(ctx context.Context, runID uuid.UUID, item model.CatalogItem) (string, bool) {
	query := catalog.BuildQuery(item)

	obs, out, err := s.searcher.SearchPrices(ctx, query)
	if err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		s.logger.Warn("sweeper.item_failed",
			zap.String("game", string(item.Game)),
			zap.Stringer("key", item.Key),
			zap.String("query", query),
			zap.String("stage", "search"),
			zap.Error(err))
		return OutcomeFailed, false
	}

	summary := stats.Summarize(model.LandedPrices(obs)).ToPriceSummary(query)
	if err := s.writer.Upsert(ctx, item.Game, item.Key, summary); err != nil {
		if ctx.Err() != nil {
			return "", false
		}
		s.logger.Warn("sweeper.item_failed",
			zap.String("game", string(item.Game)),
			zap.Stringer("key", item.Key),
			zap.String("stage", "upsert"),
			zap.Error(err))
		return OutcomeFailed, out.Fallback
	}

	if s.pub != nil {
		ev := publisher.PriceUpdated{
			RunID:   runID,
			Game:    item.Game,
			ItemKey: item.Key.String(),
			Name:    item.Name,
			Source:  out.Source,
			Summary: summary,
		}
		if err := s.pub.PublishPriceUpdated(ctx, ev); err != nil {
			s.logger.Debug("sweeper.notify_failed", zap.Stringer("key", item.Key), zap.Error(err))
		}
	}

	if summary.Priced() {
		s.logger.Debug("sweeper.item_priced",
			zap.String("game", string(item.Game)),
			zap.Stringer("key", item.Key),
			zap.String("source", out.Source),
			zap.Int("samples", summary.SampleCount))
		return OutcomePriced, out.Fallback
	}
	return OutcomeEmpty, out.Fallback
}

// Start runs a sweep immediately and then every interval until ctx is
// cancelled or Stop is called. interval <= 0 runs once.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration, games []model.Game) error {
	if _, err := s.Run(ctx, games); err != nil || interval <= 0 {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("sweeper.scheduled", zap.Duration("interval", interval))

	for {
		select {
		case <-ticker.C:
			if _, err := s.Run(ctx, games); err != nil {
				return err
			}
		case <-s.stopCh:
			s.logger.Info("sweeper.stopped (manual stop)")
			return nil
		case <-ctx.Done():
			s.logger.Info("sweeper.stopped (context canceled)")
			return ctx.Err()
		}
	}
}

// Stop halts a scheduled Start loop after the current run.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}
