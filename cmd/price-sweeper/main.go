package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/internal/api"
	"github.com/Checker-Finance/tcg-pricing/internal/catalog"
	"github.com/Checker-Finance/tcg-pricing/internal/config"
	"github.com/Checker-Finance/tcg-pricing/internal/httpclient"
	"github.com/Checker-Finance/tcg-pricing/internal/jobs"
	"github.com/Checker-Finance/tcg-pricing/internal/marketplace"
	"github.com/Checker-Finance/tcg-pricing/internal/marketplace/browse"
	"github.com/Checker-Finance/tcg-pricing/internal/marketplace/finding"
	"github.com/Checker-Finance/tcg-pricing/internal/publisher"
	"github.com/Checker-Finance/tcg-pricing/internal/rate"
	"github.com/Checker-Finance/tcg-pricing/internal/search"
	internalsecrets "github.com/Checker-Finance/tcg-pricing/internal/secrets"
	"github.com/Checker-Finance/tcg-pricing/internal/store"
	"github.com/Checker-Finance/tcg-pricing/pkg/logger"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
	"github.com/Checker-Finance/tcg-pricing/pkg/secrets"
	"github.com/Checker-Finance/tcg-pricing/pkg/utils"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()
	if err := cfg.ApplyFlags(os.Args[0], os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger.InitWithOptions(cfg.ServiceName, cfg.Env, cfg.LogLevel, logger.Options{File: cfg.LogFile})
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [price-sweeper]...")

	// --- Marketplace credentials from AWS Secrets Manager (optional) ---
	if cfg.SecretName != "" {
		if err := mergeSecretCredentials(ctx, cfg); err != nil {
			logg.Warnw("secret credentials unavailable, using environment only", "error", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		logg.Errorw("config.invalid", "error", err)
		return 1
	}
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Store (Postgres + optional Redis) ---
	st, err := store.Open(ctx, cfg.DatabaseURL, cfg.PGPool(), cfg.RedisAddr, cfg.RedisDB, logger.L())
	if err != nil {
		logg.Errorw("failed to init store", "error", err)
		return 1
	}
	defer st.Close()

	writer := store.NewPriceWriter(st.PG, cfg.PriceTables, logger.L())
	if cfg.AutoMigrate {
		if err := writer.EnsureTables(ctx); err != nil {
			logg.Errorw("failed to ensure price tables", "error", err)
			return 1
		}
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RPS,
		MaxJitter:         rate.DefaultJitter,
	})
	for _, key := range []string{browse.Name, finding.Name, browse.OAuthRateKey} {
		rateMgr.Configure(key, rate.Config{RequestsPerSecond: cfg.RPS, MaxJitter: rate.DefaultJitter})
	}

	// --- HTTP executor ---
	policy := httpclient.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	exec := httpclient.New(logger.L(), rateMgr, &http.Client{Timeout: 30 * time.Second}, policy)

	// --- Marketplace sources ---
	var primary, secondary marketplace.Source
	if cfg.HasBrowseCredentials() {
		var tokenStore browse.TokenStore = browse.NewMemoryTokenStore()
		if rdb := st.Redis(); rdb != nil {
			tokenStore = store.NewRedisTokenStore(rdb)
		}
		tokens := browse.NewTokenManager(logger.L(), exec, cfg.EbayAuthBaseURL,
			browse.Credentials{ClientID: cfg.EbayClientID, ClientSecret: cfg.EbayClientSecret},
			browse.DefaultScope, tokenStore)
		primary = browse.NewClient(logger.L(), exec, tokens, browse.Config{
			APIBaseURL:    cfg.EbayAPIBaseURL,
			MarketplaceID: cfg.EbayMarketplaceID,
			Locale:        cfg.EbayLocale,
			Conditions:    cfg.EbayConditions,
		})
	}
	if cfg.HasFindingCredentials() {
		secondary = finding.NewClient(logger.L(), exec, finding.Config{
			BaseURL:  cfg.EbayFindingURL,
			AppID:    cfg.EbayAppID,
			GlobalID: cfg.EbayGlobalID,
		})
	}

	engine := search.New(logger.L(), primary, secondary, cfg.Engine, cfg.PageSize, cfg.Pages)
	if err := engine.Validate(ctx); err != nil {
		logg.Errorw("search.validation_failed", "engine", cfg.Engine, "error", err)
		return 1
	}

	// --- Notifiers ---
	var notifiers []publisher.Notifier
	if cfg.NATSURL != "" {
		np, err := publisher.ConnectNATS(cfg.NATSURL, cfg.ServiceName)
		if err != nil {
			logg.Warnw("nats unavailable, events disabled", "error", err)
		} else {
			notifiers = append(notifiers, np)
		}
	}
	if cfg.RabbitMQURL != "" {
		rp, err := publisher.ConnectRabbit(cfg.RabbitMQURL, cfg.RabbitMQExchange, cfg.ServiceName, logger.L())
		if err != nil {
			logg.Warnw("rabbitmq unavailable, events disabled", "error", err)
		} else {
			notifiers = append(notifiers, rp)
		}
	}
	multi := publisher.NewMulti(logger.L(), notifiers...)
	defer multi.Close()
	var pub jobs.Publisher
	if multi.Len() > 0 {
		pub = multi
	}

	// --- Metrics / health server ---
	var app *fiber.App
	if cfg.MetricsPort > 0 {
		app = fiber.New(fiber.Config{DisableStartupMessage: true})
		api.RegisterRoutes(app, map[string]api.HealthChecker{"store": st})
		go func() {
			logg.Infof("metrics listening on :%d", cfg.MetricsPort)
			if err := app.Listen(fmt.Sprintf(":%d", cfg.MetricsPort)); err != nil {
				logg.Warnw("fiber.listen_failed", "error", err)
			}
		}()
	}

	// --- Sweeper ---
	schemas := catalog.Schemas(cfg.CatalogTables)
	inspector := catalog.NewPGInspector(st.PG)
	open := func(ctx context.Context, game model.Game) (jobs.Catalog, error) {
		schema, ok := schemas[game]
		if !ok {
			return nil, fmt.Errorf("no catalog schema for game %q", game)
		}
		it, err := catalog.NewIterator(ctx, st.PG, inspector, schema, cfg.ChunkSize, logger.L())
		if err != nil {
			return nil, err
		}
		return it, nil
	}
	sweeper := jobs.NewSweeper(logger.L(), jobs.Config{
		Concurrency:    cfg.Concurrency,
		Limit:          cfg.Limit,
		ProgressEvery:  cfg.ProgressEvery,
		InterGamePause: cfg.InterGamePause,
	}, open, engine, writer, pub)

	logg.Infow("sweep starting",
		"games", cfg.Games,
		"engine", cfg.Engine,
		"rps", cfg.RPS,
		"concurrency", cfg.Concurrency,
		"interval", cfg.Interval)

	runErr := sweeper.Start(ctx, cfg.Interval, cfg.Games)

	if app != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logg.Warnw("fiber.shutdown_failed", "error", err)
		}
	}

	switch {
	case runErr == nil:
		logg.Info("price-sweeper finished")
		return 0
	case errors.Is(runErr, context.Canceled):
		logg.Info("price-sweeper interrupted")
		return 0
	default:
		logg.Errorw("price-sweeper failed", "error", runErr)
		return 1
	}
}

// mergeSecretCredentials fills credentials missing from the environment
// with the ones stored under cfg.SecretName.
func mergeSecretCredentials(ctx context.Context, cfg *config.Config) error {
	provider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
	if err != nil {
		return err
	}
	resolver := internalsecrets.NewResolver(logger.L(), provider, secrets.NewCache[internalsecrets.Credentials](time.Hour))
	fromSecret, err := resolver.Resolve(ctx, cfg.SecretName)
	if err != nil {
		return err
	}

	merged := internalsecrets.Credentials{
		ClientID:     cfg.EbayClientID,
		ClientSecret: cfg.EbayClientSecret,
		AppID:        cfg.EbayAppID,
	}.Merge(fromSecret)
	cfg.EbayClientID = merged.ClientID
	cfg.EbayClientSecret = merged.ClientSecret
	cfg.EbayAppID = merged.AppID

	logger.L().Info("config.credentials_merged",
		zap.Bool("browse", merged.HasBrowse()),
		zap.Bool("finding", merged.HasFinding()))
	return nil
}
