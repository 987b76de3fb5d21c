package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Checker-Finance/tcg-pricing/internal/catalog"
	"github.com/Checker-Finance/tcg-pricing/internal/search"
	"github.com/Checker-Finance/tcg-pricing/internal/store"
	pkgconfig "github.com/Checker-Finance/tcg-pricing/pkg/config"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// Config holds the runtime configuration for the price sweeper.
type Config struct {
	ServiceName string
	Env         string
	LogLevel    string
	LogFile     string
	DatabaseURL string
	RedisAddr   string
	RedisDB     int
	NATSURL     string
	RabbitMQURL string
	// RabbitMQExchange is empty for the default exchange.
	RabbitMQExchange string
	MetricsPort      int
	AWSRegion        string
	// SecretName, when set, names an AWS Secrets Manager document holding
	// marketplace credentials that fill blanks left by the environment.
	SecretName string

	// Marketplace credentials and endpoints.
	EbayClientID      string
	EbayClientSecret  string
	EbayAppID         string
	EbayMarketplaceID string
	EbayGlobalID      string
	EbayLocale        string
	EbayConditions    []string
	EbayAPIBaseURL    string
	EbayAuthBaseURL   string
	EbayFindingURL    string

	// Sweep tuning.
	Games          []model.Game
	Engine         search.Mode
	Limit          int
	Concurrency    int
	RPS            float64
	Pages          int
	PageSize       int
	ProgressEvery  int
	InterGamePause time.Duration
	Interval       time.Duration
	MaxRetries     int
	ChunkSize      int
	AutoMigrate    bool

	CatalogTables catalog.TableNames
	PriceTables   store.PriceTables

	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration
}

// Load loads configuration from environment variables and optional .env file.
func Load() *Config {
	_ = godotenv.Load()

	ct := catalog.DefaultTableNames()
	pt := store.DefaultPriceTables()

	cfg := &Config{
		ServiceName:       pkgconfig.GetEnv("SERVICE_NAME", "price-sweeper"),
		Env:               pkgconfig.GetEnv("ENV", "dev"),
		LogLevel:          pkgconfig.GetEnv("LOG_LEVEL", "info"),
		LogFile:           pkgconfig.GetEnv("LOG_FILE", ""),
		DatabaseURL:       pkgconfig.GetEnv("DATABASE_URL", ""),
		RedisAddr:         pkgconfig.GetEnv("REDIS_ADDR", ""),
		RedisDB:           pkgconfig.GetEnvInt("REDIS_DB", 0),
		NATSURL:           pkgconfig.GetEnv("NATS_URL", ""),
		RabbitMQURL:       pkgconfig.GetEnv("RABBITMQ_URL", ""),
		RabbitMQExchange:  pkgconfig.GetEnv("RABBITMQ_EXCHANGE", ""),
		MetricsPort:       pkgconfig.GetEnvInt("METRICS_PORT", 0),
		AWSRegion:         pkgconfig.GetEnv("AWS_REGION", "us-east-2"),
		SecretName:        pkgconfig.GetEnv("PRICING_SECRET_NAME", ""),
		EbayClientID:      pkgconfig.GetEnv("EBAY_CLIENT_ID", ""),
		EbayClientSecret:  pkgconfig.GetEnv("EBAY_CLIENT_SECRET", ""),
		EbayAppID:         pkgconfig.GetEnv("EBAY_APP_ID", ""),
		EbayMarketplaceID: pkgconfig.GetEnv("EBAY_MARKETPLACE_ID", "EBAY_US"),
		EbayGlobalID:      pkgconfig.GetEnv("EBAY_GLOBAL_ID", "EBAY-US"),
		EbayLocale:        pkgconfig.GetEnv("EBAY_LOCALE", "en-US"),
		EbayConditions:    pkgconfig.GetEnvList("EBAY_CONDITIONS", nil),
		EbayAPIBaseURL:    pkgconfig.GetEnv("EBAY_API_BASE_URL", "https://api.ebay.com"),
		EbayAuthBaseURL:   pkgconfig.GetEnv("EBAY_AUTH_BASE_URL", "https://api.ebay.com"),
		EbayFindingURL:    pkgconfig.GetEnv("EBAY_FINDING_BASE_URL", "https://svcs.ebay.com"),
		Games:             append([]model.Game(nil), model.AllGames...),
		Engine:            search.ModeAuto,
		Limit:             pkgconfig.GetEnvInt("PRICING_LIMIT", 0),
		Concurrency:       pkgconfig.GetEnvInt("PRICING_CONCURRENCY", 1),
		RPS:               pkgconfig.GetEnvFloat("PRICING_RPS", 0.5),
		Pages:             pkgconfig.GetEnvInt("PRICING_PAGES", 2),
		PageSize:          pkgconfig.GetEnvInt("PRICING_PAGE_SIZE", 50),
		ProgressEvery:     pkgconfig.GetEnvInt("PRICING_PROGRESS_EVERY", 25),
		InterGamePause:    pkgconfig.GetEnvDuration("PRICING_INTER_GAME_PAUSE", 5*time.Second),
		Interval:          pkgconfig.GetEnvDuration("PRICING_INTERVAL", 0),
		MaxRetries:        pkgconfig.GetEnvInt("PRICING_MAX_RETRIES", 3),
		ChunkSize:         pkgconfig.GetEnvInt("PRICING_CHUNK_SIZE", catalog.DefaultChunkSize),
		AutoMigrate:       pkgconfig.GetEnvBool("PRICING_AUTO_MIGRATE", false),
		CatalogTables: catalog.TableNames{
			PokemonCards: pkgconfig.GetEnv("POKEMON_CARDS_TABLE", ct.PokemonCards),
			PokemonSets:  pkgconfig.GetEnv("POKEMON_SETS_TABLE", ct.PokemonSets),
			YGOPrints:    pkgconfig.GetEnv("YGO_CARD_SETS_TABLE", ct.YGOPrints),
			YGOCards:     pkgconfig.GetEnv("YGO_CARDS_TABLE", ct.YGOCards),
			MTGCards:     pkgconfig.GetEnv("MTG_CARDS_TABLE", ct.MTGCards),
			MTGSets:      pkgconfig.GetEnv("MTG_SETS_TABLE", ct.MTGSets),
		},
		PriceTables: store.PriceTables{
			model.GamePokemon: pkgconfig.GetEnv("POKEMON_PRICES_TABLE", pt[model.GamePokemon]),
			model.GameYugioh:  pkgconfig.GetEnv("YGO_PRICES_TABLE", pt[model.GameYugioh]),
			model.GameMagic:   pkgconfig.GetEnv("MTG_PRICES_TABLE", pt[model.GameMagic]),
		},
		PGMaxConns:          pkgconfig.GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          pkgconfig.GetEnvInt("PG_MIN_CONNS", 1),
		PGMaxConnLifetime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   pkgconfig.GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: pkgconfig.GetEnvDuration("PG_HEALTH_CHECK_PERIOD", 1*time.Minute),
	}
	return cfg
}

// ApplyFlags parses command-line flags over the environment values.
func (c *Config) ApplyFlags(name string, args []string) error {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	game := fs.String("game", "all", "catalog to price: pokemon|ygo|mtg|all")
	engine := fs.String("engine", string(c.Engine), "listing source: auto|browse|finding")
	fs.IntVar(&c.Limit, "limit", c.Limit, "max items per game (0 = no limit)")
	fs.IntVar(&c.Concurrency, "concurrency", c.Concurrency, "items priced in parallel")
	fs.Float64Var(&c.RPS, "rps", c.RPS, "requests per second per marketplace API")
	fs.IntVar(&c.Pages, "pages", c.Pages, "max result pages per search")
	fs.IntVar(&c.PageSize, "per-page", c.PageSize, "results per page")
	fs.DurationVar(&c.Interval, "interval", c.Interval, "re-run the sweep every interval (0 = run once)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	games, err := model.ParseGames(*game)
	if err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	c.Games = games

	mode, err := search.ParseMode(*engine)
	if err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	c.Engine = mode
	return nil
}

// HasBrowseCredentials reports whether the primary source can authenticate.
func (c *Config) HasBrowseCredentials() bool {
	return c.EbayClientID != "" && c.EbayClientSecret != ""
}

// HasFindingCredentials reports whether the secondary source can authenticate.
func (c *Config) HasFindingCredentials() bool {
	return c.EbayAppID != ""
}

// ValidationError lists every fatal configuration problem found.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err is a configuration error.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks the configuration before any work starts.
func (c *Config) Validate() error {
	var problems []string
	if c.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}
	switch c.Engine {
	case search.ModeBrowse:
		if !c.HasBrowseCredentials() {
			problems = append(problems, "engine browse requires EBAY_CLIENT_ID and EBAY_CLIENT_SECRET")
		}
	case search.ModeFinding:
		if !c.HasFindingCredentials() {
			problems = append(problems, "engine finding requires EBAY_APP_ID")
		}
	case search.ModeAuto:
		if !c.HasBrowseCredentials() && !c.HasFindingCredentials() {
			problems = append(problems, "no marketplace credentials configured")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown engine %q", c.Engine))
	}
	if len(c.Games) == 0 {
		problems = append(problems, "no games selected")
	}
	if c.RPS <= 0 {
		problems = append(problems, "rps must be positive")
	}
	if c.Pages < 1 {
		problems = append(problems, "pages must be at least 1")
	}
	if c.PageSize < 1 {
		problems = append(problems, "per-page must be at least 1")
	}
	if c.Concurrency < 1 {
		problems = append(problems, "concurrency must be at least 1")
	}
	if c.Limit < 0 {
		problems = append(problems, "limit must not be negative")
	}
	if c.Interval < 0 {
		problems = append(problems, "interval must not be negative")
	}
	if c.MaxRetries < 0 {
		problems = append(problems, "PRICING_MAX_RETRIES must not be negative")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// PGPool returns the pool knobs for store.Open.
func (c *Config) PGPool() store.PGPoolConfig {
	return store.PGPoolConfig{
		MaxConns:          int32(c.PGMaxConns),
		MinConns:          int32(c.PGMinConns),
		MaxConnLifetime:   c.PGMaxConnLifetime,
		MaxConnIdleTime:   c.PGMaxConnIdleTime,
		HealthCheckPeriod: c.PGHealthCheckPeriod,
	}
}
