package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Checker-Finance/tcg-pricing/internal/search"
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"DATABASE_URL", "EBAY_CLIENT_ID", "EBAY_CLIENT_SECRET", "EBAY_APP_ID",
		"PRICING_RPS", "PRICING_PAGES", "PRICING_CONCURRENCY", "PRICING_INTER_GAME_PAUSE",
		"EBAY_CONDITIONS", "POKEMON_PRICES_TABLE", "YGO_CARDS_TABLE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	assert.Equal(t, 0.5, cfg.RPS)
	assert.Equal(t, 2, cfg.Pages)
	assert.Equal(t, 50, cfg.PageSize)
	assert.Equal(t, 1, cfg.Concurrency)
	assert.Equal(t, 25, cfg.ProgressEvery)
	assert.Equal(t, 5*time.Second, cfg.InterGamePause)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, search.ModeAuto, cfg.Engine)
	assert.Equal(t, model.AllGames, cfg.Games)
	assert.Equal(t, "EBAY_US", cfg.EbayMarketplaceID)
	assert.Equal(t, "pokemon_card_prices", cfg.PriceTables[model.GamePokemon])
	assert.Equal(t, "ygo_cards", cfg.CatalogTables.YGOCards)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PRICING_RPS", "2.5")
	t.Setenv("PRICING_INTER_GAME_PAUSE", "250ms")
	t.Setenv("EBAY_CONDITIONS", "NEW, USED")
	t.Setenv("POKEMON_PRICES_TABLE", "pricing.pkmn")
	t.Setenv("YGO_CARDS_TABLE", "ygo_card_names")

	cfg := Load()
	assert.Equal(t, 2.5, cfg.RPS)
	assert.Equal(t, 250*time.Millisecond, cfg.InterGamePause)
	assert.Equal(t, []string{"NEW", "USED"}, cfg.EbayConditions)
	assert.Equal(t, "pricing.pkmn", cfg.PriceTables[model.GamePokemon])
	assert.Equal(t, "ygo_card_names", cfg.CatalogTables.YGOCards)
}

func TestApplyFlags(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	err := cfg.ApplyFlags("price-sweeper", []string{
		"-game", "ygo", "-limit", "10", "-concurrency", "3", "-rps", "1",
		"-pages", "4", "-per-page", "100", "-engine", "finding", "-interval", "6h",
	})
	require.NoError(t, err)
	assert.Equal(t, []model.Game{model.GameYugioh}, cfg.Games)
	assert.Equal(t, 10, cfg.Limit)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 1.0, cfg.RPS)
	assert.Equal(t, 4, cfg.Pages)
	assert.Equal(t, 100, cfg.PageSize)
	assert.Equal(t, search.ModeFinding, cfg.Engine)
	assert.Equal(t, 6*time.Hour, cfg.Interval)
}

func TestApplyFlags_InvalidValues(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	err := cfg.ApplyFlags("price-sweeper", []string{"-game", "chess"})
	assert.True(t, IsValidationError(err))

	cfg = Load()
	err = cfg.ApplyFlags("price-sweeper", []string{"-engine", "scrape"})
	assert.True(t, IsValidationError(err))
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	cfg := Load()

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL is required")
	assert.Contains(t, err.Error(), "no marketplace credentials configured")

	cfg.DatabaseURL = "postgres://localhost/tcg"
	cfg.EbayAppID = "app"
	assert.NoError(t, cfg.Validate())

	cfg.Engine = search.ModeBrowse
	assert.ErrorContains(t, cfg.Validate(), "EBAY_CLIENT_ID")

	cfg.EbayClientID, cfg.EbayClientSecret = "id", "secret"
	assert.NoError(t, cfg.Validate())

	cfg.Engine = search.ModeFinding
	cfg.EbayAppID = ""
	assert.ErrorContains(t, cfg.Validate(), "EBAY_APP_ID")

	cfg.EbayAppID = "app"
	cfg.RPS = 0
	cfg.Concurrency = 0
	err = cfg.Validate()
	assert.True(t, IsValidationError(err))
	assert.Contains(t, err.Error(), "rps must be positive")
	assert.Contains(t, err.Error(), "concurrency must be at least 1")
}

func TestPGPool(t *testing.T) {
	clearEnv(t)
	cfg := Load()
	p := cfg.PGPool()
	assert.Equal(t, int32(10), p.MaxConns)
	assert.Equal(t, 30*time.Minute, p.MaxConnLifetime)
}
