package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// Executor is the write side of pgxpool.Pool.
type Executor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type keyColumn struct {
	name    string
	sqlType string
}

// priceKeys mirrors each catalog's primary key in its price table.
var priceKeys = map[model.Game][]keyColumn{
	model.GamePokemon: {{"card_id", "text"}},
	model.GameYugioh:  {{"card_id", "bigint"}, {"set_code", "text"}},
	model.GameMagic:   {{"card_id", "uuid"}},
}

// PriceTables maps each game to its summary table.
type PriceTables map[model.Game]string

// DefaultPriceTables returns {game}_card_prices for every game.
func DefaultPriceTables() PriceTables {
	t := PriceTables{}
	for _, g := range model.AllGames {
		t[g] = string(g) + "_card_prices"
	}
	return t
}

// PriceWriter upserts one summary row per catalog item.
type PriceWriter struct {
	db     Executor
	tables PriceTables
	logger *zap.Logger
	upsert map[model.Game]string
}

func NewPriceWriter(db Executor, tables PriceTables, logger *zap.Logger) *PriceWriter {
	if tables == nil {
		tables = DefaultPriceTables()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &PriceWriter{db: db, tables: tables, logger: logger, upsert: map[model.Game]string{}}
	for g, table := range tables {
		if keys, ok := priceKeys[g]; ok {
			w.upsert[g] = upsertSQL(table, keys)
		}
	}
	return w
}

func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func upsertSQL(table string, keys []keyColumn) string {
	cols := make([]string, 0, len(keys)+7)
	for _, k := range keys {
		cols = append(cols, ident(k.name))
	}
	keyList := strings.Join(cols, ", ")
	cols = append(cols, "currency", "low", "median", "high", "sample_count", "method", "query")

	params := make([]string, len(cols))
	for i := range cols {
		params[i] = fmt.Sprintf("$%d", i+1)
	}

	return fmt.Sprintf(`
		INSERT INTO %s (%s, last_run, updated_at)
		VALUES (%s, now(), now())
		ON CONFLICT (%s)
		DO UPDATE SET
			currency = EXCLUDED.currency,
			low = EXCLUDED.low,
			median = EXCLUDED.median,
			high = EXCLUDED.high,
			sample_count = EXCLUDED.sample_count,
			method = EXCLUDED.method,
			query = EXCLUDED.query,
			last_run = EXCLUDED.last_run,
			updated_at = now();
	`, ident(table), strings.Join(cols, ", "), strings.Join(params, ", "), keyList)
}

// Upsert writes s for the item identified by key. Re-running with the same
// inputs rewrites the same row.
func (w *PriceWriter) Upsert(ctx context.Context, game model.Game, key model.ItemKey, s model.PriceSummary) error {
	query, ok := w.upsert[game]
	if !ok {
		return fmt.Errorf("store: no price table for game %q", game)
	}
	if want := len(priceKeys[game]); len(key) != want {
		return fmt.Errorf("store: %s key has %d parts, want %d", game, len(key), want)
	}
	if err := checkSummary(s); err != nil {
		return err
	}
	if s.SampleCount == 0 {
		s = model.EmptySummary(s.Query)
	}

	args := make([]any, 0, len(key)+7)
	args = append(args, key...)
	args = append(args, s.Currency, s.Low, s.Median, s.High, s.SampleCount, s.Method, s.Query)

	if _, err := w.db.Exec(ctx, query, args...); err != nil {
		w.logger.Error("store.pg.upsert_price_failed",
			zap.String("game", string(game)),
			zap.Stringer("key", key),
			zap.Error(err))
		return fmt.Errorf("upsert %s price %s: %w", game, key, err)
	}
	return nil
}

func checkSummary(s model.PriceSummary) error {
	if s.SampleCount < 0 {
		return fmt.Errorf("store: negative sample count %d", s.SampleCount)
	}
	if s.SampleCount == 0 {
		return nil
	}
	if !s.Low.Valid || !s.Median.Valid || !s.High.Valid {
		return fmt.Errorf("store: priced summary with missing low/median/high")
	}
	if s.Low.Decimal.GreaterThan(s.Median.Decimal) || s.Median.Decimal.GreaterThan(s.High.Decimal) {
		return fmt.Errorf("store: summary out of order (low=%s median=%s high=%s)",
			s.Low.Decimal, s.Median.Decimal, s.High.Decimal)
	}
	return nil
}

// EnsureTables creates missing price tables. Existing tables are untouched.
func (w *PriceWriter) EnsureTables(ctx context.Context) error {
	for _, g := range model.AllGames {
		table, ok := w.tables[g]
		if !ok {
			continue
		}
		if _, err := w.db.Exec(ctx, createTableSQL(table, priceKeys[g])); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
		w.logger.Info("store.pg.table_ready", zap.String("table", table))
	}
	return nil
}

func createTableSQL(table string, keys []keyColumn) string {
	var b strings.Builder
	names := make([]string, len(keys))
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", ident(table))
	for i, k := range keys {
		names[i] = ident(k.name)
		fmt.Fprintf(&b, "\t%s %s NOT NULL,\n", names[i], k.sqlType)
	}
	b.WriteString(`	currency text NOT NULL DEFAULT 'USD',
	low numeric(12,2),
	median numeric(12,2),
	high numeric(12,2),
	sample_count integer NOT NULL DEFAULT 0,
	method text NOT NULL,
	query text,
	last_run timestamptz,
	updated_at timestamptz NOT NULL DEFAULT now(),
`)
	fmt.Fprintf(&b, "\tPRIMARY KEY (%s)\n)", strings.Join(names, ", "))
	return b.String()
}
