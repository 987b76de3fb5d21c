package catalog

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// DefaultChunkSize is the keyset page size used when none is configured.
const DefaultChunkSize = 500

// Querier is the read side of pgxpool.Pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Iterator streams one game's catalog in primary key order.
type Iterator struct {
	q      Querier
	plan   *Plan
	chunk  int
	logger *zap.Logger
}

// NewIterator probes the catalog and returns an iterator bound to the
// resulting plan. A *SchemaError means this game cannot be priced.
func NewIterator(ctx context.Context, q Querier, insp SchemaInspector, schema Schema, chunk int, logger *zap.Logger) (*Iterator, error) {
	plan, err := Probe(ctx, insp, schema)
	if err != nil {
		return nil, err
	}
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	logger.Info("catalog.plan_ready",
		zap.String("game", string(schema.Game)),
		zap.String("table", schema.Table),
		zap.Stringer("shape", plan.Shape),
	)
	return &Iterator{q: q, plan: plan, chunk: chunk, logger: logger}, nil
}

func (it *Iterator) Plan() *Plan { return it.plan }

// Each calls fn for every catalog item in key order, at most limit items
// when limit > 0. Rows of a chunk are fully read before fn runs so no cursor
// stays open while items are priced. It returns the number of items visited.
func (it *Iterator) Each(ctx context.Context, limit int, fn func(context.Context, model.CatalogItem) error) (int, error) {
	var (
		visited int
		last    model.ItemKey
	)
	for {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		size := it.chunk
		if limit > 0 {
			if remaining := limit - visited; remaining < size {
				size = remaining
			}
			if size <= 0 {
				return visited, nil
			}
		}

		items, lastKey, rowCount, err := it.fetch(ctx, last, size)
		if err != nil {
			return visited, err
		}
		for _, item := range items {
			if err := fn(ctx, item); err != nil {
				return visited, err
			}
			visited++
		}
		if rowCount < size {
			return visited, nil
		}
		last = lastKey
	}
}

func (it *Iterator) fetch(ctx context.Context, after model.ItemKey, size int) ([]model.CatalogItem, model.ItemKey, int, error) {
	var args []any
	if after != nil {
		args = append(args, after...)
	}
	args = append(args, size)

	rows, err := it.q.Query(ctx, it.plan.SQL(after != nil), args...)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("query %s: %w", it.plan.Schema.Table, err)
	}
	defer rows.Close()

	keys := it.plan.Schema.Keys
	fields := it.plan.FieldNames()
	vals := make([]pgtype.Text, len(keys)+1+len(fields))
	dest := make([]any, len(vals))
	for i := range vals {
		dest[i] = &vals[i]
	}

	var (
		items []model.CatalogItem
		last  model.ItemKey
		count int
	)
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, 0, fmt.Errorf("scan %s: %w", it.plan.Schema.Table, err)
		}
		count++

		key := make(model.ItemKey, len(keys))
		for i, k := range keys {
			v, err := parseKey(k.Kind, vals[i].String)
			if err != nil {
				return nil, nil, 0, fmt.Errorf("key %s.%s: %w", it.plan.Schema.Table, k.Name, err)
			}
			key[i] = v
		}
		last = key

		name := vals[len(keys)]
		if !name.Valid || name.String == "" {
			it.logger.Warn("catalog.item_without_name",
				zap.String("game", string(it.plan.Schema.Game)),
				zap.Stringer("key", key),
			)
			continue
		}

		disamb := make(map[string]*string, len(fields))
		for i, f := range fields {
			v := vals[len(keys)+1+i]
			if v.Valid {
				s := v.String
				disamb[f] = &s
			} else {
				disamb[f] = nil
			}
		}
		items = append(items, model.CatalogItem{
			Game:           it.plan.Schema.Game,
			Key:            key,
			ID:             vals[0].String,
			Name:           name.String,
			Disambiguators: disamb,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, nil, 0, fmt.Errorf("iterate %s: %w", it.plan.Schema.Table, err)
	}
	return items, last, count, nil
}

func parseKey(kind KeyKind, s string) (any, error) {
	switch kind {
	case KeyInt:
		return strconv.ParseInt(s, 10, 64)
	case KeyUUID:
		return uuid.Parse(s)
	default:
		return s, nil
	}
}
