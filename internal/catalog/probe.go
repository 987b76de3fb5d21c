package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// SchemaError means a catalog lacks something the pricer cannot do without
// (the table, a key column, or the display name).
type SchemaError struct {
	Table  string
	Column string
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("catalog %s: %s", e.Table, e.Reason)
	}
	return fmt.Sprintf("catalog %s.%s: %s", e.Table, e.Column, e.Reason)
}

// SchemaInspector answers existence questions about the live database.
type SchemaInspector interface {
	TableExists(ctx context.Context, table string) (bool, error)
	ColumnExists(ctx context.Context, table, column string) (bool, error)
}

// PGInspector inspects a Postgres catalog through information_schema.
type PGInspector struct {
	pool *pgxpool.Pool
}

func NewPGInspector(pool *pgxpool.Pool) *PGInspector {
	return &PGInspector{pool: pool}
}

func (i *PGInspector) TableExists(ctx context.Context, table string) (bool, error) {
	var ok bool
	err := i.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, table).Scan(&ok)
	return ok, err
}

func (i *PGInspector) ColumnExists(ctx context.Context, table, column string) (bool, error) {
	schema, name := splitTable(table)
	var ok bool
	err := i.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM information_schema.columns
			WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema())
			  AND table_name = $2
			  AND column_name = $3
		)`, schema, name, column).Scan(&ok)
	return ok, err
}

func splitTable(table string) (schema, name string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

// quoteIdent sanitizes a possibly schema-qualified identifier.
func quoteIdent(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

// Shape records which optional parts of a schema resolved. It is computed
// once per run by Probe and logged so operators can see drift.
type Shape uint16

const (
	ShapeBase    Shape = 0
	ShapeSetName Shape = 1 << (iota - 1)
	ShapeSetCode
	ShapeNumber
	ShapeRarity
	ShapeJoined
)

var shapeNames = []struct {
	bit  Shape
	name string
}{
	{ShapeSetName, "set_name"},
	{ShapeSetCode, "set_code"},
	{ShapeNumber, "number"},
	{ShapeRarity, "rarity"},
	{ShapeJoined, "joined"},
}

func (s Shape) Has(bit Shape) bool { return s&bit != 0 }

func (s Shape) String() string {
	parts := []string{"base"}
	for _, n := range shapeNames {
		if s.Has(n.bit) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "+")
}

func fieldShape(name string) Shape {
	switch name {
	case model.FieldSetName:
		return ShapeSetName
	case model.FieldSetCode:
		return ShapeSetCode
	case model.FieldNumber:
		return ShapeNumber
	case model.FieldRarity:
		return ShapeRarity
	}
	return ShapeBase
}

// resolvedField is a field bound to a concrete source, or nil when absent.
type resolvedField struct {
	name   string
	source *Source
}

// Plan is the fixed query plan for one game.
type Plan struct {
	Schema Schema
	Shape  Shape

	name   resolvedField
	fields []resolvedField
	joins  []*Join
}

// Available reports whether field resolved to a real column.
func (p *Plan) Available(field string) bool {
	for _, f := range p.fields {
		if f.name == field {
			return f.source != nil
		}
	}
	return false
}

// FieldNames lists projected disambiguator names in select order.
func (p *Plan) FieldNames() []string {
	out := make([]string, len(p.fields))
	for i, f := range p.fields {
		out[i] = f.name
	}
	return out
}

// prober memoizes existence checks for the duration of one Probe call.
type prober struct {
	ctx     context.Context
	insp    SchemaInspector
	tables  map[string]bool
	columns map[string]bool
}

func (p *prober) table(name string) (bool, error) {
	if ok, seen := p.tables[name]; seen {
		return ok, nil
	}
	ok, err := p.insp.TableExists(p.ctx, name)
	if err != nil {
		return false, fmt.Errorf("probe table %s: %w", name, err)
	}
	p.tables[name] = ok
	return ok, nil
}

func (p *prober) column(table, column string) (bool, error) {
	key := table + "." + column
	if ok, seen := p.columns[key]; seen {
		return ok, nil
	}
	ok, err := p.insp.ColumnExists(p.ctx, table, column)
	if err != nil {
		return false, fmt.Errorf("probe column %s: %w", key, err)
	}
	p.columns[key] = ok
	return ok, nil
}

func (p *prober) sourceAvailable(base string, src Source) (bool, error) {
	if src.Join == nil {
		return p.column(base, src.Column)
	}
	checks := []func() (bool, error){
		func() (bool, error) { return p.table(src.Join.Table) },
		func() (bool, error) { return p.column(base, src.Join.LocalColumn) },
		func() (bool, error) { return p.column(src.Join.Table, src.Join.RemoteColumn) },
		func() (bool, error) { return p.column(src.Join.Table, src.Column) },
	}
	for _, check := range checks {
		ok, err := check()
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

func (p *prober) resolve(base string, f Field) (resolvedField, error) {
	for i := range f.Sources {
		ok, err := p.sourceAvailable(base, f.Sources[i])
		if err != nil {
			return resolvedField{}, err
		}
		if ok {
			return resolvedField{name: f.Name, source: &f.Sources[i]}, nil
		}
	}
	return resolvedField{name: f.Name}, nil
}

// Probe checks the live catalog against schema once and fixes the query
// shape for the rest of the run. Missing optional fields resolve to NULL;
// missing table, key or name columns yield *SchemaError.
func Probe(ctx context.Context, insp SchemaInspector, schema Schema) (*Plan, error) {
	p := &prober{ctx: ctx, insp: insp, tables: map[string]bool{}, columns: map[string]bool{}}

	ok, err := p.table(schema.Table)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &SchemaError{Table: schema.Table, Reason: "table not found"}
	}
	for _, k := range schema.Keys {
		ok, err := p.column(schema.Table, k.Name)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &SchemaError{Table: schema.Table, Column: k.Name, Reason: "key column not found"}
		}
	}

	plan := &Plan{Schema: schema}
	plan.name, err = p.resolve(schema.Table, schema.Name)
	if err != nil {
		return nil, err
	}
	if plan.name.source == nil {
		return nil, &SchemaError{Table: schema.Table, Column: schema.Name.Name, Reason: "no usable name source"}
	}

	for _, f := range schema.Fields {
		rf, err := p.resolve(schema.Table, f)
		if err != nil {
			return nil, err
		}
		if rf.source == nil && f.Required {
			return nil, &SchemaError{Table: schema.Table, Column: f.Name, Reason: "required field not found"}
		}
		if rf.source != nil {
			plan.Shape |= fieldShape(f.Name)
		}
		plan.fields = append(plan.fields, rf)
	}

	plan.addJoin(plan.name.source.Join)
	for _, f := range plan.fields {
		if f.source != nil {
			plan.addJoin(f.source.Join)
		}
	}
	if len(plan.joins) > 0 {
		plan.Shape |= ShapeJoined
	}
	return plan, nil
}

func (p *Plan) addJoin(j *Join) {
	if j == nil {
		return
	}
	for _, existing := range p.joins {
		if existing == j {
			return
		}
	}
	p.joins = append(p.joins, j)
}

func (p *Plan) joinAlias(j *Join) string {
	for i, existing := range p.joins {
		if existing == j {
			return fmt.Sprintf("j%d", i)
		}
	}
	return "c"
}

func (p *Plan) selectExpr(f resolvedField) string {
	if f.source == nil {
		return "NULL::text AS " + quoteIdent(f.name)
	}
	alias := "c"
	if f.source.Join != nil {
		alias = p.joinAlias(f.source.Join)
	}
	return fmt.Sprintf("%s.%s::text AS %s", alias, quoteIdent(f.source.Column), quoteIdent(f.name))
}

// SQL builds the keyset-paginated select. With after=true the statement
// expects the previous chunk's last key as its first len(Keys) parameters;
// the chunk size is always the final parameter.
func (p *Plan) SQL(after bool) string {
	s := p.Schema
	keyCols := make([]string, len(s.Keys))
	selects := make([]string, 0, len(s.Keys)+1+len(p.fields))
	for i, k := range s.Keys {
		keyCols[i] = "c." + quoteIdent(k.Name)
		selects = append(selects, keyCols[i]+"::text")
	}
	selects = append(selects, p.selectExpr(p.name))
	for _, f := range p.fields {
		selects = append(selects, p.selectExpr(f))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s\nFROM %s c", strings.Join(selects, ", "), quoteIdent(s.Table))
	for i, j := range p.joins {
		kind := "LEFT JOIN"
		if p.name.source.Join == j {
			kind = "JOIN"
		}
		alias := fmt.Sprintf("j%d", i)
		fmt.Fprintf(&b, "\n%s %s %s ON %s.%s = c.%s",
			kind, quoteIdent(j.Table), alias, alias, quoteIdent(j.RemoteColumn), quoteIdent(j.LocalColumn))
	}

	next := 1
	if after {
		params := make([]string, len(s.Keys))
		for i := range s.Keys {
			params[i] = fmt.Sprintf("$%d", next)
			next++
		}
		if len(s.Keys) == 1 {
			fmt.Fprintf(&b, "\nWHERE %s > %s", keyCols[0], params[0])
		} else {
			fmt.Fprintf(&b, "\nWHERE (%s) > (%s)", strings.Join(keyCols, ", "), strings.Join(params, ", "))
		}
	}
	fmt.Fprintf(&b, "\nORDER BY %s\nLIMIT $%d", strings.Join(keyCols, ", "), next)
	return b.String()
}
