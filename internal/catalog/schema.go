// Package catalog streams items to price out of three independently evolved
// game catalogs and turns each into a marketplace search string.
package catalog

import (
	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// KeyKind is the Go type a key column is converted to.
type KeyKind int

const (
	KeyText KeyKind = iota
	KeyInt
	KeyUUID
)

// KeyColumn is one primary key column of a catalog table.
type KeyColumn struct {
	Name string
	Kind KeyKind
}

// Join pulls a column from a related table: remote.RemoteColumn = base.LocalColumn.
type Join struct {
	Table        string
	LocalColumn  string
	RemoteColumn string
}

// Source is one place a field may be read from: a base column when Join is
// nil, otherwise a column of the joined table.
type Source struct {
	Column string
	Join   *Join
}

// Field is a projected value with candidate sources tried in order.
type Field struct {
	Name     string
	Sources  []Source
	Required bool
}

// Schema describes what the pricer expects from one game's catalog.
type Schema struct {
	Game   model.Game
	Table  string
	Keys   []KeyColumn
	Name   Field
	Fields []Field
}

// TableNames allows deployments whose catalogs use different table names.
type TableNames struct {
	PokemonCards string
	PokemonSets  string
	YGOPrints    string
	YGOCards     string
	MTGCards     string
	MTGSets      string
}

// DefaultTableNames matches the storefront's migrations.
func DefaultTableNames() TableNames {
	return TableNames{
		PokemonCards: "pokemon_cards",
		PokemonSets:  "pokemon_sets",
		YGOPrints:    "ygo_card_sets",
		YGOCards:     "ygo_cards",
		MTGCards:     "mtg_cards",
		MTGSets:      "mtg_sets",
	}
}

// Schemas returns the catalog description for every game.
func Schemas(t TableNames) map[model.Game]Schema {
	pokemonSets := &Join{Table: t.PokemonSets, LocalColumn: "set_id", RemoteColumn: "id"}
	ygoCards := &Join{Table: t.YGOCards, LocalColumn: "card_id", RemoteColumn: "id"}
	mtgSets := &Join{Table: t.MTGSets, LocalColumn: "set_code", RemoteColumn: "code"}

	return map[model.Game]Schema{
		model.GamePokemon: {
			Game:  model.GamePokemon,
			Table: t.PokemonCards,
			Keys:  []KeyColumn{{Name: "id", Kind: KeyText}},
			Name:  Field{Name: "name", Required: true, Sources: []Source{{Column: "name"}}},
			Fields: []Field{
				{Name: model.FieldSetName, Sources: []Source{{Column: "name", Join: pokemonSets}, {Column: "set_name"}}},
				{Name: model.FieldNumber, Sources: []Source{{Column: "number"}}},
			},
		},
		model.GameYugioh: {
			Game:  model.GameYugioh,
			Table: t.YGOPrints,
			Keys:  []KeyColumn{{Name: "card_id", Kind: KeyInt}, {Name: "set_code", Kind: KeyText}},
			Name:  Field{Name: "name", Required: true, Sources: []Source{{Column: "name", Join: ygoCards}}},
			Fields: []Field{
				{Name: model.FieldSetCode, Sources: []Source{{Column: "set_code"}}},
				{Name: model.FieldSetName, Sources: []Source{{Column: "set_name"}}},
				{Name: model.FieldRarity, Sources: []Source{{Column: "set_rarity"}, {Column: "rarity"}}},
			},
		},
		model.GameMagic: {
			Game:  model.GameMagic,
			Table: t.MTGCards,
			Keys:  []KeyColumn{{Name: "id", Kind: KeyUUID}},
			Name:  Field{Name: "name", Required: true, Sources: []Source{{Column: "name"}}},
			Fields: []Field{
				{Name: model.FieldSetName, Sources: []Source{{Column: "set_name"}, {Column: "name", Join: mtgSets}}},
				{Name: model.FieldSetCode, Sources: []Source{{Column: "set_code"}, {Column: "set"}}},
				{Name: model.FieldNumber, Sources: []Source{{Column: "collector_number"}}},
			},
		},
	}
}
