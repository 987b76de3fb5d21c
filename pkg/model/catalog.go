package model

import (
	"fmt"
	"strings"
)

// Disambiguator field names shared by catalog schemas and query builders.
const (
	FieldSetName  = "set_name"
	FieldSetCode  = "set_code"
	FieldNumber   = "number"
	FieldRarity   = "rarity"
	FieldLanguage = "language"
)

// ItemKey holds the primary key values of a catalog row, in key column order.
// Values are string, int64 or uuid.UUID depending on the game.
type ItemKey []any

// String renders the key for logs and event payloads.
func (k ItemKey) String() string {
	parts := make([]string, len(k))
	for i, v := range k {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, "/")
}

// CatalogItem is the minimal projection of a catalog row the pricer needs.
type CatalogItem struct {
	Game Game
	Key  ItemKey
	// ID is the textual primary identifier (first key column).
	ID   string
	Name string
	// Disambiguators maps field name to value; nil when the column is absent or NULL.
	Disambiguators map[string]*string
}

// Attr returns the trimmed disambiguator value or "" when missing.
func (c CatalogItem) Attr(field string) string {
	if c.Disambiguators == nil {
		return ""
	}
	if v := c.Disambiguators[field]; v != nil {
		return strings.TrimSpace(*v)
	}
	return ""
}
