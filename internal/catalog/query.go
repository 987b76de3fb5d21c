package catalog

import (
	"strings"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// BuildQuery turns a catalog item into the marketplace search string for
// its game. Missing disambiguators are dropped.
func BuildQuery(item model.CatalogItem) string {
	parts := []string{quoted(item.Name)}
	switch item.Game {
	case model.GamePokemon:
		parts = append(parts, item.Attr(model.FieldSetName))
		num := item.Attr(model.FieldNumber)
		if num == "" {
			num = afterSeparator(item.ID)
		}
		if num != "" {
			parts = append(parts, "#"+num)
		}
		parts = append(parts, "Pokemon TCG")
	case model.GameYugioh:
		switch {
		case item.Attr(model.FieldSetCode) != "":
			parts = append(parts, strings.ToUpper(item.Attr(model.FieldSetCode)))
		case item.Attr(model.FieldSetName) != "":
			parts = append(parts, item.Attr(model.FieldSetName))
		}
		parts = append(parts, "Yu-Gi-Oh")
	case model.GameMagic:
		switch {
		case item.Attr(model.FieldSetName) != "":
			parts = append(parts, item.Attr(model.FieldSetName))
		case item.Attr(model.FieldSetCode) != "":
			parts = append(parts, strings.ToUpper(item.Attr(model.FieldSetCode)))
		}
		parts = append(parts, "MTG")
	}
	return collapse(strings.Join(parts, " "))
}

func quoted(name string) string {
	name = collapse(strings.ReplaceAll(name, `"`, ""))
	if name == "" {
		return ""
	}
	return `"` + name + `"`
}

// afterSeparator returns what follows the first '-' in id ("swsh1-1" -> "1").
func afterSeparator(id string) string {
	_, rest, ok := strings.Cut(id, "-")
	if !ok {
		return ""
	}
	return strings.TrimSpace(rest)
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
