package model

import (
	"fmt"
	"strings"
)

// Game identifies one of the trading-card catalogs that share the pricing pipeline.
type Game string

const (
	GamePokemon Game = "pokemon"
	GameYugioh  Game = "ygo"
	GameMagic   Game = "mtg"
)

// AllGames lists every supported game in sweep order.
var AllGames = []Game{GamePokemon, GameYugioh, GameMagic}

// ParseGames resolves the -game flag value. "all" expands to AllGames.
func ParseGames(s string) ([]Game, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return append([]Game(nil), AllGames...), nil
	case string(GamePokemon):
		return []Game{GamePokemon}, nil
	case string(GameYugioh), "yugioh":
		return []Game{GameYugioh}, nil
	case string(GameMagic), "magic":
		return []Game{GameMagic}, nil
	default:
		return nil, fmt.Errorf("unknown game %q (want pokemon|ygo|mtg|all)", s)
	}
}

// Label is the human-readable name used in logs.
func (g Game) Label() string {
	switch g {
	case GamePokemon:
		return "Pokemon"
	case GameYugioh:
		return "Yu-Gi-Oh"
	case GameMagic:
		return "Magic: The Gathering"
	default:
		return string(g)
	}
}
