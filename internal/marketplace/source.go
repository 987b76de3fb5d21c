// Package marketplace defines the contract shared by the listing-price sources.
package marketplace

import (
	"context"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

// MaxSamples caps how many observations one search collects.
const MaxSamples = 1000

// Source fetches active fixed-price listings for a free-text query.
type Source interface {
	Name() string
	Search(ctx context.Context, query string, pageSize, maxPages int) ([]model.PriceObservation, error)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// ClampPageSize bounds a requested page size to what a provider accepts.
func ClampPageSize(size, max int) int {
	if size < 1 {
		return 1
	}
	if size > max {
		return max
	}
	return size
}
