package model

import (
	"github.com/shopspring/decimal"
)

const (
	// CurrencyUSD is the only currency summaries are computed in.
	CurrencyUSD = "USD"
	// MethodActiveListings marks summaries derived from live marketplace listings.
	MethodActiveListings = "active_listings"
)

// PriceObservation is one listing's advertised price and shipping.
type PriceObservation struct {
	Price    decimal.Decimal `json:"price"`
	Shipping decimal.Decimal `json:"shipping"`
}

// Landed returns price plus shipping.
func (o PriceObservation) Landed() decimal.Decimal {
	return o.Price.Add(o.Shipping)
}

// LandedPrices converts observations into the float slice the summarizer consumes.
func LandedPrices(obs []PriceObservation) []float64 {
	out := make([]float64, 0, len(obs))
	for _, o := range obs {
		out = append(out, o.Landed().InexactFloat64())
	}
	return out
}

// PriceSummary is the persisted per-item estimate. Low/Median/High are NULL
// when SampleCount is zero.
type PriceSummary struct {
	Currency    string              `json:"currency"`
	Low         decimal.NullDecimal `json:"low"`
	Median      decimal.NullDecimal `json:"median"`
	High        decimal.NullDecimal `json:"high"`
	SampleCount int                 `json:"sample_count"`
	Method      string              `json:"method"`
	Query       string              `json:"query"`
}

// EmptySummary records a sweep that found no listings for query.
func EmptySummary(query string) PriceSummary {
	return PriceSummary{
		Currency: CurrencyUSD,
		Method:   MethodActiveListings,
		Query:    query,
	}
}

// Priced reports whether the summary carries an estimate.
func (s PriceSummary) Priced() bool {
	return s.SampleCount > 0 && s.Low.Valid && s.Median.Valid && s.High.Valid
}
