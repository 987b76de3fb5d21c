// Package stats turns noisy listing prices into a robust low/median/high estimate.
package stats

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Checker-Finance/tcg-pricing/pkg/model"
)

const (
	// MinSamplesForTrim is the smallest sample size IQR trimming is applied to.
	MinSamplesForTrim = 6
	// IQRMultiplier sets Tukey's fences at Q1-k·IQR and Q3+k·IQR.
	IQRMultiplier = 1.5
	// MoneyPlaces is the rounding applied to every monetary output.
	MoneyPlaces = 2
)

// Summary is the trimmed estimate for one item.
type Summary struct {
	Low    decimal.Decimal
	Median decimal.Decimal
	High   decimal.Decimal
	// Count is the number of usable input samples before trimming.
	Count int
	// CountAfterTrim is the number of samples inside the fences.
	CountAfterTrim int
}

// Summarize returns nil when no usable prices remain. NaN, infinite and
// negative inputs are discarded before counting. The input is not modified.
func Summarize(prices []float64) *Summary {
	sorted := make([]float64, 0, len(prices))
	for _, p := range prices {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			continue
		}
		sorted = append(sorted, p)
	}
	if len(sorted) == 0 {
		return nil
	}
	sort.Float64s(sorted)

	kept := Trim(sorted)
	if len(kept) == 0 {
		return nil
	}

	return &Summary{
		Low:            round(kept[0]),
		Median:         round(Quantile(kept, 0.5)),
		High:           round(kept[len(kept)-1]),
		Count:          len(sorted),
		CountAfterTrim: len(kept),
	}
}

// Trim drops values outside the IQR fences of sorted. Slices shorter than
// MinSamplesForTrim are returned unchanged.
func Trim(sorted []float64) []float64 {
	if len(sorted) < MinSamplesForTrim {
		return sorted
	}
	lo, hi := Fences(sorted)
	kept := make([]float64, 0, len(sorted))
	for _, v := range sorted {
		if v >= lo && v <= hi {
			kept = append(kept, v)
		}
	}
	return kept
}

// Fences returns [Q1-1.5·IQR, Q3+1.5·IQR] for an ascending slice.
func Fences(sorted []float64) (lo, hi float64) {
	q1 := Quantile(sorted, 0.25)
	q3 := Quantile(sorted, 0.75)
	iqr := q3 - q1
	return q1 - IQRMultiplier*iqr, q3 + IQRMultiplier*iqr
}

// Quantile is the linear-interpolated p-quantile of an ascending slice:
// position (n-1)·p, interpolated between the two bracketing samples.
func Quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	switch {
	case n == 0:
		return math.NaN()
	case n == 1:
		return sorted[0]
	}
	pos := float64(n-1) * p
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo < 0 {
		lo = 0
	}
	if hi >= n {
		hi = n - 1
	}
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(MoneyPlaces)
}

// ToPriceSummary converts the estimate into the persisted record.
// A nil receiver yields the zero-sample record.
func (s *Summary) ToPriceSummary(query string) model.PriceSummary {
	if s == nil {
		return model.EmptySummary(query)
	}
	ps := model.EmptySummary(query)
	ps.Low = decimal.NewNullDecimal(s.Low)
	ps.Median = decimal.NewNullDecimal(s.Median)
	ps.High = decimal.NewNullDecimal(s.High)
	ps.SampleCount = s.Count
	return ps
}
