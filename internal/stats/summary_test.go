package stats

import (
	"math"
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// ─── Empty and degenerate input ──────────────────────────────────────────────

func TestSummarize_EmptyReturnsNil(t *testing.T) {
	assert.Nil(t, Summarize(nil))
	assert.Nil(t, Summarize([]float64{}))
	assert.Nil(t, Summarize([]float64{math.NaN(), math.Inf(1), -1}))
}

func TestSummarize_SingleSample(t *testing.T) {
	s := Summarize([]float64{12.5})
	require.NotNil(t, s)
	assert.True(t, s.Low.Equal(dec("12.5")))
	assert.True(t, s.Median.Equal(dec("12.5")))
	assert.True(t, s.High.Equal(dec("12.5")))
	assert.Equal(t, 1, s.Count)
	assert.Equal(t, 1, s.CountAfterTrim)
}

// ─── Trimming ────────────────────────────────────────────────────────────────

func TestSummarize_SmallSampleIsNotTrimmed(t *testing.T) {
	in := []float64{3, 500, 4, 5, 4.5}
	s := Summarize(in)
	require.NotNil(t, s)
	assert.Equal(t, s.Count, s.CountAfterTrim)
	assert.True(t, s.Low.Equal(dec("3")))
	assert.True(t, s.High.Equal(dec("500")))
	assert.True(t, s.Median.Equal(dec("4.5")))
}

func TestSummarize_TrimsOutlierScenario(t *testing.T) {
	s := Summarize([]float64{4.50, 4.75, 4.60, 4.55, 25.00, 4.65})
	require.NotNil(t, s)
	assert.Equal(t, 6, s.Count)
	assert.Equal(t, 5, s.CountAfterTrim)
	assert.True(t, s.Low.Equal(dec("4.50")), "low=%s", s.Low)
	assert.True(t, s.Median.Equal(dec("4.60")), "median=%s", s.Median)
	assert.True(t, s.High.Equal(dec("4.75")), "high=%s", s.High)
}

func TestSummarize_RoundsToCents(t *testing.T) {
	s := Summarize([]float64{1.004, 1.006, 2.333})
	require.NotNil(t, s)
	assert.Equal(t, "1", s.Low.String())
	assert.Equal(t, "1.01", s.Median.String())
	assert.Equal(t, "2.33", s.High.String())
}

func TestSummarize_DoesNotMutateInput(t *testing.T) {
	in := []float64{9, 1, 5}
	Summarize(in)
	assert.Equal(t, []float64{9, 1, 5}, in)
}

// ─── Properties ──────────────────────────────────────────────────────────────

func randomPrices(r *rand.Rand, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Round(r.Float64()*10000) / 100
		if r.IntN(10) == 0 {
			out[i] *= 20
		}
	}
	return out
}

func TestSummarize_OrderIndependent(t *testing.T) {
	r := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 200; i++ {
		in := randomPrices(r, 1+r.IntN(40))
		want := Summarize(in)

		shuffled := append([]float64(nil), in...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Summarize(shuffled)

		require.NotNil(t, got)
		assert.True(t, want.Low.Equal(got.Low))
		assert.True(t, want.Median.Equal(got.Median))
		assert.True(t, want.High.Equal(got.High))
		assert.Equal(t, want.CountAfterTrim, got.CountAfterTrim)
	}
}

func TestTrim_KeptValuesInsideOriginalFences(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 200; i++ {
		in := randomPrices(r, MinSamplesForTrim+r.IntN(50))
		sort.Float64s(in)
		lo, hi := Fences(in)
		for _, v := range Trim(in) {
			assert.GreaterOrEqual(t, v, lo)
			assert.LessOrEqual(t, v, hi)
		}
	}
}

func TestSummarize_LowMedianHighOrdered(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	for i := 0; i < 200; i++ {
		s := Summarize(randomPrices(r, 1+r.IntN(30)))
		require.NotNil(t, s)
		assert.True(t, s.Low.LessThanOrEqual(s.Median))
		assert.True(t, s.Median.LessThanOrEqual(s.High))
	}
}

func TestSummarize_BelowThresholdKeepsMinMax(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	for i := 0; i < 100; i++ {
		in := randomPrices(r, 1+r.IntN(MinSamplesForTrim-1))
		s := Summarize(in)
		require.NotNil(t, s)
		sorted := append([]float64(nil), in...)
		sort.Float64s(sorted)
		assert.Equal(t, s.Count, s.CountAfterTrim)
		assert.True(t, s.Low.Equal(round(sorted[0])))
		assert.True(t, s.High.Equal(round(sorted[len(sorted)-1])))
	}
}

// ─── Quantile ────────────────────────────────────────────────────────────────

func TestQuantile_Interpolates(t *testing.T) {
	sorted := []float64{4.50, 4.55, 4.60, 4.65, 4.75, 25.00}
	assert.InDelta(t, 4.5625, Quantile(sorted, 0.25), 1e-9)
	assert.InDelta(t, 4.725, Quantile(sorted, 0.75), 1e-9)
	assert.InDelta(t, 4.625, Quantile(sorted, 0.5), 1e-9)
	assert.InDelta(t, 4.50, Quantile(sorted, 0), 1e-9)
	assert.InDelta(t, 25.00, Quantile(sorted, 1), 1e-9)
	assert.True(t, math.IsNaN(Quantile(nil, 0.5)))
}

// ─── Conversion ──────────────────────────────────────────────────────────────

func TestToPriceSummary(t *testing.T) {
	var empty *Summary
	ps := empty.ToPriceSummary("q")
	assert.Zero(t, ps.SampleCount)
	assert.False(t, ps.Median.Valid)

	ps = Summarize([]float64{4.50, 4.75, 4.60, 4.55, 25.00, 4.65}).ToPriceSummary("q")
	assert.Equal(t, 6, ps.SampleCount)
	assert.True(t, ps.Priced())
	assert.Equal(t, "q", ps.Query)
}
