package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	before := testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("pokemon", "priced"))
	IncItem("pokemon", "priced")
	assert.InDelta(t, before+1, testutil.ToFloat64(ItemsProcessedTotal.WithLabelValues("pokemon", "priced")), 1e-9)

	before = testutil.ToFloat64(SearchFallbacksTotal.WithLabelValues("empty"))
	IncFallback("empty")
	assert.InDelta(t, before+1, testutil.ToFloat64(SearchFallbacksTotal.WithLabelValues("empty")), 1e-9)
}

func TestObserveDuration(t *testing.T) {
	ObserveDuration(SweepDuration, time.Now().Add(-time.Second), "mtg")
	assert.Equal(t, 1, testutil.CollectAndCount(SweepDuration))
}
