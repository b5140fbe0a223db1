package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveRequest(t *testing.T) {
	ObserveRequest("metrics-test", "public", 200, 15*time.Millisecond)
	ObserveRequest("metrics-test", "public", 200, 25*time.Millisecond)

	got := testutil.ToFloat64(requestTotalMetrics.WithLabelValues("metrics-test", "public", "200"))
	assert.Equal(t, float64(2), got)
}

func TestObserveError(t *testing.T) {
	ObserveError("metrics-test", "RATE_LIMIT")
	assert.Equal(t, float64(1), testutil.ToFloat64(RequestErrorCount("metrics-test", "RATE_LIMIT")))
}

func TestSetUsedWeight(t *testing.T) {
	SetUsedWeight("metrics-test", 1100)
	assert.Equal(t, float64(1100), testutil.ToFloat64(usedWeightMetrics.WithLabelValues("metrics-test")))
}

func TestIncMarketsFetch(t *testing.T) {
	before := testutil.ToFloat64(MarketsFetchCount("metrics-test"))
	IncMarketsFetch("metrics-test")
	assert.Equal(t, before+1, testutil.ToFloat64(MarketsFetchCount("metrics-test")))
}
