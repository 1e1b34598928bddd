package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := New(reg)

	r.RecordPrediction("dnn", "buy")
	r.RecordPrediction("dnn", "buy")
	r.RecordTrade("sell")
	r.RecordError("invalid_price")
	r.RecordEquity("a1", 1234.5)
	r.RecordLatency("evaluate", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.predictions.WithLabelValues("dnn", "buy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.trades.WithLabelValues("sell")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("invalid_price")))
	assert.Equal(t, 1234.5, testutil.ToFloat64(r.equity.WithLabelValues("a1")))

	n, err := testutil.GatherAndCount(reg, "finagent_operation_duration_seconds")
	assert.NoError(t, err)
	assert.Equal(t, 1, n)
}
