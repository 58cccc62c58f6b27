package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewWithRegistry(reg)

	r.RecordRun("GME", "ok")
	r.RecordRun("GME", "ok")
	r.RecordRun("GME", "error")
	r.RecordError("fetch")
	r.RecordMissingWindows("GME", "AMC", 3)
	r.RecordEntropy("GME", 1.25)
	r.RecordLatency("analysis", 0.2)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("GME", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.errorsTotal.WithLabelValues("fetch")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.missingWindows.WithLabelValues("GME", "AMC")))
	assert.Equal(t, 1.25, testutil.ToFloat64(r.lastEntropy.WithLabelValues("GME")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.latency))
}
