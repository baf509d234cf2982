package prom

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spektr-org/dashspec/metrics"
)

func counterValue(t *testing.T, v *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, v.WithLabelValues(labels...).Write(m))
	require.NotNil(t, m.GetCounter())
	return m.GetCounter().GetValue()
}

func histogramCount(t *testing.T, v *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	require.True(t, ok)
	require.NoError(t, obs.Write(m))
	require.NotNil(t, m.GetHistogram())
	return m.GetHistogram().GetSampleCount()
}

func TestBackendThroughMetricsPackage(t *testing.T) {
	b, err := NewBackend("")
	require.NoError(t, err)

	metrics.SetBackend(b)
	defer metrics.SetBackend(nil)

	metrics.RecordStep("sales", "page", nil, 20*time.Millisecond)
	metrics.RecordStep("sales", "page", errors.New("boom"), time.Millisecond)
	metrics.RecordStep("sales", "page", nil, time.Millisecond)
	metrics.RecordRows("sales", "kept", 300)
	metrics.RecordRows("sales", "kept", 0)
	metrics.RecordViolation("DUPLICATE_ID", "ERROR")

	assert.Equal(t, 2.0, counterValue(t, b.stepCounter, "sales", "page", "success"))
	assert.Equal(t, 1.0, counterValue(t, b.stepCounter, "sales", "page", "failure"))
	assert.Equal(t, uint64(2), histogramCount(t, b.stepDuration, "sales", "page", "success"))
	assert.Equal(t, 300.0, counterValue(t, b.rowCounter, "sales", "kept"))
	assert.Equal(t, 1.0, counterValue(t, b.violationCount, "DUPLICATE_ID", "ERROR"))

	// Unknown names are ignored.
	b.IncCounter("other_total", 1, nil)
	b.ObserveHistogram("other_seconds", 1, nil)

	assert.NoError(t, metrics.Flush())
}

func TestFlushWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dashspec.prom")
	b, err := NewBackend(path)
	require.NoError(t, err)

	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"dashboard": "d", "kind": "resolved"})
	require.NoError(t, b.Flush())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `dashspec_rows_total{dashboard="d",kind="resolved"} 5`))
}
