package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	m, err := NewSyncMetrics(registry)
	require.NoError(t, err)

	m.RecordOutcome("created")
	m.RecordOutcome("created")
	m.RecordOutcome("error")
	m.RecordFetchFailure()
	m.ObserveRun(1500 * time.Millisecond)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.recordsTotal.WithLabelValues("created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.recordsTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.fetchFailuresTotal))
	assert.InDelta(t, 1.5, testutil.ToFloat64(m.runDuration), 0.0001)
}

func TestNewSyncMetricsDuplicateRegistration(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := NewSyncMetrics(registry)
	require.NoError(t, err)

	_, err = NewSyncMetrics(registry)
	assert.Error(t, err)
}

func TestPush(t *testing.T) {
	var (
		gotMethod string
		gotPath   string
		gotBody   []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m, err := NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.RecordOutcome("updated")
	m.RecordFetchFailure()
	m.ObserveRun(time.Second)

	require.NoError(t, m.Push(context.Background(), srv.URL, "enfermedades"), "グルーピングキーとラベルが衝突しないこと")
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/metrics/job/gardener_sync/loader/enfermedades", gotPath)
	for _, name := range []string{
		"gardener_sync_records_total",
		"gardener_sync_fetch_failures_total",
		"gardener_sync_duration_seconds",
	} {
		assert.True(t, bytes.Contains(gotBody, []byte(name)), "%s が送信されること", name)
	}
}

func TestPushGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	m, err := NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	m.RecordOutcome("created")

	err = m.Push(context.Background(), srv.URL, "especies")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push metrics to")
}

func TestPushWithoutURL(t *testing.T) {
	m, err := NewSyncMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	assert.NoError(t, m.Push(context.Background(), "", "enfermedades"))
}
