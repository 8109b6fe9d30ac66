// Package metrics は同期実行の件数と所要時間を Prometheus の形式で集計します。
// バッチはスクレイプされないため、Pushgateway に送ります。
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "gardener_sync"

// SyncMetrics は 1 回の実行のメトリクスです。
// loader は Pushgateway のグルーピングキーで区別するため、ラベルには含めません。
type SyncMetrics struct {
	registry *prometheus.Registry

	recordsTotal       *prometheus.CounterVec
	fetchFailuresTotal prometheus.Counter
	runDuration        prometheus.Gauge
}

// NewSyncMetrics はメトリクスを作成して registry に登録します。
func NewSyncMetrics(registry *prometheus.Registry) (*SyncMetrics, error) {
	m := &SyncMetrics{
		registry: registry,
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gardener_sync_records_total",
				Help: "Records processed by a sync run",
			},
			[]string{"outcome"}, // created, updated, error
		),
		fetchFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gardener_sync_fetch_failures_total",
				Help: "Sync runs aborted because the source could not be fetched",
			},
		),
		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "gardener_sync_duration_seconds",
				Help: "Wall time of the last sync run",
			},
		),
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("register sync metrics: %w", err)
	}
	return m, nil
}

// Describe は prometheus.Collector の実装です。
func (m *SyncMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.recordsTotal.Describe(ch)
	m.fetchFailuresTotal.Describe(ch)
	m.runDuration.Describe(ch)
}

// Collect は prometheus.Collector の実装です。
func (m *SyncMetrics) Collect(ch chan<- prometheus.Metric) {
	m.recordsTotal.Collect(ch)
	m.fetchFailuresTotal.Collect(ch)
	m.runDuration.Collect(ch)
}

func (m *SyncMetrics) RecordOutcome(outcome string) {
	m.recordsTotal.WithLabelValues(outcome).Inc()
}

func (m *SyncMetrics) RecordFetchFailure() {
	m.fetchFailuresTotal.Inc()
}

func (m *SyncMetrics) ObserveRun(d time.Duration) {
	m.runDuration.Set(d.Seconds())
}

// Push は loader をグルーピングキーにして Pushgateway にメトリクスを送ります。
// url が空なら何もしません。
func (m *SyncMetrics) Push(ctx context.Context, url, loader string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, pushJob).
		Gatherer(m.registry).
		Grouping("loader", loader).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
