// Package metrics implements the worker's MetricsSink using Prometheus
// collectors registered against a dedicated registry, served over HTTP by
// cmd/orbitd.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "orbitagg"

// Recorder implements aggregator.MetricsSink against a private registry.
type Recorder struct {
	registry *prometheus.Registry

	sourceOverflow *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	tableSize      prometheus.Gauge
	published      prometheus.Counter
	agedOut        prometheus.Counter
	publishLatency prometheus.Histogram
}

// New constructs a Recorder with its own registry, so metric registration
// never collides with other users of the default global registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		sourceOverflow: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_overflow_total",
			Help:      "Samples dropped due to a full source queue, by source name.",
		}, []string{"source"}),
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "source_queue_depth",
			Help:      "Current number of buffered samples, by source name.",
		}, []string{"source"}),
		tableSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_table_size",
			Help:      "Number of live (unpublished) snapshots in the correlation table.",
		}),
		published: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_published_total",
			Help:      "Total number of snapshots delivered to receivers.",
		}),
		agedOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_aged_out_total",
			Help:      "Total number of snapshots evicted without publication due to age.",
		}),
		publishLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_duration_seconds",
			Help:      "Time spent delivering a published snapshot to all receivers.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// Handler returns an http.Handler exposing the recorder's registry in the
// Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// SourceOverflow implements aggregator.MetricsSink.
func (r *Recorder) SourceOverflow(name string, dropped int) {
	r.sourceOverflow.WithLabelValues(name).Add(float64(dropped))
}

// QueueDepth implements aggregator.MetricsSink.
func (r *Recorder) QueueDepth(name string, depth int) {
	r.queueDepth.WithLabelValues(name).Set(float64(depth))
}

// SnapshotTableSize implements aggregator.MetricsSink.
func (r *Recorder) SnapshotTableSize(size int) {
	r.tableSize.Set(float64(size))
}

// SnapshotsPublished implements aggregator.MetricsSink.
func (r *Recorder) SnapshotsPublished() {
	r.published.Inc()
}

// SnapshotsAgedOut implements aggregator.MetricsSink.
func (r *Recorder) SnapshotsAgedOut(n int) {
	r.agedOut.Add(float64(n))
}

// PublishDuration implements aggregator.MetricsSink.
func (r *Recorder) PublishDuration(d time.Duration) {
	r.publishLatency.Observe(d.Seconds())
}
