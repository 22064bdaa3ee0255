package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics tracks the projection pipeline: events flowing through the
// engine, drops, referential anomalies, and store health.
type PipelineMetrics struct {
	eventsProcessed  *prometheus.CounterVec
	eventsDropped    *prometheus.CounterVec
	anomalies        *prometheus.CounterVec
	storeFailures    prometheus.Counter
	blocksIngested   prometheus.Counter
	checkpointHeight prometheus.Gauge
}

var (
	pipelineOnce     sync.Once
	pipelineRegistry *PipelineMetrics
)

// Pipeline returns the process-wide pipeline metrics, registering them on
// first use.
func Pipeline() *PipelineMetrics {
	pipelineOnce.Do(func() {
		pipelineRegistry = &PipelineMetrics{
			eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "socialindex_events_processed_total",
				Help: "Count of events applied by the projection engine, by category.",
			}, []string{"category"}),
			eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "socialindex_events_dropped_total",
				Help: "Count of unusable event records dropped before projection.",
			}, []string{"reason"}),
			anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "socialindex_anomalies_total",
				Help: "Count of recoverable referential anomalies by kind.",
			}, []string{"kind"}),
			storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "socialindex_store_failures_total",
				Help: "Count of failed store transactions surfaced to the ingester.",
			}),
			blocksIngested: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "socialindex_blocks_ingested_total",
				Help: "Count of blocks whose records were fully applied.",
			}),
			checkpointHeight: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "socialindex_checkpoint_height",
				Help: "Highest fully processed block height.",
			}),
		}
		prometheus.MustRegister(
			pipelineRegistry.eventsProcessed,
			pipelineRegistry.eventsDropped,
			pipelineRegistry.anomalies,
			pipelineRegistry.storeFailures,
			pipelineRegistry.blocksIngested,
			pipelineRegistry.checkpointHeight,
		)
	})
	return pipelineRegistry
}

func (m *PipelineMetrics) ObserveProcessed(category string) {
	if m == nil {
		return
	}
	if category == "" {
		category = "unknown"
	}
	m.eventsProcessed.WithLabelValues(category).Inc()
}

func (m *PipelineMetrics) ObserveDropped(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.eventsDropped.WithLabelValues(reason).Inc()
}

func (m *PipelineMetrics) ObserveAnomaly(kind string) {
	if m == nil {
		return
	}
	if kind == "" {
		kind = "unknown"
	}
	m.anomalies.WithLabelValues(kind).Inc()
}

func (m *PipelineMetrics) IncStoreFailure() {
	if m == nil {
		return
	}
	m.storeFailures.Inc()
}

func (m *PipelineMetrics) ObserveBlock(height uint64) {
	if m == nil {
		return
	}
	m.blocksIngested.Inc()
	m.checkpointHeight.Set(float64(height))
}
