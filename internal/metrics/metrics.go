// Package metrics exposes the bridge's Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "betbridge"

// Metrics groups every instrument the bridge records.
type Metrics struct {
	registry *prometheus.Registry

	betsIngested  *prometheus.CounterVec
	betsResolved  *prometheus.CounterVec
	orders        *prometheus.CounterVec
	chainCalls    *prometheus.CounterVec
	ingestCycles  *prometheus.CounterVec
	cycleDuration prometheus.Histogram
	watermark     prometheus.Gauge
	ingestLive    prometheus.Gauge
	openBets      prometheus.Gauge
	eventsDropped *prometheus.CounterVec
}

// New creates the instruments on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		betsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_ingested_total",
			Help: "BetPlaced logs processed, by result (new, duplicate, malformed).",
		}, []string{"result"}),
		betsResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "bets_resolved_total",
			Help: "Bets that reached a terminal outcome.",
		}, []string{"outcome"}),
		orders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "exchange_orders_total",
			Help: "Exchange order requests, by role and result.",
		}, []string{"role", "result"}),
		chainCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "chain_calls_total",
			Help: "Contract calls, by method and result.",
		}, []string{"method", "result"}),
		ingestCycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "ingest_cycles_total",
			Help: "Ingest batches, by result.",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "ingest_cycle_duration_seconds",
			Help:    "Time spent processing one ingest batch.",
			Buckets: prometheus.DefBuckets,
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ingest_watermark_block",
			Help: "Last block number durably processed.",
		}),
		ingestLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ingest_live",
			Help: "1 once the ingestor has caught up with the chain head.",
		}),
		openBets: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "open_bracket_bets",
			Help: "Bets with both bracket legs resting at the last cycle.",
		}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "events_publish_failures_total",
			Help: "Lifecycle events a sink failed to accept.",
		}, []string{"sink"}),
	}
	reg.MustRegister(
		m.betsIngested, m.betsResolved, m.orders, m.chainCalls,
		m.ingestCycles, m.cycleDuration, m.watermark, m.ingestLive,
		m.openBets, m.eventsDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) BetIngested(result string) {
	if m == nil {
		return
	}
	m.betsIngested.WithLabelValues(result).Inc()
}

func (m *Metrics) BetResolved(outcome string) {
	if m == nil {
		return
	}
	m.betsResolved.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Order(role, result string) {
	if m == nil {
		return
	}
	m.orders.WithLabelValues(role, result).Inc()
}

func (m *Metrics) ChainCall(method, result string) {
	if m == nil {
		return
	}
	m.chainCalls.WithLabelValues(method, result).Inc()
}

// IngestCycle records one batch and its duration.
func (m *Metrics) IngestCycle(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.ingestCycles.WithLabelValues(result).Inc()
	m.cycleDuration.Observe(took.Seconds())
}

func (m *Metrics) Watermark(block uint64) {
	if m == nil {
		return
	}
	m.watermark.Set(float64(block))
}

func (m *Metrics) IngestLive(live bool) {
	if m == nil {
		return
	}
	if live {
		m.ingestLive.Set(1)
	} else {
		m.ingestLive.Set(0)
	}
}

func (m *Metrics) OpenBets(n int) {
	if m == nil {
		return
	}
	m.openBets.Set(float64(n))
}

func (m *Metrics) EventDropped(sink string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(sink).Inc()
}
