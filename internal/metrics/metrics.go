// Package metrics holds the Prometheus collectors of the matching service. All methods
// are nil-safe so components can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "auction"

type Metrics struct {
	OrdersAccepted  prometheus.Counter
	OrdersRejected  *prometheus.CounterVec
	Trades          prometheus.Counter
	TradedVolume    prometheus.Counter
	ProcessDuration prometheus.Histogram
	BookLevels      *prometheus.GaugeVec
	EventsDropped   prometheus.Counter
	SinkFailures    prometheus.Counter

	gatherer prometheus.Gatherer
}

// New builds the collectors and registers them on reg. Pass prometheus.NewRegistry() in
// tests to avoid clashing with the default registry.
func New(symbol string, reg *prometheus.Registry) *Metrics {
	labels := prometheus.Labels{"symbol": symbol}
	m := &Metrics{
		OrdersAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "orders_accepted_total",
			Help: "Orders admitted to the book", ConstLabels: labels,
		}),
		OrdersRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "orders_rejected_total",
			Help: "Orders rejected at admission", ConstLabels: labels,
		}, []string{"reason"}),
		Trades: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "trades_total",
			Help: "Trades produced by the matching loop", ConstLabels: labels,
		}),
		TradedVolume: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "engine", Name: "traded_quantity_total",
			Help: "Sum of trade quantities", ConstLabels: labels,
		}),
		ProcessDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "engine", Name: "process_duration_seconds",
			Help: "Time spent inside one process call", ConstLabels: labels,
			Buckets: prometheus.ExponentialBuckets(1e-6, 4, 10),
		}),
		BookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "book", Name: "levels",
			Help: "Distinct price levels per side", ConstLabels: labels,
		}, []string{"side"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "events_dropped_total",
			Help: "Events discarded because the outbound buffer was full", ConstLabels: labels,
		}),
		SinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "dispatch", Name: "sink_failures_total",
			Help: "Events the sink refused", ConstLabels: labels,
		}),
		gatherer: reg,
	}
	reg.MustRegister(m.OrdersAccepted, m.OrdersRejected, m.Trades, m.TradedVolume,
		m.ProcessDuration, m.BookLevels, m.EventsDropped, m.SinkFailures)
	return m
}

func (m *Metrics) ObserveAccepted(d time.Duration, trades int, volume uint64, bidLevels, askLevels int) {
	if m == nil {
		return
	}
	m.OrdersAccepted.Inc()
	m.Trades.Add(float64(trades))
	m.TradedVolume.Add(float64(volume))
	m.ProcessDuration.Observe(d.Seconds())
	m.BookLevels.WithLabelValues("bid").Set(float64(bidLevels))
	m.BookLevels.WithLabelValues("ask").Set(float64(askLevels))
}

func (m *Metrics) ObserveRejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveDropped() {
	if m == nil {
		return
	}
	m.EventsDropped.Inc()
}

func (m *Metrics) ObserveSinkFailure() {
	if m == nil {
		return
	}
	m.SinkFailures.Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
