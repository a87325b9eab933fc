package server

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tyrowin/gochat/internal/store"
)

// Metrics holds the service's Prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry    *prometheus.Registry
	signups     *prometheus.CounterVec
	logins      *prometheus.CounterVec
	connected   prometheus.Gauge
	broadcasts  *prometheus.CounterVec
	saveSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gochat",
			Name:      "signups_total",
			Help:      "Signup attempts by result.",
		}, []string{"result"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gochat",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gochat",
			Name:      "connected_users",
			Help:      "Open live chat connections.",
		}),
		broadcasts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gochat",
			Name:      "broadcasts_total",
			Help:      "Events fanned out to all connections, by event name.",
		}, []string{"event"}),
		saveSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gochat",
			Name:      "state_save_seconds",
			Help:      "Time spent persisting the state blob.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.signups,
		m.logins,
		m.connected,
		m.broadcasts,
		m.saveSeconds,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) signup(result string) {
	if m == nil {
		return
	}
	m.signups.WithLabelValues(result).Inc()
}

func (m *Metrics) login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) setConnected(n int) {
	if m == nil {
		return
	}
	m.connected.Set(float64(n))
}

func (m *Metrics) broadcast(event string) {
	if m == nil {
		return
	}
	m.broadcasts.WithLabelValues(event).Inc()
}

// InstrumentBackend wraps b so every Save is timed. With nil metrics b is
// returned unchanged.
func InstrumentBackend(b store.Backend, m *Metrics) store.Backend {
	if m == nil {
		return b
	}
	return &instrumentedBackend{Backend: b, metrics: m}
}

type instrumentedBackend struct {
	store.Backend
	metrics *Metrics
}

func (ib *instrumentedBackend) Save(ctx context.Context, st *store.State) error {
	start := time.Now()
	err := ib.Backend.Save(ctx, st)
	result := "ok"
	if err != nil {
		result = "error"
	}
	ib.metrics.saveSeconds.WithLabelValues(result).Observe(time.Since(start).Seconds())
	return err
}
