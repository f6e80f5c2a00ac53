// Package metrics exposes Prometheus collectors for the HTTP shell and the
// WebSocket hub.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors registered for one process.
type Metrics struct {
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	BroadcastsTotal   *prometheus.CounterVec
	HubConnections    prometheus.Gauge
	HubSubscriptions  prometheus.Gauge
}

// New creates and registers a Metrics instance on the default registry.
func New(service string) *Metrics {
	return NewWithRegistry(service, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates and registers a Metrics instance on the given registerer.
func NewWithRegistry(service string, registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "objstore_http_requests_total",
			Help:        "Total number of HTTP requests.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"method", "path", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "objstore_http_request_duration_seconds",
			Help:        "HTTP request duration in seconds.",
			ConstLabels: prometheus.Labels{"service": service},
			Buckets:     []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "path"}),
		RequestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "objstore_http_requests_in_flight",
			Help:        "Requests currently being served.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		BroadcastsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "objstore_broadcasts_total",
			Help:        "Change broadcasts emitted, by kind.",
			ConstLabels: prometheus.Labels{"service": service},
		}, []string{"kind", "outcome"}),
		HubConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "objstore_hub_connections",
			Help:        "Currently connected WebSocket clients.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
		HubSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "objstore_hub_subscriptions",
			Help:        "Currently registered subscription keys across all connections.",
			ConstLabels: prometheus.Labels{"service": service},
		}),
	}

	for _, c := range []prometheus.Collector{
		m.RequestsTotal, m.RequestDuration, m.RequestsInFlight,
		m.BroadcastsTotal, m.HubConnections, m.HubSubscriptions,
	} {
		_ = registerer.Register(c)
	}
	return m
}

// Handler exposes the /metrics scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// InstrumentHandler wraps next, recording request totals/duration/in-flight.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.RequestsInFlight.Inc()
		defer m.RequestsInFlight.Dec()

		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		m.RequestsTotal.WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(sw.status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
