package dashboard

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	SnapshotsIngested *prometheus.CounterVec
	PCR               *prometheus.GaugeVec
	CacheLookups      *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
	WSClients         prometheus.Gauge
}

// NewMetrics creates and registers all collectors, plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		SnapshotsIngested: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainpulse_snapshots_ingested_total",
				Help: "Snapshots received for ingestion",
			},
			[]string{"symbol", "status"}, // status: stored|duplicate|invalid|error
		),
		PCR: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "chainpulse_pcr",
				Help: "Put/call ratio of the latest snapshot",
			},
			[]string{"symbol", "basis"}, // basis: oi|volume
		),
		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainpulse_series_cache_lookups_total",
				Help: "Derived series cache lookups",
			},
			[]string{"result"}, // result: hit|miss
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chainpulse_http_requests_total",
				Help: "HTTP requests served",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chainpulse_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"route"},
		),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chainpulse_ws_clients",
			Help: "Connected WebSocket clients",
		}),
	}
	m.registry.MustRegister(
		m.SnapshotsIngested,
		m.PCR,
		m.CacheLookups,
		m.HTTPRequests,
		m.HTTPDuration,
		m.WSClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(d.Seconds())
}
