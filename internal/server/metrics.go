package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shaunagostinho/mhs5200/internal/mhs5200"
)

// Metrics holds the server's Prometheus collectors on a private registry.
// It is also an mhs5200.Tracer so wire traffic is counted where it happens.
type Metrics struct {
	registry *prometheus.Registry

	wireBytes  *prometheus.CounterVec
	transfers  *prometheus.CounterVec
	commands   *prometheus.CounterVec
	duration   prometheus.Histogram
	pollErrors prometheus.Counter
	clients    prometheus.Gauge
	connected  prometheus.Gauge
}

// NewMetrics registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		wireBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mhs5200_wire_bytes_total",
			Help: "Bytes exchanged with the generator.",
		}, []string{"direction"}),
		transfers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mhs5200_wire_transfers_total",
			Help: "Write and read calls that moved bytes.",
		}, []string{"direction"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mhs5200_commands_total",
			Help: "Commands received over the websocket bridge.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mhs5200_command_duration_seconds",
			Help:    "Time to run one websocket command chain.",
			Buckets: prometheus.DefBuckets,
		}),
		pollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mhs5200_poll_errors_total",
			Help: "Failed status polls.",
		}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mhs5200_ws_clients",
			Help: "Connected websocket clients.",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mhs5200_device_connected",
			Help: "1 while the generator is connected.",
		}),
	}
	m.registry.MustRegister(
		m.wireBytes,
		m.transfers,
		m.commands,
		m.duration,
		m.pollErrors,
		m.clients,
		m.connected,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Trace implements mhs5200.Tracer.
func (m *Metrics) Trace(dir mhs5200.Direction, data []byte) {
	m.wireBytes.WithLabelValues(dir.String()).Add(float64(len(data)))
	m.transfers.WithLabelValues(dir.String()).Inc()
}

func (m *Metrics) observeCommand(start time.Time, err error) {
	m.duration.Observe(time.Since(start).Seconds())
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commands.WithLabelValues(result).Inc()
}

func (m *Metrics) setConnected(on bool) {
	if on {
		m.connected.Set(1)
	} else {
		m.connected.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
