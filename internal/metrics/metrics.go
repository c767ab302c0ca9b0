package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all receiver metrics
type Metrics struct {
	// Packet counters
	PacketsReceived atomic.Uint64
	LeaderPackets   atomic.Uint64
	TrailerPackets  atomic.Uint64
	DataPackets     atomic.Uint64
	InvalidPackets  atomic.Uint64
	BytesReceived   atomic.Uint64

	// Frame counters
	FramesCompleted atomic.Uint64
	FramesDropped   atomic.Uint64
	PacketsDropped  atomic.Uint64

	// Latency tracking
	DecodeLatencyUs   atomic.Uint64 // Last frame decode latency in microseconds
	CallbackLatencyUs atomic.Uint64 // Last frame callback latency in microseconds

	// Archiver counters
	FramesArchived atomic.Uint64
	ArchiveErrors  atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	counters := []struct {
		name string
		help string
		val  *atomic.Uint64
	}{
		{"gvsp_packets_received_total", "Total GVSP packets received", &m.PacketsReceived},
		{"gvsp_leader_packets_total", "Total leader packets accepted", &m.LeaderPackets},
		{"gvsp_trailer_packets_total", "Total trailer packets received", &m.TrailerPackets},
		{"gvsp_data_packets_total", "Total data payload packets placed in the reassembly buffer", &m.DataPackets},
		{"gvsp_invalid_packets_total", "Total packets discarded for a malformed or unsupported header", &m.InvalidPackets},
		{"gvsp_bytes_received_total", "Total image payload bytes received", &m.BytesReceived},
		{"gvsp_frames_completed_total", "Total frames received complete and decoded", &m.FramesCompleted},
		{"gvsp_frames_dropped_total", "Total frames abandoned before delivery", &m.FramesDropped},
		{"gvsp_packets_dropped_total", "Total data packets missing at trailer time", &m.PacketsDropped},
		{"gvsp_decode_latency_us", "Decode latency of the last completed frame in microseconds", &m.DecodeLatencyUs},
		{"gvsp_callback_latency_us", "Callback latency of the last completed frame in microseconds", &m.CallbackLatencyUs},
		{"gvsp_frames_archived_total", "Total frames written by the archiver", &m.FramesArchived},
		{"gvsp_archive_errors_total", "Total archiver write failures", &m.ArchiveErrors},
	}

	for _, c := range counters {
		v := c.val
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}
}

// UpdateDecodeLatency records the decode latency of the last frame
func (m *Metrics) UpdateDecodeLatency(d time.Duration) {
	m.DecodeLatencyUs.Store(uint64(d.Microseconds()))
}

// UpdateCallbackLatency records the callback latency of the last frame
func (m *Metrics) UpdateCallbackLatency(d time.Duration) {
	m.CallbackLatencyUs.Store(uint64(d.Microseconds()))
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts the metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
