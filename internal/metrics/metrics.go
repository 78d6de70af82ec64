// Package metrics exposes Prometheus instrumentation for a running client.
//
// All record helpers are nil-safe so instrumentation stays optional: a nil
// *Metrics disables collection without conditionals at every call site.
package metrics

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// DefaultNamespace is the metrics namespace used when none is configured.
const DefaultNamespace = "mirada"

// Metrics holds the Prometheus collectors for one client instance. Each
// client owns its own set registered against an injected registry, so
// concurrent clients (and tests) never share collector state.
type Metrics struct {
	packetsIn      *prometheus.CounterVec
	packetsOut     *prometheus.CounterVec
	bytesIn        prometheus.Counter
	bytesOut       prometheus.Counter
	framesTotal    prometheus.Counter
	packetErrors   prometheus.Counter
	decodeDuration *prometheus.HistogramVec
	paintErrors    prometheus.Counter
	reconnects     prometheus.Counter
	serverLatency  prometheus.Gauge
	connState      prometheus.Gauge
}

// New creates the collector set. registry may be nil to use the default
// registerer.
func New(namespace string, registry prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		packetsIn: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_received_total",
			Help:      "Packets received, by packet type tag",
		}, []string{"type"}),

		packetsOut: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packets_sent_total",
			Help:      "Packets sent, by packet type tag",
		}, []string{"type"}),

		bytesIn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_received_total",
			Help:      "Raw bytes received from the transport",
		}),

		bytesOut: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_sent_total",
			Help:      "Raw bytes written to the transport",
		}),

		framesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Complete frames sliced from the byte stream",
		}),

		packetErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "packet_errors_total",
			Help:      "Packets dropped due to serialization faults",
		}),

		decodeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "decode_duration_seconds",
			Help:      "Draw packet decode duration, by pixel coding",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
		}, []string{"coding"}),

		paintErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "paint_errors_total",
			Help:      "Draw packets acknowledged with a decode failure",
		}),

		reconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnection attempts",
		}),

		serverLatency: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "server_latency_milliseconds",
			Help:      "Last round-trip latency measured from a ping echo",
		}),

		connState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "Connection state machine position (numeric state code)",
		}),
	}
}

// RecordPacketIn counts one received packet.
func (m *Metrics) RecordPacketIn(ptype string) {
	if m == nil {
		return
	}
	m.packetsIn.WithLabelValues(ptype).Inc()
}

// RecordPacketOut counts one sent packet.
func (m *Metrics) RecordPacketOut(ptype string) {
	if m == nil {
		return
	}
	m.packetsOut.WithLabelValues(ptype).Inc()
}

// RecordBytesIn counts raw received bytes.
func (m *Metrics) RecordBytesIn(n int) {
	if m == nil {
		return
	}
	m.bytesIn.Add(float64(n))
}

// RecordBytesOut counts raw sent bytes.
func (m *Metrics) RecordBytesOut(n int) {
	if m == nil {
		return
	}
	m.bytesOut.Add(float64(n))
}

// RecordFrame counts one completed frame.
func (m *Metrics) RecordFrame() {
	if m == nil {
		return
	}
	m.framesTotal.Inc()
}

// RecordPacketError counts one dropped packet.
func (m *Metrics) RecordPacketError() {
	if m == nil {
		return
	}
	m.packetErrors.Inc()
}

// RecordDecode records one draw decode outcome.
func (m *Metrics) RecordDecode(coding string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.decodeDuration.WithLabelValues(coding).Observe(d.Seconds())
	if err != nil {
		m.paintErrors.Inc()
	}
}

// RecordReconnect counts one reconnection attempt.
func (m *Metrics) RecordReconnect() {
	if m == nil {
		return
	}
	m.reconnects.Inc()
}

// SetServerLatency publishes the last measured round-trip latency.
func (m *Metrics) SetServerLatency(ms int64) {
	if m == nil {
		return
	}
	m.serverLatency.Set(float64(ms))
}

// SetConnectionState publishes the state machine position.
func (m *Metrics) SetConnectionState(code int) {
	if m == nil {
		return
	}
	m.connState.Set(float64(code))
}

// Serve exposes /metrics and /healthz on addr. It blocks like
// http.ListenAndServe; run it on its own goroutine.
func Serve(addr string, gatherer prometheus.Gatherer, logger *slog.Logger) error {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if logger != nil {
		logger.Info("metrics listening", "addr", addr)
	}
	return http.ListenAndServe(addr, r)
}
