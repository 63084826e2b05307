// Package metrics holds the gateway's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the gateway collectors. A single instance is created at
// startup and injected where needed; tests build their own against a
// private registry.
type Metrics struct {
	Registry *prometheus.Registry

	ActiveSessions *prometheus.GaugeVec
	FramesDecoded  *prometheus.CounterVec
	FramingErrors  *prometheus.CounterVec
	AcksWritten    *prometheus.CounterVec
	FixesEmitted   *prometheus.CounterVec
	FixesDeduped   *prometheus.CounterVec
	FixesRejected  *prometheus.CounterVec
	PollsSent      prometheus.Counter
	Subscribers    prometheus.Gauge
}

// New creates the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		ActiveSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gateway_active_sessions",
			Help: "Open device connections by protocol family.",
		}, []string{"family"}),

		FramesDecoded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_frames_decoded_total",
			Help: "Frames successfully decoded by protocol family.",
		}, []string{"family"}),

		FramingErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_framing_errors_total",
			Help: "Discarded frames and buffer resets by protocol family.",
		}, []string{"family"}),

		AcksWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_acks_written_total",
			Help: "Acknowledgement frames written by protocol family.",
		}, []string{"family"}),

		FixesEmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fixes_emitted_total",
			Help: "Normalized fixes delivered to the fan-out by protocol family.",
		}, []string{"family"}),

		FixesDeduped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fixes_deduped_total",
			Help: "Fixes suppressed by the recent-records window.",
		}, []string{"family"}),

		FixesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_fixes_rejected_total",
			Help: "Fixes dropped by coordinate and scalar validation.",
		}, []string{"family"}),

		PollsSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "gateway_polls_sent_total",
			Help: "Request-location frames sent to Jimi devices.",
		}),

		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gateway_subscribers",
			Help: "Attached push subscribers.",
		}),
	}
}
