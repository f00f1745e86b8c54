// Package metrics exposes Prometheus instruments for the live session.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric.
const Namespace = "kinetic"

// Metrics groups all Prometheus instruments used by the client.
type Metrics struct {
	ChunksSent        *prometheus.CounterVec
	ChunksDropped     *prometheus.CounterVec
	Fragments         *prometheus.CounterVec
	Interruptions     prometheus.Counter
	Alerts            prometheus.Counter
	StateTransitions  *prometheus.CounterVec
	SessionState      *prometheus.GaugeVec
	FirstAudioLatency prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the instruments with reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		ChunksSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_sent_total",
			Help:      "Media chunks handed to the transport by kind.",
		}, []string{"kind"}),
		ChunksDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_dropped_total",
			Help:      "Media chunks the transport refused by kind.",
		}, []string{"kind"}),
		Fragments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "playback_fragments_total",
			Help:      "Inbound audio fragments by outcome.",
		}, []string{"outcome"}),
		Interruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "interruptions_total",
			Help:      "Model barge-in interruptions.",
		}),
		Alerts: f.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "safety_alerts_total",
			Help:      "Safety keyword alerts raised.",
		}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "state_transitions_total",
			Help:      "Session state transitions by target state.",
		}, []string{"to"}),
		SessionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "session_state",
			Help:      "1 for the current session state, 0 otherwise.",
		}, []string{"state"}),
		FirstAudioLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "first_audio_latency_ms",
			Help:      "Latency from connect to first assistant audio in milliseconds.",
			Buckets:   []float64{100, 200, 300, 500, 700, 900, 1200, 2000, 5000},
		}),
		gatherer: reg,
	}
}

// ObserveFirstAudioLatency records time to first audio.
func (m *Metrics) ObserveFirstAudioLatency(d time.Duration) {
	m.FirstAudioLatency.Observe(float64(d.Milliseconds()))
}

// SetState marks state as current among all.
func (m *Metrics) SetState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
