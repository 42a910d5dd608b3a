// Package metrics exposes Prometheus instrumentation for the voice
// pipeline and the agent bridge.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// VoiceTasks counts handled voice messages by final outcome:
	// answered, empty, agent_error, failed.
	VoiceTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebridge_voice_tasks_total",
		Help: "Voice messages processed, by outcome.",
	}, []string{"outcome"})

	// AgentRequests counts Ask calls by result: ok, timeout,
	// not_connected, service_error, transport_error.
	AgentRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicebridge_agent_requests_total",
		Help: "Agent requests sent, by result.",
	}, []string{"result"})

	// AgentReconnects counts agent connection attempts, the first one
	// included.
	AgentReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voicebridge_agent_reconnects_total",
		Help: "Agent connection attempts.",
	})

	// TranscriptionDuration observes wall time of full transcription
	// sessions in seconds.
	TranscriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voicebridge_transcription_duration_seconds",
		Help:    "Duration of recognition sessions.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})
)

// ObserveTranscription records one recognition session.
func ObserveTranscription(start time.Time) {
	TranscriptionDuration.Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr in a background goroutine.
func Serve(addr string, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error().Err(err).Str("addr", addr).Msg("metrics listener stopped")
		}
	}()
}
