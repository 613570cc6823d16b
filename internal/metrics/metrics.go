// Package metrics holds the Prometheus collectors for the recorder.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_session_transitions_total",
		Help: "Recording session state transitions by target state",
	}, []string{"state"})

	SessionFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recorder_session_failures_total",
		Help: "Sessions that ended in Failed, by error kind",
	}, []string{"kind"})

	ActiveCaptures = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "recorder_active_captures",
		Help: "Capture devices currently open",
	})

	AudioFragments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_audio_fragments_total",
		Help: "Audio fragments appended to sessions",
	})

	StaleCompletions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "recorder_stale_completions_total",
		Help: "Upload or start completions discarded because the session was reset",
	})

	Uploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transcription_uploads_total",
		Help: "Transcription uploads by outcome (ok or error kind)",
	}, []string{"outcome"})

	UploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcription_upload_duration_seconds",
		Help:    "Transcription upload latency including server processing",
		Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	})

	UploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "transcription_upload_bytes",
		Help:    "Size of uploaded audio assets",
		Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	JournalWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_journal_writes_total",
		Help: "Session journal writes by outcome",
	}, []string{"outcome"})
)
