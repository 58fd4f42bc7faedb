package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Question outcomes recorded against QuestionsTotal.
const (
	OutcomeAnswered         = "answered"
	OutcomeCached           = "cached"
	OutcomeFallbackEmbed    = "fallback_embed"
	OutcomeFallbackSearch   = "fallback_search"
	OutcomeFallbackEmpty    = "fallback_empty"
	OutcomeFallbackGenerate = "fallback_generate"
)

// Pipeline stages recorded against StageSeconds.
const (
	StageEmbed    = "embed"
	StageSearch   = "search"
	StageGenerate = "generate"
)

var (
	QuestionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docuquery",
		Name:      "questions_total",
		Help:      "Question-answering requests by outcome.",
	}, []string{"outcome"})

	StageSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docuquery",
		Name:      "stage_seconds",
		Help:      "Latency of retrieval pipeline stages.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"stage"})

	DocumentsIngested = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "docuquery",
		Name:      "documents_ingested_total",
		Help:      "Documentation chunks stored through the ingestion path.",
	})
)

// ObserveStage records a stage duration.
func ObserveStage(stage string, start time.Time) {
	StageSeconds.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}
