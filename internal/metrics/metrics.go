// Package metrics exposes Prometheus collectors for the indexing pipeline
// and an optional scrape endpoint for long batch runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameseek_videos_processed_total",
		Help: "Total number of videos processed, by outcome",
	}, []string{"outcome"})

	ScenesDetectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frameseek_scenes_detected_total",
		Help: "Total number of scenes detected across all videos",
	})

	EmbeddingsStoredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frameseek_embeddings_stored_total",
		Help: "Total number of frame embeddings written to the store",
	})

	FrameDecodeFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "frameseek_frame_decode_failures_total",
		Help: "Total number of sampled frames that failed to decode",
	})

	SearchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "frameseek_searches_total",
		Help: "Total number of text searches, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "frameseek_stage_duration_seconds",
		Help:    "Duration of pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})
)
