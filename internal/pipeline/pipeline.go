// Package pipeline drives indexing across one or many videos:
// segmentation, frame sampling, embedding extraction and store insertion,
// with per-video outcomes that never abort the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/frameseek/frameseek/internal/index"
	"github.com/frameseek/frameseek/internal/metrics"
	"github.com/frameseek/frameseek/internal/scene"
	"github.com/frameseek/frameseek/internal/store"
)

// ErrNoEmbeddings reports that a video produced zero embeddings, e.g. an
// empty video or one whose every sampled frame failed to decode. It is an
// informative outcome, not a batch-stopping failure.
var ErrNoEmbeddings = errors.New("pipeline: no embeddings generated from video")

// videoExtensions are the file suffixes treated as videos in directory mode.
var videoExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".mkv": true,
	".wmv": true, ".flv": true, ".webm": true,
}

// SceneDetector segments a video into scene boundaries.
type SceneDetector interface {
	DetectScenes(ctx context.Context, videoPath string) ([]scene.Boundary, error)
}

// FrameReader decodes one frame of a video by absolute frame number.
type FrameReader interface {
	ReadFrame(ctx context.Context, videoPath string, frameNumber int) ([]byte, error)
}

// ImageEncoder is the encoder's image branch.
type ImageEncoder interface {
	ImageEmbedding(ctx context.Context, jpegData []byte) ([]float32, error)
}

// RecordStore is the write side of the embedding store the indexer needs.
type RecordStore interface {
	Insert(ctx context.Context, records []index.FrameRecord) error
	Info(ctx context.Context) (store.CollectionInfo, error)
}

// VideoResult is the outcome of indexing one video.
type VideoResult struct {
	VideoPath       string
	Success         bool
	EmbeddingsCount int
	Err             error
	Collection      store.CollectionInfo
}

// Summary aggregates a batch run.
type Summary struct {
	RunID           uuid.UUID
	Results         []VideoResult
	Succeeded       int
	TotalEmbeddings int
}

// Indexer runs the write path of the pipeline. One video is fully
// processed before the next begins.
type Indexer struct {
	detector        SceneDetector
	frames          FrameReader
	encoder         ImageEncoder
	store           RecordStore
	samplesPerScene int
	logger          *slog.Logger
}

func NewIndexer(detector SceneDetector, frames FrameReader, encoder ImageEncoder, rs RecordStore, samplesPerScene int, logger *slog.Logger) *Indexer {
	if samplesPerScene < 1 {
		samplesPerScene = scene.DefaultSampleCount
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		detector:        detector,
		frames:          frames,
		encoder:         encoder,
		store:           rs,
		samplesPerScene: samplesPerScene,
		logger:          logger,
	}
}

// ProcessVideo indexes a single video. Every failure is folded into the
// returned outcome; the only hard error paths are programming-contract
// violations upstream.
func (ix *Indexer) ProcessVideo(ctx context.Context, videoPath string) VideoResult {
	result := VideoResult{VideoPath: videoPath}
	started := time.Now()

	log := ix.logger.With("video", videoPath)
	log.Info("processing video")

	if _, err := os.Stat(videoPath); os.IsNotExist(err) {
		result.Err = fmt.Errorf("video file not found: %s", videoPath)
		metrics.VideosProcessedTotal.WithLabelValues("not_found").Inc()
		return result
	}

	records, err := ix.extractEmbeddings(ctx, videoPath, log)
	if err != nil {
		result.Err = err
		metrics.VideosProcessedTotal.WithLabelValues("failed").Inc()
		return result
	}
	if len(records) == 0 {
		result.Err = ErrNoEmbeddings
		metrics.VideosProcessedTotal.WithLabelValues("empty").Inc()
		return result
	}

	log.Info("generated embeddings", "count", len(records))

	if err := ix.store.Insert(ctx, records); err != nil {
		result.Err = fmt.Errorf("save embeddings: %w", err)
		metrics.VideosProcessedTotal.WithLabelValues("store_failed").Inc()
		return result
	}
	metrics.EmbeddingsStoredTotal.Add(float64(len(records)))

	if info, err := ix.store.Info(ctx); err == nil {
		result.Collection = info
	} else {
		log.Warn("could not read collection info", "error", err)
	}

	result.Success = true
	result.EmbeddingsCount = len(records)
	metrics.VideosProcessedTotal.WithLabelValues("ok").Inc()
	metrics.StageDuration.WithLabelValues("index_video").Observe(time.Since(started).Seconds())

	log.Info("video indexed",
		"embeddings", result.EmbeddingsCount,
		"collection_total", result.Collection.TotalEmbeddings,
	)
	return result
}

// extractEmbeddings runs segmentation, sampling and encoding for one
// video. A frame that fails to decode is skipped; an encoder failure is
// fatal to the whole video because a partial embedding cannot be produced.
func (ix *Indexer) extractEmbeddings(ctx context.Context, videoPath string, log *slog.Logger) ([]index.FrameRecord, error) {
	detectStart := time.Now()
	scenes, err := ix.detector.DetectScenes(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("detect scenes: %w", err)
	}
	metrics.ScenesDetectedTotal.Add(float64(len(scenes)))
	metrics.StageDuration.WithLabelValues("segment").Observe(time.Since(detectStart).Seconds())

	var records []index.FrameRecord
	for sceneIdx, boundary := range scenes {
		samples := scene.Sample(boundary, ix.samplesPerScene)
		log.Debug("processing scene",
			"scene", sceneIdx,
			"start", boundary.Start,
			"end", boundary.End,
			"samples", samples,
		)

		for frameIdx, frameSample := range samples {
			data, err := ix.frames.ReadFrame(ctx, videoPath, frameSample)
			if err != nil {
				metrics.FrameDecodeFailuresTotal.Inc()
				log.Warn("failed to read frame, skipping",
					"scene", sceneIdx,
					"frame", frameSample,
					"error", err,
				)
				continue
			}

			embedding, err := ix.encoder.ImageEmbedding(ctx, data)
			if err != nil {
				return nil, fmt.Errorf("embed frame %d of scene %d: %w", frameSample, sceneIdx, err)
			}

			records = append(records, index.NewFrameRecord(videoPath, sceneIdx, frameIdx, frameSample, embedding))
		}
	}
	return records, nil
}

// ProcessVideos indexes a batch. A failure in one video is recorded and
// the batch proceeds to the next.
func (ix *Indexer) ProcessVideos(ctx context.Context, videoPaths []string) Summary {
	summary := Summary{RunID: uuid.New()}

	ix.logger.Info("processing batch", "run_id", summary.RunID, "videos", len(videoPaths))

	for i, videoPath := range videoPaths {
		ix.logger.Info("batch progress", "video", filepath.Base(videoPath), "position", i+1, "total", len(videoPaths))

		result := ix.ProcessVideo(ctx, videoPath)
		summary.Results = append(summary.Results, result)

		if result.Success {
			summary.Succeeded++
			summary.TotalEmbeddings += result.EmbeddingsCount
		} else {
			ix.logger.Warn("video failed", "video", videoPath, "error", result.Err)
		}
	}

	ix.logger.Info("batch finished",
		"run_id", summary.RunID,
		"succeeded", summary.Succeeded,
		"total", len(videoPaths),
		"embeddings", summary.TotalEmbeddings,
	)
	return summary
}

// VideosFromDirectory lists the video files directly inside dir, sorted
// by name.
func VideosFromDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read directory %s: %w", dir, err)
	}

	var videos []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if videoExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			videos = append(videos, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(videos)
	return videos, nil
}
