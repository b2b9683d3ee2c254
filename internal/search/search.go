// Package search answers natural-language queries against the embedding
// collection: it embeds the query text, asks the store for the nearest
// frames, and optionally materializes the matches as image files.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/frameseek/frameseek/internal/index"
	"github.com/frameseek/frameseek/internal/metrics"
	"github.com/frameseek/frameseek/internal/store"
)

// TextEncoder is the encoder's text branch.
type TextEncoder interface {
	TextEmbedding(ctx context.Context, text string) ([]float32, error)
}

// VectorStore is the read side of the embedding store the engine needs.
type VectorStore interface {
	QueryByVector(ctx context.Context, embedding []float32, k int) ([]store.Result, error)
	GetEmbedding(ctx context.Context, frameID string) ([]float32, error)
}

// FrameWriter re-decodes a frame from its source video into an image file.
type FrameWriter interface {
	SaveFrame(ctx context.Context, path string, frameNumber int, outPath string) error
}

// Describer captions a persisted frame image.
type Describer interface {
	Describe(ctx context.Context, imagePath string) (string, error)
}

// Match is one ranked search result.
type Match struct {
	Rank       int // 1-based
	ID         string
	Distance   float64
	Similarity float64
	Metadata   index.FrameMetadata
	ImagePath  string // set when the frame was persisted
	Caption    string // set when the frame was described
}

// Engine ranks stored frames against text queries.
type Engine struct {
	encoder   TextEncoder
	store     VectorStore
	frames    FrameWriter
	describer Describer
	outputDir string
	logger    *slog.Logger
}

// Options configure result materialization.
type Options struct {
	K             int
	PersistImages bool
	Describe      bool // implies PersistImages: captions need a file on disk
}

func NewEngine(encoder TextEncoder, vs VectorStore, frames FrameWriter, describer Describer, outputDir string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		encoder:   encoder,
		store:     vs,
		frames:    frames,
		describer: describer,
		outputDir: outputDir,
		logger:    logger,
	}
}

// SearchByText embeds the query and returns the nearest stored frames in
// the store's ascending-distance order. With PersistImages set, each match
// is re-decoded from its source video and written under
// <outputDir>/<sanitized query>/; one frame's decode failure is reported
// and skipped, never aborting the rest.
func (e *Engine) SearchByText(ctx context.Context, query string, opts Options) ([]Match, error) {
	embedding, err := e.encoder.TextEmbedding(ctx, query)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("encoder_error").Inc()
		return nil, fmt.Errorf("embed query %q: %w", query, err)
	}
	return e.searchByVector(ctx, query, embedding, opts)
}

// SearchSimilar returns the frames nearest to an already-indexed frame,
// looked up by its id.
func (e *Engine) SearchSimilar(ctx context.Context, frameID string, opts Options) ([]Match, error) {
	embedding, err := e.store.GetEmbedding(ctx, frameID)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}
	return e.searchByVector(ctx, "similar_to_"+frameID, embedding, opts)
}

func (e *Engine) searchByVector(ctx context.Context, query string, embedding []float32, opts Options) ([]Match, error) {
	k := opts.K
	if k <= 0 {
		k = 10
	}

	results, err := e.store.QueryByVector(ctx, embedding, k)
	if err != nil {
		metrics.SearchesTotal.WithLabelValues("store_error").Inc()
		return nil, err
	}
	if len(results) == 0 {
		metrics.SearchesTotal.WithLabelValues("empty").Inc()
		e.logger.Info("no results found", "query", query)
		return nil, nil
	}

	// The store returns results sorted by its own distance metric; rank
	// follows that order, never a re-sort on another key.
	matches := make([]Match, len(results))
	for i, r := range results {
		matches[i] = Match{
			Rank:       i + 1,
			ID:         r.ID,
			Distance:   r.Distance,
			Similarity: r.Similarity,
			Metadata:   r.Metadata,
		}
	}

	if opts.PersistImages || opts.Describe {
		e.persistMatches(ctx, query, matches, opts.Describe)
	}

	metrics.SearchesTotal.WithLabelValues("ok").Inc()
	return matches, nil
}

// persistMatches writes each matched frame as a JPEG and optionally
// captions it. Failures are logged per frame and skipped.
func (e *Engine) persistMatches(ctx context.Context, query string, matches []Match, describe bool) {
	outDir := filepath.Join(e.outputDir, SanitizeQuery(query))
	if err := os.MkdirAll(outDir, 0755); err != nil {
		e.logger.Error("create matched images directory", "dir", outDir, "error", err)
		return
	}

	e.logger.Info("saving matched frames", "count", len(matches), "dir", outDir)

	for i := range matches {
		m := &matches[i]
		md := m.Metadata
		outPath := filepath.Join(outDir, MatchFilename(m.Rank, m.ID, m.Similarity))

		if err := e.frames.SaveFrame(ctx, md.VideoPath, md.FrameSample, outPath); err != nil {
			metrics.FrameDecodeFailuresTotal.Inc()
			e.logger.Warn("failed to extract matched frame",
				"frame_id", m.ID,
				"video", md.VideoPath,
				"frame", md.FrameSample,
				"error", err,
			)
			continue
		}
		m.ImagePath = outPath

		if describe && e.describer != nil {
			text, err := e.describer.Describe(ctx, outPath)
			if err != nil {
				e.logger.Warn("failed to caption matched frame", "frame_id", m.ID, "error", err)
				continue
			}
			m.Caption = text
		}
	}
}

// SanitizeQuery turns a query string into a directory name by replacing
// path-unsafe characters with underscores.
func SanitizeQuery(query string) string {
	replacer := strings.NewReplacer(" ", "_", "/", "_", "\\", "_")
	return replacer.Replace(query)
}

// MatchFilename encodes rank, frame id and similarity into the persisted
// image name, e.g. 01_scene_2_frame_0_sample_150_similarity_0.312.jpg.
func MatchFilename(rank int, frameID string, similarity float64) string {
	return fmt.Sprintf("%02d_%s_similarity_%.3f.jpg", rank, frameID, similarity)
}
