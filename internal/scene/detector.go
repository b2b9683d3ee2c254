package scene

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
)

// DefaultThresholds is the ordered fallback list tried during segmentation,
// from strict to loose. The first threshold that finds at least one cut wins.
var DefaultThresholds = []float64{15.0, 10.0, 5.0, 2.0}

// DefaultMinSceneLen is the minimum spacing, in frames, between two cuts.
const DefaultMinSceneLen = 15

// ErrNoFrames is returned when the frame source yields no frames at all,
// e.g. a zero-length or unreadable video.
var ErrNoFrames = errors.New("scene: no frames in video")

// FrameSource yields consecutive decoded frames as raw pixel buffers.
// Next returns io.EOF after the last frame. All frames from one source
// must have the same byte length.
type FrameSource interface {
	Next() ([]byte, error)
}

// Segmenter splits a video into scenes by scoring the content change
// between consecutive frames against a threshold.
type Segmenter struct {
	thresholds  []float64
	minSceneLen int
	logger      *slog.Logger
}

// NewSegmenter builds a segmenter with the given threshold fallback order.
// An empty threshold list falls back to DefaultThresholds.
func NewSegmenter(thresholds []float64, minSceneLen int, logger *slog.Logger) *Segmenter {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	if minSceneLen <= 0 {
		minSceneLen = DefaultMinSceneLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Segmenter{thresholds: thresholds, minSceneLen: minSceneLen, logger: logger}
}

// Segment runs content-change detection over the frame source and returns
// the detected scenes. Thresholds are tried strict-to-loose; the first one
// producing at least one scene wins. If every threshold comes up empty the
// whole video is returned as a single scene, so any readable video always
// yields at least one boundary.
func (s *Segmenter) Segment(src FrameSource) ([]Boundary, error) {
	scores, total, err := contentScores(src)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, ErrNoFrames
	}

	for _, threshold := range s.thresholds {
		scenes := s.scenesAt(scores, total, threshold)
		s.logger.Debug("scene detection pass",
			"threshold", threshold,
			"scenes", len(scenes),
		)
		if len(scenes) > 0 {
			s.logger.Info("scenes detected",
				"threshold", threshold,
				"scenes", len(scenes),
				"frames", total,
			)
			return scenes, nil
		}
	}

	s.logger.Info("no scenes detected at any threshold, treating whole video as one scene",
		"frames", total,
	)
	return []Boundary{{Start: 0, End: total}}, nil
}

// scenesAt derives scene boundaries from the per-frame content scores at a
// single threshold. A frame whose score against its predecessor exceeds the
// threshold starts a new scene, provided the previous cut is at least
// minSceneLen frames back. No cuts means no scenes at this threshold; the
// caller decides the fallback.
func (s *Segmenter) scenesAt(scores []float64, total int, threshold float64) []Boundary {
	var cuts []int
	lastCut := 0
	for i, score := range scores {
		frame := i + 1 // scores[i] compares frame i and frame i+1
		if score >= threshold && frame-lastCut >= s.minSceneLen {
			cuts = append(cuts, frame)
			lastCut = frame
		}
	}
	if len(cuts) == 0 {
		return nil
	}

	scenes := make([]Boundary, 0, len(cuts)+1)
	start := 0
	for _, cut := range cuts {
		scenes = append(scenes, Boundary{Start: start, End: cut})
		start = cut
	}
	scenes = append(scenes, Boundary{Start: start, End: total})
	return scenes
}

// contentScores drains the source and scores every consecutive frame pair.
// One decode pass serves every threshold in the fallback list.
func contentScores(src FrameSource) ([]float64, int, error) {
	var (
		scores []float64
		prev   []byte
		total  int
	)
	for {
		frame, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("scene: read frame %d: %w", total, err)
		}
		if prev != nil {
			if len(frame) != len(prev) {
				return nil, 0, fmt.Errorf("scene: frame %d size changed mid-stream", total)
			}
			scores = append(scores, ContentScore(prev, frame))
		}
		prev = frame
		total++
	}
	return scores, total, nil
}

// ContentScore measures visual change between two equally sized raw frames
// as the mean absolute per-byte difference, on a 0-255 scale. Identical
// frames score 0; inverting every pixel of a black frame scores 255.
func ContentScore(prev, cur []byte) float64 {
	if len(prev) == 0 || len(prev) != len(cur) {
		return 0
	}
	var sum int64
	for i := range prev {
		d := int64(prev[i]) - int64(cur[i])
		if d < 0 {
			d = -d
		}
		sum += d
	}
	return float64(sum) / float64(len(prev))
}
