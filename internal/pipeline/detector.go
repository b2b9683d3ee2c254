package pipeline

import (
	"context"

	"github.com/frameseek/frameseek/internal/scene"
	"github.com/frameseek/frameseek/internal/video"
)

// VideoSceneDetector glues the ffmpeg decode stream to the content
// segmenter. The decode handle is scoped to one call: it is released
// before returning even when segmentation fails early.
type VideoSceneDetector struct {
	decoder   *video.Decoder
	segmenter *scene.Segmenter
}

func NewVideoSceneDetector(decoder *video.Decoder, segmenter *scene.Segmenter) *VideoSceneDetector {
	return &VideoSceneDetector{decoder: decoder, segmenter: segmenter}
}

func (d *VideoSceneDetector) DetectScenes(ctx context.Context, videoPath string) ([]scene.Boundary, error) {
	stream, err := d.decoder.DetectionStream(ctx, videoPath)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	return d.segmenter.Segment(stream)
}
