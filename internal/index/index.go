// Package index defines the unit stored in the embedding collection and the
// deterministic identity scheme that makes sampled frames addressable.
package index

import (
	"fmt"
	"path/filepath"
)

// Metadata keys present on every stored frame.
const (
	KeyVideoPath   = "video_path"
	KeyVideoName   = "video_name"
	KeySceneIdx    = "scene_idx"
	KeyFrameIdx    = "frame_idx"
	KeyFrameSample = "frame_sample"
)

// FrameMetadata locates a sampled frame within its source video.
type FrameMetadata struct {
	VideoPath   string // path the video was indexed from
	VideoName   string // basename of VideoPath
	SceneIdx    int    // scene index within the video
	FrameIdx    int    // sample index within the scene
	FrameSample int    // absolute frame number in the video
}

// FrameRecord is one indexed frame: identity, embedding, provenance.
type FrameRecord struct {
	ID        string
	Embedding []float32
	Metadata  FrameMetadata
}

// BuildFrameID derives the stable identifier for a sampled frame. The same
// inputs always produce the same id, so re-indexing a video with the same
// sampling parameters reproduces the identical id set.
func BuildFrameID(sceneIdx, frameIdx, frameSample int) string {
	return fmt.Sprintf("scene_%d_frame_%d_sample_%d", sceneIdx, frameIdx, frameSample)
}

// BuildMetadata assembles the provenance metadata for a sampled frame.
func BuildMetadata(videoPath string, sceneIdx, frameIdx, frameSample int) FrameMetadata {
	return FrameMetadata{
		VideoPath:   videoPath,
		VideoName:   filepath.Base(videoPath),
		SceneIdx:    sceneIdx,
		FrameIdx:    frameIdx,
		FrameSample: frameSample,
	}
}

// NewFrameRecord builds a complete record for one sampled frame.
func NewFrameRecord(videoPath string, sceneIdx, frameIdx, frameSample int, embedding []float32) FrameRecord {
	return FrameRecord{
		ID:        BuildFrameID(sceneIdx, frameIdx, frameSample),
		Embedding: embedding,
		Metadata:  BuildMetadata(videoPath, sceneIdx, frameIdx, frameSample),
	}
}
