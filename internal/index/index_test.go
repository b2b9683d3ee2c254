package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildFrameID(t *testing.T) {
	assert.Equal(t, "scene_0_frame_0_sample_0", BuildFrameID(0, 0, 0))
	assert.Equal(t, "scene_3_frame_1_sample_412", BuildFrameID(3, 1, 412))
}

func TestBuildFrameIDDeterministic(t *testing.T) {
	first := BuildFrameID(7, 2, 1918)
	second := BuildFrameID(7, 2, 1918)
	assert.Equal(t, first, second)
}

func TestBuildMetadata(t *testing.T) {
	md := BuildMetadata("/videos/cutting_pepper.mp4", 2, 1, 150)

	assert.Equal(t, "/videos/cutting_pepper.mp4", md.VideoPath)
	assert.Equal(t, "cutting_pepper.mp4", md.VideoName)
	assert.Equal(t, 2, md.SceneIdx)
	assert.Equal(t, 1, md.FrameIdx)
	assert.Equal(t, 150, md.FrameSample)
}

func TestNewFrameRecord(t *testing.T) {
	emb := []float32{0.1, 0.2, 0.3}
	rec := NewFrameRecord("videos/sample.mp4", 1, 0, 90, emb)

	assert.Equal(t, "scene_1_frame_0_sample_90", rec.ID)
	assert.Equal(t, emb, rec.Embedding)
	assert.Equal(t, "sample.mp4", rec.Metadata.VideoName)
}
