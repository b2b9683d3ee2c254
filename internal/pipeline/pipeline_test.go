package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameseek/frameseek/internal/encoder"
	"github.com/frameseek/frameseek/internal/index"
	"github.com/frameseek/frameseek/internal/scene"
	"github.com/frameseek/frameseek/internal/store"
)

type fakeDetector struct {
	scenes []scene.Boundary
	err    error
}

func (f *fakeDetector) DetectScenes(ctx context.Context, videoPath string) ([]scene.Boundary, error) {
	return f.scenes, f.err
}

type fakeFrameReader struct {
	failFrames map[int]bool
}

func (f *fakeFrameReader) ReadFrame(ctx context.Context, videoPath string, frameNumber int) ([]byte, error) {
	if f.failFrames[frameNumber] {
		return nil, errors.New("decode failed")
	}
	return []byte("jpeg"), nil
}

type fakeImageEncoder struct {
	err   error
	calls int
}

func (f *fakeImageEncoder) ImageEmbedding(ctx context.Context, jpegData []byte) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0, 0}, nil
}

type fakeRecordStore struct {
	records   []index.FrameRecord
	insertErr error
}

func (f *fakeRecordStore) Insert(ctx context.Context, records []index.FrameRecord) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.records = append(f.records, records...)
	return nil
}

func (f *fakeRecordStore) Info(ctx context.Context) (store.CollectionInfo, error) {
	return store.CollectionInfo{Name: "video_embeddings", TotalEmbeddings: int64(len(f.records))}, nil
}

// tempVideo creates a placeholder file so the existence check passes.
func tempVideo(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("video"), 0644))
	return path
}

func TestProcessVideoHappyPath(t *testing.T) {
	detector := &fakeDetector{scenes: []scene.Boundary{{Start: 0, End: 90}, {Start: 90, End: 150}}}
	st := &fakeRecordStore{}
	ix := NewIndexer(detector, &fakeFrameReader{}, &fakeImageEncoder{}, st, 3, nil)

	result := ix.ProcessVideo(context.Background(), tempVideo(t, "sample.mp4"))

	require.True(t, result.Success)
	assert.Equal(t, 6, result.EmbeddingsCount, "3 samples per scene, 2 scenes")
	assert.EqualValues(t, 6, result.Collection.TotalEmbeddings)

	// First scene: stride round(90/3)=30, offset 0.
	assert.Equal(t, "scene_0_frame_0_sample_0", st.records[0].ID)
	assert.Equal(t, "scene_0_frame_1_sample_30", st.records[1].ID)
	assert.Equal(t, "scene_0_frame_2_sample_60", st.records[2].ID)
	assert.Equal(t, "sample.mp4", st.records[0].Metadata.VideoName)
}

func TestProcessVideoMissingFile(t *testing.T) {
	ix := NewIndexer(&fakeDetector{}, &fakeFrameReader{}, &fakeImageEncoder{}, &fakeRecordStore{}, 3, nil)

	result := ix.ProcessVideo(context.Background(), "does/not/exist.mp4")
	assert.False(t, result.Success)
	assert.Error(t, result.Err)
	assert.Zero(t, result.EmbeddingsCount)
}

func TestProcessVideoEmptyVideo(t *testing.T) {
	detector := &fakeDetector{err: scene.ErrNoFrames}
	ix := NewIndexer(detector, &fakeFrameReader{}, &fakeImageEncoder{}, &fakeRecordStore{}, 3, nil)

	result := ix.ProcessVideo(context.Background(), tempVideo(t, "empty.mp4"))
	assert.False(t, result.Success)
	assert.Zero(t, result.EmbeddingsCount)
	assert.ErrorIs(t, result.Err, scene.ErrNoFrames)
}

func TestProcessVideoSkipsUndecodableFrames(t *testing.T) {
	detector := &fakeDetector{scenes: []scene.Boundary{{Start: 0, End: 90}}}
	frames := &fakeFrameReader{failFrames: map[int]bool{30: true}}
	st := &fakeRecordStore{}
	ix := NewIndexer(detector, frames, &fakeImageEncoder{}, st, 3, nil)

	result := ix.ProcessVideo(context.Background(), tempVideo(t, "sample.mp4"))
	require.True(t, result.Success)
	assert.Equal(t, 2, result.EmbeddingsCount, "one undecodable frame is skipped, scene continues")
}

func TestProcessVideoAllFramesUndecodable(t *testing.T) {
	detector := &fakeDetector{scenes: []scene.Boundary{{Start: 0, End: 90}}}
	frames := &fakeFrameReader{failFrames: map[int]bool{0: true, 30: true, 60: true}}
	ix := NewIndexer(detector, frames, &fakeImageEncoder{}, &fakeRecordStore{}, 3, nil)

	result := ix.ProcessVideo(context.Background(), tempVideo(t, "sample.mp4"))
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrNoEmbeddings)
}

func TestProcessVideoEncoderUnavailableIsFatalForVideo(t *testing.T) {
	detector := &fakeDetector{scenes: []scene.Boundary{{Start: 0, End: 90}}}
	enc := &fakeImageEncoder{err: encoder.ErrUnavailable}
	st := &fakeRecordStore{}
	ix := NewIndexer(detector, &fakeFrameReader{}, enc, st, 3, nil)

	result := ix.ProcessVideo(context.Background(), tempVideo(t, "sample.mp4"))
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, encoder.ErrUnavailable)
	assert.Empty(t, st.records, "no partial embeddings are stored")
}

func TestProcessVideoStoreFailure(t *testing.T) {
	detector := &fakeDetector{scenes: []scene.Boundary{{Start: 0, End: 90}}}
	st := &fakeRecordStore{insertErr: &store.WriteError{Err: errors.New("connection reset")}}
	ix := NewIndexer(detector, &fakeFrameReader{}, &fakeImageEncoder{}, st, 3, nil)

	result := ix.ProcessVideo(context.Background(), tempVideo(t, "sample.mp4"))
	assert.False(t, result.Success)

	var writeErr *store.WriteError
	assert.ErrorAs(t, result.Err, &writeErr)
}

func TestProcessVideosBatchContinuesPastFailures(t *testing.T) {
	detector := &fakeDetector{scenes: []scene.Boundary{{Start: 0, End: 90}}}
	st := &fakeRecordStore{}
	ix := NewIndexer(detector, &fakeFrameReader{}, &fakeImageEncoder{}, st, 3, nil)

	good1 := tempVideo(t, "first.mp4")
	good2 := tempVideo(t, "second.mp4")
	summary := ix.ProcessVideos(context.Background(), []string{good1, "missing.mp4", good2})

	require.Len(t, summary.Results, 3)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 6, summary.TotalEmbeddings)
	assert.True(t, summary.Results[0].Success)
	assert.False(t, summary.Results[1].Success)
	assert.True(t, summary.Results[2].Success, "failure in one video must not abort the batch")
	assert.NotEqual(t, uuid.Nil, summary.RunID)
}

func TestVideosFromDirectory(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.mp4", "a.MOV", "notes.txt", "c.webm"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.mp4"), 0755))

	videos, err := VideosFromDirectory(dir)
	require.NoError(t, err)
	require.Len(t, videos, 3)
	assert.Equal(t, filepath.Join(dir, "a.MOV"), videos[0])
	assert.Equal(t, filepath.Join(dir, "b.mp4"), videos[1])
	assert.Equal(t, filepath.Join(dir, "c.webm"), videos[2])
}

func TestVideosFromMissingDirectory(t *testing.T) {
	_, err := VideosFromDirectory("does/not/exist")
	assert.Error(t, err)
}
