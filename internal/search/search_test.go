package search

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameseek/frameseek/internal/encoder"
	"github.com/frameseek/frameseek/internal/index"
	"github.com/frameseek/frameseek/internal/store"
)

type fakeEncoder struct {
	embedding []float32
	err       error
}

func (f *fakeEncoder) TextEmbedding(ctx context.Context, text string) ([]float32, error) {
	return f.embedding, f.err
}

type fakeStore struct {
	results    []store.Result
	embeddings map[string][]float32
	queryErr   error
}

func (f *fakeStore) QueryByVector(ctx context.Context, embedding []float32, k int) ([]store.Result, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if k < len(f.results) {
		return f.results[:k], nil
	}
	return f.results, nil
}

func (f *fakeStore) GetEmbedding(ctx context.Context, frameID string) ([]float32, error) {
	emb, ok := f.embeddings[frameID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return emb, nil
}

type fakeFrames struct {
	failFrames map[int]bool
	saved      []string
}

func (f *fakeFrames) SaveFrame(ctx context.Context, path string, frameNumber int, outPath string) error {
	if f.failFrames[frameNumber] {
		return errors.New("decode failed")
	}
	if err := os.WriteFile(outPath, []byte("jpeg"), 0644); err != nil {
		return err
	}
	f.saved = append(f.saved, outPath)
	return nil
}

func someResults() []store.Result {
	return []store.Result{
		{ID: "scene_0_frame_0_sample_0", Distance: 0.1, Similarity: 0.9,
			Metadata: index.BuildMetadata("videos/a.mp4", 0, 0, 0)},
		{ID: "scene_1_frame_0_sample_90", Distance: 0.3, Similarity: 0.7,
			Metadata: index.BuildMetadata("videos/a.mp4", 1, 0, 90)},
		{ID: "scene_0_frame_2_sample_60", Distance: 0.5, Similarity: 0.5,
			Metadata: index.BuildMetadata("videos/b.mp4", 0, 2, 60)},
	}
}

func TestSearchByTextPreservesStoreOrder(t *testing.T) {
	e := NewEngine(&fakeEncoder{embedding: []float32{1, 0}}, &fakeStore{results: someResults()}, &fakeFrames{}, nil, t.TempDir(), nil)

	matches, err := e.SearchByText(context.Background(), "kitchen scene", Options{K: 10})
	require.NoError(t, err)
	require.Len(t, matches, 3)

	for i, m := range matches {
		assert.Equal(t, i+1, m.Rank)
		if i > 0 {
			assert.GreaterOrEqual(t, m.Distance, matches[i-1].Distance)
		}
		assert.InDelta(t, 1-m.Distance, m.Similarity, 1e-9)
		assert.GreaterOrEqual(t, m.Similarity, -1.0)
		assert.LessOrEqual(t, m.Similarity, 1.0)
	}
}

func TestSearchByTextEncoderFailure(t *testing.T) {
	e := NewEngine(&fakeEncoder{err: encoder.ErrUnavailable}, &fakeStore{}, &fakeFrames{}, nil, t.TempDir(), nil)

	_, err := e.SearchByText(context.Background(), "query", Options{})
	assert.ErrorIs(t, err, encoder.ErrUnavailable)
}

func TestSearchByTextEmptyCollection(t *testing.T) {
	e := NewEngine(&fakeEncoder{embedding: []float32{1, 0}}, &fakeStore{}, &fakeFrames{}, nil, t.TempDir(), nil)

	matches, err := e.SearchByText(context.Background(), "query", Options{K: 5})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchPersistsImages(t *testing.T) {
	dir := t.TempDir()
	frames := &fakeFrames{}
	e := NewEngine(&fakeEncoder{embedding: []float32{1, 0}}, &fakeStore{results: someResults()}, frames, nil, dir, nil)

	matches, err := e.SearchByText(context.Background(), "person cutting vegetables", Options{K: 10, PersistImages: true})
	require.NoError(t, err)

	wantDir := filepath.Join(dir, "person_cutting_vegetables")
	entries, err := os.ReadDir(wantDir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)

	assert.Equal(t, filepath.Join(wantDir, "01_scene_0_frame_0_sample_0_similarity_0.900.jpg"), matches[0].ImagePath)
}

func TestSearchSkipsFailedDecodes(t *testing.T) {
	dir := t.TempDir()
	frames := &fakeFrames{failFrames: map[int]bool{90: true}}
	e := NewEngine(&fakeEncoder{embedding: []float32{1, 0}}, &fakeStore{results: someResults()}, frames, nil, dir, nil)

	matches, err := e.SearchByText(context.Background(), "query", Options{K: 10, PersistImages: true})
	require.NoError(t, err)
	require.Len(t, matches, 3, "a decode failure must not drop the result")

	assert.NotEmpty(t, matches[0].ImagePath)
	assert.Empty(t, matches[1].ImagePath, "failed frame has no persisted image")
	assert.NotEmpty(t, matches[2].ImagePath)
}

func TestSearchSimilar(t *testing.T) {
	st := &fakeStore{
		results:    someResults(),
		embeddings: map[string][]float32{"scene_0_frame_0_sample_0": {1, 0}},
	}
	e := NewEngine(&fakeEncoder{}, st, &fakeFrames{}, nil, t.TempDir(), nil)

	matches, err := e.SearchSimilar(context.Background(), "scene_0_frame_0_sample_0", Options{K: 2})
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	_, err = e.SearchSimilar(context.Background(), "missing_id", Options{K: 2})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSanitizeQuery(t *testing.T) {
	assert.Equal(t, "person_cutting_vegetables", SanitizeQuery("person cutting vegetables"))
	assert.Equal(t, "a_b_c_d", SanitizeQuery("a b/c\\d"))
}

func TestMatchFilename(t *testing.T) {
	name := MatchFilename(1, "scene_2_frame_0_sample_150", 0.3125)
	assert.Equal(t, "01_scene_2_frame_0_sample_150_similarity_0.312.jpg", name)
}
