package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/frameseek/frameseek/internal/index"
)

func TestInsertSQLUpsert(t *testing.T) {
	q := insertSQL(Upsert)
	assert.Contains(t, q, "ON CONFLICT (collection_id, frame_id) DO UPDATE")
	assert.Contains(t, q, "embedding = EXCLUDED.embedding")
}

func TestInsertSQLReject(t *testing.T) {
	q := insertSQL(Reject)
	assert.NotContains(t, q, "ON CONFLICT")
}

func TestMetadataWhereSingleKey(t *testing.T) {
	where, args, err := metadataWhere(map[string]any{index.KeyVideoName: "sample.mp4"}, 3)
	require.NoError(t, err)
	assert.Equal(t, " AND video_name = $3", where)
	assert.Equal(t, []any{"sample.mp4"}, args)
}

func TestMetadataWhereMultipleKeys(t *testing.T) {
	where, args, err := metadataWhere(map[string]any{
		index.KeySceneIdx:  2,
		index.KeyVideoName: "sample.mp4",
	}, 3)
	require.NoError(t, err)
	// Clause order follows the fixed key order, not map iteration order.
	assert.Equal(t, " AND video_name = $3 AND scene_idx = $4", where)
	assert.Equal(t, []any{"sample.mp4", 2}, args)
}

func TestMetadataWhereEmptyFilter(t *testing.T) {
	where, args, err := metadataWhere(nil, 3)
	require.NoError(t, err)
	assert.Empty(t, where)
	assert.Empty(t, args)
}

func TestMetadataWhereUnknownKey(t *testing.T) {
	_, _, err := metadataWhere(map[string]any{"codec": "h264"}, 3)
	assert.Error(t, err)
}

func TestWriteErrorWrapsCause(t *testing.T) {
	cause := assert.AnError
	err := &WriteError{IDs: []string{"scene_0_frame_0_sample_0"}, Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "1 record(s)")
}

func TestQueryErrorWrapsCause(t *testing.T) {
	cause := assert.AnError
	err := &QueryError{Op: "query by vector", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "query by vector")
}
