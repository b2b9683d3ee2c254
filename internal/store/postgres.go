package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/frameseek/frameseek/internal/index"
)

// metadataColumns maps the public metadata keys onto table columns. Only
// these keys are accepted in metadata filters.
var metadataColumns = map[string]string{
	index.KeyVideoPath:   "video_path",
	index.KeyVideoName:   "video_name",
	index.KeySceneIdx:    "scene_idx",
	index.KeyFrameIdx:    "frame_idx",
	index.KeyFrameSample: "frame_sample",
}

// Config holds the knobs for opening a collection.
type Config struct {
	Collection  string
	Dimension   int
	OnDuplicate DuplicatePolicy
}

// Postgres stores frame embeddings in a pgvector-enabled database.
type Postgres struct {
	pool         *pgxpool.Pool
	collection   string
	collectionID int
	policy       DuplicatePolicy
	logger       *slog.Logger
}

// New opens (or creates) the named collection. The pool is owned by the
// caller and shared across the whole run.
func New(ctx context.Context, pool *pgxpool.Pool, cfg Config, logger *slog.Logger) (*Postgres, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy := cfg.OnDuplicate
	if policy == "" {
		policy = Upsert
	}
	if policy != Upsert && policy != Reject {
		return nil, fmt.Errorf("store: unknown duplicate policy %q", policy)
	}

	s := &Postgres{
		pool:       pool,
		collection: cfg.Collection,
		policy:     policy,
		logger:     logger,
	}
	id, err := s.getOrCreateCollection(ctx, cfg.Collection)
	if err != nil {
		return nil, err
	}
	s.collectionID = id
	return s, nil
}

// getOrCreateCollection returns the id of an existing collection or
// creates a new one.
func (s *Postgres) getOrCreateCollection(ctx context.Context, name string) (int, error) {
	var id int
	err := s.pool.QueryRow(ctx,
		"SELECT id FROM collections WHERE name = $1",
		name).Scan(&id)

	if err == nil {
		var count int64
		if err := s.pool.QueryRow(ctx,
			"SELECT COUNT(*) FROM frame_embeddings WHERE collection_id = $1",
			id).Scan(&count); err == nil {
			s.logger.Info("found existing collection", "collection", name, "embeddings", count)
		}
		return id, nil
	} else if err != pgx.ErrNoRows {
		return 0, fmt.Errorf("store: check for existing collection: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		"INSERT INTO collections (name, description, created_at) VALUES ($1, $2, $3) RETURNING id",
		name, "CLIP embeddings for video frames", time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: create collection %q: %w", name, err)
	}

	s.logger.Info("created new collection", "collection", name)
	return id, nil
}

// insertSQL builds the bulk-insert statement for the configured duplicate
// policy. Upsert replaces the row on a duplicate (collection, frame id);
// Reject lets the unique constraint fail the statement.
func insertSQL(policy DuplicatePolicy) string {
	q := `INSERT INTO frame_embeddings
		(collection_id, frame_id, embedding, video_path, video_name, scene_idx, frame_idx, frame_sample, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	if policy == Upsert {
		q += `
		ON CONFLICT (collection_id, frame_id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			video_path = EXCLUDED.video_path,
			video_name = EXCLUDED.video_name,
			scene_idx = EXCLUDED.scene_idx,
			frame_idx = EXCLUDED.frame_idx,
			frame_sample = EXCLUDED.frame_sample,
			created_at = EXCLUDED.created_at`
	}
	return q
}

// Insert writes records to the collection in one transaction. An empty
// input returns ErrNoRecords so callers can tell "nothing to insert" from
// a failed write. Duplicate ids follow the configured policy.
func (s *Postgres) Insert(ctx context.Context, records []index.FrameRecord) error {
	if len(records) == 0 {
		return ErrNoRecords
	}

	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}

	q := insertSQL(s.policy)
	now := time.Now()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return &WriteError{IDs: ids, Err: err}
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		md := r.Metadata
		batch.Queue(q,
			s.collectionID, r.ID, pgvector.NewVector(r.Embedding),
			md.VideoPath, md.VideoName, md.SceneIdx, md.FrameIdx, md.FrameSample,
			now,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return &WriteError{IDs: ids, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return &WriteError{IDs: ids, Err: err}
	}

	s.logger.Info("inserted embeddings",
		"collection", s.collection,
		"count", len(records),
		"policy", string(s.policy),
	)
	return nil
}

// QueryByVector returns the k nearest records by cosine distance,
// ascending.
func (s *Postgres) QueryByVector(ctx context.Context, embedding []float32, k int) ([]Result, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT frame_id, embedding <=> $1 AS distance,
			video_path, video_name, scene_idx, frame_idx, frame_sample
		FROM frame_embeddings
		WHERE collection_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(embedding), s.collectionID, k)
	if err != nil {
		return nil, &QueryError{Op: "query by vector", Err: err}
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		md := &r.Metadata
		if err := rows.Scan(&r.ID, &r.Distance,
			&md.VideoPath, &md.VideoName, &md.SceneIdx, &md.FrameIdx, &md.FrameSample); err != nil {
			return nil, &QueryError{Op: "scan vector query row", Err: err}
		}
		r.Similarity = 1 - r.Distance
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "query by vector", Err: err}
	}
	return results, nil
}

// metadataWhere builds the WHERE fragment for equality filters over the
// public metadata keys. Placeholders start at firstArg.
func metadataWhere(filter map[string]any, firstArg int) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	// Deterministic clause order keeps queries stable.
	var clauses []string
	var args []any
	for _, key := range []string{index.KeyVideoPath, index.KeyVideoName, index.KeySceneIdx, index.KeyFrameIdx, index.KeyFrameSample} {
		value, ok := filter[key]
		if !ok {
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = $%d", metadataColumns[key], firstArg+len(args)))
		args = append(args, value)
	}
	if len(args) != len(filter) {
		for key := range filter {
			if _, ok := metadataColumns[key]; !ok {
				return "", nil, fmt.Errorf("store: unknown metadata filter key %q", key)
			}
		}
	}
	return " AND " + strings.Join(clauses, " AND "), args, nil
}

// QueryByMetadata returns up to k records whose metadata matches every
// equality predicate in the filter.
func (s *Postgres) QueryByMetadata(ctx context.Context, filter map[string]any, k int) ([]Record, error) {
	where, args, err := metadataWhere(filter, 3)
	if err != nil {
		return nil, err
	}

	q := `SELECT frame_id, video_path, video_name, scene_idx, frame_idx, frame_sample
		FROM frame_embeddings
		WHERE collection_id = $1` + where + `
		ORDER BY video_name, scene_idx, frame_idx
		LIMIT $2`

	rows, err := s.pool.Query(ctx, q, append([]any{s.collectionID, k}, args...)...)
	if err != nil {
		return nil, &QueryError{Op: "query by metadata", Err: err}
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetAll returns every record in the collection, ordered by video, scene
// and frame.
func (s *Postgres) GetAll(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT frame_id, video_path, video_name, scene_idx, frame_idx, frame_sample
		FROM frame_embeddings
		WHERE collection_id = $1
		ORDER BY video_name, scene_idx, frame_idx`,
		s.collectionID)
	if err != nil {
		return nil, &QueryError{Op: "get all", Err: err}
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		var r Record
		md := &r.Metadata
		if err := rows.Scan(&r.ID, &md.VideoPath, &md.VideoName, &md.SceneIdx, &md.FrameIdx, &md.FrameSample); err != nil {
			return nil, &QueryError{Op: "scan record", Err: err}
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: "read records", Err: err}
	}
	return records, nil
}

// GetEmbedding returns the stored vector for one frame id.
func (s *Postgres) GetEmbedding(ctx context.Context, frameID string) ([]float32, error) {
	var vec pgvector.Vector
	err := s.pool.QueryRow(ctx,
		"SELECT embedding FROM frame_embeddings WHERE collection_id = $1 AND frame_id = $2",
		s.collectionID, frameID).Scan(&vec)
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, frameID)
	}
	if err != nil {
		return nil, &QueryError{Op: "get embedding", Err: err}
	}
	return vec.Slice(), nil
}

// Delete removes the given frame ids from the collection.
func (s *Postgres) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		"DELETE FROM frame_embeddings WHERE collection_id = $1 AND frame_id = ANY($2)",
		s.collectionID, ids)
	if err != nil {
		return &WriteError{IDs: ids, Err: err}
	}
	s.logger.Info("deleted embeddings", "collection", s.collection, "count", len(ids))
	return nil
}

// Clear removes every record from the collection.
func (s *Postgres) Clear(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM frame_embeddings WHERE collection_id = $1", s.collectionID)
	if err != nil {
		return &WriteError{Err: err}
	}
	s.logger.Info("cleared collection", "collection", s.collection, "deleted", tag.RowsAffected())
	return nil
}

// Count returns the number of records in the collection.
func (s *Postgres) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM frame_embeddings WHERE collection_id = $1",
		s.collectionID).Scan(&count)
	if err != nil {
		return 0, &QueryError{Op: "count", Err: err}
	}
	return count, nil
}

// Info returns a snapshot of the collection.
func (s *Postgres) Info(ctx context.Context) (CollectionInfo, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return CollectionInfo{}, err
	}
	return CollectionInfo{Name: s.collection, TotalEmbeddings: count}, nil
}

// InitSchema creates the vector extension, tables and indexes if they do
// not exist. The embedding column width is fixed per deployment by the
// encoder's dimensionality.
func InitSchema(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	_, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
	if err != nil {
		return fmt.Errorf("store: create vector extension: %w", err)
	}

	_, err = pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS collections (
			id SERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(name)
		);

		CREATE TABLE IF NOT EXISTS frame_embeddings (
			id SERIAL PRIMARY KEY,
			collection_id INTEGER REFERENCES collections(id) ON DELETE CASCADE,
			frame_id VARCHAR(255) NOT NULL,
			embedding vector(%d) NOT NULL,
			video_path TEXT NOT NULL,
			video_name VARCHAR(255) NOT NULL,
			scene_idx INTEGER NOT NULL,
			frame_idx INTEGER NOT NULL,
			frame_sample INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			UNIQUE(collection_id, frame_id)
		);
	`, dimension))
	if err != nil {
		return fmt.Errorf("store: create schema: %w", err)
	}

	_, err = pool.Exec(ctx, `
		CREATE INDEX IF NOT EXISTS idx_frame_embeddings_collection ON frame_embeddings(collection_id);
		CREATE INDEX IF NOT EXISTS idx_frame_embeddings_video ON frame_embeddings(collection_id, video_name);
		CREATE INDEX IF NOT EXISTS idx_frame_embeddings_vector ON frame_embeddings USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
	`)
	if err != nil {
		return fmt.Errorf("store: create indexes: %w", err)
	}

	return nil
}
