// Package store adapts the persistent vector store (Postgres + pgvector)
// behind the insert/query/delete contract the pipeline consumes. Records
// live in named collections; distance is cosine, so smaller is more
// similar and similarity is reported as 1 - distance.
package store

import (
	"errors"
	"fmt"

	"github.com/frameseek/frameseek/internal/index"
)

// DuplicatePolicy decides what a bulk insert does when a record's id is
// already present in the collection.
type DuplicatePolicy string

const (
	// Upsert replaces the stored embedding and metadata. Re-indexing a
	// video leaves the collection count unchanged.
	Upsert DuplicatePolicy = "upsert"
	// Reject fails the insert on a duplicate id and leaves the prior
	// records intact.
	Reject DuplicatePolicy = "reject"
)

// ErrNoRecords reports that an insert was called with nothing to insert.
// It distinguishes "nothing to do" from a failed write.
var ErrNoRecords = errors.New("store: no records to insert")

// ErrNotFound reports that a requested frame id is not in the collection.
var ErrNotFound = errors.New("store: frame id not found")

// WriteError wraps a failed store write with the ids that were being
// written.
type WriteError struct {
	IDs []string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("store: write %d record(s): %v", len(e.IDs), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// QueryError wraps a failed store read with the operation that issued it.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error { return e.Err }

// Result is one nearest-neighbor match from a vector query.
type Result struct {
	ID         string
	Distance   float64 // cosine distance, ascending in a result set
	Similarity float64 // 1 - Distance
	Metadata   index.FrameMetadata
}

// Record is one stored frame as returned by metadata queries and listings.
type Record struct {
	ID       string
	Metadata index.FrameMetadata
}

// CollectionInfo is a point-in-time snapshot of a collection.
type CollectionInfo struct {
	Name            string
	TotalEmbeddings int64
}
