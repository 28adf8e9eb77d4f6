package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/poiesic/docloader/core"
)

// WriteConcern selects how much acknowledgement a write waits for.
type WriteConcern int

const (
	// WriteConcernDefault defers to the store's configured default.
	WriteConcernDefault WriteConcern = iota
	// WriteConcernPrimaryAck waits for the primary only (w=1).
	WriteConcernPrimaryAck
	// WriteConcernMajority waits for a majority of replicas.
	WriteConcernMajority
)

func (w WriteConcern) String() string {
	switch w {
	case WriteConcernPrimaryAck:
		return "primary-ack"
	case WriteConcernMajority:
		return "majority"
	default:
		return "default"
	}
}

// WriteOptions tune a bulk write.
type WriteOptions struct {
	// Ordered stops at the first failing document when true. When false every
	// document is attempted and failures are reported per document.
	Ordered bool

	// BypassValidation skips document-level schema validation.
	BypassValidation bool

	// WriteConcern is the acknowledgement level.
	WriteConcern WriteConcern
}

// BulkLoadOptions returns the throughput-oriented options used for bulk loads:
// unordered, validation bypassed, primary acknowledgement only.
func BulkLoadOptions() WriteOptions {
	return WriteOptions{
		Ordered:          false,
		BypassValidation: true,
		WriteConcern:     WriteConcernPrimaryAck,
	}
}

// WriteError describes one rejected document of a bulk write.
type WriteError struct {
	Index   int // position of the document in the submitted slice
	Code    int
	Message string
}

// BulkResult is the outcome of a bulk write.
type BulkResult struct {
	Accepted int
	Rejected int
	Errors   []WriteError
}

// BulkWriteError is returned when a bulk write completed but rejected some
// documents. Accepted documents remain written.
type BulkWriteError struct {
	Result BulkResult
}

func (e *BulkWriteError) Error() string {
	msgs := make([]string, 0, 3)
	for i, we := range e.Result.Errors {
		if i == 3 {
			msgs = append(msgs, "...")
			break
		}
		msgs = append(msgs, fmt.Sprintf("[%d] code %d: %s", we.Index, we.Code, we.Message))
	}
	return fmt.Sprintf("bulk write rejected %d of %d documents: %s",
		e.Result.Rejected, e.Result.Accepted+e.Result.Rejected, strings.Join(msgs, "; "))
}

// Unwrap lets errors.Is match core.ErrPartialWrite.
func (e *BulkWriteError) Unwrap() error {
	return core.ErrPartialWrite
}

// DocumentWriter writes documents in bulk.
type DocumentWriter interface {
	// BulkWrite inserts docs into destination in a single call.
	// Returns a *BulkWriteError alongside the result when some documents were
	// rejected, and an error wrapping ErrUnavailable when the store could not
	// be reached at all.
	BulkWrite(ctx context.Context, destination string, docs []*core.Document, opts WriteOptions) (*BulkResult, error)
}

// IndexManager manages secondary indexes of destinations.
type IndexManager interface {
	// CreateIndex creates spec on destination. Creating an index that already
	// exists with the same fields is a no-op.
	CreateIndex(ctx context.Context, destination string, spec core.IndexSpec) error

	// ListIndexes returns the secondary indexes of destination.
	ListIndexes(ctx context.Context, destination string) ([]core.IndexSpec, error)

	// SampleDocument returns one document of destination, or nil if it is empty.
	SampleDocument(ctx context.Context, destination string) (*core.Document, error)
}

// Store is a document-oriented store holding one collection per destination.
// Implementations must be thread-safe and support concurrent access.
type Store interface {
	DocumentWriter
	IndexManager

	// CountDocuments returns the number of documents in destination.
	CountDocuments(ctx context.Context, destination string) (int64, error)

	// ListDestinations returns the names of all non-empty destinations.
	ListDestinations(ctx context.Context) ([]string, error)

	// Close closes the storage backend and releases resources.
	Close() error
}
