// Package storage defines the persistence contract of the database and the
// factory that selects a backend implementation.
package storage

import (
	"context"

	"github.com/siltdb/silt/internal/expr"
	"github.com/siltdb/silt/pkg/model"
)

// Backend persists documents and executes update runs.
//
// UpdateMany owns the mutation pipeline: it walks a stable snapshot of the
// collection, applies the transform to every document the filter matches and
// streams one outcome per changed document. Draining the cursor commits the
// run atomically; closing it before exhaustion rolls every change back. A
// failed run reports model.ErrMutationFailed through the cursor and leaves
// the collection untouched.
type Backend interface {
	// Insert persists a new document carrying its identity field. A duplicate
	// identity fails with model.ErrExists.
	Insert(ctx context.Context, collection string, doc model.Document) error

	// Get fetches one document by id, model.ErrNotFound when absent.
	Get(ctx context.Context, collection string, id model.DocID) (model.Document, error)

	// Count reports how many documents the collection holds. Unknown
	// collections count zero.
	Count(ctx context.Context, collection string) (int64, error)

	// Collections lists the known collection names, sorted.
	Collections(ctx context.Context) ([]string, error)

	// UpdateMany starts an update run. A nil filter matches every document.
	// Unknown collections yield an exhausted cursor.
	UpdateMany(ctx context.Context, collection string, tf *expr.Transform, filter *expr.Predicate) (model.Cursor, error)

	// Close releases the backend. Operations after Close fail with
	// model.ErrClosed.
	Close(ctx context.Context) error
}
