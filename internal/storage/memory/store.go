// Package memory implements the storage backend on an in-memory radix tree
// database with MVCC transactions. An update run holds the single writer
// while it is open; concurrent readers keep seeing the last committed state
// until the run commits.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"github.com/hashicorp/go-memdb"

	"github.com/siltdb/silt/internal/expr"
	"github.com/siltdb/silt/pkg/model"
)

const tableDocuments = "documents"

// record is the stored unit. Key is "<collection>/<id hex>" so the primary
// index orders records by collection, then id.
type record struct {
	Key        string
	Collection string
	ID         model.DocID
	Doc        model.Document
}

func recordKey(collection string, id model.DocID) string {
	return collection + "/" + id.String()
}

func schema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableDocuments: {
				Name: tableDocuments,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
					"collection": {
						Name:    "collection",
						Indexer: &memdb.StringFieldIndex{Field: "Collection"},
					},
				},
			},
		},
	}
}

// Store is the in-memory storage backend.
type Store struct {
	db     *memdb.MemDB
	log    *slog.Logger
	closed atomic.Bool
}

// New creates an empty store. A nil logger uses slog.Default.
func New(logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &Store{db: db, log: logger.With("backend", "memory")}, nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc model.Document) error {
	if s.closed.Load() {
		return model.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return model.WrapError(err)
	}
	id, ok := doc.ID()
	if !ok {
		return model.ErrInvalidDocumentID
	}

	txn := s.db.Txn(true)
	defer txn.Abort()

	key := recordKey(collection, id)
	existing, err := txn.First(tableDocuments, "id", key)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", key, err)
	}
	if existing != nil {
		return model.ErrExists
	}
	rec := &record{Key: key, Collection: collection, ID: id, Doc: doc.Clone()}
	if err := txn.Insert(tableDocuments, rec); err != nil {
		return fmt.Errorf("insert %s: %w", key, err)
	}
	txn.Commit()
	return nil
}

func (s *Store) Get(ctx context.Context, collection string, id model.DocID) (model.Document, error) {
	if s.closed.Load() {
		return nil, model.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}

	txn := s.db.Txn(false)
	raw, err := txn.First(tableDocuments, "id", recordKey(collection, id))
	if err != nil {
		return nil, fmt.Errorf("lookup %s/%s: %w", collection, id, err)
	}
	if raw == nil {
		return nil, model.ErrNotFound
	}
	return raw.(*record).Doc.Clone(), nil
}

func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	if s.closed.Load() {
		return 0, model.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return 0, model.WrapError(err)
	}

	txn := s.db.Txn(false)
	it, err := txn.Get(tableDocuments, "collection", collection)
	if err != nil {
		return 0, fmt.Errorf("scan %s: %w", collection, err)
	}
	var n int64
	for raw := it.Next(); raw != nil; raw = it.Next() {
		n++
	}
	return n, nil
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, model.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}

	txn := s.db.Txn(false)
	it, err := txn.Get(tableDocuments, "id")
	if err != nil {
		return nil, fmt.Errorf("scan collections: %w", err)
	}
	seen := make(map[string]struct{})
	for raw := it.Next(); raw != nil; raw = it.Next() {
		seen[raw.(*record).Collection] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// UpdateMany starts an update run over a point-in-time snapshot of the
// collection. Staged changes land in the returned cursor's write transaction,
// never in the snapshot being walked, so no document is visited twice. The
// run holds the database writer until the cursor commits or rolls back.
func (s *Store) UpdateMany(ctx context.Context, collection string, tf *expr.Transform, filter *expr.Predicate) (model.Cursor, error) {
	if s.closed.Load() {
		return nil, model.ErrClosed
	}
	if tf == nil {
		return nil, errors.New("nil transform")
	}
	if err := ctx.Err(); err != nil {
		return nil, model.WrapError(err)
	}

	txn := s.db.Txn(true)
	it, err := txn.Snapshot().Get(tableDocuments, "collection", collection)
	if err != nil {
		txn.Abort()
		return nil, fmt.Errorf("scan %s: %w", collection, err)
	}
	return &updateCursor{
		ctx:        ctx,
		store:      s,
		txn:        txn,
		it:         it,
		collection: collection,
		transform:  tf,
		filter:     filter,
	}, nil
}

func (s *Store) Close(ctx context.Context) error {
	if s.closed.Swap(true) {
		return nil
	}
	s.log.Debug("store closed")
	return nil
}

// updateCursor drives one update run. Outcomes are produced lazily as the
// caller advances; exhaustion commits, early close rolls back.
type updateCursor struct {
	ctx        context.Context
	store      *Store
	txn        *memdb.Txn
	it         memdb.ResultIterator
	collection string
	transform  *expr.Transform
	filter     *expr.Predicate

	outcome model.Outcome
	count   int64
	err     error
	done    bool
	closed  bool
}

func (c *updateCursor) Next() bool {
	if c.done || c.closed {
		return false
	}
	for {
		if err := c.ctx.Err(); err != nil {
			c.fail(model.WrapError(err))
			return false
		}
		raw := c.it.Next()
		if raw == nil {
			c.txn.Commit()
			c.done = true
			c.store.log.Debug("update run committed",
				"collection", c.collection, "updated", c.count)
			return false
		}
		rec := raw.(*record)
		if c.filter != nil && !c.filter.Matches(rec.Doc) {
			continue
		}
		updated, err := c.transform.Apply(rec.Doc)
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", model.ErrMutationFailed, err))
			return false
		}
		staged := &record{Key: rec.Key, Collection: rec.Collection, ID: rec.ID, Doc: updated}
		if err := c.txn.Insert(tableDocuments, staged); err != nil {
			c.fail(fmt.Errorf("%w: stage %s: %v", model.ErrMutationFailed, rec.Key, err))
			return false
		}
		c.count++
		c.outcome = model.Outcome{ID: rec.ID}
		return true
	}
}

// Outcome is valid only after Next has returned true.
func (c *updateCursor) Outcome() model.Outcome { return c.outcome }

func (c *updateCursor) Err() error { return c.err }

func (c *updateCursor) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.done {
		c.txn.Abort()
		c.store.log.Debug("update run rolled back",
			"collection", c.collection, "staged", c.count)
	}
	return nil
}

func (c *updateCursor) fail(err error) {
	c.err = err
	c.txn.Abort()
	c.done = true
	c.store.log.Warn("update run failed",
		"collection", c.collection, "error", err)
}
