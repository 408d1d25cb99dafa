package silt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/siltdb/silt/internal/notify"
	"github.com/siltdb/silt/internal/sql"
	"github.com/siltdb/silt/pkg/model"
)

// Exec compiles and starts one update statement. The returned cursor yields
// one outcome per updated document; changes commit when the cursor drains
// and are discarded when it is closed early. A change notification goes out
// only after a successful commit.
func (db *Database) Exec(ctx context.Context, src string) (model.Cursor, error) {
	if db.closed.Load() {
		return nil, model.ErrClosed
	}

	st, err := sql.Parse(src, db.compiler)
	if err != nil {
		return nil, err
	}
	if !model.CheckCollectionName(st.Collection) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidCollection, st.Collection)
	}

	inner, err := db.backend.UpdateMany(ctx, st.Collection, st.Transform, st.Filter)
	if err != nil {
		return nil, err
	}
	traceID := uuid.NewString()
	db.log.Debug("statement started",
		"trace", traceID,
		"collection", st.Collection,
		"transform", st.Transform.Kind().String(),
		"filtered", st.Filter != nil,
	)
	return &execCursor{inner: inner, db: db, collection: st.Collection, traceID: traceID}, nil
}

// execCursor tracks the outcomes of one statement and emits the update
// notification once the underlying run commits.
type execCursor struct {
	inner      model.Cursor
	db         *Database
	collection string
	traceID    string
	ids        []model.DocID
	done       bool
}

func (c *execCursor) Next() bool {
	if c.inner.Next() {
		c.ids = append(c.ids, c.inner.Outcome().ID)
		return true
	}
	if !c.done {
		c.done = true
		if c.inner.Err() == nil {
			c.db.bus.Emit(notify.Change{
				TraceID:    c.traceID,
				Collection: c.collection,
				Op:         notify.OpUpdate,
				Count:      int64(len(c.ids)),
				IDs:        c.ids,
				Time:       time.Now(),
			})
			c.db.log.Debug("statement committed",
				"trace", c.traceID,
				"collection", c.collection, "updated", len(c.ids))
		}
	}
	return false
}

func (c *execCursor) Outcome() model.Outcome { return c.inner.Outcome() }

func (c *execCursor) Err() error { return c.inner.Err() }

func (c *execCursor) Close() error { return c.inner.Close() }
