package silt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/siltdb/silt/internal/notify"
	"github.com/siltdb/silt/pkg/model"
)

// Collection is a named set of documents inside a Database.
type Collection struct {
	db   *Database
	name string
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Insert stores doc and returns its id. A document without an identity gets
// one minted; the caller's document is not modified.
func (c *Collection) Insert(ctx context.Context, doc model.Document) (model.DocID, error) {
	if c.db.closed.Load() {
		return model.DocID{}, model.ErrClosed
	}
	if !model.CheckCollectionName(c.name) {
		return model.DocID{}, fmt.Errorf("%w: %q", model.ErrInvalidCollection, c.name)
	}

	id, ok := doc.ID()
	if !ok {
		if doc.Has(model.IDField) {
			return model.DocID{}, model.ErrInvalidDocumentID
		}
		id = c.db.gen.New()
		doc = doc.Clone()
		doc.SetID(id)
	}
	if err := doc.Validate(); err != nil {
		return model.DocID{}, err
	}

	if err := c.db.backend.Insert(ctx, c.name, doc); err != nil {
		return model.DocID{}, err
	}

	c.db.bus.Emit(notify.Change{
		TraceID:    uuid.NewString(),
		Collection: c.name,
		Op:         notify.OpInsert,
		Count:      1,
		IDs:        []model.DocID{id},
		Time:       time.Now(),
	})
	return id, nil
}

// Get loads the document with the given id.
func (c *Collection) Get(ctx context.Context, id model.DocID) (model.Document, error) {
	if c.db.closed.Load() {
		return nil, model.ErrClosed
	}
	if !model.CheckCollectionName(c.name) {
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidCollection, c.name)
	}
	return c.db.backend.Get(ctx, c.name, id)
}

// Count reports how many documents the collection holds.
func (c *Collection) Count(ctx context.Context) (int64, error) {
	if c.db.closed.Load() {
		return 0, model.ErrClosed
	}
	if !model.CheckCollectionName(c.name) {
		return 0, fmt.Errorf("%w: %q", model.ErrInvalidCollection, c.name)
	}
	return c.db.backend.Count(ctx, c.name)
}
