// Package notify fans committed mutations out to in-process subscribers.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/asaidimu/go-events"

	"github.com/siltdb/silt/pkg/model"
)

// Op identifies the kind of change a notification reports.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
)

// Change describes one committed mutation. Count is the number of documents
// the mutation touched; for inserts it is always 1. IDs lists the affected
// documents in the order they were visited.
type Change struct {
	TraceID    string
	Collection string
	Op         Op
	Count      int64
	IDs        []model.DocID
	Time       time.Time
}

// Bus distributes changes to subscribers keyed by Op.
type Bus struct {
	bus *events.TypedEventBus[Change]
}

func NewBus() (*Bus, error) {
	bus, err := events.NewTypedEventBus[Change](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("initialize event bus: %w", err)
	}
	return &Bus{bus: bus}, nil
}

// Emit publishes a change. A nil bus drops it, so callers that never wired
// notifications need no guards.
func (b *Bus) Emit(ch Change) {
	if b == nil || b.bus == nil {
		return
	}
	b.bus.Emit(string(ch.Op), ch)
}

// Subscribe registers cb for changes of the given op and returns a function
// that removes the subscription. On a nil bus the subscription is a no-op.
func (b *Bus) Subscribe(op Op, cb func(ctx context.Context, ch Change) error) func() {
	if b == nil || b.bus == nil {
		return func() {}
	}
	return b.bus.Subscribe(string(op), cb)
}
