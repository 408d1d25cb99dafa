// Package silt is an embedded document database with a SQL-flavored update
// language. Documents are ordered BSON maps keyed by a 12-byte document id;
// mutations run as all-or-nothing update statements whose clauses are CEL
// expressions.
//
// A minimal session:
//
//	db, err := silt.Open(ctx, silt.Options{})
//	if err != nil { ... }
//	defer db.Close(ctx)
//
//	people := db.Collection("people")
//	id, err := people.Insert(ctx, model.Document{
//		{Key: "Name", Value: "ada"},
//		{Key: "Age", Value: int64(36)},
//	})
//
//	cur, err := db.Exec(ctx, `UPDATE people SET Age = Age + 1 WHERE Age > 30`)
//	n, err := model.DrainCount(cur)
package silt

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/siltdb/silt/internal/config"
	"github.com/siltdb/silt/internal/expr"
	"github.com/siltdb/silt/internal/logging"
	"github.com/siltdb/silt/internal/notify"
	"github.com/siltdb/silt/internal/storage"
	"github.com/siltdb/silt/pkg/model"
)

// Options configures Open. The zero value opens an in-memory database
// logging through slog.Default.
type Options struct {
	Storage storage.Config

	// Logger receives the database's log output. When nil and Logging is
	// set, a logger is built from that configuration; otherwise
	// slog.Default is used.
	Logger  *slog.Logger
	Logging *config.LoggingConfig

	// DisableEvents drops change notifications instead of distributing
	// them; Subscribe becomes a no-op.
	DisableEvents bool
}

// Database is an open database handle. It is safe for concurrent use.
type Database struct {
	backend  storage.Backend
	compiler *expr.Compiler
	gen      *model.IDGenerator
	bus      *notify.Bus
	log      *slog.Logger
	closed   atomic.Bool
}

// Open validates opts and brings up the storage backend.
func Open(ctx context.Context, opts Options) (*Database, error) {
	logger := opts.Logger
	if logger == nil && opts.Logging != nil {
		lcfg := *opts.Logging
		lcfg.ApplyDefaults()
		if err := lcfg.Validate(); err != nil {
			return nil, err
		}
		built, err := logging.New(lcfg)
		if err != nil {
			return nil, fmt.Errorf("initialize logging: %w", err)
		}
		logger = built
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Storage
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	backend, err := storage.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open backend: %w", err)
	}
	compiler, err := expr.NewCompiler()
	if err != nil {
		backend.Close(ctx)
		return nil, fmt.Errorf("initialize compiler: %w", err)
	}
	var bus *notify.Bus
	if !opts.DisableEvents {
		bus, err = notify.NewBus()
		if err != nil {
			backend.Close(ctx)
			return nil, err
		}
	}

	db := &Database{
		backend:  backend,
		compiler: compiler,
		gen:      model.NewIDGenerator(),
		bus:      bus,
		log:      logger.With("component", "silt"),
	}
	db.log.Debug("database opened", "backend", cfg.Type)
	return db, nil
}

// Collection returns a handle for name. The name is validated when the
// handle is first used.
func (db *Database) Collection(name string) *Collection {
	return &Collection{db: db, name: name}
}

// Collections lists the collection names that currently hold documents.
func (db *Database) Collections(ctx context.Context) ([]string, error) {
	if db.closed.Load() {
		return nil, model.ErrClosed
	}
	return db.backend.Collections(ctx)
}

// NewID mints a fresh document id from the database's generator.
func (db *Database) NewID() model.DocID {
	return db.gen.New()
}

// Subscribe registers cb for committed changes of the given kind. The
// returned function cancels the subscription.
func (db *Database) Subscribe(op notify.Op, cb func(ctx context.Context, ch notify.Change) error) func() {
	return db.bus.Subscribe(op, cb)
}

// Close shuts the backend down. Further operations return ErrClosed.
func (db *Database) Close(ctx context.Context) error {
	if db.closed.Swap(true) {
		return nil
	}
	db.log.Debug("database closed")
	return db.backend.Close(ctx)
}
