// Package sqlite implements the storage backend on a SQLite database file.
// Documents are stored as BSON blobs keyed by (collection, id). An update run
// executes inside one transaction: the scan walks the stable view the
// transaction opened with, staged changes accumulate in a temp table and are
// folded into the documents table only when the cursor drains.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/mattn/go-sqlite3"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/siltdb/silt/internal/expr"
	"github.com/siltdb/silt/pkg/model"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         BLOB NOT NULL,
	data       BLOB NOT NULL,
	PRIMARY KEY (collection, id)
)`

// Store is the SQLite storage backend.
type Store struct {
	db     *sql.DB
	log    *slog.Logger
	closed atomic.Bool
}

// New opens or creates the database at path. The special path ":memory:"
// keeps the database in process memory. A nil logger uses slog.Default.
func New(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// sqlite allows one writer at a time; a single connection sidesteps
	// SQLITE_BUSY and keeps temp tables scoped to one session.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, log: logger.With("backend", "sqlite")}, nil
}

func (s *Store) Insert(ctx context.Context, collection string, doc model.Document) error {
	if s.closed.Load() {
		return model.ErrClosed
	}
	id, ok := doc.ID()
	if !ok {
		return model.ErrInvalidDocumentID
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}
	idb := id.Bytes()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		collection, idb[:], raw)
	if err != nil {
		var serr sqlite3.Error
		if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
			return model.ErrExists
		}
		return model.WrapError(fmt.Errorf("insert %s/%s: %w", collection, id, err))
	}
	return nil
}

func (s *Store) Get(ctx context.Context, collection string, id model.DocID) (model.Document, error) {
	if s.closed.Load() {
		return nil, model.ErrClosed
	}
	idb := id.Bytes()
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`,
		collection, idb[:]).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, model.WrapError(fmt.Errorf("load %s/%s: %w", collection, id, err))
	}
	var doc model.Document
	if err := bson.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

func (s *Store) Count(ctx context.Context, collection string) (int64, error) {
	if s.closed.Load() {
		return 0, model.ErrClosed
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, collection).Scan(&n)
	if err != nil {
		return 0, model.WrapError(fmt.Errorf("count %s: %w", collection, err))
	}
	return n, nil
}

func (s *Store) Collections(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, model.ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT collection FROM documents ORDER BY collection`)
	if err != nil {
		return nil, model.WrapError(fmt.Errorf("list collections: %w", err))
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan collection name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, model.WrapError(err)
	}
	return names, nil
}

// UpdateMany starts an update run. The whole run lives in one transaction;
// because the store uses a single connection, other operations wait until the
// cursor commits or rolls back.
func (s *Store) UpdateMany(ctx context.Context, collection string, tf *expr.Transform, filter *expr.Predicate) (model.Cursor, error) {
	if s.closed.Load() {
		return nil, model.ErrClosed
	}
	if tf == nil {
		return nil, errors.New("nil transform")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, model.WrapError(fmt.Errorf("begin update run: %w", err))
	}
	for _, stmt := range []string{
		`DROP TABLE IF EXISTS temp.staged`,
		`CREATE TEMP TABLE staged (id BLOB PRIMARY KEY, data BLOB NOT NULL)`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, model.WrapError(fmt.Errorf("prepare staging: %w", err))
		}
	}
	rows, err := tx.QueryContext(ctx,
		`SELECT id, data FROM documents WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		tx.Rollback()
		return nil, model.WrapError(fmt.Errorf("scan %s: %w", collection, err))
	}
	return &updateCursor{
		ctx:        ctx,
		store:      s,
		tx:         tx,
		rows:       rows,
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
	return s.db.Close()
}

// updateCursor drives one update run. Changes are staged away from the table
// being scanned, so a mutated document can never be visited again within the
// same run.
type updateCursor struct {
	ctx        context.Context
	store      *Store
	tx         *sql.Tx
	rows       *sql.Rows
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
		if !c.rows.Next() {
			if err := c.rows.Err(); err != nil {
				c.fail(fmt.Errorf("%w: scan: %v", model.ErrMutationFailed, err))
				return false
			}
			c.rows.Close()
			if err := c.commit(); err != nil {
				c.err = fmt.Errorf("%w: commit: %v", model.ErrMutationFailed, err)
				c.done = true
				c.store.log.Warn("update run failed",
					"collection", c.collection, "error", c.err)
				return false
			}
			c.done = true
			c.store.log.Debug("update run committed",
				"collection", c.collection, "updated", c.count)
			return false
		}

		var idb, data []byte
		if err := c.rows.Scan(&idb, &data); err != nil {
			c.fail(fmt.Errorf("%w: read row: %v", model.ErrMutationFailed, err))
			return false
		}
		var doc model.Document
		if err := bson.Unmarshal(data, &doc); err != nil {
			c.fail(fmt.Errorf("%w: decode document: %v", model.ErrMutationFailed, err))
			return false
		}
		if c.filter != nil && !c.filter.Matches(doc) {
			continue
		}
		updated, err := c.transform.Apply(doc)
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", model.ErrMutationFailed, err))
			return false
		}
		newRaw, err := bson.Marshal(updated)
		if err != nil {
			c.fail(fmt.Errorf("%w: encode document: %v", model.ErrMutationFailed, err))
			return false
		}
		if _, err := c.tx.ExecContext(c.ctx,
			`INSERT OR REPLACE INTO staged (id, data) VALUES (?, ?)`, idb, newRaw); err != nil {
			c.fail(fmt.Errorf("%w: stage change: %v", model.ErrMutationFailed, err))
			return false
		}

		id, err := model.DocIDFromBytes(idb)
		if err != nil {
			c.fail(fmt.Errorf("%w: %v", model.ErrMutationFailed, err))
			return false
		}
		c.count++
		c.outcome = model.Outcome{ID: id}
		return true
	}
}

// commit folds the staged changes into the documents table and commits.
func (c *updateCursor) commit() error {
	if c.count > 0 {
		if _, err := c.tx.ExecContext(c.ctx,
			`UPDATE documents
			 SET data = (SELECT s.data FROM staged s WHERE s.id = documents.id)
			 WHERE collection = ? AND id IN (SELECT id FROM staged)`,
			c.collection); err != nil {
			c.tx.Rollback()
			return err
		}
	}
	return c.tx.Commit()
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
		c.rows.Close()
		c.tx.Rollback()
		c.store.log.Debug("update run rolled back",
			"collection", c.collection, "staged", c.count)
	}
	return nil
}

func (c *updateCursor) fail(err error) {
	c.err = err
	c.rows.Close()
	c.tx.Rollback()
	c.done = true
	c.store.log.Warn("update run failed",
		"collection", c.collection, "error", err)
}
