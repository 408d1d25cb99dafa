package storage_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/siltdb/silt/internal/expr"
	"github.com/siltdb/silt/internal/sql/scan"
	"github.com/siltdb/silt/internal/storage"
	"github.com/siltdb/silt/internal/storage/memory"
	"github.com/siltdb/silt/internal/storage/sqlite"
	"github.com/siltdb/silt/pkg/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type backendCase struct {
	name string
	open func(t *testing.T) storage.Backend
}

func backends() []backendCase {
	return []backendCase{
		{
			name: "memory",
			open: func(t *testing.T) storage.Backend {
				store, err := memory.New(testLogger())
				require.NoError(t, err)
				return store
			},
		},
		{
			name: "sqlite",
			open: func(t *testing.T) storage.Backend {
				path := filepath.Join(t.TempDir(), "silt.db")
				store, err := sqlite.New(context.Background(), path, testLogger())
				require.NoError(t, err)
				return store
			},
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, be storage.Backend)) {
	for _, bc := range backends() {
		t.Run(bc.name, func(t *testing.T) {
			be := bc.open(t)
			t.Cleanup(func() { be.Close(context.Background()) })
			fn(t, be)
		})
	}
}

// seedPeople inserts n documents with ages 10, 20, ... n*10 and returns their
// ids in insertion order.
func seedPeople(t *testing.T, be storage.Backend, collection string, n int) []model.DocID {
	t.Helper()
	gen := model.NewIDGenerator()
	ids := make([]model.DocID, 0, n)
	for i := 1; i <= n; i++ {
		id := gen.New()
		doc := model.Document{
			{Key: "_id", Value: id},
			{Key: "Name", Value: fmt.Sprintf("user-%02d", i)},
			{Key: "Age", Value: int64(i * 10)},
		}
		require.NoError(t, be.Insert(context.Background(), collection, doc))
		ids = append(ids, id)
	}
	return ids
}

func rawDocs(t *testing.T, be storage.Backend, collection string, ids []model.DocID) map[model.DocID][]byte {
	t.Helper()
	out := make(map[model.DocID][]byte, len(ids))
	for _, id := range ids {
		doc, err := be.Get(context.Background(), collection, id)
		require.NoError(t, err)
		raw, err := bson.Marshal(doc)
		require.NoError(t, err)
		out[id] = raw
	}
	return out
}

func mustTransform(t *testing.T, src string) *expr.Transform {
	t.Helper()
	comp, err := expr.NewCompiler()
	require.NoError(t, err)
	tf, err := comp.CompileTransform(scan.New(src))
	require.NoError(t, err)
	return tf
}

func mustFilter(t *testing.T, src string) *expr.Predicate {
	t.Helper()
	comp, err := expr.NewCompiler()
	require.NoError(t, err)
	flt, err := comp.CompileFilter(scan.New(src))
	require.NoError(t, err)
	return flt
}

func drain(t *testing.T, cur model.Cursor) []model.Outcome {
	t.Helper()
	var out []model.Outcome
	for cur.Next() {
		out = append(out, cur.Outcome())
	}
	require.NoError(t, cur.Err())
	require.NoError(t, cur.Close())
	return out
}

func TestBackendInsertGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		gen := model.NewIDGenerator()
		id := gen.New()
		doc := model.Document{
			{Key: "_id", Value: id},
			{Key: "Name", Value: "ada"},
			{Key: "Age", Value: int64(36)},
		}
		require.NoError(t, be.Insert(ctx, "people", doc))

		got, err := be.Get(ctx, "people", id)
		require.NoError(t, err)
		gotID, ok := got.ID()
		require.True(t, ok)
		assert.True(t, gotID.Equal(id))
		name, _ := got.Get("Name")
		assert.Equal(t, "ada", name)
		age, _ := got.Get("Age")
		assert.Equal(t, int64(36), age)

		require.ErrorIs(t, be.Insert(ctx, "people", doc), model.ErrExists)

		_, err = be.Get(ctx, "people", gen.New())
		require.ErrorIs(t, err, model.ErrNotFound)

		err = be.Insert(ctx, "people", model.Document{{Key: "Name", Value: "noid"}})
		require.ErrorIs(t, err, model.ErrInvalidDocumentID)
	})
}

func TestBackendCountAndCollections(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		seedPeople(t, be, "people", 3)
		seedPeople(t, be, "orders", 2)

		n, err := be.Count(ctx, "people")
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		n, err = be.Count(ctx, "orders")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		n, err = be.Count(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, int64(0), n)

		names, err := be.Collections(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"orders", "people"}, names)
	})
}

func TestBackendUpdateManyMergeFiltered(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 10)
		before := rawDocs(t, be, "people", ids)

		tf := mustTransform(t, `Status = "senior", Age = Age + 1`)
		flt := mustFilter(t, `Age > 60`)

		cur, err := be.UpdateMany(ctx, "people", tf, flt)
		require.NoError(t, err)
		outcomes := drain(t, cur)

		// ages 70..100 match, visited in ascending id order
		require.Len(t, outcomes, 4)
		for i, oc := range outcomes {
			assert.True(t, oc.ID.Equal(ids[6+i]), "outcome %d", i)
		}

		after := rawDocs(t, be, "people", ids)
		for i, id := range ids {
			if i < 6 {
				assert.Equal(t, before[id], after[id], "document %d must be untouched", i)
				continue
			}
			doc, err := be.Get(ctx, "people", id)
			require.NoError(t, err)
			assert.Equal(t, []string{"_id", "Name", "Age", "Status"}, doc.Keys())
			age, _ := doc.Get("Age")
			assert.Equal(t, int64((i+1)*10+1), age)
			status, _ := doc.Get("Status")
			assert.Equal(t, "senior", status)
		}
	})
}

func TestBackendUpdateManyReplaceAll(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 4)

		tf := mustTransform(t, `{ State: "archived", Seq: Age / 10 }`)
		cur, err := be.UpdateMany(ctx, "people", tf, nil)
		require.NoError(t, err)
		outcomes := drain(t, cur)
		require.Len(t, outcomes, 4)

		for i, id := range ids {
			doc, err := be.Get(ctx, "people", id)
			require.NoError(t, err)
			assert.Equal(t, []string{"_id", "State", "Seq"}, doc.Keys())
			gotID, ok := doc.ID()
			require.True(t, ok)
			assert.True(t, gotID.Equal(id))
			state, _ := doc.Get("State")
			assert.Equal(t, "archived", state)
			seq, _ := doc.Get("Seq")
			assert.Equal(t, int64(i+1), seq)
		}
	})
}

func TestBackendUpdateManyNoMatches(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 3)
		before := rawDocs(t, be, "people", ids)

		cur, err := be.UpdateMany(ctx, "people",
			mustTransform(t, `Status = "senior"`), mustFilter(t, `Age > 1000`))
		require.NoError(t, err)
		assert.Empty(t, drain(t, cur))

		assert.Equal(t, before, rawDocs(t, be, "people", ids))
	})
}

func TestBackendUpdateManyUnknownCollection(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		cur, err := be.UpdateMany(context.Background(), "ghosts",
			mustTransform(t, `X = 1`), nil)
		require.NoError(t, err)
		assert.False(t, cur.Next())
		require.NoError(t, cur.Err())
		require.NoError(t, cur.Close())
	})
}

func TestBackendUpdateManyEarlyCloseDiscardsChanges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 5)
		before := rawDocs(t, be, "people", ids)

		cur, err := be.UpdateMany(ctx, "people", mustTransform(t, `Touched = true`), nil)
		require.NoError(t, err)
		require.True(t, cur.Next())
		require.True(t, cur.Next())
		require.NoError(t, cur.Close())
		require.NoError(t, cur.Err())

		assert.Equal(t, before, rawDocs(t, be, "people", ids))
	})
}

func TestBackendUpdateManyEvalErrorDiscardsChanges(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 5)
		before := rawDocs(t, be, "people", ids)

		cur, err := be.UpdateMany(ctx, "people", mustTransform(t, `Score = Missing + 1`), nil)
		require.NoError(t, err)
		assert.False(t, cur.Next())
		require.ErrorIs(t, cur.Err(), model.ErrMutationFailed)
		require.NoError(t, cur.Close())

		assert.Equal(t, before, rawDocs(t, be, "people", ids))
	})
}

func TestBackendUpdateManyCanceledContext(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ids := seedPeople(t, be, "people", 5)
		before := rawDocs(t, be, "people", ids)

		ctx, cancel := context.WithCancel(context.Background())
		cur, err := be.UpdateMany(ctx, "people", mustTransform(t, `Touched = true`), nil)
		require.NoError(t, err)
		require.True(t, cur.Next())
		cancel()
		assert.False(t, cur.Next())
		require.Error(t, cur.Err())
		assert.True(t, model.IsCanceled(cur.Err()))
		require.NoError(t, cur.Close())

		assert.Equal(t, before, rawDocs(t, be, "people", ids))
	})
}

func TestBackendUpdateManyRerunIsIdempotent(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 10)

		run := func() int {
			cur, err := be.UpdateMany(ctx, "people",
				mustTransform(t, `Status = "senior"`), mustFilter(t, `Age > 60`))
			require.NoError(t, err)
			return len(drain(t, cur))
		}

		assert.Equal(t, 4, run())
		after1 := rawDocs(t, be, "people", ids)
		assert.Equal(t, 4, run())
		after2 := rawDocs(t, be, "people", ids)

		assert.Equal(t, after1, after2)
	})
}

func TestBackendClosedRejectsOperations(t *testing.T) {
	forEachBackend(t, func(t *testing.T, be storage.Backend) {
		ctx := context.Background()
		ids := seedPeople(t, be, "people", 1)
		require.NoError(t, be.Close(ctx))

		err := be.Insert(ctx, "people", model.Document{{Key: "_id", Value: ids[0]}})
		require.ErrorIs(t, err, model.ErrClosed)
		_, err = be.Get(ctx, "people", ids[0])
		require.ErrorIs(t, err, model.ErrClosed)
		_, err = be.Count(ctx, "people")
		require.ErrorIs(t, err, model.ErrClosed)
		_, err = be.Collections(ctx)
		require.ErrorIs(t, err, model.ErrClosed)
		_, err = be.UpdateMany(ctx, "people", mustTransform(t, `X = 1`), nil)
		require.ErrorIs(t, err, model.ErrClosed)

		// closing twice is fine
		require.NoError(t, be.Close(ctx))
	})
}
