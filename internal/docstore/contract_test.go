package docstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects the snapshots of one subscription.
type recorder struct {
	mu    sync.Mutex
	snaps [][]Document
}

func (r *recorder) fn(docs []Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, docs)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

// eventually waits until the latest snapshot satisfies ok.
func (r *recorder) eventually(t *testing.T, ok func([]Document) bool) []Document {
	t.Helper()
	require.Eventually(t, func() bool {
		return r.count() > 0 && ok(r.last())
	}, 5*time.Second, 10*time.Millisecond)
	return r.last()
}

func titles(docs []Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i] = fmt.Sprint(d.Data["title"])
	}
	return out
}

// runContract checks the behaviour every Store backend shares. Each run uses
// a fresh collection so backends with shared state don't interfere.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()
	coll := "tasks_" + uuid.NewString()[:8]
	q := func(user string) Query {
		return Query{Collection: coll, Field: "userId", Equals: user, OrderBy: "createdAt", Descending: true}
	}

	t.Run("initial snapshot", func(t *testing.T) {
		var r recorder
		unsub, err := s.Subscribe(ctx, q("nobody"), r.fn)
		require.NoError(t, err)
		defer unsub()
		r.eventually(t, func(d []Document) bool { return len(d) == 0 })
	})

	t.Run("filter and order", func(t *testing.T) {
		for _, d := range []map[string]any{
			{"title": "old", "userId": "alice", "createdAt": "2024-05-01T10:00:00.000Z"},
			{"title": "new", "userId": "alice", "createdAt": "2024-05-03T10:00:00.000Z"},
			{"title": "mid", "userId": "alice", "createdAt": "2024-05-02T10:00:00.000Z"},
			{"title": "bob's", "userId": "bob", "createdAt": "2024-05-04T10:00:00.000Z"},
		} {
			_, err := s.Create(ctx, coll, d)
			require.NoError(t, err)
		}

		var r recorder
		unsub, err := s.Subscribe(ctx, q("alice"), r.fn)
		require.NoError(t, err)
		defer unsub()

		docs := r.eventually(t, func(d []Document) bool { return len(d) == 3 })
		assert.Equal(t, []string{"new", "mid", "old"}, titles(docs))
		for _, d := range docs {
			assert.NotEmpty(t, d.ID)
			assert.NotContains(t, d.Data, "_id")
		}
	})

	t.Run("writes reach subscribers", func(t *testing.T) {
		var r recorder
		unsub, err := s.Subscribe(ctx, q("carol"), r.fn)
		require.NoError(t, err)
		defer unsub()
		r.eventually(t, func(d []Document) bool { return len(d) == 0 })

		id, err := s.Create(ctx, coll, map[string]any{
			"title": "first", "completed": false, "userId": "carol",
			"createdAt": "2024-05-01T10:00:00.000Z", "dueDate": "2024-05-09T00:00:00.000Z",
		})
		require.NoError(t, err)
		r.eventually(t, func(d []Document) bool { return len(d) == 1 && d[0].ID == id })

		require.NoError(t, s.Update(ctx, coll, id, map[string]any{"completed": true, "dueDate": DeleteField}))
		docs := r.eventually(t, func(d []Document) bool { return len(d) == 1 && d[0].Data["completed"] == true })
		assert.NotContains(t, docs[0].Data, "dueDate")
		assert.Equal(t, "first", docs[0].Data["title"])

		require.NoError(t, s.Delete(ctx, coll, id))
		r.eventually(t, func(d []Document) bool { return len(d) == 0 })
	})

	t.Run("missing documents", func(t *testing.T) {
		err := s.Update(ctx, coll, "does-not-exist", map[string]any{"completed": true})
		assert.True(t, errors.Is(err, ErrNotFound), "update: %v", err)
		err = s.Delete(ctx, coll, "does-not-exist")
		assert.True(t, errors.Is(err, ErrNotFound), "delete: %v", err)
	})

	t.Run("unsubscribe stops delivery", func(t *testing.T) {
		var r recorder
		unsub, err := s.Subscribe(ctx, q("dave"), r.fn)
		require.NoError(t, err)
		r.eventually(t, func(d []Document) bool { return true })

		unsub()
		unsub()
		// let an in-flight delivery finish
		time.Sleep(50 * time.Millisecond)
		before := r.count()

		_, err = s.Create(ctx, coll, map[string]any{"title": "late", "userId": "dave", "createdAt": "2024-05-01T10:00:00.000Z"})
		require.NoError(t, err)
		time.Sleep(200 * time.Millisecond)
		assert.Equal(t, before, r.count())
	})

	t.Run("incomplete query", func(t *testing.T) {
		_, err := s.Subscribe(ctx, Query{Collection: coll}, func([]Document) {})
		assert.Error(t, err)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, s.Ping(ctx))
	})
}
