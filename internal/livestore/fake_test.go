package livestore

import (
	"context"
	"errors"
	"sync"

	"tasksync/internal/docstore"
)

// fakeDocs is a docstore.Store whose subscriptions are driven by hand: the
// test calls push to deliver a snapshot to a captured callback.
type fakeDocs struct {
	mu           sync.Mutex
	subs         []*fakeSub
	writes       int
	subscribeErr error
	updates      []map[string]any
}

type fakeSub struct {
	q         docstore.Query
	fn        docstore.SnapshotFunc
	cancelled bool
}

func (f *fakeDocs) Subscribe(_ context.Context, q docstore.Query, fn docstore.SnapshotFunc) (docstore.Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	sub := &fakeSub{q: q, fn: fn}
	f.subs = append(f.subs, sub)
	return func() {
		f.mu.Lock()
		sub.cancelled = true
		f.mu.Unlock()
	}, nil
}

func (f *fakeDocs) sub(i int) *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs[i]
}

func (f *fakeDocs) subCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *fakeDocs) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func (s *fakeSub) push(docs ...docstore.Document) {
	s.fn(docs)
}

func (f *fakeDocs) Create(context.Context, string, map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return "new-id", nil
}

func (f *fakeDocs) Update(_ context.Context, _, _ string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	f.updates = append(f.updates, fields)
	return nil
}

func (f *fakeDocs) Delete(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	return nil
}

func (f *fakeDocs) Ping(context.Context) error  { return nil }
func (f *fakeDocs) Close(context.Context) error { return nil }

var errBackend = errors.New("backend down")

func doc(id, user, createdAt string, extra map[string]any) docstore.Document {
	data := map[string]any{
		"title":     "task " + id,
		"completed": false,
		"createdAt": createdAt,
		"userId":    user,
	}
	for k, v := range extra {
		data[k] = v
	}
	return docstore.Document{ID: id, Data: data}
}
