package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	nanoid "github.com/jaevor/go-nanoid"
)

// ErrClosed is returned by every operation on a closed store.
var ErrClosed = errors.New("docstore: closed")

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// newIDGenerator returns a generator of 20 character alphanumeric ids.
func newIDGenerator() func() string {
	gen, err := nanoid.CustomASCII(idAlphabet, 20)
	if err != nil {
		panic(fmt.Sprintf("docstore: id generator: %v", err))
	}
	return gen
}

type memDoc struct {
	data map[string]any
	seq  int64
}

type memSub struct {
	q      Query
	notify chan struct{}
}

// Memory is an in-process Store. It backs dev mode and tests.
type Memory struct {
	mu          sync.Mutex
	collections map[string]map[string]*memDoc
	seq         int64
	subs        map[int64]*memSub
	cancels     map[int64]context.CancelFunc
	nextSubID   int64
	newID       func() string
	closed      bool
}

func NewMemory() *Memory {
	return &Memory{
		collections: make(map[string]map[string]*memDoc),
		subs:        make(map[int64]*memSub),
		cancels:     make(map[int64]context.CancelFunc),
		newID:       newIDGenerator(),
	}
}

func (m *Memory) Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &memSub{q: q, notify: make(chan struct{}, 1)}
	sub.notify <- struct{}{} // initial snapshot

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	id := m.nextSubID
	m.nextSubID++
	m.subs[id] = sub
	m.cancels[id] = cancel
	m.mu.Unlock()

	go func() {
		defer m.removeSub(id)
		for {
			select {
			case <-subCtx.Done():
				return
			case <-sub.notify:
				docs := m.query(q)
				if subCtx.Err() != nil {
					return
				}
				fn(docs)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			m.removeSub(id)
		})
	}, nil
}

func (m *Memory) removeSub(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cancel, ok := m.cancels[id]; ok {
		cancel()
	}
	delete(m.subs, id)
	delete(m.cancels, id)
}

// Subscribers returns the number of live subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}

func (m *Memory) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", ErrClosed
	}

	set, _ := splitFields(data)
	coll := m.collections[collection]
	if coll == nil {
		coll = make(map[string]*memDoc)
		m.collections[collection] = coll
	}

	id := m.newID()
	for coll[id] != nil {
		id = m.newID()
	}
	m.seq++
	coll[id] = &memDoc{data: set, seq: m.seq}
	m.notifyLocked(collection)
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	doc := m.collections[collection][id]
	if doc == nil {
		return fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}

	set, unset := splitFields(fields)
	next := copyData(doc.data)
	for k, v := range set {
		next[k] = v
	}
	for _, k := range unset {
		delete(next, k)
	}
	doc.data = next
	m.notifyLocked(collection)
	return nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if m.collections[collection][id] == nil {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(m.collections[collection], id)
	m.notifyLocked(collection)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
		delete(m.subs, id)
	}
	return nil
}

// notifyLocked flags every subscription on collection as dirty. A pending
// flag absorbs further writes until the subscriber reads the next snapshot.
func (m *Memory) notifyLocked(collection string) {
	for _, sub := range m.subs {
		if sub.q.Collection != collection {
			continue
		}
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}
}

func (m *Memory) query(q Query) []Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	type row struct {
		doc Document
		key string
		seq int64
	}
	var rows []row
	for id, d := range m.collections[q.Collection] {
		v, ok := d.data[q.Field]
		if !ok || fmt.Sprint(v) != q.Equals {
			continue
		}
		key := ""
		if ov, ok := d.data[q.OrderBy]; ok {
			key = fmt.Sprint(ov)
		}
		rows = append(rows, row{doc: Document{ID: id, Data: copyData(d.data)}, key: key, seq: d.seq})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.key != b.key {
			if q.Descending {
				return a.key > b.key
			}
			return a.key < b.key
		}
		if q.Descending {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})

	docs := make([]Document, len(rows))
	for i, r := range rows {
		docs[i] = r.doc
	}
	return docs
}

func copyData(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
