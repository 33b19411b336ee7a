// Package livestore keeps one user's task list in sync with the document
// store through a live query.
//
// The local list is only ever replaced wholesale by snapshots pushed from the
// subscription. Mutations write to the document store and return once the
// write is acknowledged; their effect shows up with the next snapshot.
package livestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tasksync/internal/docstore"
	"tasksync/internal/domain"
	"tasksync/internal/identity"
	"tasksync/internal/logger"
)

// ErrClosed is returned by SetIdentity after Close.
var ErrClosed = errors.New("livestore: closed")

// DefaultCollection is the collection tasks are stored in.
const DefaultCollection = "tasks"

// State is where the store is in its subscription lifecycle.
type State int

const (
	// Unauthenticated: no identity, no tasks, not loading.
	Unauthenticated State = iota
	// Subscribing: identity known, waiting for the first snapshot.
	Subscribing
	// Live: tasks reflect the latest snapshot.
	Live
	// TornDown: the subscription for the identity is gone, either because
	// the store was closed or because subscribing failed.
	TornDown
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case Subscribing:
		return "subscribing"
	case Live:
		return "live"
	case TornDown:
		return "torn_down"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// View is a consistent copy of the store state.
type View struct {
	Identity string        `json:"-"`
	State    State         `json:"state"`
	Loading  bool          `json:"loading"`
	Tasks    []domain.Task `json:"tasks"`
}

// Option configures a Store.
type Option func(*Store)

// WithCollection sets the collection tasks are read from and written to.
func WithCollection(name string) Option {
	return func(s *Store) { s.collection = name }
}

// WithLogger replaces the component logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithClock sets the time source used for createdAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// OnChange registers fn to receive every state change, in order. fn runs
// under the store's notification lock and must not call back into the Store.
func OnChange(fn func(View)) Option {
	return func(s *Store) { s.onChange = fn }
}

// Store is the live task list of whichever identity is current.
type Store struct {
	docs       docstore.Store
	collection string
	now        func() time.Time
	log        *slog.Logger
	onChange   func(View)

	ctx    context.Context
	cancel context.CancelFunc

	// serializes identity changes end to end, including the subscribe call
	identMu sync.Mutex

	mu       sync.Mutex
	state    State
	identity string
	tasks    []domain.Task
	gen      uint64 // bumped on every (re)subscribe and teardown
	unsub    docstore.Unsubscribe
	closed   bool

	// held while calling onChange so views are delivered in order
	notifyMu sync.Mutex
}

// New returns an unauthenticated store reading tasks from docs.
func New(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:       docs,
		collection: DefaultCollection,
		now:        time.Now,
		log:        logger.Component("livestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s
}

// SetIdentity switches the store to id; the empty string signs out. The
// previous subscription is cancelled before the next one opens, and any
// snapshot it still delivers is ignored.
func (s *Store) SetIdentity(id string) error {
	s.identMu.Lock()
	defer s.identMu.Unlock()
	return s.setIdentity(id)
}

// Sync switches the store to whatever src reports right now. Values read
// from a subscription may already be stale; Sync never applies those.
func (s *Store) Sync(src identity.Source) error {
	s.identMu.Lock()
	defer s.identMu.Unlock()
	id, _ := src.Current()
	return s.setIdentity(id)
}

func (s *Store) setIdentity(id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if id == s.identity && s.state != TornDown {
		s.mu.Unlock()
		return nil
	}

	old := s.unsub
	s.unsub = nil
	s.gen++
	gen := s.gen
	s.identity = id
	s.tasks = nil
	if id == "" {
		s.state = Unauthenticated
	} else {
		s.state = Subscribing
	}
	view := s.viewLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	if old != nil {
		old()
		activeSubscriptions.Dec()
	}
	s.emit(view)

	if id == "" {
		s.log.Debug("signed out")
		return nil
	}

	q := docstore.Query{
		Collection: s.collection,
		Field:      domain.FieldUserID,
		Equals:     id,
		OrderBy:    domain.FieldCreatedAt,
		Descending: true,
	}
	unsub, err := s.docs.Subscribe(s.ctx, q, func(docs []docstore.Document) {
		s.apply(gen, docs)
	})

	s.mu.Lock()
	if err != nil {
		if s.gen == gen {
			s.state = TornDown
			view := s.viewLocked()
			s.notifyMu.Lock()
			s.mu.Unlock()
			s.emit(view)
		} else {
			s.mu.Unlock()
		}
		s.log.Error("subscribe failed", "user_id", id, "error", err)
		return fmt.Errorf("subscribe tasks of %s: %w", id, err)
	}
	if s.gen != gen {
		// superseded by a later SetIdentity or Close while subscribing
		s.mu.Unlock()
		unsub()
		return nil
	}
	s.unsub = unsub
	s.mu.Unlock()

	activeSubscriptions.Inc()
	s.log.Debug("subscribed", "user_id", id, "query", q.String())
	return nil
}

// Follow syncs the store with src on every change src reports until ctx
// ends, then closes the store. It blocks.
func (s *Store) Follow(ctx context.Context, src identity.Source) {
	defer s.Close()
	for range src.Subscribe(ctx) {
		if err := s.Sync(src); err != nil {
			if errors.Is(err, ErrClosed) {
				return
			}
			s.log.Warn("identity change failed", "error", err)
		}
	}
}

// Close cancels the subscription and drops all tasks. It is final.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	old := s.unsub
	s.unsub = nil
	s.gen++
	s.state = TornDown
	s.tasks = nil
	view := s.viewLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	if old != nil {
		old()
		activeSubscriptions.Dec()
	}
	s.cancel()
	s.emit(view)
}

func (s *Store) apply(gen uint64, docs []docstore.Document) {
	tasks := make([]domain.Task, 0, len(docs))
	for _, d := range docs {
		t, err := taskFromDocument(d)
		if err != nil {
			s.log.Warn("skipping malformed task", "task_id", d.ID, "error", err)
			continue
		}
		tasks = append(tasks, t)
	}

	s.mu.Lock()
	if gen != s.gen || s.closed {
		s.mu.Unlock()
		staleSnapshots.Inc()
		return
	}
	s.tasks = tasks
	s.state = Live
	view := s.viewLocked()
	s.notifyMu.Lock()
	s.mu.Unlock()

	snapshotsApplied.Inc()
	s.emit(view)
}

// emit must be called with notifyMu held; it releases it.
func (s *Store) emit(v View) {
	defer s.notifyMu.Unlock()
	if s.onChange != nil {
		s.onChange(v)
	}
}

func (s *Store) viewLocked() View {
	tasks := make([]domain.Task, len(s.tasks))
	copy(tasks, s.tasks)
	return View{
		Identity: s.identity,
		State:    s.state,
		Loading:  s.state == Subscribing,
		Tasks:    tasks,
	}
}

func (s *Store) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// Tasks returns the current snapshot, newest first.
func (s *Store) Tasks() []domain.Task {
	return s.View().Tasks
}

// Loading reports whether the first snapshot for the identity is pending.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Subscribing
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) Identity() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity
}

func (s *Store) currentIdentity() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.identity == "" {
		return "", false
	}
	return s.identity, true
}

// AddTask writes a new task owned by the current identity and returns its id.
// Without an identity it does nothing.
func (s *Store) AddTask(ctx context.Context, in domain.NewTask) (string, error) {
	uid, ok := s.currentIdentity()
	if !ok {
		return "", nil
	}
	if err := in.Validate(); err != nil {
		mutations.WithLabelValues("add", "invalid").Inc()
		return "", err
	}

	data := map[string]any{
		domain.FieldTitle:     in.Title,
		domain.FieldCompleted: in.Completed,
		domain.FieldCreatedAt: domain.FormatTime(s.now()),
		domain.FieldUserID:    uid,
	}
	if in.DueDate != nil {
		data[domain.FieldDueDate] = *in.DueDate
	}
	if in.Category != "" {
		data[domain.FieldCategory] = string(in.Category)
	}

	id, err := s.docs.Create(ctx, s.collection, data)
	if err != nil {
		return "", s.failed("add", "", err)
	}
	mutations.WithLabelValues("add", "ok").Inc()
	return id, nil
}

// ToggleTaskCompletion flips completed on a task of the current snapshot.
// Ids not in the snapshot are ignored.
func (s *Store) ToggleTaskCompletion(ctx context.Context, id string) error {
	if _, ok := s.currentIdentity(); !ok {
		return nil
	}

	s.mu.Lock()
	var (
		completed bool
		found     bool
	)
	for _, t := range s.tasks {
		if t.ID == id {
			completed, found = t.Completed, true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		s.log.Debug("toggle of unknown task ignored", "task_id", id)
		mutations.WithLabelValues("toggle", "ignored").Inc()
		return nil
	}

	if err := s.docs.Update(ctx, s.collection, id, map[string]any{domain.FieldCompleted: !completed}); err != nil {
		return s.failed("toggle", id, err)
	}
	mutations.WithLabelValues("toggle", "ok").Inc()
	return nil
}

// DeleteTask removes the task from the document store.
func (s *Store) DeleteTask(ctx context.Context, id string) error {
	if _, ok := s.currentIdentity(); !ok {
		return nil
	}
	if err := s.docs.Delete(ctx, s.collection, id); err != nil {
		return s.failed("delete", id, err)
	}
	mutations.WithLabelValues("delete", "ok").Inc()
	return nil
}

// UpdateTask writes the fields set in patch. Removed fields are deleted from
// the stored record.
func (s *Store) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) error {
	if _, ok := s.currentIdentity(); !ok {
		return nil
	}
	if err := patch.Validate(); err != nil {
		mutations.WithLabelValues("update", "invalid").Inc()
		return err
	}
	if patch.Empty() {
		return nil
	}

	if err := s.docs.Update(ctx, s.collection, id, patch.Changes(docstore.DeleteField)); err != nil {
		return s.failed("update", id, err)
	}
	mutations.WithLabelValues("update", "ok").Inc()
	return nil
}

func (s *Store) failed(op, id string, err error) error {
	mutations.WithLabelValues(op, "error").Inc()
	s.log.Error("task write failed", "op", op, "task_id", id, "error", err)
	if id == "" {
		return fmt.Errorf("%s task: %w", op, err)
	}
	return fmt.Errorf("%s task %s: %w", op, id, err)
}
