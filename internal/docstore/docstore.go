// Package docstore defines the document database contract used by the live
// task store: live queries delivering whole result sets, plus create, partial
// update and delete by id. Memory, MongoDB and Postgres backends implement it.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFound is returned by Update and Delete when no document has the id.
var ErrNotFound = errors.New("docstore: document not found")

// DeleteField, used as a value in Update, removes the field from the stored
// document instead of writing a value.
var DeleteField any = deleteField{}

type deleteField struct{}

func (deleteField) String() string { return "<delete>" }

// IsDeleteField reports whether v is the DeleteField marker.
func IsDeleteField(v any) bool {
	_, ok := v.(deleteField)
	return ok
}

// Document is a stored record. Data never contains the id.
type Document struct {
	ID   string
	Data map[string]any
}

// Query selects the documents of Collection whose Field equals Equals,
// ordered by OrderBy.
type Query struct {
	Collection string
	Field      string
	Equals     string
	OrderBy    string
	Descending bool
}

func (q Query) String() string {
	dir := "asc"
	if q.Descending {
		dir = "desc"
	}
	return fmt.Sprintf("%s where %s == %q order by %s %s", q.Collection, q.Field, q.Equals, q.OrderBy, dir)
}

// SnapshotFunc receives the complete current result set of a query.
type SnapshotFunc func(docs []Document)

// Unsubscribe cancels a subscription. It is safe to call more than once.
type Unsubscribe func()

// Store is a multi-writer document database.
//
// Subscribe delivers snapshots from a single goroutine per subscription, in
// order, starting after Subscribe returns. Intermediate states may be
// skipped; every delivered snapshot is complete.
type Store interface {
	Subscribe(ctx context.Context, q Query, fn SnapshotFunc) (Unsubscribe, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	Delete(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// splitFields separates an update into values to write and field names to
// remove.
func splitFields(fields map[string]any) (set map[string]any, unset []string) {
	set = make(map[string]any, len(fields))
	for k, v := range fields {
		if IsDeleteField(v) {
			unset = append(unset, k)
			continue
		}
		set[k] = v
	}
	sort.Strings(unset)
	return set, unset
}

func validateQuery(q Query) error {
	if q.Collection == "" || q.Field == "" || q.OrderBy == "" {
		return fmt.Errorf("docstore: incomplete query %s", q)
	}
	return nil
}
