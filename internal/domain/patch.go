package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Field is one entry of a partial update. The zero value leaves the stored
// field untouched; Set replaces it; Remove deletes it from the record.
//
// When decoded from JSON, a missing key stays untouched and an explicit null
// means Remove.
type Field[T any] struct {
	value  T
	set    bool
	remove bool
}

func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

func Remove[T any]() Field[T] {
	return Field[T]{remove: true}
}

// Untouched reports whether the field is left as stored.
func (f Field[T]) Untouched() bool { return !f.set && !f.remove }

func (f Field[T]) Removed() bool { return f.remove }

// Value returns the new value and whether one was supplied.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.set
}

func (f *Field[T]) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*f = Remove[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Set(v)
	return nil
}

// TaskPatch is a partial update of the mutable task fields. id, createdAt and
// userId are not part of it and can never be changed.
type TaskPatch struct {
	Title     Field[string]   `json:"title"`
	Completed Field[bool]     `json:"completed"`
	DueDate   Field[string]   `json:"dueDate"`
	Category  Field[Category] `json:"category"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title.Untouched() && p.Completed.Untouched() && p.DueDate.Untouched() && p.Category.Untouched()
}

func (p TaskPatch) Validate() error {
	if p.Title.Removed() {
		return fmt.Errorf("%w: title cannot be removed", ErrInvalidTask)
	}
	if title, ok := p.Title.Value(); ok && strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if p.Completed.Removed() {
		return fmt.Errorf("%w: completed cannot be removed", ErrInvalidTask)
	}
	if due, ok := p.DueDate.Value(); ok {
		if _, err := time.Parse(time.RFC3339, due); err != nil {
			return fmt.Errorf("%w: dueDate: %v", ErrInvalidTask, err)
		}
	}
	return nil
}

// Changes flattens the patch into stored field names. Removed fields map to
// the removed marker, untouched fields are absent.
func (p TaskPatch) Changes(removed any) map[string]any {
	out := make(map[string]any, 4)
	put := func(name string, v any, set, remove bool) {
		switch {
		case remove:
			out[name] = removed
		case set:
			out[name] = v
		}
	}

	title, ok := p.Title.Value()
	put(FieldTitle, title, ok, p.Title.Removed())
	completed, ok := p.Completed.Value()
	put(FieldCompleted, completed, ok, p.Completed.Removed())
	due, ok := p.DueDate.Value()
	put(FieldDueDate, due, ok, p.DueDate.Removed())
	category, ok := p.Category.Value()
	put(FieldCategory, string(category), ok, p.Category.Removed())

	return out
}
