package livestore

import (
	"fmt"
	"time"

	"tasksync/internal/docstore"
	"tasksync/internal/domain"
)

// taskFromDocument maps a stored record to a Task. A dueDate that is missing
// or null maps to no due date.
func taskFromDocument(d docstore.Document) (domain.Task, error) {
	t := domain.Task{ID: d.ID}
	if d.ID == "" {
		return t, fmt.Errorf("document has no id")
	}

	title, ok := d.Data[domain.FieldTitle].(string)
	if !ok {
		return t, fmt.Errorf("title is %T, want string", d.Data[domain.FieldTitle])
	}
	t.Title = title

	if v, present := d.Data[domain.FieldCompleted]; present {
		completed, ok := v.(bool)
		if !ok {
			return t, fmt.Errorf("completed is %T, want bool", v)
		}
		t.Completed = completed
	}

	createdAt, err := timeField(d.Data, domain.FieldCreatedAt)
	if err != nil {
		return t, err
	}
	if createdAt != nil {
		t.CreatedAt = *createdAt
	}

	if t.DueDate, err = timeField(d.Data, domain.FieldDueDate); err != nil {
		return t, err
	}

	if v, ok := d.Data[domain.FieldCategory].(string); ok {
		t.Category = domain.Category(v)
	}
	if v, ok := d.Data[domain.FieldUserID].(string); ok {
		t.UserID = v
	}
	return t, nil
}

// timeField reads an ISO-8601 field. Drivers that decode dates natively hand
// back time.Time, which is formatted to the same layout.
func timeField(data map[string]any, name string) (*string, error) {
	switch v := data[name].(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case time.Time:
		s := domain.FormatTime(v)
		return &s, nil
	default:
		return nil, fmt.Errorf("%s is %T, want string", name, v)
	}
}
