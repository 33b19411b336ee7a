package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestNewTaskValidate(t *testing.T) {
	tests := []struct {
		name string
		in   NewTask
		ok   bool
	}{
		{"title only", NewTask{Title: "Buy milk"}, true},
		{"with due date", NewTask{Title: "Pay rent", DueDate: ptr("2024-06-01T00:00:00.000Z")}, true},
		{"offset due date", NewTask{Title: "Call", DueDate: ptr("2024-06-01T09:30:00+02:00")}, true},
		{"empty title", NewTask{Title: ""}, false},
		{"blank title", NewTask{Title: "   "}, false},
		{"bad due date", NewTask{Title: "x", DueDate: ptr("next week")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidTask), "got %v", err)
		})
	}
}

func TestCategoryValid(t *testing.T) {
	for _, c := range Categories {
		assert.True(t, c.Valid(), c)
	}
	assert.False(t, Category("work").Valid())
	assert.False(t, Category("").Valid())
}

func TestCategoryValidationTag(t *testing.T) {
	type payload struct {
		Category string `validate:"category"`
	}
	assert.NoError(t, Validator().Struct(payload{}))
	assert.NoError(t, Validator().Struct(payload{Category: "Health"}))
	assert.Error(t, Validator().Struct(payload{Category: "Chores"}))
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 30, 15, 250_000_000, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "2024-05-01T10:30:15.250Z", FormatTime(ts))
}

func TestTaskIndefinite(t *testing.T) {
	assert.True(t, Task{Title: "someday"}.Indefinite())
	assert.False(t, Task{Title: "soon", DueDate: ptr("2024-05-02T00:00:00.000Z")}.Indefinite())
}

func TestTaskJSONOmitsMissingDueDate(t *testing.T) {
	b, err := json.Marshal(Task{ID: "t1", Title: "x", CreatedAt: "2024-05-01T00:00:00.000Z", UserID: "u1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"t1","title":"x","completed":false,"createdAt":"2024-05-01T00:00:00.000Z","userId":"u1"}`, string(b))
}
