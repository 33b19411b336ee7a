package ws

import (
	"encoding/json"

	"tasksync/internal/domain"
)

// Inbound is every client → server frame.
type Inbound struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Outbound is every server → client frame.
type Outbound struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// client → server
type AddPayload struct {
	Title     string  `json:"title" validate:"required,max=500"`
	Completed bool    `json:"completed"`
	DueDate   *string `json:"dueDate,omitempty" validate:"omitempty,iso8601"`
	Category  string  `json:"category,omitempty" validate:"category"`
}

func (p AddPayload) NewTask() domain.NewTask {
	return domain.NewTask{
		Title:     p.Title,
		Completed: p.Completed,
		DueDate:   p.DueDate,
		Category:  domain.Category(p.Category),
	}
}

type IDPayload struct {
	ID string `json:"id" validate:"required"`
}

type UpdatePayload struct {
	ID      string           `json:"id" validate:"required"`
	Changes domain.TaskPatch `json:"changes"`
}

type AuthPayload struct {
	Token string `json:"token" validate:"required"`
}

// server → client
type AckPayload struct {
	ID string `json:"id,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
