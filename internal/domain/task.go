package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidTask is returned when task input fails validation.
var ErrInvalidTask = errors.New("invalid task")

// TimeLayout is the ISO-8601 form used for createdAt and dueDate.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Task field names as stored in the backing collection.
const (
	FieldTitle     = "title"
	FieldCompleted = "completed"
	FieldCreatedAt = "createdAt"
	FieldDueDate   = "dueDate"
	FieldCategory  = "category"
	FieldUserID    = "userId"
)

type Category string

const (
	CategoryWork      Category = "Work"
	CategoryPersonal  Category = "Personal"
	CategoryShopping  Category = "Shopping"
	CategoryHealth    Category = "Health"
	CategoryFinance   Category = "Finance"
	CategoryEducation Category = "Education"
	CategoryOther     Category = "Other"
)

// Categories lists the display categories in menu order.
var Categories = []Category{
	CategoryWork,
	CategoryPersonal,
	CategoryShopping,
	CategoryHealth,
	CategoryFinance,
	CategoryEducation,
	CategoryOther,
}

func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Task is one entry of a user's to-do list.
// DueDate is nil when the task has no due date.
type Task struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Completed bool     `json:"completed"`
	CreatedAt string   `json:"createdAt"`
	DueDate   *string  `json:"dueDate,omitempty"`
	Category  Category `json:"category,omitempty"`
	UserID    string   `json:"userId"`
}

// Indefinite reports whether the task has no due date.
func (t Task) Indefinite() bool {
	return t.DueDate == nil
}

// NewTask holds the caller-supplied fields of a task being created.
type NewTask struct {
	Title     string   `json:"title" validate:"required"`
	Completed bool     `json:"completed"`
	DueDate   *string  `json:"dueDate,omitempty" validate:"omitempty,iso8601"`
	Category  Category `json:"category,omitempty"`
}

func (n NewTask) Validate() error {
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if err := validate.Struct(n); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	return nil
}

// FormatTime renders t in TimeLayout, in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("iso8601", func(fl validator.FieldLevel) bool {
		_, err := time.Parse(time.RFC3339, fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s == "" || Category(s).Valid()
	})
	return v
}

// Validator returns the shared validator with the task rules registered
// ("iso8601", "category").
func Validator() *validator.Validate {
	return validate
}
