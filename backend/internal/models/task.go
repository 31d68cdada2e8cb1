package models

import (
	"time"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
)

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

type TaskPriority string

const (
	PriorityLow    TaskPriority = "low"
	PriorityMedium TaskPriority = "medium"
	PriorityHigh   TaskPriority = "high"
)

func (p TaskPriority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// SortableTaskColumns lists the columns a task listing may be ordered by.
var SortableTaskColumns = map[string]bool{
	"id":         true,
	"title":      true,
	"status":     true,
	"priority":   true,
	"due_date":   true,
	"created_at": true,
	"updated_at": true,
}

type Task struct {
	ID          uuid.UUID    `json:"id" gorm:"primaryKey;type:uuid"`
	UserID      uuid.UUID    `json:"user_id" gorm:"type:uuid;not null;index"`
	Title       string       `json:"title" gorm:"size:255;not null"`
	Description *string      `json:"description" gorm:"type:text"`
	Status      TaskStatus   `json:"status" gorm:"size:20;not null;default:'pending';index"`
	Priority    TaskPriority `json:"priority" gorm:"size:20;not null;default:'medium';index"`
	DueDate     *time.Time   `json:"due_date"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// BeforeCreate assigns the id and enum defaults so rows look the same on
// every driver.
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return err
		}
		t.ID = id
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return nil
}
