package models

import "time"

// TaskStatus is the progress state of a task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
)

// Statuses lists every valid status in display order.
var Statuses = []TaskStatus{StatusPending, StatusInProgress, StatusCompleted}

// Valid reports whether s is one of the known status values.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Task is a unit of work owned by exactly one user. Description always holds
// the encrypted envelope, never plaintext; decryption happens in the service
// layer on the way out.
type Task struct {
	ID          string
	UserID      string
	Title       string
	Description string
	Status      TaskStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
