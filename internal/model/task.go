package model

import "time"

const (
	TaskStatusPending    = "pending"
	TaskStatusInProgress = "in_progress"
	TaskStatusCompleted  = "completed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task represents a single item in the planner.
type Task struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"not null" json:"title"`
	Description *string    `json:"description"`
	Status      string     `gorm:"not null;default:pending" json:"status"`
	Priority    string     `gorm:"not null;default:medium" json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	UserID      uint       `gorm:"index;not null" json:"user_id"`
	CategoryID  *uint      `gorm:"index" json:"category_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Reminders []Reminder `gorm:"foreignKey:TaskID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"-"`
}

func ValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted:
		return true
	}
	return false
}

func ValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}
