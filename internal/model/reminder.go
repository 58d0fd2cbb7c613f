package model

import "time"

// Reminder fires at ReminderTime. It belongs to its owner and may point at a
// task; deleting the task clears TaskID instead of removing the reminder.
type Reminder struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Title        string    `gorm:"not null" json:"title"`
	Message      *string   `json:"message"`
	ReminderTime time.Time `gorm:"not null;index" json:"reminder_time"`
	IsSent       bool      `gorm:"not null;default:false" json:"is_sent"`
	UserID       uint      `gorm:"index;not null" json:"user_id"`
	TaskID       *uint     `gorm:"index" json:"task_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
