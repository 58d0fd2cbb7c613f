package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"task-manager/internal/model"
)

// ReminderRepository holds the queries the dispatcher needs on top of the
// owner-scoped CRUD.
type ReminderRepository struct {
	db *gorm.DB
}

func NewReminderRepository(db *gorm.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

// ListDue returns unsent reminders whose time has come, oldest first,
// leaving out the ids in skip. reminder_time is stored as UTC text, so now is
// converted before the comparison.
func (r *ReminderRepository) ListDue(ctx context.Context, now time.Time, limit int, skip ...uint) ([]model.Reminder, error) {
	var reminders []model.Reminder
	tx := r.db.WithContext(ctx).
		Where("is_sent = ? AND reminder_time <= ?", false, now.UTC()).
		Order("reminder_time ASC, id ASC")
	if len(skip) > 0 {
		tx = tx.Where("id NOT IN ?", skip)
	}
	if limit > 0 {
		tx = tx.Limit(limit)
	}
	if err := tx.Find(&reminders).Error; err != nil {
		return nil, fmt.Errorf("list due reminders: %w", translate(err))
	}
	return reminders, nil
}

// MarkSent flips is_sent for one reminder. It reports false when another
// dispatcher (or the owner) already marked or deleted it.
func (r *ReminderRepository) MarkSent(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Reminder{}).
		Where("id = ? AND is_sent = ?", id, false).
		Update("is_sent", true)
	if res.Error != nil {
		return false, fmt.Errorf("mark reminder sent: %w", translate(res.Error))
	}
	return res.RowsAffected > 0, nil
}

// FindTask loads the task a reminder points at, without owner scoping. Used
// only to enrich notifications.
func (r *ReminderRepository) FindTask(ctx context.Context, id uint) (*model.Task, error) {
	var task model.Task
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, fmt.Errorf("find task: %w", translate(err))
	}
	return &task, nil
}
