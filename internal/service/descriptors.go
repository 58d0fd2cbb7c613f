package service

import (
	"strings"

	"gorm.io/gorm"

	"task-manager/internal/apperr"
	"task-manager/internal/model"
	"task-manager/internal/repository"
)

const ownerColumn = "user_id"

func CategoryDescriptor() Descriptor[model.Category] {
	fields := map[string]string{
		"name":        "name",
		"description": "description",
	}
	return Descriptor[model.Category]{
		Name:      "Category",
		Creatable: fields,
		Mutable:   fields,
		SetOwner:  func(c *model.Category, owner uint) { c.UserID = owner },
		Validate: func(c *model.Category) error {
			if strings.TrimSpace(c.Name) == "" {
				return apperr.Validation("name", "is required")
			}
			return nil
		},
	}
}

// TaskDescriptor leaves category_id unchecked against the owner: a task may
// point at any existing category.
func TaskDescriptor() Descriptor[model.Task] {
	fields := map[string]string{
		"title":       "title",
		"description": "description",
		"status":      "status",
		"priority":    "priority",
		"due_date":    "due_date",
		"category_id": "category_id",
	}
	return Descriptor[model.Task]{
		Name:       "Task",
		Creatable:  fields,
		Mutable:    fields,
		DateFields: []string{"due_date"},
		Defaults: func(t *model.Task) {
			t.Status = model.TaskStatusPending
			t.Priority = model.PriorityMedium
		},
		Normalize: func(t *model.Task) {
			if t.DueDate != nil {
				due := t.DueDate.UTC()
				t.DueDate = &due
			}
		},
		SetOwner: func(t *model.Task, owner uint) { t.UserID = owner },
		Validate: func(t *model.Task) error {
			if strings.TrimSpace(t.Title) == "" {
				return apperr.Validation("title", "is required")
			}
			if !model.ValidTaskStatus(t.Status) {
				return apperr.Validation("status", "must be one of pending, in_progress, completed")
			}
			if !model.ValidPriority(t.Priority) {
				return apperr.Validation("priority", "must be one of low, medium, high")
			}
			return nil
		},
	}
}

// ReminderDescriptor fixes the linked task at creation; is_sent can only be
// changed afterwards.
func ReminderDescriptor() Descriptor[model.Reminder] {
	return Descriptor[model.Reminder]{
		Name: "Reminder",
		Creatable: map[string]string{
			"title":         "title",
			"message":       "message",
			"reminder_time": "reminder_time",
			"task_id":       "task_id",
		},
		Mutable: map[string]string{
			"title":         "title",
			"message":       "message",
			"reminder_time": "reminder_time",
			"is_sent":       "is_sent",
		},
		DateFields: []string{"reminder_time"},
		// Stored as UTC so the dispatcher's text comparison orders instants.
		Normalize: func(r *model.Reminder) { r.ReminderTime = r.ReminderTime.UTC() },
		SetOwner:  func(r *model.Reminder, owner uint) { r.UserID = owner },
		Validate: func(r *model.Reminder) error {
			if strings.TrimSpace(r.Title) == "" {
				return apperr.Validation("title", "is required")
			}
			if r.ReminderTime.IsZero() {
				return apperr.Validation("reminder_time", "is required")
			}
			return nil
		},
	}
}

// Resources bundles the three owner-scoped entities.
type Resources struct {
	Categories *Resource[model.Category]
	Tasks      *Resource[model.Task]
	Reminders  *Resource[model.Reminder]
}

func NewResources(db *gorm.DB) *Resources {
	return &Resources{
		Categories: NewResource(CategoryDescriptor(),
			repository.NewOwnedRepository[model.Category](db, "category", ownerColumn)),
		Tasks: NewResource(TaskDescriptor(),
			repository.NewOwnedRepository[model.Task](db, "task", ownerColumn)),
		Reminders: NewResource(ReminderDescriptor(),
			repository.NewOwnedRepository[model.Reminder](db, "reminder", ownerColumn)),
	}
}
