// Package notify delivers reminder messages to the outside world.
package notify

import (
	"context"
	"log/slog"
)

// Notification is one reminder ready to be delivered. Text is HTML-formatted.
type Notification struct {
	UserID     uint
	ReminderID uint
	Text       string
}

// Notifier delivers notifications.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, n Notification) error

func (f Func) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// LogNotifier writes notifications to the structured log. It is the default
// when no external channel is configured.
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Notify(ctx context.Context, note Notification) error {
	n.log.InfoContext(ctx, "reminder due",
		"user_id", note.UserID,
		"reminder_id", note.ReminderID,
		"text", note.Text,
	)
	return nil
}
