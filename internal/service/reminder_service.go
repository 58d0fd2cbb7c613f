package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strings"
	"time"

	"task-manager/internal/clock"
	"task-manager/internal/model"
	"task-manager/internal/notify"
	"task-manager/internal/repository"
)

const defaultDispatchBatch = 100

// ReminderDispatcher delivers reminders whose time has come and flips their
// is_sent flag.
type ReminderDispatcher struct {
	reminders *repository.ReminderRepository
	notifier  notify.Notifier
	clock     clock.Clock
	log       *slog.Logger
	batch     int
}

func NewReminderDispatcher(reminders *repository.ReminderRepository, notifier notify.Notifier, clk clock.Clock, log *slog.Logger) *ReminderDispatcher {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReminderDispatcher{
		reminders: reminders,
		notifier:  notifier,
		clock:     clk,
		log:       log,
		batch:     defaultDispatchBatch,
	}
}

// DispatchDue sends every due, unsent reminder and returns how many were
// marked sent. A reminder whose notification fails stays unsent and is
// retried on the next pass; within this pass it is skipped so it cannot hold
// back newer reminders. Marking is conditional, so two dispatchers never both
// count the same reminder.
func (d *ReminderDispatcher) DispatchDue(ctx context.Context) (int, error) {
	now := d.clock.Now()
	var failed []uint
	sent := 0

	for {
		due, err := d.reminders.ListDue(ctx, now, d.batch, failed...)
		if err != nil {
			return sent, err
		}

		for _, reminder := range due {
			if err := ctx.Err(); err != nil {
				return sent, err
			}

			outcome, err := d.dispatch(ctx, reminder, now)
			if err != nil {
				return sent, err
			}
			switch outcome {
			case dispatchFailed:
				failed = append(failed, reminder.ID)
			case dispatchSent:
				sent++
			}
		}

		if len(due) < d.batch || d.batch <= 0 {
			break
		}
	}

	if sent > 0 || len(failed) > 0 {
		d.log.InfoContext(ctx, "reminders dispatched", "count", sent, "failed", len(failed))
	}
	return sent, nil
}

type dispatchOutcome int

const (
	dispatchSent dispatchOutcome = iota
	dispatchFailed
	// dispatchRaced means someone else marked or deleted the reminder first.
	dispatchRaced
)

func (d *ReminderDispatcher) dispatch(ctx context.Context, reminder model.Reminder, now time.Time) (dispatchOutcome, error) {
	var task *model.Task
	if reminder.TaskID != nil {
		if t, err := d.reminders.FindTask(ctx, *reminder.TaskID); err == nil {
			task = t
		}
	}

	n := notify.Notification{
		UserID:     reminder.UserID,
		ReminderID: reminder.ID,
		Text:       formatReminder(reminder, task, now),
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.WarnContext(ctx, "reminder notification failed", "reminder_id", reminder.ID, "error", err)
		return dispatchFailed, nil
	}

	marked, err := d.reminders.MarkSent(ctx, reminder.ID)
	if err != nil {
		return dispatchFailed, err
	}
	if !marked {
		return dispatchRaced, nil
	}
	return dispatchSent, nil
}

func formatReminder(reminder model.Reminder, task *model.Task, now time.Time) string {
	var sb strings.Builder

	icon := "⏰"
	if now.Sub(reminder.ReminderTime) > time.Hour {
		icon = "⚠️"
	}

	sb.WriteString(fmt.Sprintf("%s <b>%s</b>", icon, html.EscapeString(strings.TrimSpace(reminder.Title))))
	sb.WriteString(fmt.Sprintf("\n   🗓 %s", reminder.ReminderTime.In(now.Location()).Format("2006-01-02 15:04")))

	if reminder.Message != nil {
		if msg := strings.TrimSpace(*reminder.Message); msg != "" {
			sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(msg)))
		}
	}

	if task != nil {
		sb.WriteString(fmt.Sprintf("\n   📋 %s <i>(%s)</i>", html.EscapeString(strings.TrimSpace(task.Title)), task.Status))
		if task.DueDate != nil {
			d := task.DueDate.In(now.Location())
			if now.After(d) {
				sb.WriteString(fmt.Sprintf("\n   ⏳ due %s, <b>overdue</b>", d.Format("2006-01-02")))
			} else {
				sb.WriteString(fmt.Sprintf("\n   ⏳ due %s", d.Format("2006-01-02")))
			}
		}
	}

	return sb.String()
}
