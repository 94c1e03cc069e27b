package service

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/course-registry/internal/models"
	appErrors "github.com/noah-isme/course-registry/pkg/errors"
	"github.com/noah-isme/course-registry/pkg/jobs"
)

type reminderSource interface {
	DueReminders(ctx context.Context, now time.Time, window time.Duration) ([]models.ClassSession, error)
	MarkReminderSent(ctx context.Context, id string) (bool, error)
}

// ReminderNotifier delivers the reminder for one session.
type ReminderNotifier func(ctx context.Context, session models.ClassSession) error

// DispatchResult counts what happened to the sessions found due.
type DispatchResult struct {
	Due     int
	Sent    int
	Skipped int
	Failed  int
}

// ReminderDispatcher fans due sessions out to a worker queue. Each worker claims
// the session through MarkReminderSent before notifying, so a session is notified
// at most once even when dispatchers overlap.
type ReminderDispatcher struct {
	sessions reminderSource
	notify   ReminderNotifier
	queueCfg jobs.QueueConfig
	logger   *zap.Logger
}

// NewReminderDispatcher constructs a ReminderDispatcher.
func NewReminderDispatcher(sessions reminderSource, notify ReminderNotifier, queueCfg jobs.QueueConfig, logger *zap.Logger) *ReminderDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notify == nil {
		notify = func(context.Context, models.ClassSession) error { return nil }
	}
	queueCfg.Logger = logger
	return &ReminderDispatcher{sessions: sessions, notify: notify, queueCfg: queueCfg, logger: logger}
}

// Dispatch notifies every session due within window after now.
func (d *ReminderDispatcher) Dispatch(ctx context.Context, now time.Time, window time.Duration) (DispatchResult, error) {
	due, err := d.sessions.DueReminders(ctx, now, window)
	if err != nil {
		return DispatchResult{}, err
	}
	result := DispatchResult{Due: len(due)}
	if len(due) == 0 {
		return result, nil
	}

	var sent, skipped, notifyFailed int64
	queue := jobs.NewQueue("class-session-reminders", func(ctx context.Context, job jobs.Job) error {
		session := job.Payload.(models.ClassSession)
		claimed, err := d.sessions.MarkReminderSent(ctx, session.ID)
		if err != nil {
			return err
		}
		if !claimed {
			atomic.AddInt64(&skipped, 1)
			return nil
		}
		if err := d.notify(ctx, session); err != nil {
			atomic.AddInt64(&notifyFailed, 1)
			d.logger.Error("reminder notification failed", zap.String("session_id", session.ID), zap.Error(err))
			return nil
		}
		atomic.AddInt64(&sent, 1)
		return nil
	}, d.queueCfg)

	queue.Start(ctx)
	for _, session := range due {
		if err := queue.Enqueue(jobs.Job{ID: session.ID, Type: "reminder", Payload: session}); err != nil {
			queue.Stop()
			return result, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue reminder")
		}
	}
	qr := queue.Wait()

	result.Sent = int(atomic.LoadInt64(&sent))
	result.Skipped = int(atomic.LoadInt64(&skipped))
	result.Failed = int(atomic.LoadInt64(&notifyFailed)) + qr.Failed
	d.logger.Info("class session reminders dispatched",
		zap.Int("due", result.Due), zap.Int("sent", result.Sent), zap.Int("skipped", result.Skipped), zap.Int("failed", result.Failed))
	return result, nil
}
