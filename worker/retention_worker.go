package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// NotificationPruner deletes notifications created before cutoff.
type NotificationPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// RetentionWorker periodically removes notifications past the retention
// window.
type RetentionWorker struct {
	pruner    NotificationPruner
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	log       *logrus.Entry
}

func NewRetentionWorker(pruner NotificationPruner, retention, interval time.Duration, log *logrus.Entry) *RetentionWorker {
	return &RetentionWorker{
		pruner:    pruner,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		log:       log,
	}
}

// Start runs one sweep immediately and then one per interval until ctx is
// cancelled.
func (rw *RetentionWorker) Start(ctx context.Context) {
	rw.log.WithFields(logrus.Fields{
		"retention": rw.retention.String(),
		"interval":  rw.interval.String(),
	}).Info("retention worker started")

	rw.RunOnce(ctx)

	ticker := time.NewTicker(rw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.log.Info("retention worker shutting down")
			return
		case <-ticker.C:
			rw.RunOnce(ctx)
		}
	}
}

// RunOnce deletes everything older than the retention window and returns
// how many notifications went.
func (rw *RetentionWorker) RunOnce(ctx context.Context) int {
	cutoff := rw.now().Add(-rw.retention)
	deleted, err := rw.pruner.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		rw.log.WithError(err).Error("notification retention sweep failed")
		return deleted
	}
	if deleted > 0 {
		rw.log.WithFields(logrus.Fields{
			"deleted": deleted,
			"cutoff":  cutoff.Format(time.RFC3339),
		}).Info("old notifications removed")
	}
	return deleted
}
