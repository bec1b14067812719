// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/sirupsen/logrus"

	"github.com/pharmaguard-server/internal/domain"
)

// ReportPurger deletes stored reports created before a cutoff.
type ReportPurger interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// RetentionScheduler purges analysis reports older than MaxAge once a day.
type RetentionScheduler struct {
	purger  ReportPurger
	maxAge  time.Duration
	at      string
	timeout time.Duration
	logger  *logrus.Logger
	now     func() time.Time

	mu        sync.Mutex
	scheduler *gocron.Scheduler
	job       *gocron.Job
}

// NewRetentionScheduler creates a scheduler from the retention config section.
func NewRetentionScheduler(purger ReportPurger, cfg domain.RetentionConfig, logger *logrus.Logger) *RetentionScheduler {
	at := cfg.At
	if at == "" {
		at = "03:00"
	}
	return &RetentionScheduler{
		purger:  purger,
		maxAge:  cfg.MaxAge,
		at:      at,
		timeout: 5 * time.Minute,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Sweep deletes every report older than the retention window.
func (r *RetentionScheduler) Sweep(ctx context.Context) (int64, error) {
	if r.maxAge <= 0 {
		return 0, fmt.Errorf("retention max age must be positive, got %s", r.maxAge)
	}

	cutoff := r.now().Add(-r.maxAge)
	deleted, err := r.purger.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		r.logger.WithError(err).WithField("cutoff", cutoff).Error("Retention sweep failed")
		return 0, fmt.Errorf("retention sweep: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"cutoff":  cutoff,
		"deleted": deleted,
	}).Info("Retention sweep completed")

	return deleted, nil
}

// Start schedules the daily sweep at the configured UTC time and returns
// immediately.
func (r *RetentionScheduler) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.scheduler != nil {
		return fmt.Errorf("retention scheduler already started")
	}

	s := gocron.NewScheduler(time.UTC)
	job, err := s.Every(1).Days().At(r.at).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		_, _ = r.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("scheduling retention sweep at %q: %w", r.at, err)
	}

	s.StartAsync()
	r.scheduler = s
	r.job = job

	r.logger.WithFields(logrus.Fields{
		"at":       r.at,
		"max_age":  r.maxAge.String(),
		"next_run": job.NextRun(),
	}).Info("Retention scheduler started")

	return nil
}

// NextRun reports when the sweep will next fire. The zero time is returned
// when the scheduler is not running.
func (r *RetentionScheduler) NextRun() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job == nil {
		return time.Time{}
	}
	return r.job.NextRun()
}

// Stop halts the scheduler. It is safe to call more than once.
func (r *RetentionScheduler) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return
	}
	r.scheduler.Stop()
	r.scheduler = nil
	r.job = nil
	r.logger.Info("Retention scheduler stopped")
}
