package workflow

import (
	"context"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/config"
	"bitbucket.org/rentfolio/reporting_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const sweepSampleSize = 10

type SweepOptions struct {
	OlderThanMinutes int  `json:"older_than_minutes"`
	Limit            int  `json:"limit"`
	DryRun           bool `json:"dry_run"`
}

type SweepResult struct {
	Scanned   int   `json:"scanned"`
	Matched   int   `json:"matched"`
	Requeued  int   `json:"requeued"`
	SampleIds []int `json:"sample_ids"`
}

// SweepStuckSubmissions reclaims submissions abandoned in PROCESSING past the
// threshold (worker crashed or its lock was never released) back to QUEUED.
// Dry-run is a true read-only path: it scans and counts without mutating.
func SweepStuckSubmissions(db *gorm.DB, opts SweepOptions) (*SweepResult, error) {
	if opts.OlderThanMinutes <= 0 {
		opts.OlderThanMinutes = config.ReportingStuckThresholdMinutes()
	}
	if opts.Limit <= 0 {
		opts.Limit = config.ReportingSweepLimit()
	}

	now := time.Now().UTC()
	subs, err := models.ListSubmissionsByStatus(db, models.SubmissionStatusProcessing, opts.Limit)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{Scanned: len(subs)}
	for _, sub := range subs {
		if !isStuck(sub.ProcessingStartedAt, now, opts.OlderThanMinutes) {
			continue
		}
		result.Matched++
		if len(result.SampleIds) < sweepSampleSize {
			result.SampleIds = append(result.SampleIds, sub.ID)
		}
		if opts.DryRun {
			continue
		}

		lastErr := lastErrorStuckRequeued
		res := db.Model(&models.CreditReportingSubmission{}).
			Where("id = ? AND status = ? AND processing_lock_id = ?", sub.ID, models.SubmissionStatusProcessing, sub.ProcessingLockId).
			Updates(map[string]interface{}{
				"status":                models.SubmissionStatusQueued,
				"last_error":            &lastErr,
				"processing_started_at": nil,
				"processing_lock_id":    nil,
			})
		if res.Error != nil {
			return result, res.Error
		}
		if res.RowsAffected > 0 {
			result.Requeued++
		}
	}
	return result, nil
}

// isStuck reports whether a processing row has outlived the threshold.
// A row without a start timestamp cannot be judged and is left alone.
func isStuck(startedAt *time.Time, now time.Time, olderThanMinutes int) bool {
	if startedAt == nil {
		return false
	}
	return now.Sub(*startedAt) > time.Duration(olderThanMinutes)*time.Minute
}

// RedispatchQueuedJobs publishes a fresh job for QUEUED submissions that have
// not moved since olderThan. The queue-time publish is best-effort and a push
// message can be acked while the system is paused, so without this pickup a
// QUEUED row could sit untriggered forever. Processing is idempotent (claim
// transaction), so a duplicate job is harmless.
func RedispatchQueuedJobs(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) (int, error) {
	subs, err := models.ListStaleQueuedSubmissions(db, olderThan, limit)
	if err != nil {
		return 0, err
	}
	for i := range subs {
		publishJob(ctx, &subs[i])
	}
	return len(subs), nil
}

// Sweeper periodically reclaims stuck submissions and re-dispatches stale
// queued ones. It is the sole recovery path for violated locks and lost
// trigger messages.
type Sweeper struct {
	DB           *gorm.DB
	Logger       *logrus.Logger
	PollInterval time.Duration
}

func NewSweeper(db *gorm.DB, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		DB:           db,
		Logger:       logger,
		PollInterval: 5 * time.Minute,
	}
}

func (s *Sweeper) Run(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.sweepOnce()
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.PollInterval):
		}
	}
}

func (s *Sweeper) sweepOnce() {
	if s.DB == nil {
		return
	}
	result, err := SweepStuckSubmissions(s.DB, SweepOptions{})
	if err != nil {
		config.LogError(s.Logger, "workflow", "sweepOnce", "SweepStuckSubmissions", nil, err)
		return
	}
	if result.Requeued > 0 {
		s.Logger.WithFields(logrus.Fields{
			"module":     "workflow",
			"funcName":   "sweepOnce",
			"scanned":    result.Scanned,
			"matched":    result.Matched,
			"requeued":   result.Requeued,
			"sample_ids": result.SampleIds,
		}).Warn("requeued stuck submissions")
	}

	olderThan := time.Now().UTC().Add(-time.Duration(config.ReportingStuckThresholdMinutes()) * time.Minute)
	dispatched, err := RedispatchQueuedJobs(context.Background(), s.DB, olderThan, config.ReportingSweepLimit())
	if err != nil {
		config.LogError(s.Logger, "workflow", "sweepOnce", "RedispatchQueuedJobs", nil, err)
		return
	}
	if dispatched > 0 {
		s.Logger.WithFields(logrus.Fields{
			"module":     "workflow",
			"funcName":   "sweepOnce",
			"dispatched": dispatched,
		}).Info("re-dispatched jobs for stale queued submissions")
	}
}
