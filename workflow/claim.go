package workflow

import (
	"errors"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrAlreadyClaimed = errors.New("submission already claimed")

type Claim struct {
	LockId    string
	StartedAt time.Time
}

// ClaimForProcessing is the single optimistic-lock acquisition used by every
// state-advancing call site: a conditional transition QUEUED -> PROCESSING that
// stamps the lock pair atomically. Two concurrent workers racing on the same
// row see exactly one RowsAffected == 1. The claim does NOT touch attempts;
// only an exit path that completes the attempt (a written terminal or retry
// state) consumes retry budget, so a gate refusal that hands the row back to
// QUEUED costs nothing.
func ClaimForProcessing(db *gorm.DB, id int) (*Claim, error) {
	lockId := uuid.NewString()
	now := time.Now().UTC()

	err := db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.CreditReportingSubmission{}).
			Where("id = ? AND status = ? AND processing_lock_id IS NULL", id, models.SubmissionStatusQueued).
			Updates(map[string]interface{}{
				"status":                models.SubmissionStatusProcessing,
				"processing_started_at": &now,
				"processing_lock_id":    &lockId,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrAlreadyClaimed
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Claim{LockId: lockId, StartedAt: now}, nil
}
