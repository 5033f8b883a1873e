package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/utils"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	SubmissionStatusQueued          SubmissionStatus = "QUEUED"
	SubmissionStatusProcessing      SubmissionStatus = "PROCESSING"
	SubmissionStatusAccepted        SubmissionStatus = "ACCEPTED"
	SubmissionStatusRejected        SubmissionStatus = "REJECTED"
	SubmissionStatusFailedRetryable SubmissionStatus = "FAILED_RETRYABLE"
	SubmissionStatusFailedFinal     SubmissionStatus = "FAILED_FINAL"
)

// IsTerminalSubmissionStatus reports whether no further processing may change the row.
// FAILED_RETRYABLE is not terminal: it may be re-queued while attempts remain.
func IsTerminalSubmissionStatus(s SubmissionStatus) bool {
	switch s {
	case SubmissionStatusAccepted, SubmissionStatusRejected, SubmissionStatusFailedFinal:
		return true
	}
	return false
}

// CreditReportingSubmission is one attempt to report one (tenant, period) pair
// to one bureau provider. Rows are never deleted (audit trail).
//
// Lock invariant: processing_started_at and processing_lock_id are both set or
// both null; they are stamped together by the claim transaction and cleared
// together on every worker exit path.
type CreditReportingSubmission struct {
	ID             int     `gorm:"primary_key" json:"id"`
	LandlordId     string  `gorm:"size:64;not null;index" json:"landlord_id"`
	TenantId       string  `gorm:"size:64;not null;index" json:"tenant_id"`
	LeaseId        *string `gorm:"size:64" json:"lease_id"`
	Period         string  `gorm:"size:7;not null" json:"period"`
	ProviderKey    string  `gorm:"size:32;not null" json:"provider_key"`
	PayloadVersion string  `gorm:"size:16;not null" json:"payload_version"`

	// SubmissionKey is the deterministic dedup identity:
	// provider|version|landlord|tenant|period.
	SubmissionKey string `gorm:"size:255;not null;uniqueIndex:uniq_submission_key" json:"submission_key"`

	Status    SubmissionStatus `gorm:"size:20;not null;index" json:"status"`
	Attempts  int              `gorm:"not null;default:0" json:"attempts"`
	LastError *string          `gorm:"type:text" json:"last_error"`
	DryRun    bool             `gorm:"not null;default:0" json:"dry_run"`

	LiveApprovedAt *time.Time `json:"live_approved_at"`
	LiveApprovedBy *string    `gorm:"size:64" json:"live_approved_by"`

	ProcessingStartedAt *time.Time `gorm:"index" json:"processing_started_at"`
	ProcessingLockId    *string    `gorm:"size:64" json:"processing_lock_id"`

	// Audit block. CreditHistoryHash is stamped at queue time and re-verified
	// before any live submit. PayloadHash/PayloadSnapshot are written when a
	// payload is built.
	CreditHistoryHash string  `gorm:"size:64;not null" json:"credit_history_hash"`
	PayloadHash       *string `gorm:"size:64" json:"payload_hash"`
	PayloadSnapshot   []byte  `gorm:"type:json" json:"payload_snapshot"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// BuildSubmissionKey builds the deterministic composite dedup key.
func BuildSubmissionKey(providerKey, payloadVersion, landlordId, tenantId, period string) string {
	parts := []string{
		strings.ToLower(strings.TrimSpace(providerKey)),
		strings.TrimSpace(payloadVersion),
		strings.TrimSpace(landlordId),
		strings.TrimSpace(tenantId),
		strings.TrimSpace(period),
	}
	return strings.Join(parts, "|")
}

func GetSubmission(db *gorm.DB, id int) (*CreditReportingSubmission, error) {
	var sub CreditReportingSubmission
	if err := db.First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func GetSubmissionByKey(db *gorm.DB, submissionKey string) (*CreditReportingSubmission, error) {
	var sub CreditReportingSubmission
	if err := db.First(&sub, "submission_key = ?", submissionKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func ListSubmissionsByStatus(db *gorm.DB, status SubmissionStatus, limit int) ([]CreditReportingSubmission, error) {
	if limit <= 0 {
		limit = 50
	}
	var subs []CreditReportingSubmission
	err := db.Where("status = ?", status).
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// ListStaleQueuedSubmissions returns QUEUED rows not touched since olderThan.
// These are submissions whose trigger message was lost or acked away (paused
// system, gate refusal) and that need a fresh job dispatched.
func ListStaleQueuedSubmissions(db *gorm.DB, olderThan time.Time, limit int) ([]CreditReportingSubmission, error) {
	if limit <= 0 {
		limit = 50
	}
	var subs []CreditReportingSubmission
	err := db.Where("status = ? AND updated_at < ?", SubmissionStatusQueued, olderThan).
		Order("id ASC").
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// ApproveSubmissionLive stamps live approval on a submission that has not yet
// reached a terminal state. Approving twice is a no-op that keeps the first stamp.
func ApproveSubmissionLive(db *gorm.DB, id int, actor string) (*CreditReportingSubmission, error) {
	sub, err := GetSubmission(db, id)
	if err != nil {
		return nil, err
	}
	if IsTerminalSubmissionStatus(sub.Status) {
		return nil, fmt.Errorf("submission %d is already %s", id, sub.Status)
	}
	if sub.LiveApprovedAt != nil {
		return sub, nil
	}
	now := time.Now().UTC()
	err = db.Model(&CreditReportingSubmission{}).
		Where("id = ? AND live_approved_at IS NULL", id).
		Updates(map[string]interface{}{
			"live_approved_at": &now,
			"live_approved_by": &actor,
		}).Error
	if err != nil {
		return nil, err
	}
	return GetSubmission(db, id)
}
