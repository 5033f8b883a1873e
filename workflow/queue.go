package workflow

import (
	"context"
	"errors"
	"regexp"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/config"
	"bitbucket.org/rentfolio/reporting_backend/credit"
	"bitbucket.org/rentfolio/reporting_backend/models"
	"bitbucket.org/rentfolio/reporting_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const currentPayloadVersion = "v1"

var periodPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// IsValidPeriod reports whether s is a YYYY-MM reporting period.
func IsValidPeriod(s string) bool {
	return periodPattern.MatchString(s)
}

var ErrConsentNotGranted = errors.New("reporting consent not granted")
var ErrNotPilotLandlord = errors.New("landlord is not in the reporting pilot")
var ErrAttemptsExhausted = errors.New("attempt ceiling reached; submission cannot be retried")

type QueueSubmissionRequest struct {
	LandlordId     string  `json:"landlord_id" binding:"required"`
	TenantId       string  `json:"tenant_id" binding:"required"`
	LeaseId        *string `json:"lease_id"`
	Period         string  `json:"period" binding:"required,reporting_period"`
	ProviderKey    string  `json:"provider_key"`
	PayloadVersion string  `json:"payload_version"`
	DryRun         bool    `json:"dry_run"`
}

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// QueueSubmission creates a QUEUED submission row for one (tenant, period) pair.
// Queuing the same submission key twice is a no-op returning the existing row
// (created=false). After the row is committed a Pub/Sub job is published
// best-effort; the sweeper and retry endpoint cover a lost message.
func QueueSubmission(ctx context.Context, db *gorm.DB, req QueueSubmissionRequest) (*models.CreditReportingSubmission, bool, error) {
	if req.ProviderKey == "" {
		req.ProviderKey = "mock"
	}
	if req.PayloadVersion == "" {
		req.PayloadVersion = currentPayloadVersion
	}
	if !periodPattern.MatchString(req.Period) {
		return nil, false, utils.NewValidationError("period must be YYYY-MM")
	}
	if !config.IsProviderAllowed(req.ProviderKey) {
		return nil, false, utils.NewValidationError("provider is not allowed: " + req.ProviderKey)
	}
	if !config.IsPilotLandlord(req.LandlordId) {
		return nil, false, ErrNotPilotLandlord
	}

	consent, err := models.GetConsent(db, req.TenantId, req.LandlordId)
	if err != nil {
		return nil, false, err
	}
	if consent == nil || consent.Status != models.ConsentStatusGranted {
		return nil, false, ErrConsentNotGranted
	}

	historyHash, err := deriveHistoryHash(db, req.TenantId, req.Period)
	if err != nil {
		return nil, false, err
	}

	sub := models.CreditReportingSubmission{
		LandlordId:        req.LandlordId,
		TenantId:          req.TenantId,
		LeaseId:           req.LeaseId,
		Period:            req.Period,
		ProviderKey:       req.ProviderKey,
		PayloadVersion:    req.PayloadVersion,
		SubmissionKey:     models.BuildSubmissionKey(req.ProviderKey, req.PayloadVersion, req.LandlordId, req.TenantId, req.Period),
		Status:            models.SubmissionStatusQueued,
		DryRun:            req.DryRun,
		CreditHistoryHash: historyHash,
	}

	if err := db.Create(&sub).Error; err != nil {
		if !isDuplicateKeyErr(err) {
			return nil, false, err
		}
		existing, gerr := models.GetSubmissionByKey(db, sub.SubmissionKey)
		if gerr != nil {
			return nil, false, gerr
		}
		return existing, false, nil
	}

	publishJob(ctx, &sub)
	return &sub, true, nil
}

// RetrySubmission re-queues a FAILED_RETRYABLE submission, bounded by the
// attempt ceiling.
func RetrySubmission(ctx context.Context, db *gorm.DB, id int) (*models.CreditReportingSubmission, error) {
	cfg, err := models.GetRuntimeConfig(db, false)
	if err != nil {
		return nil, err
	}

	sub, err := models.GetSubmission(db, id)
	if err != nil {
		return nil, err
	}
	if sub.Status != models.SubmissionStatusFailedRetryable {
		return nil, utils.NewValidationError("only failed_retryable submissions can be retried")
	}
	if sub.Attempts >= cfg.MaxAttempts {
		return nil, ErrAttemptsExhausted
	}

	res := db.Model(&models.CreditReportingSubmission{}).
		Where("id = ? AND status = ?", id, models.SubmissionStatusFailedRetryable).
		Updates(map[string]interface{}{
			"status":                models.SubmissionStatusQueued,
			"processing_started_at": nil,
			"processing_lock_id":    nil,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrAlreadyClaimed
	}

	sub, err = models.GetSubmission(db, id)
	if err != nil {
		return nil, err
	}
	publishJob(ctx, sub)
	return sub, nil
}

func publishJob(ctx context.Context, sub *models.CreditReportingSubmission) {
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := config.ReportingJobMessage{
		SubmissionId:  sub.ID,
		SubmissionKey: sub.SubmissionKey,
		CorrelationId: correlationId,
	}

	pctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := config.PublishReportingJobWithResult(pctx, msg); err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"module":         "workflow",
			"funcName":       "publishJob",
			"submission_id":  sub.ID,
			"submission_key": sub.SubmissionKey,
		}).Warn("failed to publish reporting job (worker will pick it up later): " + err.Error())
	}
}

// DeriveTenantHistory derives the full ascending timeline for operator preview
// and shadow testing. It never mutates anything.
func DeriveTenantHistory(db *gorm.DB, tenantId string, months int) ([]credit.CreditPeriod, error) {
	charges, payments, err := loadLedger(db, tenantId)
	if err != nil {
		return nil, err
	}
	return credit.DeriveCreditHistory(charges, payments, months, time.Now().UTC()), nil
}

// deriveHistoryHash computes the month-scoped audit hash recorded at queue time
// and re-verified before any live submit.
func deriveHistoryHash(db *gorm.DB, tenantId, period string) (string, error) {
	charges, payments, err := loadLedger(db, tenantId)
	if err != nil {
		return "", err
	}
	cp := credit.DeriveForPeriod(charges, payments, period)
	return credit.CanonicalHash(cp)
}

func loadLedger(db *gorm.DB, tenantId string) ([]credit.Charge, []credit.Payment, error) {
	rawCharges, err := models.ListCharges(db, tenantId)
	if err != nil {
		return nil, nil, err
	}
	rawPayments, err := models.ListPayments(db, tenantId)
	if err != nil {
		return nil, nil, err
	}

	charges := make([]credit.Charge, 0, len(rawCharges))
	for _, c := range rawCharges {
		charges = append(charges, credit.Charge{
			Id:      c.ID,
			Period:  c.Period,
			Amount:  c.Amount,
			DueDate: c.DueDate,
		})
	}
	payments := make([]credit.Payment, 0, len(rawPayments))
	for _, p := range rawPayments {
		payments = append(payments, credit.Payment{
			RentChargeId: p.RentChargeId,
			Amount:       p.Amount,
			PaidAt:       p.PaidAt,
		})
	}
	return charges, payments, nil
}
