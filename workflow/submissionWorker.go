package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/config"
	"bitbucket.org/rentfolio/reporting_backend/credit"
	"bitbucket.org/rentfolio/reporting_backend/models"
	"bitbucket.org/rentfolio/reporting_backend/providers"
	"bitbucket.org/rentfolio/reporting_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const lastErrorStuckRequeued = "stuck_processing_requeued"
const lastErrorHashMismatch = "hash_mismatch"
const lastErrorMaxAttempts = "max_attempts_exhausted"

type Outcome string

const (
	OutcomeSkippedDisabled Outcome = "skipped_disabled"
	OutcomeAlreadyTerminal Outcome = "already_terminal"
	OutcomeAlreadyClaimed  Outcome = "already_claimed"
	OutcomeAccepted        Outcome = "accepted"
	OutcomeRejected        Outcome = "rejected"
	OutcomeFailedRetryable Outcome = "failed_retryable"
	OutcomeFailedFinal     Outcome = "failed_final"
)

type ProcessResult struct {
	Outcome    Outcome                           `json:"outcome"`
	Submission *models.CreditReportingSubmission `json:"submission,omitempty"`
}

// Worker advances one submission at a time through the state machine:
// QUEUED -> PROCESSING -> {ACCEPTED | REJECTED | FAILED_RETRYABLE | FAILED_FINAL}.
// Concurrency comes from independent callers; the claim transaction is the only
// coordination.
type Worker struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Gate    *LiveGate
	Resolve func(key string) providers.Provider
}

func NewWorker(db *gorm.DB, logger *logrus.Logger) *Worker {
	return &Worker{
		DB:      db,
		Logger:  logger,
		Gate:    NewLiveGate(),
		Resolve: providers.Resolve,
	}
}

// db falls back to the global connection so the worker can be constructed
// before the database is ready (Cloud Run startup ordering).
func (w *Worker) db() *gorm.DB {
	if w.DB != nil {
		return w.DB
	}
	return config.GetDB()
}

// ProcessSubmission never propagates provider failures past its boundary:
// every processing failure ends in a written state plus last_error. The error
// return is reserved for caller-facing conditions (disabled store, gate
// refusals, configuration errors) that must not consume the submission.
func (w *Worker) ProcessSubmission(ctx context.Context, id int) (*ProcessResult, error) {
	cfg, err := models.GetRuntimeConfig(w.db(), false)
	if err != nil {
		return nil, err
	}
	// Paused must never silently fail a submission: leave the row untouched.
	if !cfg.Enabled {
		sub, gerr := models.GetSubmission(w.db(), id)
		if gerr != nil {
			return nil, gerr
		}
		return &ProcessResult{Outcome: OutcomeSkippedDisabled, Submission: sub}, nil
	}

	sub, err := models.GetSubmission(w.db(), id)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalSubmissionStatus(sub.Status) {
		return &ProcessResult{Outcome: OutcomeAlreadyTerminal, Submission: sub}, nil
	}

	// Attempt ceiling: finalize without touching the provider.
	if sub.Attempts >= cfg.MaxAttempts {
		lastErr := lastErrorMaxAttempts
		res := w.db().Model(&models.CreditReportingSubmission{}).
			Where("id = ? AND status IN ?", id, []models.SubmissionStatus{models.SubmissionStatusQueued, models.SubmissionStatusFailedRetryable}).
			Updates(map[string]interface{}{
				"status":                models.SubmissionStatusFailedFinal,
				"last_error":            &lastErr,
				"processing_started_at": nil,
				"processing_lock_id":    nil,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		sub, err = models.GetSubmission(w.db(), id)
		if err != nil {
			return nil, err
		}
		// RowsAffected == 0 means another worker holds the row (or already
		// finalized it); report what actually happened, not what we intended.
		if res.RowsAffected == 0 {
			if models.IsTerminalSubmissionStatus(sub.Status) {
				return &ProcessResult{Outcome: OutcomeAlreadyTerminal, Submission: sub}, nil
			}
			return &ProcessResult{Outcome: OutcomeAlreadyClaimed, Submission: sub}, nil
		}
		return &ProcessResult{Outcome: OutcomeFailedFinal, Submission: sub}, nil
	}

	claim, err := ClaimForProcessing(w.db(), id)
	if err != nil {
		if errors.Is(err, ErrAlreadyClaimed) {
			sub, gerr := models.GetSubmission(w.db(), id)
			if gerr != nil {
				return nil, gerr
			}
			return &ProcessResult{Outcome: OutcomeAlreadyClaimed, Submission: sub}, nil
		}
		return nil, err
	}
	attempt := sub.Attempts + 1

	// Always re-derive fresh, month-scoped; never trust a queued-time snapshot.
	charges, payments, err := loadLedger(w.db(), sub.TenantId)
	if err != nil {
		return w.finishFailure(id, claim, attempt, cfg.MaxAttempts, err)
	}
	periodData := credit.DeriveForPeriod(charges, payments, sub.Period)
	records := credit.MapToBureauRecords([]credit.CreditPeriod{periodData})

	provider := w.Resolve(sub.ProviderKey)
	payload, err := provider.BuildPayload(records, providers.SubmissionMeta{
		LandlordId:     sub.LandlordId,
		TenantId:       sub.TenantId,
		LeaseId:        sub.LeaseId,
		Period:         sub.Period,
		PayloadVersion: sub.PayloadVersion,
		SubmissionKey:  sub.SubmissionKey,
	})
	if err != nil {
		if utils.IsConfigurationError(err) {
			return nil, w.releaseToQueued(id, claim, err)
		}
		return w.finishFailure(id, claim, attempt, cfg.MaxAttempts, err)
	}

	payloadHash, err := credit.CanonicalHash(payload)
	if err != nil {
		return w.finishFailure(id, claim, attempt, cfg.MaxAttempts, err)
	}
	payloadSnapshot, _ := json.Marshal(payload)

	// Dry-run short-circuits to ACCEPTED with an audit snapshot; no network
	// call occurs by construction.
	if cfg.DryRun || sub.DryRun {
		return w.finish(id, claim, models.SubmissionStatusAccepted, nil, map[string]interface{}{
			"payload_hash":     &payloadHash,
			"payload_snapshot": payloadSnapshot,
		})
	}

	// Live path: all five gate checks before the irreversible call.
	consent, err := models.GetConsent(w.db(), sub.TenantId, sub.LandlordId)
	if err != nil {
		return w.finishFailure(id, claim, attempt, cfg.MaxAttempts, err)
	}
	if gateErr := CheckLiveEligibility(sub, consent); gateErr != nil {
		return nil, w.releaseToQueued(id, claim, gateErr)
	}
	if cfgErr := provider.ValidateConfig(); cfgErr != nil {
		return nil, w.releaseToQueued(id, claim, cfgErr)
	}

	freshHash, err := credit.CanonicalHash(periodData)
	if err != nil {
		return w.finishFailure(id, claim, attempt, cfg.MaxAttempts, err)
	}
	if freshHash != sub.CreditHistoryHash {
		cerr := utils.NewConsistencyError(fmt.Sprintf(
			"credit history changed between queue and live submit: queued=%s fresh=%s",
			sub.CreditHistoryHash, freshHash))
		config.LogError(w.Logger, "workflow", "ProcessSubmission", "hash recheck", map[string]interface{}{
			"submission_id": id,
			"queued_hash":   sub.CreditHistoryHash,
			"fresh_hash":    freshHash,
		}, cerr)
		lastErr := lastErrorHashMismatch
		return w.finish(id, claim, models.SubmissionStatusFailedRetryable, &lastErr, nil)
	}

	if rlErr := w.Gate.ReserveSlot(); rlErr != nil {
		return nil, w.releaseToQueued(id, claim, rlErr)
	}

	// Redis lock is a best-effort optimization around the external call;
	// correctness comes from the claim transaction, not from Redis.
	if locker := config.GetRedisLock(); locker != nil {
		if lock, lerr := locker.Obtain(ctx, "reporting:live_submit", 30*time.Second, nil); lerr == nil {
			defer func() { _ = lock.Release(ctx) }()
		}
	}

	result, err := provider.Submit(ctx, payload)
	if err != nil {
		return w.finishFailure(id, claim, attempt, cfg.MaxAttempts, err)
	}

	status, lastErr := statusForSubmitResult(result, attempt, cfg.MaxAttempts)
	return w.finish(id, claim, status, lastErr, map[string]interface{}{
		"payload_hash":     &payloadHash,
		"payload_snapshot": payloadSnapshot,
	})
}

// statusForSubmitResult maps a provider decision onto the state machine.
// accepted/rejected are authoritative and never retried; failed consumes the
// attempt and goes final once the ceiling is reached.
func statusForSubmitResult(result providers.SubmitResult, attempt, maxAttempts int) (models.SubmissionStatus, *string) {
	switch result.Status {
	case providers.SubmitStatusAccepted:
		return models.SubmissionStatusAccepted, nil
	case providers.SubmitStatusRejected:
		msg := result.Message
		if msg == "" {
			msg = "rejected by provider"
		}
		return models.SubmissionStatusRejected, &msg
	default:
		msg := result.Message
		if msg == "" {
			msg = "provider submission failed"
		}
		return statusForProviderFailure(attempt, maxAttempts), &msg
	}
}

func statusForProviderFailure(attempt, maxAttempts int) models.SubmissionStatus {
	if attempt >= maxAttempts {
		return models.SubmissionStatusFailedFinal
	}
	return models.SubmissionStatusFailedRetryable
}

func (w *Worker) finishFailure(id int, claim *Claim, attempt, maxAttempts int, cause error) (*ProcessResult, error) {
	lastErr := cause.Error()
	status := statusForProviderFailure(attempt, maxAttempts)
	return w.finish(id, claim, status, &lastErr, nil)
}

// finish is the single exit path that writes a terminal/retry state. The update
// is guarded by the lock id so a sweeper-reclaimed row is never overwritten.
// This is also the only place retry budget is consumed: attempts counts
// completed attempts, so a claim that is released back to QUEUED by a gate
// refusal leaves the counter untouched.
func (w *Worker) finish(id int, claim *Claim, status models.SubmissionStatus, lastError *string, extra map[string]interface{}) (*ProcessResult, error) {
	updates := map[string]interface{}{
		"status":                status,
		"last_error":            lastError,
		"attempts":              gorm.Expr("attempts + 1"),
		"processing_started_at": nil,
		"processing_lock_id":    nil,
	}
	for k, v := range extra {
		updates[k] = v
	}

	res := w.db().Model(&models.CreditReportingSubmission{}).
		Where("id = ? AND processing_lock_id = ?", id, claim.LockId).
		Updates(updates)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		w.Logger.WithFields(logrus.Fields{
			"module":        "workflow",
			"funcName":      "finish",
			"submission_id": id,
			"lock_id":       claim.LockId,
		}).Warn("processing lock was reclaimed before finish; leaving row as-is")
	}

	sub, err := models.GetSubmission(w.db(), id)
	if err != nil {
		return nil, err
	}
	return &ProcessResult{Outcome: outcomeForStatus(status), Submission: sub}, nil
}

// releaseToQueued undoes the claim for conditions that must surface to the
// caller instead of consuming the submission (gate refusals, provider config).
func (w *Worker) releaseToQueued(id int, claim *Claim, cause error) error {
	lastErr := cause.Error()
	res := w.db().Model(&models.CreditReportingSubmission{}).
		Where("id = ? AND processing_lock_id = ?", id, claim.LockId).
		Updates(map[string]interface{}{
			"status":                models.SubmissionStatusQueued,
			"last_error":            &lastErr,
			"processing_started_at": nil,
			"processing_lock_id":    nil,
		})
	if res.Error != nil {
		return fmt.Errorf("release claim: %w (while handling: %s)", res.Error, lastErr)
	}
	return cause
}

func outcomeForStatus(status models.SubmissionStatus) Outcome {
	switch status {
	case models.SubmissionStatusAccepted:
		return OutcomeAccepted
	case models.SubmissionStatusRejected:
		return OutcomeRejected
	case models.SubmissionStatusFailedFinal:
		return OutcomeFailedFinal
	default:
		return OutcomeFailedRetryable
	}
}
