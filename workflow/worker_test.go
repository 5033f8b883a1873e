package workflow

import (
	"sync"
	"testing"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/models"
	"bitbucket.org/rentfolio/reporting_backend/providers"
)

// NOTE: These tests are intentionally DB-free. They validate the state-machine
// decision logic and the gate; full DB integration tests should run in an
// environment with MySQL available.

func TestStatusForSubmitResult(t *testing.T) {
	cases := []struct {
		name        string
		result      providers.SubmitResult
		attempt     int
		maxAttempts int
		want        models.SubmissionStatus
		wantErr     bool
	}{
		{"accepted", providers.SubmitResult{Status: providers.SubmitStatusAccepted}, 1, 3, models.SubmissionStatusAccepted, false},
		{"rejected is authoritative", providers.SubmitResult{Status: providers.SubmitStatusRejected, Message: "bad data"}, 1, 3, models.SubmissionStatusRejected, true},
		{"failed below ceiling retries", providers.SubmitResult{Status: providers.SubmitStatusFailed}, 1, 3, models.SubmissionStatusFailedRetryable, true},
		{"failed at ceiling goes final", providers.SubmitResult{Status: providers.SubmitStatusFailed}, 3, 3, models.SubmissionStatusFailedFinal, true},
		{"failed past ceiling goes final", providers.SubmitResult{Status: providers.SubmitStatusFailed}, 4, 3, models.SubmissionStatusFailedFinal, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, lastErr := statusForSubmitResult(tc.result, tc.attempt, tc.maxAttempts)
			if status != tc.want {
				t.Fatalf("status = %s, want %s", status, tc.want)
			}
			if tc.wantErr && lastErr == nil {
				t.Fatal("expected a lastError message")
			}
			if !tc.wantErr && lastErr != nil {
				t.Fatalf("unexpected lastError %q", *lastErr)
			}
		})
	}
}

func TestStatusForProviderFailure_Ceiling(t *testing.T) {
	if got := statusForProviderFailure(2, 3); got != models.SubmissionStatusFailedRetryable {
		t.Fatalf("below ceiling = %s", got)
	}
	if got := statusForProviderFailure(3, 3); got != models.SubmissionStatusFailedFinal {
		t.Fatalf("at ceiling = %s", got)
	}
}

func TestOutcomeForStatus(t *testing.T) {
	cases := map[models.SubmissionStatus]Outcome{
		models.SubmissionStatusAccepted:        OutcomeAccepted,
		models.SubmissionStatusRejected:        OutcomeRejected,
		models.SubmissionStatusFailedFinal:     OutcomeFailedFinal,
		models.SubmissionStatusFailedRetryable: OutcomeFailedRetryable,
	}
	for status, want := range cases {
		if got := outcomeForStatus(status); got != want {
			t.Fatalf("outcomeForStatus(%s) = %s, want %s", status, got, want)
		}
	}
}

func TestIsStuck(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)

	twentyMinAgo := now.Add(-20 * time.Minute)
	fiveMinAgo := now.Add(-5 * time.Minute)

	if !isStuck(&twentyMinAgo, now, 10) {
		t.Fatal("20 minutes past a 10 minute threshold should be stuck")
	}
	if isStuck(&fiveMinAgo, now, 10) {
		t.Fatal("5 minutes past a 10 minute threshold should not be stuck")
	}
	if isStuck(nil, now, 10) {
		t.Fatal("missing start timestamp cannot be judged stuck")
	}
}

func TestLiveGate_RateLimitWithInjectedClock(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	gate := &LiveGate{
		Interval: 60 * time.Second,
		Now:      func() time.Time { return now },
	}

	if err := gate.ReserveSlot(); err != nil {
		t.Fatalf("first slot: %v", err)
	}
	if err := gate.ReserveSlot(); err != ErrRateLimited {
		t.Fatalf("second slot within interval: err = %v, want ErrRateLimited", err)
	}

	now = now.Add(61 * time.Second)
	if err := gate.ReserveSlot(); err != nil {
		t.Fatalf("slot after interval: %v", err)
	}
}

func TestLiveGate_OneWinnerUnderConcurrency(t *testing.T) {
	now := time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC)
	gate := &LiveGate{
		Interval: 60 * time.Second,
		Now:      func() time.Time { return now },
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.ReserveSlot(); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if granted != 1 {
		t.Fatalf("granted = %d, want exactly 1", granted)
	}
}

func TestCheckLiveEligibility(t *testing.T) {
	now := time.Now().UTC()
	approved := &models.CreditReportingSubmission{
		TenantId:       "tn_1",
		LandlordId:     "ll_1",
		LiveApprovedAt: &now,
	}
	granted := &models.ReportingConsent{TenantId: "tn_1", LandlordId: "ll_1", Status: models.ConsentStatusGranted}

	if err := CheckLiveEligibility(approved, granted); err != nil {
		t.Fatalf("eligible submission rejected: %v", err)
	}

	unapproved := &models.CreditReportingSubmission{TenantId: "tn_1", LandlordId: "ll_1"}
	if err := CheckLiveEligibility(unapproved, granted); err != ErrLiveNotApproved {
		t.Fatalf("err = %v, want ErrLiveNotApproved", err)
	}

	if err := CheckLiveEligibility(approved, nil); err != ErrConsentNotGranted {
		t.Fatalf("missing consent: err = %v, want ErrConsentNotGranted", err)
	}

	revoked := &models.ReportingConsent{TenantId: "tn_1", LandlordId: "ll_1", Status: models.ConsentStatusRevoked}
	if err := CheckLiveEligibility(approved, revoked); err != ErrConsentNotGranted {
		t.Fatalf("revoked consent: err = %v, want ErrConsentNotGranted", err)
	}

	wrongTenant := &models.ReportingConsent{TenantId: "tn_2", LandlordId: "ll_1", Status: models.ConsentStatusGranted}
	if err := CheckLiveEligibility(approved, wrongTenant); err != ErrConsentNotGranted {
		t.Fatalf("tenant mismatch: err = %v, want ErrConsentNotGranted", err)
	}

	wrongLandlord := &models.ReportingConsent{TenantId: "tn_1", LandlordId: "ll_2", Status: models.ConsentStatusGranted}
	if err := CheckLiveEligibility(approved, wrongLandlord); err != ErrConsentNotGranted {
		t.Fatalf("landlord mismatch: err = %v, want ErrConsentNotGranted", err)
	}
}

func TestCheckLiveEligibility_PilotAllowlist(t *testing.T) {
	now := time.Now().UTC()
	sub := &models.CreditReportingSubmission{
		TenantId:       "tn_1",
		LandlordId:     "ll_outsider",
		LiveApprovedAt: &now,
	}
	granted := &models.ReportingConsent{TenantId: "tn_1", LandlordId: "ll_outsider", Status: models.ConsentStatusGranted}

	t.Setenv("REPORTING_PILOT_LANDLORDS", "ll_1,ll_2")
	if err := CheckLiveEligibility(sub, granted); err != ErrNotPilotLandlord {
		t.Fatalf("err = %v, want ErrNotPilotLandlord", err)
	}

	t.Setenv("REPORTING_PILOT_LANDLORDS", "")
	if err := CheckLiveEligibility(sub, granted); err != nil {
		t.Fatalf("empty allowlist should allow all landlords: %v", err)
	}
}
