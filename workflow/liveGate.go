package workflow

import (
	"errors"
	"sync"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/config"
	"bitbucket.org/rentfolio/reporting_backend/models"
)

var (
	ErrLiveNotApproved = errors.New("submission is not approved for live submission")
	ErrRateLimited     = errors.New("live submission rate limit reached")
)

const liveWatermarkKey = "reporting:last_live_at"

// LiveGate owns the process-wide live-submission rate limit. The watermark is
// kept in Redis so it survives restarts when Redis is up, with an in-process
// fallback when it is not; either way it is a best-effort limiter, not a
// correctness-critical one. Now is injectable for tests.
type LiveGate struct {
	Interval time.Duration
	Now      func() time.Time

	mu         sync.Mutex
	lastLiveAt time.Time
}

func NewLiveGate() *LiveGate {
	return &LiveGate{
		Interval: config.ReportingLiveInterval(),
		Now:      func() time.Time { return time.Now().UTC() },
	}
}

// ReserveSlot claims the next live-submission slot or returns ErrRateLimited.
func (g *LiveGate) ReserveSlot() error {
	now := g.Now()

	if val, ok, err := config.GetRedisValue(liveWatermarkKey); err == nil && ok {
		if ts, perr := time.Parse(time.RFC3339Nano, val); perr == nil {
			if now.Sub(ts) < g.Interval {
				return ErrRateLimited
			}
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.lastLiveAt.IsZero() && now.Sub(g.lastLiveAt) < g.Interval {
		return ErrRateLimited
	}
	g.lastLiveAt = now
	_ = config.SetRedisValue(liveWatermarkKey, now.Format(time.RFC3339Nano), g.Interval)
	return nil
}

// CheckLiveEligibility runs the pure pre-submit checks: explicit approval,
// consent granted and matching both parties exactly, and the pilot allowlist.
// Rate limiting, provider config validation and the hash recheck happen in the
// worker's live path because they need IO.
func CheckLiveEligibility(sub *models.CreditReportingSubmission, consent *models.ReportingConsent) error {
	if sub.LiveApprovedAt == nil {
		return ErrLiveNotApproved
	}
	if consent == nil || consent.Status != models.ConsentStatusGranted {
		return ErrConsentNotGranted
	}
	if consent.TenantId != sub.TenantId || consent.LandlordId != sub.LandlordId {
		return ErrConsentNotGranted
	}
	if !config.IsPilotLandlord(sub.LandlordId) {
		return ErrNotPilotLandlord
	}
	return nil
}
