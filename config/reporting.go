package config

import (
	"os"
	"strings"
	"time"
)

// Environment-level reporting controls.
//
// REPORTING_ENABLED is a hard ceiling: the persisted pause flag can only turn
// reporting OFF on top of it, never back on.
//
// Set via env:
// - REPORTING_ENABLED=true
// - REPORTING_DRY_RUN=true
// - REPORTING_MAX_ATTEMPTS=3
// - REPORTING_ALLOWED_PROVIDERS="mock,experian"
// - REPORTING_PILOT_LANDLORDS="ll_123,ll_456" (empty = no pilot restriction)
// - REPORTING_STUCK_THRESHOLD_MINUTES=10
// - REPORTING_SWEEP_LIMIT=100
// - REPORTING_LIVE_INTERVAL_SECONDS=60

func envTruthy(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

func envCSV(key string) []string {
	raw := os.Getenv(key)
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func ReportingEnvEnabled() bool {
	return envTruthy("REPORTING_ENABLED")
}

func ReportingDryRunDefault() bool {
	return envTruthy("REPORTING_DRY_RUN")
}

func ReportingMaxAttempts() int {
	n := intFromEnv("REPORTING_MAX_ATTEMPTS", 3)
	if n < 1 {
		n = 1
	}
	return n
}

func ReportingAllowedProviders() []string {
	return envCSV("REPORTING_ALLOWED_PROVIDERS")
}

// IsProviderAllowed treats an empty allowlist as "mock only".
func IsProviderAllowed(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	allowed := ReportingAllowedProviders()
	if len(allowed) == 0 {
		return key == "" || key == "mock"
	}
	for _, a := range allowed {
		if strings.EqualFold(a, key) {
			return true
		}
	}
	return false
}

func ReportingPilotLandlords() []string {
	return envCSV("REPORTING_PILOT_LANDLORDS")
}

// IsPilotLandlord treats an empty allowlist as "all landlords".
func IsPilotLandlord(landlordId string) bool {
	pilot := ReportingPilotLandlords()
	if len(pilot) == 0 {
		return true
	}
	for _, p := range pilot {
		if p == landlordId {
			return true
		}
	}
	return false
}

func ReportingStuckThresholdMinutes() int {
	n := intFromEnv("REPORTING_STUCK_THRESHOLD_MINUTES", 10)
	if n < 1 {
		n = 1
	}
	return n
}

func ReportingSweepLimit() int {
	n := intFromEnv("REPORTING_SWEEP_LIMIT", 100)
	if n < 1 {
		n = 1
	}
	return n
}

func ReportingLiveInterval() time.Duration {
	return time.Duration(intFromEnv("REPORTING_LIVE_INTERVAL_SECONDS", 60)) * time.Second
}
