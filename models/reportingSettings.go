package models

import (
	"errors"
	"sync"
	"time"

	"bitbucket.org/rentfolio/reporting_backend/config"
	"gorm.io/gorm"
)

// ReportingSettings is the single persisted override document. Only the pause
// flag lives here; everything else reporting-related is env-derived.
type ReportingSettings struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Paused    bool      `gorm:"not null;default:0" json:"paused"`
	UpdatedBy *string   `gorm:"size:64" json:"updated_by"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

const reportingSettingsRowId = 1

// RuntimeConfig is the merged env-ceiling + persisted-override view.
// Enabled is envEnabled AND NOT persistedPaused: no persisted override can
// re-enable reporting when the environment disables it.
type RuntimeConfig struct {
	Enabled     bool      `json:"enabled"`
	DryRun      bool      `json:"dry_run"`
	MaxAttempts int       `json:"max_attempts"`
	Source      string    `json:"source"`
	FetchedAt   time.Time `json:"fetched_at"`
}

const runtimeConfigTTL = 10 * time.Second

var (
	runtimeCfgMu     sync.Mutex
	runtimeCfgCached *RuntimeConfig
)

// GetRuntimeConfig returns the cached runtime config, refreshing it when the
// TTL has lapsed or bypassCache is set.
func GetRuntimeConfig(db *gorm.DB, bypassCache bool) (RuntimeConfig, error) {
	runtimeCfgMu.Lock()
	if !bypassCache && runtimeCfgCached != nil && time.Since(runtimeCfgCached.FetchedAt) < runtimeConfigTTL {
		cfg := *runtimeCfgCached
		runtimeCfgMu.Unlock()
		return cfg, nil
	}
	runtimeCfgMu.Unlock()

	envEnabled := config.ReportingEnvEnabled()
	cfg := RuntimeConfig{
		Enabled:     envEnabled,
		DryRun:      config.ReportingDryRunDefault(),
		MaxAttempts: config.ReportingMaxAttempts(),
		Source:      "env",
		FetchedAt:   time.Now().UTC(),
	}

	var settings ReportingSettings
	err := db.First(&settings, "id = ?", reportingSettingsRowId).Error
	if err == nil {
		cfg.Enabled = envEnabled && !settings.Paused
		cfg.Source = "env+settings"
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return RuntimeConfig{}, err
	}

	runtimeCfgMu.Lock()
	runtimeCfgCached = &cfg
	runtimeCfgMu.Unlock()
	return cfg, nil
}

// SetReportingPaused writes the persisted pause flag, invalidates the cache and
// returns the fresh merged config.
func SetReportingPaused(db *gorm.DB, paused bool, actor string) (RuntimeConfig, error) {
	err := db.Transaction(func(tx *gorm.DB) error {
		var settings ReportingSettings
		ferr := tx.First(&settings, "id = ?", reportingSettingsRowId).Error
		if errors.Is(ferr, gorm.ErrRecordNotFound) {
			settings = ReportingSettings{ID: reportingSettingsRowId, Paused: paused, UpdatedBy: &actor}
			return tx.Create(&settings).Error
		}
		if ferr != nil {
			return ferr
		}
		return tx.Model(&ReportingSettings{}).
			Where("id = ?", reportingSettingsRowId).
			Updates(map[string]interface{}{"paused": paused, "updated_by": &actor}).Error
	})
	if err != nil {
		return RuntimeConfig{}, err
	}

	InvalidateRuntimeConfig()
	return GetRuntimeConfig(db, true)
}

// InvalidateRuntimeConfig drops the cached config. Exported so tests and the
// pause path can force a re-read deterministically.
func InvalidateRuntimeConfig() {
	runtimeCfgMu.Lock()
	runtimeCfgCached = nil
	runtimeCfgMu.Unlock()
}
