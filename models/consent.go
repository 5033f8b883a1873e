package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type ConsentStatus string

const (
	ConsentStatusPending ConsentStatus = "PENDING"
	ConsentStatusGranted ConsentStatus = "GRANTED"
	ConsentStatusRevoked ConsentStatus = "REVOKED"
)

// ReportingConsent mirrors the consent registry. Consent lifecycle is owned
// elsewhere; the pipeline only reads it as a gate.
type ReportingConsent struct {
	ID         int           `gorm:"primary_key" json:"id"`
	TenantId   string        `gorm:"size:64;not null;index:uniq_consent,unique" json:"tenant_id"`
	LandlordId string        `gorm:"size:64;not null;index:uniq_consent,unique" json:"landlord_id"`
	Status     ConsentStatus `gorm:"size:20;not null" json:"status"`
	CreatedAt  time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetConsent returns (nil, nil) when no consent record exists for the pair.
func GetConsent(db *gorm.DB, tenantId, landlordId string) (*ReportingConsent, error) {
	var consent ReportingConsent
	err := db.First(&consent, "tenant_id = ? AND landlord_id = ?", tenantId, landlordId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &consent, nil
}
