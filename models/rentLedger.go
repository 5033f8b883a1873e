package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RentCharge and RentPayment belong to the rent ledger, which is the pipeline's
// read-only source of truth. The pipeline never writes these tables.

type RentCharge struct {
	ID         int     `gorm:"primary_key" json:"id"`
	LandlordId string  `gorm:"size:64;not null;index" json:"landlord_id"`
	TenantId   string  `gorm:"size:64;not null;index" json:"tenant_id"`
	LeaseId    *string `gorm:"size:64" json:"lease_id"`

	// Period is the explicit YYYY-MM the charge belongs to; when empty, the
	// due date's month is used as a fallback.
	Period  string           `gorm:"size:7;index" json:"period"`
	Amount  *decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	DueDate *time.Time       `json:"due_date"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type RentPayment struct {
	ID         int    `gorm:"primary_key" json:"id"`
	LandlordId string `gorm:"size:64;not null;index" json:"landlord_id"`
	TenantId   string `gorm:"size:64;not null;index" json:"tenant_id"`

	// RentChargeId is the explicit linkage; when null, the payment is matched
	// to a charge by paid-at month.
	RentChargeId *int            `gorm:"index" json:"rent_charge_id"`
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	PaidAt       *time.Time      `json:"paid_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func ListCharges(db *gorm.DB, tenantId string) ([]RentCharge, error) {
	var charges []RentCharge
	err := db.Where("tenant_id = ?", tenantId).
		Order("due_date ASC, id ASC").
		Find(&charges).Error
	return charges, err
}

func ListPayments(db *gorm.DB, tenantId string) ([]RentPayment, error) {
	var payments []RentPayment
	err := db.Where("tenant_id = ?", tenantId).
		Order("paid_at ASC, id ASC").
		Find(&payments).Error
	return payments, err
}
