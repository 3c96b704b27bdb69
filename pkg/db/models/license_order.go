package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// LicenseOrder is the purchase awaiting a payment confirmation webhook.
type LicenseOrder struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID       uuid.UUID         `gorm:"column:owner_id;type:uuid;not null;index"`
	PlanID        uuid.UUID         `gorm:"column:plan_id;type:uuid;not null"`
	LicenseID     *uuid.UUID        `gorm:"column:license_id;type:uuid"`
	BillingKeyID  *uuid.UUID        `gorm:"column:billing_key_id;type:uuid"`
	Amount        decimal.Decimal   `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      enums.Currency    `gorm:"column:currency;not null"`
	Status        enums.OrderStatus `gorm:"column:status;type:order_status;not null"`
	FailureReason *string           `gorm:"column:failure_reason"`
	PaidAt        *time.Time        `gorm:"column:paid_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *LicenseOrder) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}
