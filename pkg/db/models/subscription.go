package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// Subscription drives renewal of exactly one license.
type Subscription struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID          uuid.UUID                `gorm:"column:owner_id;type:uuid;not null;index"`
	LicenseID        uuid.UUID                `gorm:"column:license_id;type:uuid;not null;uniqueIndex"`
	PricePlanID      uuid.UUID                `gorm:"column:price_plan_id;type:uuid;not null"`
	Status           enums.SubscriptionStatus `gorm:"column:status;type:subscription_status;not null"`
	StartDate        time.Time                `gorm:"column:start_date;not null"`
	EndDate          time.Time                `gorm:"column:end_date;not null"`
	AutoRenew        bool                     `gorm:"column:auto_renew;not null"`
	BillingCycle     enums.BillingCycle       `gorm:"column:billing_cycle;type:billing_cycle;not null"`
	NextBillingDate  *time.Time               `gorm:"column:next_billing_date;index"`
	BillingKeyID     *uuid.UUID               `gorm:"column:billing_key_id;type:uuid"`
	RenewalAttempts  int                      `gorm:"column:renewal_attempts;not null;default:0"`
	LastRenewalError *string                  `gorm:"column:last_renewal_error"`
	CanceledAt       *time.Time               `gorm:"column:canceled_at"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// SubscriptionPayment records one renewal charge attempt.
type SubscriptionPayment struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	SubscriptionID uuid.UUID           `gorm:"column:subscription_id;type:uuid;not null;index"`
	OrderID        string              `gorm:"column:order_id;not null;uniqueIndex"`
	Amount         decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency       enums.Currency      `gorm:"column:currency;not null"`
	Status         enums.PaymentStatus `gorm:"column:status;type:payment_status;not null"`
	PaymentKey     *string             `gorm:"column:payment_key"`
	FailureReason  *string             `gorm:"column:failure_reason"`
	AttemptedAt    time.Time           `gorm:"column:attempted_at;not null"`
	CompletedAt    *time.Time          `gorm:"column:completed_at"`
}

func (p *SubscriptionPayment) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}
