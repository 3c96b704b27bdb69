package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BillingKey is a stored payment instrument (a card vaulted at the gateway).
type BillingKey struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID           uuid.UUID `gorm:"column:owner_id;type:uuid;not null;index"`
	GatewayCardID     string    `gorm:"column:gateway_card_id;not null;uniqueIndex"`
	GatewayCustomerID string    `gorm:"column:gateway_customer_id;not null"`
	CardBrand         *string   `gorm:"column:card_brand"`
	Last4             *string   `gorm:"column:last4"`
	ExpMonth          *int      `gorm:"column:exp_month"`
	ExpYear           *int      `gorm:"column:exp_year"`
	IsDefault         bool      `gorm:"column:is_default;not null;default:false"`
	Active            bool      `gorm:"column:active;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (k *BillingKey) BeforeCreate(*gorm.DB) error {
	ensureID(&k.ID)
	return nil
}
