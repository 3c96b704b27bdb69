package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/licensing-backend/pkg/db/types"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// LicensePlan is a mutable catalog entry. Issued licenses snapshot its terms.
type LicensePlan struct {
	ID                    uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID             uuid.UUID           `gorm:"column:product_id;type:uuid;not null;index"`
	Code                  string              `gorm:"column:code;not null;uniqueIndex"`
	Name                  string              `gorm:"column:name;not null"`
	Description           *string             `gorm:"column:description"`
	LicenseType           enums.LicenseType   `gorm:"column:license_type;type:license_type;not null"`
	DurationDays          int                 `gorm:"column:duration_days;not null;default:0"`
	GraceDays             int                 `gorm:"column:grace_days;not null;default:0"`
	MaxActivations        int                 `gorm:"column:max_activations;not null"`
	MaxConcurrentSessions int                 `gorm:"column:max_concurrent_sessions;not null"`
	AllowOfflineDays      int                 `gorm:"column:allow_offline_days;not null"`
	SessionTTLMinutes     int                 `gorm:"column:session_ttl_minutes;not null"`
	Entitlements          dbtypes.StringSet   `gorm:"column:entitlements;not null"`
	Price                 decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null;default:0"`
	Currency              enums.Currency      `gorm:"column:currency;not null"`
	BillingCycle          *enums.BillingCycle `gorm:"column:billing_cycle;type:billing_cycle"`
	Version               int                 `gorm:"column:version;not null"`
	Active                bool                `gorm:"column:active;not null"`
	Deleted               bool                `gorm:"column:deleted;not null;default:false"`
	CreatedAt             time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *LicensePlan) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// Issuable reports whether new licenses may be minted from the plan.
func (p *LicensePlan) Issuable() bool {
	return p != nil && p.Active && !p.Deleted
}
