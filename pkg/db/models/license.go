package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/licensing-backend/pkg/db/types"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// License is the unit of access grant. Plan terms are copied at issue time and
// never re-read from the plan afterwards.
type License struct {
	ID                    uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID               uuid.UUID               `gorm:"column:owner_id;type:uuid;not null;index"`
	ProductID             uuid.UUID               `gorm:"column:product_id;type:uuid;not null"`
	PlanID                uuid.UUID               `gorm:"column:plan_id;type:uuid;not null"`
	PlanVersion           int                     `gorm:"column:plan_version;not null"`
	LicenseKey            string                  `gorm:"column:license_key;not null;uniqueIndex"`
	LicenseType           enums.LicenseType       `gorm:"column:license_type;type:license_type;not null"`
	Status                enums.LicenseStatus     `gorm:"column:status;type:license_status;not null"`
	StatusReason          *string                 `gorm:"column:status_reason"`
	ValidFrom             time.Time               `gorm:"column:valid_from;not null"`
	ValidUntil            *time.Time              `gorm:"column:valid_until;index"`
	GraceDays             int                     `gorm:"column:grace_days;not null"`
	MaxActivations        int                     `gorm:"column:max_activations;not null"`
	MaxConcurrentSessions int                     `gorm:"column:max_concurrent_sessions;not null"`
	AllowOfflineDays      int                     `gorm:"column:allow_offline_days;not null"`
	SessionTTLMinutes     int                     `gorm:"column:session_ttl_minutes;not null"`
	Entitlements          dbtypes.StringSet       `gorm:"column:entitlements;not null"`
	SourceType            enums.LicenseSourceType `gorm:"column:source_type;type:license_source_type;not null"`
	SourceRef             *string                 `gorm:"column:source_ref"`
	CreatedAt             time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (l *License) BeforeCreate(*gorm.DB) error {
	ensureID(&l.ID)
	return nil
}

// GraceEndsAt returns the instant entitlements are withdrawn, or nil for perpetual licenses.
func (l *License) GraceEndsAt() *time.Time {
	if l.ValidUntil == nil {
		return nil
	}
	end := l.ValidUntil.Add(time.Duration(l.GraceDays) * 24 * time.Hour)
	return &end
}
