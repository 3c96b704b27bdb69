package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// Activation binds one device fingerprint to a license.
type Activation struct {
	ID                    uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	LicenseID             uuid.UUID              `gorm:"column:license_id;type:uuid;not null;index"`
	DeviceFingerprint     string                 `gorm:"column:device_fingerprint;not null"`
	Status                enums.ActivationStatus `gorm:"column:status;type:activation_status;not null"`
	ActivatedAt           time.Time              `gorm:"column:activated_at;not null"`
	LastSeenAt            time.Time              `gorm:"column:last_seen_at;not null"`
	ClientVersion         *string                `gorm:"column:client_version"`
	ClientOS              *string                `gorm:"column:client_os"`
	DeviceDisplayName     *string                `gorm:"column:device_display_name"`
	DeactivatedAt         *time.Time             `gorm:"column:deactivated_at"`
	DeactivatedReason     *string                `gorm:"column:deactivated_reason"`
	OfflineTokenExpiresAt *time.Time             `gorm:"column:offline_token_expires_at"`
	CreatedAt             time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}

func (a *Activation) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// OccupiesSeat reports whether the activation counts against maxActivations.
func (a *Activation) OccupiesSeat() bool {
	return a.Status == enums.ActivationStatusActive || a.Status == enums.ActivationStatusStale
}
