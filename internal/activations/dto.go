package activations

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

const (
	reasonUser          = "USER"
	reasonForceValidate = "FORCE_VALIDATE"
	// Devices on licenses without an offline allowance go stale after this many days.
	minStaleDays = 1
)

// ClientInfo is optional metadata reported by the desktop client.
type ClientInfo struct {
	ClientVersion     *string `json:"clientVersion,omitempty" validate:"omitempty,max=64"`
	ClientOS          *string `json:"clientOs,omitempty" validate:"omitempty,max=64"`
	DeviceDisplayName *string `json:"deviceDisplayName,omitempty" validate:"omitempty,max=128"`
}

type ActivateInput struct {
	DeviceFingerprint string `json:"deviceFingerprint" validate:"required,min=8,max=256"`
	ClientInfo
}

// SessionInput drives validate and heartbeat calls.
type SessionInput struct {
	LicenseID         uuid.UUID `json:"licenseId" validate:"required"`
	DeviceFingerprint string    `json:"deviceFingerprint" validate:"required,min=8,max=256"`
	ClientInfo
}

type ForceSessionInput struct {
	SessionInput
	DeactivateActivationIDs []uuid.UUID `json:"deactivateActivationIds" validate:"required,min=1,max=50"`
}

type ActivationView struct {
	ID                    uuid.UUID              `json:"id"`
	LicenseID             uuid.UUID              `json:"licenseId"`
	DeviceFingerprint     string                 `json:"deviceFingerprint"`
	Status                enums.ActivationStatus `json:"status"`
	ActivatedAt           time.Time              `json:"activatedAt"`
	LastSeenAt            time.Time              `json:"lastSeenAt"`
	ClientVersion         *string                `json:"clientVersion,omitempty"`
	ClientOS              *string                `json:"clientOs,omitempty"`
	DeviceDisplayName     *string                `json:"deviceDisplayName,omitempty"`
	DeactivatedAt         *time.Time             `json:"deactivatedAt,omitempty"`
	DeactivatedReason     *string                `json:"deactivatedReason,omitempty"`
	OfflineTokenExpiresAt *time.Time             `json:"offlineTokenExpiresAt,omitempty"`
}

func NewActivationView(a *models.Activation) ActivationView {
	return ActivationView{
		ID:                    a.ID,
		LicenseID:             a.LicenseID,
		DeviceFingerprint:     a.DeviceFingerprint,
		Status:                a.Status,
		ActivatedAt:           a.ActivatedAt,
		LastSeenAt:            a.LastSeenAt,
		ClientVersion:         a.ClientVersion,
		ClientOS:              a.ClientOS,
		DeviceDisplayName:     a.DeviceDisplayName,
		DeactivatedAt:         a.DeactivatedAt,
		DeactivatedReason:     a.DeactivatedReason,
		OfflineTokenExpiresAt: a.OfflineTokenExpiresAt,
	}
}

// LiveSession is reported back when the concurrent session cap rejects a device.
type LiveSession struct {
	ActivationID      uuid.UUID `json:"activationId"`
	DeviceDisplayName *string   `json:"deviceDisplayName,omitempty"`
	ClientOS          *string   `json:"clientOs,omitempty"`
	LastSeenAt        time.Time `json:"lastSeenAt"`
}

// SessionResult carries the signed tokens for a running copy.
type SessionResult struct {
	Activation            ActivationView      `json:"activation"`
	LicenseStatus         enums.LicenseStatus `json:"licenseStatus"`
	RenewalRequired       bool                `json:"renewalRequired"`
	Entitlements          []string            `json:"entitlements"`
	SessionToken          string              `json:"sessionToken"`
	SessionExpiresAt      time.Time           `json:"sessionExpiresAt"`
	OfflineToken          string              `json:"offlineToken,omitempty"`
	OfflineTokenExpiresAt *time.Time          `json:"offlineTokenExpiresAt,omitempty"`
}
