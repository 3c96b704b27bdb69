package licenses

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

// IssueInput describes a new license. Callers check plan issuability themselves.
type IssueInput struct {
	OwnerID    uuid.UUID
	Plan       *models.LicensePlan
	SourceType enums.LicenseSourceType
	SourceRef  *string
	// Status defaults to ACTIVE. PENDING holds entitlements until an explicit ACTIVATE.
	Status    enums.LicenseStatus
	ValidFrom time.Time
	Actor     *outbox.ActorRef
}

// AdminIssueInput is the manual issuance request body.
type AdminIssueInput struct {
	OwnerID uuid.UUID           `json:"ownerId" validate:"required"`
	PlanID  uuid.UUID           `json:"planId" validate:"required"`
	Status  enums.LicenseStatus `json:"status,omitempty"`
	Reason  *string             `json:"reason,omitempty"`
}

type ListParams struct {
	ProductID *uuid.UUID
	Status    *enums.LicenseStatus
	pagination.Params
}

// LicenseView is the read model returned to clients.
type LicenseView struct {
	ID                    uuid.UUID               `json:"id"`
	OwnerID               uuid.UUID               `json:"ownerId"`
	ProductID             uuid.UUID               `json:"productId"`
	PlanID                uuid.UUID               `json:"planId"`
	PlanVersion           int                     `json:"planVersion"`
	LicenseKey            string                  `json:"licenseKey"`
	LicenseType           enums.LicenseType       `json:"licenseType"`
	Status                enums.LicenseStatus     `json:"status"`
	StatusReason          *string                 `json:"statusReason,omitempty"`
	ValidFrom             time.Time               `json:"validFrom"`
	ValidUntil            *time.Time              `json:"validUntil,omitempty"`
	GraceEndsAt           *time.Time              `json:"graceEndsAt,omitempty"`
	GraceDays             int                     `json:"graceDays"`
	MaxActivations        int                     `json:"maxActivations"`
	MaxConcurrentSessions int                     `json:"maxConcurrentSessions"`
	AllowOfflineDays      int                     `json:"allowOfflineDays"`
	Entitlements          []string                `json:"entitlements"`
	EntitlementsActive    bool                    `json:"entitlementsActive"`
	RenewalRequired       bool                    `json:"renewalRequired"`
	SourceType            enums.LicenseSourceType `json:"sourceType"`
	CreatedAt             time.Time               `json:"createdAt"`
	UpdatedAt             time.Time               `json:"updatedAt"`
}

func NewLicenseView(l *models.License) LicenseView {
	entitlements := []string(l.Entitlements.Clone())
	return LicenseView{
		ID:                    l.ID,
		OwnerID:               l.OwnerID,
		ProductID:             l.ProductID,
		PlanID:                l.PlanID,
		PlanVersion:           l.PlanVersion,
		LicenseKey:            l.LicenseKey,
		LicenseType:           l.LicenseType,
		Status:                l.Status,
		StatusReason:          l.StatusReason,
		ValidFrom:             l.ValidFrom,
		ValidUntil:            l.ValidUntil,
		GraceEndsAt:           l.GraceEndsAt(),
		GraceDays:             l.GraceDays,
		MaxActivations:        l.MaxActivations,
		MaxConcurrentSessions: l.MaxConcurrentSessions,
		AllowOfflineDays:      l.AllowOfflineDays,
		Entitlements:          entitlements,
		EntitlementsActive:    GrantsEntitlements(l.Status),
		RenewalRequired:       l.Status == enums.LicenseStatusExpiredGrace,
		SourceType:            l.SourceType,
		CreatedAt:             l.CreatedAt,
		UpdatedAt:             l.UpdatedAt,
	}
}

type ListResult struct {
	Items  []LicenseView `json:"items"`
	Cursor string        `json:"cursor"`
}

// SweepResult summarizes one ProcessExpired run.
type SweepResult struct {
	Scanned int
	Changed int
	Failed  int
}
