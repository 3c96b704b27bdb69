package plans

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

const defaultSessionTTLMinutes = 60

type CreateInput struct {
	ProductID             uuid.UUID           `json:"productId" validate:"required"`
	Code                  string              `json:"code" validate:"required,min=2,max=64"`
	Name                  string              `json:"name" validate:"required,max=200"`
	Description           *string             `json:"description,omitempty"`
	LicenseType           enums.LicenseType   `json:"licenseType" validate:"required"`
	DurationDays          int                 `json:"durationDays" validate:"gte=0"`
	GraceDays             int                 `json:"graceDays" validate:"gte=0"`
	MaxActivations        int                 `json:"maxActivations" validate:"gte=1"`
	MaxConcurrentSessions int                 `json:"maxConcurrentSessions" validate:"gte=1"`
	AllowOfflineDays      int                 `json:"allowOfflineDays" validate:"gte=0"`
	SessionTTLMinutes     int                 `json:"sessionTtlMinutes" validate:"gte=0"`
	Entitlements          []string            `json:"entitlements"`
	Price                 decimal.Decimal     `json:"price"`
	Currency              enums.Currency      `json:"currency" validate:"required"`
	BillingCycle          *enums.BillingCycle `json:"billingCycle,omitempty"`
	Active                *bool               `json:"active,omitempty"`
}

// UpdateInput carries partial edits; nil fields are left untouched.
type UpdateInput struct {
	Name                  *string             `json:"name,omitempty"`
	Description           *string             `json:"description,omitempty"`
	DurationDays          *int                `json:"durationDays,omitempty"`
	GraceDays             *int                `json:"graceDays,omitempty"`
	MaxActivations        *int                `json:"maxActivations,omitempty"`
	MaxConcurrentSessions *int                `json:"maxConcurrentSessions,omitempty"`
	AllowOfflineDays      *int                `json:"allowOfflineDays,omitempty"`
	SessionTTLMinutes     *int                `json:"sessionTtlMinutes,omitempty"`
	Entitlements          []string            `json:"entitlements,omitempty"`
	Price                 *decimal.Decimal    `json:"price,omitempty"`
	Currency              *enums.Currency     `json:"currency,omitempty"`
	BillingCycle          *enums.BillingCycle `json:"billingCycle,omitempty"`
}

type ListParams struct {
	ProductID *uuid.UUID
	// Admin lists include inactive plans; public lists only show issuable ones.
	Admin bool
	pagination.Params
}

type ListResult struct {
	Items  []models.LicensePlan `json:"items"`
	Cursor string               `json:"cursor"`
}
