package redeem

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

const (
	defaultPerUserLimit   = 1
	defaultMaxRedemptions = 1
	maxGenerateCount      = 1000
	maxGenerateRetries    = 100
	randomCodeGroups      = 4
	randomCodeGroupSize   = 4
)

type RedeemInput struct {
	Code      string    `json:"code" validate:"required"`
	UserID    uuid.UUID `json:"-"`
	IPAddress *string   `json:"-"`
	UserAgent *string   `json:"-"`
}

type RedeemResult struct {
	RedemptionID uuid.UUID            `json:"redemptionId"`
	CampaignID   uuid.UUID            `json:"campaignId"`
	License      licenses.LicenseView `json:"license"`
}

type CreateCampaignInput struct {
	Name         string     `json:"name" validate:"required,max=200"`
	Description  *string    `json:"description,omitempty"`
	PlanID       uuid.UUID  `json:"planId" validate:"required"`
	SeatLimit    *int       `json:"seatLimit,omitempty" validate:"omitempty,min=1"`
	PerUserLimit int        `json:"perUserLimit,omitempty" validate:"omitempty,min=1"`
	ValidFrom    *time.Time `json:"validFrom,omitempty"`
	ValidUntil   *time.Time `json:"validUntil,omitempty"`
}

// UpdateCampaignInput patches only the non-nil fields. ClearSeatLimit removes the cap.
type UpdateCampaignInput struct {
	Name           *string    `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Description    *string    `json:"description,omitempty"`
	SeatLimit      *int       `json:"seatLimit,omitempty" validate:"omitempty,min=1"`
	ClearSeatLimit bool       `json:"clearSeatLimit,omitempty"`
	PerUserLimit   *int       `json:"perUserLimit,omitempty" validate:"omitempty,min=1"`
	ValidFrom      *time.Time `json:"validFrom,omitempty"`
	ValidUntil     *time.Time `json:"validUntil,omitempty"`
}

type CampaignListParams struct {
	Status *enums.RedeemCampaignStatus
	pagination.Params
}

type CampaignView struct {
	ID            uuid.UUID                  `json:"id"`
	Name          string                     `json:"name"`
	Description   *string                    `json:"description,omitempty"`
	ProductID     uuid.UUID                  `json:"productId"`
	LicensePlanID uuid.UUID                  `json:"licensePlanId"`
	SeatLimit     *int                       `json:"seatLimit,omitempty"`
	SeatsUsed     int                        `json:"seatsUsed"`
	PerUserLimit  int                        `json:"perUserLimit"`
	Status        enums.RedeemCampaignStatus `json:"status"`
	ValidFrom     *time.Time                 `json:"validFrom,omitempty"`
	ValidUntil    *time.Time                 `json:"validUntil,omitempty"`
	CreatedBy     uuid.UUID                  `json:"createdBy"`
	CreatedAt     time.Time                  `json:"createdAt"`
	UpdatedAt     time.Time                  `json:"updatedAt"`
}

func NewCampaignView(c *models.RedeemCampaign) CampaignView {
	return CampaignView{
		ID:            c.ID,
		Name:          c.Name,
		Description:   c.Description,
		ProductID:     c.ProductID,
		LicensePlanID: c.LicensePlanID,
		SeatLimit:     c.SeatLimit,
		SeatsUsed:     c.SeatsUsed,
		PerUserLimit:  c.PerUserLimit,
		Status:        c.Status,
		ValidFrom:     c.ValidFrom,
		ValidUntil:    c.ValidUntil,
		CreatedBy:     c.CreatedBy,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type CampaignListResult struct {
	Items  []CampaignView `json:"items"`
	Cursor string         `json:"cursor,omitempty"`
}

// GenerateCodesInput uses Count for RANDOM codes and Code for a single CUSTOM one.
type GenerateCodesInput struct {
	Type           enums.RedeemCodeType `json:"type" validate:"required"`
	Count          int                  `json:"count,omitempty" validate:"omitempty,min=1,max=1000"`
	Code           string               `json:"code,omitempty"`
	MaxRedemptions int                  `json:"maxRedemptions,omitempty" validate:"omitempty,min=1"`
	ExpiresAt      *time.Time           `json:"expiresAt,omitempty"`
}

// GeneratedCode is the only place a plaintext code is ever returned.
type GeneratedCode struct {
	ID             uuid.UUID            `json:"id"`
	Code           string               `json:"code"`
	CodeType       enums.RedeemCodeType `json:"codeType"`
	MaxRedemptions int                  `json:"maxRedemptions"`
	ExpiresAt      *time.Time           `json:"expiresAt,omitempty"`
}

type CodeView struct {
	ID                 uuid.UUID            `json:"id"`
	CampaignID         uuid.UUID            `json:"campaignId"`
	CodeType           enums.RedeemCodeType `json:"codeType"`
	MaxRedemptions     int                  `json:"maxRedemptions"`
	CurrentRedemptions int                  `json:"currentRedemptions"`
	Active             bool                 `json:"active"`
	ExpiresAt          *time.Time           `json:"expiresAt,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
}

func NewCodeView(c *models.RedeemCode) CodeView {
	return CodeView{
		ID:                 c.ID,
		CampaignID:         c.CampaignID,
		CodeType:           c.CodeType,
		MaxRedemptions:     c.MaxRedemptions,
		CurrentRedemptions: c.CurrentRedemptions,
		Active:             c.Active,
		ExpiresAt:          c.ExpiresAt,
		CreatedAt:          c.CreatedAt,
	}
}

type CodeListResult struct {
	Items  []CodeView `json:"items"`
	Cursor string     `json:"cursor,omitempty"`
}
