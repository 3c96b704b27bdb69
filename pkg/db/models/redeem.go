package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// RedeemCampaign bounds how many licenses a set of codes may mint.
type RedeemCampaign struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Name          string                     `gorm:"column:name;not null"`
	Description   *string                    `gorm:"column:description"`
	ProductID     uuid.UUID                  `gorm:"column:product_id;type:uuid;not null"`
	LicensePlanID uuid.UUID                  `gorm:"column:license_plan_id;type:uuid;not null"`
	SeatLimit     *int                       `gorm:"column:seat_limit"`
	SeatsUsed     int                        `gorm:"column:seats_used;not null;default:0"`
	PerUserLimit  int                        `gorm:"column:per_user_limit;not null"`
	Status        enums.RedeemCampaignStatus `gorm:"column:status;type:redeem_campaign_status;not null"`
	ValidFrom     *time.Time                 `gorm:"column:valid_from"`
	ValidUntil    *time.Time                 `gorm:"column:valid_until"`
	CreatedBy     uuid.UUID                  `gorm:"column:created_by;type:uuid;not null"`
	CreatedAt     time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *RedeemCampaign) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// RedeemCode stores only the peppered hash of the plaintext code.
type RedeemCode struct {
	ID                 uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	CampaignID         uuid.UUID            `gorm:"column:campaign_id;type:uuid;not null;index"`
	CodeHash           string               `gorm:"column:code_hash;not null;uniqueIndex"`
	CodeType           enums.RedeemCodeType `gorm:"column:code_type;type:redeem_code_type;not null"`
	MaxRedemptions     int                  `gorm:"column:max_redemptions;not null"`
	CurrentRedemptions int                  `gorm:"column:current_redemptions;not null;default:0"`
	Active             bool                 `gorm:"column:active;not null"`
	ExpiresAt          *time.Time           `gorm:"column:expires_at"`
	CreatedAt          time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *RedeemCode) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// Exhausted reports whether every redemption slot has been used.
func (c *RedeemCode) Exhausted() bool {
	return c.CurrentRedemptions >= c.MaxRedemptions
}

// RedeemRedemption is the audit row written for every successful redemption.
type RedeemRedemption struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	CodeID     uuid.UUID `gorm:"column:code_id;type:uuid;not null;index"`
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;not null"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	LicenseID  uuid.UUID `gorm:"column:license_id;type:uuid;not null"`
	IPAddress  *string   `gorm:"column:ip_address"`
	UserAgent  *string   `gorm:"column:user_agent"`
	RedeemedAt time.Time `gorm:"column:redeemed_at;not null"`
}

func (r *RedeemRedemption) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// RedeemUserCampaignCounter tracks successful redemptions per (campaign, user).
type RedeemUserCampaignCounter struct {
	CampaignID uuid.UUID `gorm:"column:campaign_id;type:uuid;primaryKey"`
	UserID     uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Count      int       `gorm:"column:count;not null;default:0"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
