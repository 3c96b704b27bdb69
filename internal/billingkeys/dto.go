package billingkeys

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
)

// RegisterInput carries a one-time card nonce from the client-side card form.
type RegisterInput struct {
	SourceID          string `json:"sourceId" validate:"required"`
	CardholderName    string `json:"cardholderName,omitempty"`
	VerificationToken string `json:"verificationToken,omitempty"`
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
	MakeDefault       bool   `json:"makeDefault,omitempty"`
	IdempotencyKey    string `json:"-"`
}

// KeyView never exposes gateway identifiers.
type KeyView struct {
	ID        uuid.UUID `json:"id"`
	CardBrand *string   `json:"cardBrand,omitempty"`
	Last4     *string   `json:"last4,omitempty"`
	ExpMonth  *int      `json:"expMonth,omitempty"`
	ExpYear   *int      `json:"expYear,omitempty"`
	IsDefault bool      `json:"isDefault"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewKeyView(k *models.BillingKey) KeyView {
	return KeyView{
		ID:        k.ID,
		CardBrand: k.CardBrand,
		Last4:     k.Last4,
		ExpMonth:  k.ExpMonth,
		ExpYear:   k.ExpYear,
		IsDefault: k.IsDefault,
		CreatedAt: k.CreatedAt,
	}
}
