package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// CreateOrderInput opens a pending purchase. LicenseID turns the order into an
// extension of a license the caller already owns.
type CreateOrderInput struct {
	PlanID       uuid.UUID  `json:"planId" validate:"required"`
	LicenseID    *uuid.UUID `json:"licenseId,omitempty"`
	BillingKeyID *uuid.UUID `json:"billingKeyId,omitempty"`
}

// PaymentNotification is the body posted by the payment provider.
type PaymentNotification struct {
	OrderID uuid.UUID         `json:"orderId"`
	Amount  decimal.Decimal   `json:"amount"`
	Status  enums.OrderStatus `json:"status"`
	Reason  *string           `json:"reason,omitempty"`
}

// WebhookResult reports what a notification did to its order.
type WebhookResult struct {
	OrderID   uuid.UUID         `json:"orderId"`
	Status    enums.OrderStatus `json:"status"`
	LicenseID *uuid.UUID        `json:"licenseId,omitempty"`
	Replayed  bool              `json:"replayed"`
}

type OrderView struct {
	ID            uuid.UUID         `json:"id"`
	PlanID        uuid.UUID         `json:"planId"`
	LicenseID     *uuid.UUID        `json:"licenseId,omitempty"`
	BillingKeyID  *uuid.UUID        `json:"billingKeyId,omitempty"`
	Amount        decimal.Decimal   `json:"amount"`
	Currency      enums.Currency    `json:"currency"`
	Status        enums.OrderStatus `json:"status"`
	FailureReason *string           `json:"failureReason,omitempty"`
	PaidAt        *time.Time        `json:"paidAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func NewOrderView(o *models.LicenseOrder) OrderView {
	return OrderView{
		ID:            o.ID,
		PlanID:        o.PlanID,
		LicenseID:     o.LicenseID,
		BillingKeyID:  o.BillingKeyID,
		Amount:        o.Amount,
		Currency:      o.Currency,
		Status:        o.Status,
		FailureReason: o.FailureReason,
		PaidAt:        o.PaidAt,
		CreatedAt:     o.CreatedAt,
	}
}

type ListResult struct {
	Items  []OrderView `json:"items"`
	Cursor string      `json:"cursor,omitempty"`
}
