package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

// LicenseIssuedEvent is emitted once per new license record.
type LicenseIssuedEvent struct {
	LicenseID   uuid.UUID               `json:"licenseId"`
	OwnerID     uuid.UUID               `json:"ownerId"`
	ProductID   uuid.UUID               `json:"productId"`
	PlanID      uuid.UUID               `json:"planId"`
	PlanVersion int                     `json:"planVersion"`
	LicenseType enums.LicenseType       `json:"licenseType"`
	Status      enums.LicenseStatus     `json:"status"`
	SourceType  enums.LicenseSourceType `json:"sourceType"`
	SourceRef   *string                 `json:"sourceRef,omitempty"`
	ValidFrom   time.Time               `json:"validFrom"`
	ValidUntil  *time.Time              `json:"validUntil,omitempty"`
}

// LicenseStatusChangedEvent carries both sides of a persisted status change.
type LicenseStatusChangedEvent struct {
	LicenseID uuid.UUID           `json:"licenseId"`
	OwnerID   uuid.UUID           `json:"ownerId"`
	From      enums.LicenseStatus `json:"from"`
	To        enums.LicenseStatus `json:"to"`
	Action    string              `json:"action,omitempty"`
	Reason    string              `json:"reason,omitempty"`
}

// LicenseEntitlementsEvent is shared by the granted and withdrawn events.
type LicenseEntitlementsEvent struct {
	LicenseID    uuid.UUID           `json:"licenseId"`
	OwnerID      uuid.UUID           `json:"ownerId"`
	ProductID    uuid.UUID           `json:"productId"`
	Status       enums.LicenseStatus `json:"status"`
	Entitlements []string            `json:"entitlements"`
}

type LicenseExtendedEvent struct {
	LicenseID          uuid.UUID  `json:"licenseId"`
	OwnerID            uuid.UUID  `json:"ownerId"`
	PreviousValidUntil *time.Time `json:"previousValidUntil,omitempty"`
	ValidUntil         time.Time  `json:"validUntil"`
}

type LicenseRedeemedEvent struct {
	LicenseID    uuid.UUID `json:"licenseId"`
	UserID       uuid.UUID `json:"userId"`
	CampaignID   uuid.UUID `json:"campaignId"`
	CodeID       uuid.UUID `json:"codeId"`
	RedemptionID uuid.UUID `json:"redemptionId"`
}

// SubscriptionRenewedEvent reports a successful recurring charge.
type SubscriptionRenewedEvent struct {
	SubscriptionID  uuid.UUID       `json:"subscriptionId"`
	LicenseID       uuid.UUID       `json:"licenseId"`
	OwnerID         uuid.UUID       `json:"ownerId"`
	PaymentID       uuid.UUID       `json:"paymentId"`
	OrderID         string          `json:"orderId"`
	Amount          decimal.Decimal `json:"amount"`
	Currency        enums.Currency  `json:"currency"`
	ValidUntil      time.Time       `json:"validUntil"`
	NextBillingDate time.Time       `json:"nextBillingDate"`
}

// SubscriptionRenewalFailedEvent fires once auto-renew is switched off after the retry budget.
type SubscriptionRenewalFailedEvent struct {
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	LicenseID      uuid.UUID `json:"licenseId"`
	OwnerID        uuid.UUID `json:"ownerId"`
	Attempts       int       `json:"attempts"`
	Reason         string    `json:"reason,omitempty"`
}

type OrderPaidEvent struct {
	OrderID   uuid.UUID       `json:"orderId"`
	OwnerID   uuid.UUID       `json:"ownerId"`
	PlanID    uuid.UUID       `json:"planId"`
	LicenseID uuid.UUID       `json:"licenseId"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  enums.Currency  `json:"currency"`
	PaidAt    time.Time       `json:"paidAt"`
}
