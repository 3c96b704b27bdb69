package subscriptions

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

const (
	outcomeRenewed        = "renewed"
	outcomeRetryScheduled = "retry_scheduled"
	outcomeFailed         = "failed"
	outcomeNoBillingKey   = "no_billing_key"
	outcomeSkipped        = "skipped"
	outcomeUnrenewable    = "license_unrenewable"
	outcomeError          = "error"
)

// Policy bounds the renewal retries and the gateway call.
type Policy struct {
	RetryBudget    int
	RetryDelay     time.Duration
	PaymentTimeout time.Duration
	BatchSize      int
}

func (p Policy) withDefaults() Policy {
	if p.RetryBudget < 0 {
		p.RetryBudget = 0
	}
	if p.RetryDelay <= 0 {
		p.RetryDelay = 24 * time.Hour
	}
	if p.PaymentTimeout <= 0 {
		p.PaymentTimeout = 15 * time.Second
	}
	if p.BatchSize <= 0 {
		p.BatchSize = 200
	}
	return p
}

// CreateFromOrderInput links a paid SUBSCRIPTION order to the license it produced.
type CreateFromOrderInput struct {
	Order   *models.LicenseOrder
	Plan    *models.LicensePlan
	License *models.License
}

type RenewalResult struct {
	Scanned  int
	Renewed  int
	Retrying int
	Disabled int
	Failed   int
}

type SubscriptionView struct {
	ID               uuid.UUID                `json:"id"`
	LicenseID        uuid.UUID                `json:"licenseId"`
	PricePlanID      uuid.UUID                `json:"pricePlanId"`
	Status           enums.SubscriptionStatus `json:"status"`
	StartDate        time.Time                `json:"startDate"`
	EndDate          time.Time                `json:"endDate"`
	AutoRenew        bool                     `json:"autoRenew"`
	BillingCycle     enums.BillingCycle       `json:"billingCycle"`
	NextBillingDate  *time.Time               `json:"nextBillingDate,omitempty"`
	BillingKeyID     *uuid.UUID               `json:"billingKeyId,omitempty"`
	RenewalAttempts  int                      `json:"renewalAttempts"`
	LastRenewalError *string                  `json:"lastRenewalError,omitempty"`
	CanceledAt       *time.Time               `json:"canceledAt,omitempty"`
	CreatedAt        time.Time                `json:"createdAt"`
}

func NewSubscriptionView(s *models.Subscription) SubscriptionView {
	return SubscriptionView{
		ID:               s.ID,
		LicenseID:        s.LicenseID,
		PricePlanID:      s.PricePlanID,
		Status:           s.Status,
		StartDate:        s.StartDate,
		EndDate:          s.EndDate,
		AutoRenew:        s.AutoRenew,
		BillingCycle:     s.BillingCycle,
		NextBillingDate:  s.NextBillingDate,
		BillingKeyID:     s.BillingKeyID,
		RenewalAttempts:  s.RenewalAttempts,
		LastRenewalError: s.LastRenewalError,
		CanceledAt:       s.CanceledAt,
		CreatedAt:        s.CreatedAt,
	}
}

type ListResult struct {
	Items  []SubscriptionView `json:"items"`
	Cursor string             `json:"cursor,omitempty"`
}

// cycleFor prefers the plan's billing cycle and falls back to its duration.
func cycleFor(plan *models.LicensePlan) enums.BillingCycle {
	if plan.BillingCycle != nil && plan.BillingCycle.IsValid() {
		return *plan.BillingCycle
	}
	if plan.DurationDays >= 365 {
		return enums.BillingCycleYearly
	}
	return enums.BillingCycleMonthly
}

func advance(from time.Time, cycle enums.BillingCycle) time.Time {
	if cycle == enums.BillingCycleYearly {
		return from.AddDate(1, 0, 0)
	}
	return from.AddDate(0, 1, 0)
}

func renewalOrderID(id uuid.UUID, at time.Time) string {
	return fmt.Sprintf("SUB-%s-%d", id, at.UnixMilli())
}
