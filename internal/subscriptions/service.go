package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/internal/billingkeys"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

type licenseExtender interface {
	LockAndSync(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.License, error)
	Extend(ctx context.Context, tx *gorm.DB, id uuid.UUID, newValidUntil time.Time) (*models.License, error)
}

type planReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
}

type billingKeyReader interface {
	GetUsable(ctx context.Context, id uuid.UUID) (*models.BillingKey, error)
	Default(ctx context.Context, ownerID uuid.UUID) (*models.BillingKey, error)
}

// Gateway charges a stored billing key.
type Gateway interface {
	Charge(ctx context.Context, req billingkeys.ChargeRequest) (*billingkeys.ChargeResult, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service renews subscriptions and exposes the owner-facing subscription controls.
type Service interface {
	RenewDue(ctx context.Context, now time.Time) (RenewalResult, error)
	OnLicenseHardExpired(ctx context.Context, tx *gorm.DB, license *models.License) error
	OnLicenseRevoked(ctx context.Context, tx *gorm.DB, license *models.License) error
	CreateFromOrder(ctx context.Context, tx *gorm.DB, input CreateFromOrderInput) (*models.Subscription, error)
	ToggleAutoRenew(ctx context.Context, ownerID, id uuid.UUID, enabled bool) (*models.Subscription, error)
	Cancel(ctx context.Context, ownerID, id uuid.UUID) (*models.Subscription, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Subscription, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error)
}

type ServiceParams struct {
	Repo        Repository
	Licenses    licenseExtender
	Plans       planReader
	BillingKeys billingKeyReader
	Gateway     Gateway
	Outbox      outboxEmitter
	Tx          txRunner
	Policy      Policy
	Logger      *logger.Logger
	Metrics     *metrics.LicensingMetrics
	Now         func() time.Time
}

type service struct {
	repo     Repository
	licenses licenseExtender
	plans    planReader
	keys     billingKeyReader
	gateway  Gateway
	outbox   outboxEmitter
	tx       txRunner
	policy   Policy
	logg     *logger.Logger
	metrics  *metrics.LicensingMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.BillingKeys == nil {
		return nil, fmt.Errorf("billing key reader required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		licenses: params.Licenses,
		plans:    params.Plans,
		keys:     params.BillingKeys,
		gateway:  params.Gateway,
		outbox:   params.Outbox,
		tx:       params.Tx,
		policy:   params.Policy.withDefaults(),
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

// RenewDue charges every due subscription once. Each subscription commits on its
// own; a failure on one never blocks the rest of the sweep.
func (s *service) RenewDue(ctx context.Context, now time.Time) (RenewalResult, error) {
	var (
		result RenewalResult
		errs   error
		lastID *uuid.UUID
	)
	now = now.UTC()
	for {
		if err := ctx.Err(); err != nil {
			return result, multierr.Append(errs, err)
		}
		batch, err := s.repo.ListDue(ctx, now, lastID, s.policy.BatchSize)
		if err != nil {
			return result, multierr.Append(errs, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list due subscriptions"))
		}
		if len(batch) == 0 {
			return result, errs
		}
		for i := range batch {
			if err := ctx.Err(); err != nil {
				return result, multierr.Append(errs, err)
			}
			sub := batch[i]
			id := sub.ID
			lastID = &id
			result.Scanned++

			outcome, err := s.renewOne(ctx, sub, now)
			s.metrics.IncRenewal(outcome)
			switch outcome {
			case outcomeRenewed:
				result.Renewed++
			case outcomeRetryScheduled:
				result.Retrying++
			case outcomeFailed, outcomeNoBillingKey, outcomeUnrenewable:
				result.Disabled++
			}
			if err != nil {
				result.Failed++
				errs = multierr.Append(errs, fmt.Errorf("renew subscription %s: %w", sub.ID, err))
			}
		}
		if len(batch) < s.policy.BatchSize {
			return result, errs
		}
	}
}

func (s *service) renewOne(ctx context.Context, snapshot models.Subscription, now time.Time) (string, error) {
	plan, err := s.plans.Get(ctx, snapshot.PricePlanID)
	if err != nil {
		return outcomeError, err
	}
	var key *models.BillingKey
	if snapshot.BillingKeyID != nil {
		key, err = s.keys.GetUsable(ctx, *snapshot.BillingKeyID)
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeBillingKeyNotFound) {
			return outcomeError, err
		}
	}
	if key == nil {
		return outcomeNoBillingKey, s.disableAutoRenew(ctx, snapshot.ID, "no active billing key")
	}

	payment, outcome, err := s.openPayment(ctx, snapshot.ID, plan, now)
	if err != nil {
		return outcomeError, err
	}
	if payment == nil {
		return outcome, nil
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.policy.PaymentTimeout)
	charge, chargeErr := s.gateway.Charge(chargeCtx, billingkeys.ChargeRequest{
		BillingKey: key,
		Amount:     payment.Amount,
		Currency:   payment.Currency,
		OrderID:    payment.OrderID,
	})
	cancel()

	if chargeErr != nil {
		return s.recordFailure(ctx, snapshot.ID, payment.ID, chargeErr.Error(), now)
	}
	if err := s.recordSuccess(ctx, snapshot.ID, payment.ID, plan, charge, now); err != nil {
		return outcomeError, err
	}
	return outcomeRenewed, nil
}

// openPayment re-checks the subscription under lock and returns the charge to
// send. A PENDING payment left by an interrupted run is handed back as is, so
// the gateway sees the same order id and does not bill twice. A nil payment
// comes with the outcome that explains why nothing should be charged.
func (s *service) openPayment(ctx context.Context, id uuid.UUID, plan *models.LicensePlan, now time.Time) (*models.SubscriptionPayment, string, error) {
	var payment *models.SubscriptionPayment
	outcome := outcomeSkipped
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		if !due(sub, now) {
			return nil
		}
		license, err := s.licenses.LockAndSync(ctx, tx, sub.LicenseID)
		if err != nil {
			return err
		}
		if reason := unrenewable(license); reason != "" {
			outcome = outcomeUnrenewable
			return s.closeLocked(ctx, repo, sub, reason, now)
		}

		pending, err := repo.FindPendingPayment(ctx, sub.ID)
		switch {
		case err == nil:
			payment = pending
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending renewal payment")
		}
		payment = &models.SubscriptionPayment{
			SubscriptionID: sub.ID,
			OrderID:        renewalOrderID(sub.ID, now),
			Amount:         plan.Price,
			Currency:       plan.Currency,
			Status:         enums.PaymentStatusPending,
			AttemptedAt:    now,
		}
		if err := repo.CreatePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record renewal payment")
		}
		return nil
	})
	if err != nil {
		return nil, outcomeError, err
	}
	if outcome == outcomeUnrenewable {
		logCtx := s.logg.WithField(ctx, "subscription_id", id.String())
		s.logg.Warn(logCtx, "subscription closed: license can no longer be renewed")
	}
	return payment, outcome, nil
}

// unrenewable names why Extend would refuse the license, or returns "".
func unrenewable(license *models.License) string {
	switch {
	case license.Status == enums.LicenseStatusRevoked:
		return "license revoked"
	case license.ValidUntil == nil:
		return "license has no end date"
	}
	return ""
}

// closeLocked cancels a subscription whose license cannot be extended any more.
func (s *service) closeLocked(ctx context.Context, repo Repository, sub *models.Subscription, reason string, now time.Time) error {
	if sub.Status == enums.SubscriptionStatusCanceled {
		return nil
	}
	sub.Status = enums.SubscriptionStatusCanceled
	sub.AutoRenew = false
	sub.CanceledAt = &now
	sub.NextBillingDate = nil
	sub.LastRenewalError = &reason
	if err := repo.Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
	}
	return nil
}

func (s *service) recordSuccess(ctx context.Context, id, paymentID uuid.UUID, plan *models.LicensePlan, charge *billingkeys.ChargeResult, now time.Time) error {
	var renewed *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		payment, err := repo.FindPayment(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load renewal payment")
		}
		license, err := s.licenses.LockAndSync(ctx, tx, sub.LicenseID)
		if err != nil {
			return err
		}
		base := now
		if license.ValidUntil != nil && license.ValidUntil.After(now) {
			base = *license.ValidUntil
		}
		until := advance(base, sub.BillingCycle)
		if _, err := s.licenses.Extend(ctx, tx, license.ID, until); err != nil {
			return err
		}

		sub.EndDate = until
		sub.NextBillingDate = &until
		sub.RenewalAttempts = 0
		sub.LastRenewalError = nil
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
		}
		payment.Status = enums.PaymentStatusSuccess
		payment.PaymentKey = &charge.PaymentID
		payment.CompletedAt = &now
		if err := repo.SavePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save renewal payment")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSubscriptionRenewed,
			AggregateType: enums.AggregateSubscription,
			AggregateID:   sub.ID,
			Data: payloads.SubscriptionRenewedEvent{
				SubscriptionID:  sub.ID,
				LicenseID:       sub.LicenseID,
				OwnerID:         sub.OwnerID,
				PaymentID:       payment.ID,
				OrderID:         payment.OrderID,
				Amount:          payment.Amount,
				Currency:        payment.Currency,
				ValidUntil:      until,
				NextBillingDate: until,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit subscription renewed")
		}
		renewed = sub
		return nil
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithLicenseID(ctx, renewed.LicenseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"subscription_id": renewed.ID.String(),
		"plan_id":         plan.ID.String(),
		"valid_until":     renewed.EndDate,
	})
	s.logg.Info(logCtx, "subscription renewed")
	return nil
}

// recordFailure burns one retry. Once attempts exceed the budget auto-renew is
// switched off; the license itself is left to the grace/expiry path.
func (s *service) recordFailure(ctx context.Context, id, paymentID uuid.UUID, reason string, now time.Time) (string, error) {
	outcome := outcomeRetryScheduled
	var attempts int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		payment, err := repo.FindPayment(ctx, paymentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load renewal payment")
		}
		payment.Status = enums.PaymentStatusFailed
		payment.FailureReason = &reason
		payment.CompletedAt = &now
		if err := repo.SavePayment(ctx, payment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save renewal payment")
		}

		sub.RenewalAttempts++
		sub.LastRenewalError = &reason
		attempts = sub.RenewalAttempts
		if sub.RenewalAttempts <= s.policy.RetryBudget {
			next := now.Add(s.policy.RetryDelay)
			sub.NextBillingDate = &next
		} else {
			outcome = outcomeFailed
			sub.AutoRenew = false
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventSubscriptionRenewalFailed,
				AggregateType: enums.AggregateSubscription,
				AggregateID:   sub.ID,
				Data: payloads.SubscriptionRenewalFailedEvent{
					SubscriptionID: sub.ID,
					LicenseID:      sub.LicenseID,
					OwnerID:        sub.OwnerID,
					Attempts:       sub.RenewalAttempts,
					Reason:         reason,
				},
				OccurredAt: now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit renewal failed")
			}
		}
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
		}
		return nil
	})
	if err != nil {
		return outcomeError, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"subscription_id": id.String(),
		"attempts":        attempts,
		"outcome":         outcome,
	})
	s.logg.Warn(logCtx, "subscription renewal charge failed")
	return outcome, nil
}

func (s *service) disableAutoRenew(ctx context.Context, id uuid.UUID, reason string) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		sub.AutoRenew = false
		sub.LastRenewalError = &reason
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
		}
		return nil
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithField(ctx, "subscription_id", id.String())
	s.logg.Warn(logCtx, "auto-renew disabled: "+reason)
	return nil
}

// OnLicenseHardExpired runs inside the expiry sweep transaction.
func (s *service) OnLicenseHardExpired(ctx context.Context, tx *gorm.DB, license *models.License) error {
	repo := s.repo.WithTx(tx)
	sub, err := repo.FindByLicense(ctx, license.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription for license")
	}
	if sub.AutoRenew || sub.Status != enums.SubscriptionStatusActive {
		return nil
	}
	sub.Status = enums.SubscriptionStatusExpired
	if err := repo.Save(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire subscription")
	}
	return nil
}

// OnLicenseRevoked runs inside the admin transaction that revoked the license.
func (s *service) OnLicenseRevoked(ctx context.Context, tx *gorm.DB, license *models.License) error {
	repo := s.repo.WithTx(tx)
	sub, err := repo.FindByLicense(ctx, license.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription for license")
	}
	return s.closeLocked(ctx, repo, sub, "license revoked", s.now())
}

// CreateFromOrder opens the subscription for a paid order, or pushes the
// existing one forward when the order extended a subscribed license.
func (s *service) CreateFromOrder(ctx context.Context, tx *gorm.DB, input CreateFromOrderInput) (*models.Subscription, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if input.Order == nil || input.Plan == nil || input.License == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order, plan and license are required")
	}
	if input.License.ValidUntil == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscriptions require a license with an end date")
	}
	end := *input.License.ValidUntil
	repo := s.repo.WithTx(tx)

	existing, err := repo.FindByLicense(ctx, input.License.ID)
	switch {
	case err == nil:
		existing.EndDate = end
		existing.NextBillingDate = &end
		existing.RenewalAttempts = 0
		existing.LastRenewalError = nil
		if input.Order.BillingKeyID != nil {
			existing.BillingKeyID = input.Order.BillingKeyID
		}
		if existing.Status == enums.SubscriptionStatusExpired {
			existing.Status = enums.SubscriptionStatusActive
		}
		if err := repo.Save(ctx, existing); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
		}
		return existing, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription for license")
	}

	sub := &models.Subscription{
		OwnerID:         input.Order.OwnerID,
		LicenseID:       input.License.ID,
		PricePlanID:     input.Plan.ID,
		Status:          enums.SubscriptionStatusActive,
		StartDate:       input.License.ValidFrom,
		EndDate:         end,
		AutoRenew:       input.Order.BillingKeyID != nil,
		BillingCycle:    cycleFor(input.Plan),
		NextBillingDate: &end,
		BillingKeyID:    input.Order.BillingKeyID,
	}
	if err := repo.Create(ctx, sub); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	logCtx := s.logg.WithLicenseID(ctx, sub.LicenseID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"subscription_id": sub.ID.String(), "auto_renew": sub.AutoRenew})
	s.logg.Info(logCtx, "subscription created")
	return sub, nil
}

// ToggleAutoRenew switches renewal on or off. Enabling needs a chargeable key
// and restarts the retry budget; an EXPIRED subscription is reopened and billed
// on the next sweep.
func (s *service) ToggleAutoRenew(ctx context.Context, ownerID, id uuid.UUID, enabled bool) (*models.Subscription, error) {
	current, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	var keyID *uuid.UUID
	if enabled {
		if current.Status == enums.SubscriptionStatusCanceled {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "canceled subscriptions cannot auto-renew").
				WithDetails(map[string]any{"currentStatus": current.Status})
		}
		key, err := s.chargeableKey(ctx, current)
		if err != nil {
			return nil, err
		}
		keyID = &key.ID
	}

	var result *models.Subscription
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		sub.AutoRenew = enabled
		if enabled {
			sub.BillingKeyID = keyID
			sub.RenewalAttempts = 0
			sub.LastRenewalError = nil
			if sub.Status == enums.SubscriptionStatusExpired {
				sub.Status = enums.SubscriptionStatusActive
				now := s.now()
				sub.NextBillingDate = &now
			}
		}
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save subscription")
		}
		result = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithUserID(ctx, ownerID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"subscription_id": id.String(), "auto_renew": enabled})
	s.logg.Info(logCtx, "subscription auto-renew toggled")
	return result, nil
}

func (s *service) chargeableKey(ctx context.Context, sub *models.Subscription) (*models.BillingKey, error) {
	if sub.BillingKeyID != nil {
		key, err := s.keys.GetUsable(ctx, *sub.BillingKeyID)
		if err == nil && key.OwnerID == sub.OwnerID {
			return key, nil
		}
		if err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeBillingKeyNotFound) {
			return nil, err
		}
	}
	key, err := s.keys.Default(ctx, sub.OwnerID)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, pkgerrors.New(pkgerrors.CodeBillingKeyNotFound, "an active billing key is required to enable auto-renew")
	}
	return key, nil
}

// Cancel stops renewal for good. The license keeps running until validUntil.
func (s *service) Cancel(ctx context.Context, ownerID, id uuid.UUID) (*models.Subscription, error) {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return nil, err
	}
	var result *models.Subscription
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		sub, err := repo.FindByIDForUpdate(ctx, id)
		if err != nil {
			return mapFindErr(err)
		}
		result = sub
		if sub.Status == enums.SubscriptionStatusCanceled {
			return nil
		}
		now := s.now()
		sub.Status = enums.SubscriptionStatusCanceled
		sub.AutoRenew = false
		sub.CanceledAt = &now
		if err := repo.Save(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithUserID(ctx, ownerID.String())
	logCtx = s.logg.WithField(logCtx, "subscription_id", id.String())
	s.logg.Info(logCtx, "subscription canceled")
	return result, nil
}

func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.Subscription, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if sub.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeAccessDenied, "subscription belongs to another user")
	}
	return sub, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list subscriptions")
	}
	page, next := pagination.Page(rows, params.Limit, func(sub models.Subscription) pagination.Cursor {
		return pagination.Cursor{CreatedAt: sub.CreatedAt, ID: sub.ID}
	})
	items := make([]SubscriptionView, 0, len(page))
	for i := range page {
		items = append(items, NewSubscriptionView(&page[i]))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func due(sub *models.Subscription, now time.Time) bool {
	return sub.AutoRenew &&
		sub.Status == enums.SubscriptionStatusActive &&
		sub.NextBillingDate != nil &&
		!sub.NextBillingDate.After(now)
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeSubscriptionNotFound, "subscription not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load subscription")
}
