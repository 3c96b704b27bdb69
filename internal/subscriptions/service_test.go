package subscriptions

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/internal/billingkeys"
	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/db/dbtest"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/licensing-backend/pkg/db/types"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/outboxtest"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

type stubPlans struct {
	plan *models.LicensePlan
}

func (s stubPlans) Get(_ context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	if s.plan == nil || s.plan.ID != id {
		return nil, pkgerrors.New(pkgerrors.CodePlanNotFound, "plan not found")
	}
	return s.plan, nil
}

func (s stubPlans) GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	return s.Get(ctx, id)
}

type stubKeys struct {
	mu   sync.Mutex
	keys map[uuid.UUID]*models.BillingKey
}

func (s *stubKeys) add(key *models.BillingKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[uuid.UUID]*models.BillingKey{}
	}
	s.keys[key.ID] = key
}

func (s *stubKeys) GetUsable(_ context.Context, id uuid.UUID) (*models.BillingKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[id]
	if !ok || !key.Active {
		return nil, pkgerrors.New(pkgerrors.CodeBillingKeyNotFound, "billing key not found")
	}
	return key, nil
}

func (s *stubKeys) Default(_ context.Context, ownerID uuid.UUID) (*models.BillingKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.keys {
		if key.OwnerID == ownerID && key.Active && key.IsDefault {
			return key, nil
		}
	}
	return nil, nil
}

type stubGateway struct {
	fail  error
	calls []billingkeys.ChargeRequest
	// afterCharge runs once the charge is accepted, before the result returns.
	afterCharge func()
}

func (g *stubGateway) Charge(_ context.Context, req billingkeys.ChargeRequest) (*billingkeys.ChargeResult, error) {
	g.calls = append(g.calls, req)
	if g.afterCharge != nil {
		g.afterCharge()
	}
	if g.fail != nil {
		return nil, g.fail
	}
	return &billingkeys.ChargeResult{PaymentID: "pay_" + req.OrderID, Status: "COMPLETED"}, nil
}

type harness struct {
	svc      *service
	licenses licenses.Service
	client   *db.Client
	events   *outboxtest.Recorder
	keys     *stubKeys
	gateway  *stubGateway
	plan     *models.LicensePlan
	owner    uuid.UUID
	mu       sync.Mutex
	clock    time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	cycle := enums.BillingCycleMonthly
	plan := &models.LicensePlan{
		ID:                    uuid.New(),
		ProductID:             uuid.New(),
		Code:                  "PRO-MONTHLY",
		Name:                  "Pro monthly",
		LicenseType:           enums.LicenseTypeSubscription,
		DurationDays:          30,
		GraceDays:             7,
		MaxActivations:        2,
		MaxConcurrentSessions: 1,
		AllowOfflineDays:      3,
		SessionTTLMinutes:     60,
		Entitlements:          dbtypes.NewStringSet("pro"),
		Price:                 decimal.RequireFromString("9.99"),
		Currency:              enums.CurrencyUSD,
		BillingCycle:          &cycle,
		Version:               1,
		Active:                true,
	}
	h := &harness{
		client:  client,
		events:  &outboxtest.Recorder{},
		keys:    &stubKeys{},
		gateway: &stubGateway{},
		plan:    plan,
		owner:   uuid.New(),
		clock:   time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC),
	}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	licenseSvc, err := licenses.NewService(licenses.ServiceParams{
		Repo:   licenses.NewRepository(client.DB()),
		Plans:  stubPlans{plan: plan},
		Outbox: h.events,
		Tx:     client,
		Logger: logg,
		Now:    h.now,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:        NewRepository(client.DB()),
		Licenses:    licenseSvc,
		Plans:       stubPlans{plan: plan},
		BillingKeys: h.keys,
		Gateway:     h.gateway,
		Outbox:      h.events,
		Tx:          client,
		Policy:      Policy{RetryBudget: 2, RetryDelay: 24 * time.Hour},
		Logger:      logg,
		Now:         h.now,
	})
	require.NoError(t, err)
	licenseSvc.SetLifecycleHook(svc)
	h.svc = svc.(*service)
	h.licenses = licenseSvc
	return h
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock
}

func (h *harness) set(at time.Time) {
	h.mu.Lock()
	h.clock = at
	h.mu.Unlock()
}

func (h *harness) billingKey(makeDefault bool) *models.BillingKey {
	key := &models.BillingKey{
		ID:                uuid.New(),
		OwnerID:           h.owner,
		GatewayCardID:     "ccof:" + uuid.NewString(),
		GatewayCustomerID: "cust-1",
		IsDefault:         makeDefault,
		Active:            true,
	}
	h.keys.add(key)
	return key
}

// subscribe issues a license the way a paid order does and opens its subscription.
func (h *harness) subscribe(t *testing.T, keyID *uuid.UUID) (*models.Subscription, *models.License) {
	t.Helper()
	ctx := context.Background()
	var (
		sub     *models.Subscription
		license *models.License
	)
	err := h.client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		license, err = h.licenses.Issue(ctx, tx, licenses.IssueInput{
			OwnerID:    h.owner,
			Plan:       h.plan,
			SourceType: enums.LicenseSourceOrder,
		})
		if err != nil {
			return err
		}
		sub, err = h.svc.CreateFromOrder(ctx, tx, CreateFromOrderInput{
			Order: &models.LicenseOrder{
				ID:           uuid.New(),
				OwnerID:      h.owner,
				PlanID:       h.plan.ID,
				BillingKeyID: keyID,
				Status:       enums.OrderStatusPaid,
			},
			Plan:    h.plan,
			License: license,
		})
		return err
	})
	require.NoError(t, err)
	h.events.Reset()
	return sub, license
}

func (h *harness) reload(t *testing.T, id uuid.UUID) *models.Subscription {
	t.Helper()
	sub, err := h.svc.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (h *harness) storedLicense(t *testing.T, id uuid.UUID) *models.License {
	t.Helper()
	var license models.License
	require.NoError(t, h.client.DB().First(&license, "id = ?", id).Error)
	return &license
}

func TestCreateFromOrderSchedulesFirstRenewalAtLicenseEnd(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)

	require.NotNil(t, license.ValidUntil)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, enums.BillingCycleMonthly, sub.BillingCycle)
	require.NotNil(t, sub.NextBillingDate)
	assert.True(t, sub.NextBillingDate.Equal(*license.ValidUntil))
	assert.True(t, sub.EndDate.Equal(*license.ValidUntil))

	manual, _ := h.subscribe(t, nil)
	assert.False(t, manual.AutoRenew, "orders without a billing key do not auto-renew")
}

func TestRenewDueExtendsFromNowWhenLicenseLapsed(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)

	chargeAt := license.ValidUntil.Add(2 * time.Hour)
	h.set(chargeAt)
	result, err := h.svc.RenewDue(context.Background(), chargeAt)
	require.NoError(t, err)
	assert.Equal(t, RenewalResult{Scanned: 1, Renewed: 1}, result)

	want := chargeAt.AddDate(0, 1, 0)
	renewed := h.reload(t, sub.ID)
	assert.True(t, renewed.EndDate.Equal(want), "end date %s", renewed.EndDate)
	require.NotNil(t, renewed.NextBillingDate)
	assert.True(t, renewed.NextBillingDate.Equal(want))
	assert.Zero(t, renewed.RenewalAttempts)

	stored := h.storedLicense(t, license.ID)
	require.NotNil(t, stored.ValidUntil)
	assert.True(t, stored.ValidUntil.Equal(want))
	assert.Equal(t, enums.LicenseStatusActive, stored.Status)

	require.Len(t, h.gateway.calls, 1)
	call := h.gateway.calls[0]
	assert.Equal(t, key.ID, call.BillingKey.ID)
	assert.True(t, call.Amount.Equal(h.plan.Price))
	assert.Regexp(t, `^SUB-`+sub.ID.String()+`-\d+$`, call.OrderID)

	payments, err := h.svc.repo.ListPayments(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentStatusSuccess, payments[0].Status)
	require.NotNil(t, payments[0].PaymentKey)
	assert.Equal(t, "pay_"+call.OrderID, *payments[0].PaymentKey)

	assert.Equal(t, 1, h.events.Count(enums.EventSubscriptionRenewed))
	assert.Equal(t, 1, h.events.Count(enums.EventLicenseExtended))
}

func TestRenewDueExtendsFromValidUntilWhenStillValid(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)

	early := license.ValidUntil.Add(-72 * time.Hour)
	require.NoError(t, h.client.DB().Model(&models.Subscription{}).
		Where("id = ?", sub.ID).Update("next_billing_date", early).Error)
	h.set(early)

	result, err := h.svc.RenewDue(context.Background(), early)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Renewed)

	want := license.ValidUntil.AddDate(0, 1, 0)
	stored := h.storedLicense(t, license.ID)
	assert.True(t, stored.ValidUntil.Equal(want), "validUntil %s, want %s", stored.ValidUntil, want)
}

func TestRenewDueDisablesAutoRenewAfterRetryBudget(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)
	h.gateway.fail = errors.New("card declined")

	at := *license.ValidUntil
	for attempt := 1; attempt <= 2; attempt++ {
		h.set(at)
		result, err := h.svc.RenewDue(context.Background(), at)
		require.NoError(t, err)
		assert.Equal(t, 1, result.Retrying, "attempt %d", attempt)

		current := h.reload(t, sub.ID)
		assert.True(t, current.AutoRenew, "attempt %d keeps auto-renew", attempt)
		assert.Equal(t, attempt, current.RenewalAttempts)
		require.NotNil(t, current.NextBillingDate)
		assert.True(t, current.NextBillingDate.Equal(at.Add(24*time.Hour)))
		require.NotNil(t, current.LastRenewalError)
		assert.Equal(t, "card declined", *current.LastRenewalError)

		// nothing is due again until the retry delay passes
		again, err := h.svc.RenewDue(context.Background(), at)
		require.NoError(t, err)
		assert.Zero(t, again.Scanned)

		at = at.Add(24 * time.Hour)
	}

	h.set(at)
	result, err := h.svc.RenewDue(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, RenewalResult{Scanned: 1, Disabled: 1}, result)

	final := h.reload(t, sub.ID)
	assert.False(t, final.AutoRenew)
	assert.Equal(t, 3, final.RenewalAttempts)
	assert.Equal(t, enums.SubscriptionStatusActive, final.Status)

	// only the clock moved the license; the failed charges did not
	stored := h.storedLicense(t, license.ID)
	assert.Equal(t, enums.LicenseStatusExpiredGrace, stored.Status)
	assert.True(t, stored.ValidUntil.Equal(*license.ValidUntil))

	payments, err := h.svc.repo.ListPayments(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	for _, p := range payments {
		assert.Equal(t, enums.PaymentStatusFailed, p.Status)
	}

	require.Equal(t, 1, h.events.Count(enums.EventSubscriptionRenewalFailed))
	assert.Zero(t, h.events.Count(enums.EventLicenseExtended))
	var failed outbox.DomainEvent
	for _, ev := range h.events.Events() {
		if ev.EventType == enums.EventSubscriptionRenewalFailed {
			failed = ev
		}
	}
	payload, ok := failed.Data.(payloads.SubscriptionRenewalFailedEvent)
	require.True(t, ok)
	assert.Equal(t, 3, payload.Attempts)
	assert.Equal(t, license.ID, payload.LicenseID)
}

func TestRenewDueWithoutUsableKeyStopsRenewal(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)
	key.Active = false

	at := *license.ValidUntil
	h.set(at)
	result, err := h.svc.RenewDue(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, RenewalResult{Scanned: 1, Disabled: 1}, result)
	assert.Empty(t, h.gateway.calls)

	current := h.reload(t, sub.ID)
	assert.False(t, current.AutoRenew)
	require.NotNil(t, current.LastRenewalError)
}

func TestRenewDueHonoursCanceledContext(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	_, license := h.subscribe(t, &key.ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := h.svc.RenewDue(ctx, license.ValidUntil.Add(time.Hour))
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Scanned)
	assert.Empty(t, h.gateway.calls)
}

func TestHardExpiryMarksManualSubscriptionExpired(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)
	_, err := h.svc.ToggleAutoRenew(context.Background(), h.owner, sub.ID, false)
	require.NoError(t, err)

	afterGrace := license.GraceEndsAt().Add(time.Minute)
	h.set(afterGrace)
	sweep, err := h.licenses.ProcessExpired(context.Background(), afterGrace, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, sweep.Changed)

	assert.Equal(t, enums.SubscriptionStatusExpired, h.reload(t, sub.ID).Status)
	assert.Equal(t, enums.LicenseStatusExpiredHard, h.storedLicense(t, license.ID).Status)
}

func TestHardExpiryLeavesAutoRenewingSubscriptionAlone(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)

	err := h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return h.svc.OnLicenseHardExpired(context.Background(), tx, license)
	})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, h.reload(t, sub.ID).Status)

	orphan := &models.License{ID: uuid.New()}
	err = h.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return h.svc.OnLicenseHardExpired(context.Background(), tx, orphan)
	})
	assert.NoError(t, err, "licenses without a subscription are ignored")
}

func TestToggleAutoRenew(t *testing.T) {
	h := newHarness(t)
	sub, _ := h.subscribe(t, nil)
	ctx := context.Background()

	_, err := h.svc.ToggleAutoRenew(ctx, h.owner, sub.ID, true)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeBillingKeyNotFound), "got %v", err)

	key := h.billingKey(true)
	updated, err := h.svc.ToggleAutoRenew(ctx, h.owner, sub.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.AutoRenew)
	require.NotNil(t, updated.BillingKeyID)
	assert.Equal(t, key.ID, *updated.BillingKeyID)

	_, err = h.svc.ToggleAutoRenew(ctx, uuid.New(), sub.ID, false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAccessDenied), "got %v", err)

	_, err = h.svc.ToggleAutoRenew(ctx, h.owner, uuid.New(), false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeSubscriptionNotFound), "got %v", err)
}

func TestToggleAutoRenewReopensExpiredSubscription(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, _ := h.subscribe(t, &key.ID)
	require.NoError(t, h.client.DB().Model(&models.Subscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]any{"status": enums.SubscriptionStatusExpired, "auto_renew": false, "renewal_attempts": 3}).Error)

	h.set(h.now().Add(90 * 24 * time.Hour))
	updated, err := h.svc.ToggleAutoRenew(context.Background(), h.owner, sub.ID, true)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusActive, updated.Status)
	assert.Zero(t, updated.RenewalAttempts)
	require.NotNil(t, updated.NextBillingDate)
	assert.True(t, updated.NextBillingDate.Equal(h.now()))
}

func TestCancelIsFinalAndIdempotent(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)
	ctx := context.Background()

	canceled, err := h.svc.Cancel(ctx, h.owner, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, canceled.Status)
	assert.False(t, canceled.AutoRenew)
	require.NotNil(t, canceled.CanceledAt)

	again, err := h.svc.Cancel(ctx, h.owner, sub.ID)
	require.NoError(t, err)
	assert.True(t, again.CanceledAt.Equal(*canceled.CanceledAt))

	_, err = h.svc.ToggleAutoRenew(ctx, h.owner, sub.ID, true)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)

	result, err := h.svc.RenewDue(ctx, license.ValidUntil.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, result.Scanned)
	assert.Equal(t, enums.LicenseStatusActive, h.storedLicense(t, license.ID).Status)
}

func TestListByOwnerPaginates(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.subscribe(t, nil)
		h.set(h.now().Add(time.Minute))
	}
	ctx := context.Background()

	first, err := h.svc.ListByOwner(ctx, h.owner, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)

	second, err := h.svc.ListByOwner(ctx, h.owner, pagination.Params{Limit: 2, Cursor: first.Cursor})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	other, err := h.svc.ListByOwner(ctx, uuid.New(), pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, other.Items)
}

func TestRevokingLicenseCancelsSubscription(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)

	_, err := h.licenses.AdminTransition(context.Background(), license.ID, enums.LicenseActionRevoke, nil, nil)
	require.NoError(t, err)

	closed := h.reload(t, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusCanceled, closed.Status)
	assert.False(t, closed.AutoRenew)
	assert.Nil(t, closed.NextBillingDate)
	require.NotNil(t, closed.CanceledAt)

	at := license.ValidUntil.Add(time.Hour)
	for i := 0; i < 3; i++ {
		h.set(at)
		result, err := h.svc.RenewDue(context.Background(), at)
		require.NoError(t, err)
		assert.Zero(t, result.Scanned)
		at = at.Add(time.Hour)
	}
	assert.Empty(t, h.gateway.calls)
	payments, err := h.svc.repo.ListPayments(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRenewDueNeverChargesForRevokedLicense(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)
	// revoked without going through the admin path, so the subscription is still open
	require.NoError(t, h.client.DB().Model(&models.License{}).
		Where("id = ?", license.ID).Update("status", enums.LicenseStatusRevoked).Error)

	at := license.ValidUntil.Add(time.Hour)
	h.set(at)
	result, err := h.svc.RenewDue(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, RenewalResult{Scanned: 1, Disabled: 1}, result)
	assert.Empty(t, h.gateway.calls)

	closed := h.reload(t, sub.ID)
	assert.Equal(t, enums.SubscriptionStatusCanceled, closed.Status)
	assert.False(t, closed.AutoRenew)
	require.NotNil(t, closed.LastRenewalError)
	assert.Equal(t, "license revoked", *closed.LastRenewalError)

	again, err := h.svc.RenewDue(context.Background(), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, again.Scanned)
	payments, err := h.svc.repo.ListPayments(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)
}

func TestRenewDueResumesInterruptedChargeWithSameOrderID(t *testing.T) {
	h := newHarness(t)
	key := h.billingKey(true)
	sub, license := h.subscribe(t, &key.ID)

	// the charge goes through but the bookkeeping transaction does not commit
	h.gateway.afterCharge = func() {
		h.events.Err = errors.New("connection reset")
		h.gateway.afterCharge = nil
	}
	at := license.ValidUntil.Add(2 * time.Hour)
	h.set(at)
	first, err := h.svc.RenewDue(context.Background(), at)
	require.Error(t, err)
	assert.Equal(t, 1, first.Failed)

	payments, err := h.svc.repo.ListPayments(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentStatusPending, payments[0].Status)

	h.events.Err = nil
	later := at.Add(time.Hour)
	h.set(later)
	second, err := h.svc.RenewDue(context.Background(), later)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Renewed)

	require.Len(t, h.gateway.calls, 2)
	assert.Equal(t, h.gateway.calls[0].OrderID, h.gateway.calls[1].OrderID, "a retried charge must reuse the idempotency key")
	assert.Equal(t, payments[0].OrderID, h.gateway.calls[1].OrderID)

	payments, err = h.svc.repo.ListPayments(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, enums.PaymentStatusSuccess, payments[0].Status)

	renewed := h.reload(t, sub.ID)
	assert.True(t, renewed.EndDate.Equal(later.AddDate(0, 1, 0)), "end date %s", renewed.EndDate)
}
