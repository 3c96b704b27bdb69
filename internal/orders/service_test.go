package orders

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/licensing-backend/internal/billingkeys"
	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/internal/subscriptions"
	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/db/dbtest"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/licensing-backend/pkg/db/types"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/outboxtest"
	"github.com/angelmondragon/licensing-backend/pkg/security"
)

const webhookSecret = "whsec-test"

type stubPlans struct {
	plans map[uuid.UUID]*models.LicensePlan
}

func (s stubPlans) Get(_ context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	plan, ok := s.plans[id]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodePlanNotFound, "plan not found")
	}
	return plan, nil
}

func (s stubPlans) GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !plan.Issuable() {
		return nil, pkgerrors.New(pkgerrors.CodePlanNotAvailable, "plan not available")
	}
	return plan, nil
}

type stubKeys struct {
	keys map[uuid.UUID]*models.BillingKey
}

func (s stubKeys) GetUsable(_ context.Context, id uuid.UUID) (*models.BillingKey, error) {
	key, ok := s.keys[id]
	if !ok || !key.Active {
		return nil, pkgerrors.New(pkgerrors.CodeBillingKeyNotFound, "billing key not found")
	}
	return key, nil
}

func (s stubKeys) Default(context.Context, uuid.UUID) (*models.BillingKey, error) {
	return nil, nil
}

type noopGateway struct{}

func (noopGateway) Charge(context.Context, billingkeys.ChargeRequest) (*billingkeys.ChargeResult, error) {
	return &billingkeys.ChargeResult{PaymentID: "pay", Status: "COMPLETED"}, nil
}

type harness struct {
	svc      *service
	licenses licenses.Service
	subs     subscriptions.Repository
	client   *db.Client
	events   *outboxtest.Recorder
	keys     stubKeys
	yearly   *models.LicensePlan
	monthly  *models.LicensePlan
	owner    uuid.UUID
	clock    time.Time
}

func newPlan(code string, licenseType enums.LicenseType, days int, price string) *models.LicensePlan {
	return &models.LicensePlan{
		ID:                    uuid.New(),
		ProductID:             productID,
		Code:                  code,
		Name:                  code,
		LicenseType:           licenseType,
		DurationDays:          days,
		GraceDays:             7,
		MaxActivations:        3,
		MaxConcurrentSessions: 1,
		AllowOfflineDays:      3,
		SessionTTLMinutes:     60,
		Entitlements:          dbtypes.NewStringSet("pro"),
		Price:                 decimal.RequireFromString(price),
		Currency:              enums.CurrencyUSD,
		Version:               1,
		Active:                true,
	}
}

var productID = uuid.New()

func newHarness(t *testing.T) *harness {
	t.Helper()
	client := dbtest.Open(t)
	h := &harness{
		client:  client,
		events:  &outboxtest.Recorder{},
		keys:    stubKeys{keys: map[uuid.UUID]*models.BillingKey{}},
		yearly:  newPlan("PASS-365", enums.LicenseTypeTrial, 365, "99.00"),
		monthly: newPlan("PRO-MONTH", enums.LicenseTypeSubscription, 30, "9.99"),
		owner:   uuid.New(),
		clock:   time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC),
	}
	plans := stubPlans{plans: map[uuid.UUID]*models.LicensePlan{h.yearly.ID: h.yearly, h.monthly.ID: h.monthly}}
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	licenseSvc, err := licenses.NewService(licenses.ServiceParams{
		Repo:   licenses.NewRepository(client.DB()),
		Plans:  plans,
		Outbox: h.events,
		Tx:     client,
		Logger: logg,
		Now:    h.now,
	})
	require.NoError(t, err)
	h.subs = subscriptions.NewRepository(client.DB())
	subSvc, err := subscriptions.NewService(subscriptions.ServiceParams{
		Repo:        h.subs,
		Licenses:    licenseSvc,
		Plans:       plans,
		BillingKeys: h.keys,
		Gateway:     noopGateway{},
		Outbox:      h.events,
		Tx:          client,
		Logger:      logg,
		Now:         h.now,
	})
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Repo:          NewRepository(client.DB()),
		Plans:         plans,
		Licenses:      licenseSvc,
		BillingKeys:   h.keys,
		Subscriptions: subSvc,
		Outbox:        h.events,
		Tx:            client,
		WebhookSecret: webhookSecret,
		Logger:        logg,
		Now:           h.now,
	})
	require.NoError(t, err)
	h.svc = svc.(*service)
	h.licenses = licenseSvc
	return h
}

func (h *harness) now() time.Time { return h.clock }

func (h *harness) notify(t *testing.T, orderID uuid.UUID, amount string, status enums.OrderStatus) (*WebhookResult, error) {
	t.Helper()
	body, err := json.Marshal(map[string]any{"orderId": orderID, "amount": amount, "status": status})
	require.NoError(t, err)
	return h.svc.HandlePaymentWebhook(context.Background(), body, security.SignHMAC([]byte(webhookSecret), body))
}

func (h *harness) storedOrder(t *testing.T, id uuid.UUID) *models.LicenseOrder {
	t.Helper()
	order, err := h.svc.repo.FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func TestCreatePricesOrderFromPlan(t *testing.T) {
	h := newHarness(t)
	order, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.True(t, order.Amount.Equal(h.yearly.Price))
	assert.Equal(t, enums.CurrencyUSD, order.Currency)

	got, err := h.svc.Get(context.Background(), h.owner, order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)

	_, err = h.svc.Get(context.Background(), uuid.New(), order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAccessDenied), "got %v", err)
}

func TestCreateRejectsBadInputs(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	free := newPlan("FREE", enums.LicenseTypeTrial, 30, "0")
	h.svc.plans.(stubPlans).plans[free.ID] = free
	_, err := h.svc.Create(ctx, h.owner, CreateOrderInput{PlanID: free.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)

	h.yearly.Active = false
	_, err = h.svc.Create(ctx, h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodePlanNotAvailable), "got %v", err)
	h.yearly.Active = true

	foreign := &models.BillingKey{ID: uuid.New(), OwnerID: uuid.New(), Active: true}
	h.keys.keys[foreign.ID] = foreign
	_, err = h.svc.Create(ctx, h.owner, CreateOrderInput{PlanID: h.yearly.ID, BillingKeyID: &foreign.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAccessDenied), "got %v", err)

	missing := uuid.New()
	_, err = h.svc.Create(ctx, h.owner, CreateOrderInput{PlanID: h.yearly.ID, LicenseID: &missing})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLicenseNotFound), "got %v", err)
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := newHarness(t)
	body := []byte(`{"orderId":"` + uuid.NewString() + `","amount":"1.00","status":"PAID"}`)
	_, err := h.svc.HandlePaymentWebhook(context.Background(), body, "deadbeef")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)

	_, err = h.svc.HandlePaymentWebhook(context.Background(), body, security.SignHMAC([]byte("other"), body))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized), "got %v", err)
}

func TestWebhookPaidIssuesLicenseOnceAndReplays(t *testing.T) {
	h := newHarness(t)
	order, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)

	result, err := h.notify(t, order.ID, "99.00", enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Equal(t, enums.OrderStatusPaid, result.Status)
	require.NotNil(t, result.LicenseID)

	license, err := h.licenses.GetForOwner(context.Background(), h.owner, *result.LicenseID)
	require.NoError(t, err)
	assert.Equal(t, enums.LicenseSourceOrder, license.SourceType)
	require.NotNil(t, license.SourceRef)
	assert.Equal(t, order.ID.String(), *license.SourceRef)
	assert.Equal(t, enums.LicenseStatusActive, license.Status)
	assert.Equal(t, 1, h.events.Count(enums.EventOrderPaid))

	stored := h.storedOrder(t, order.ID)
	require.NotNil(t, stored.PaidAt)
	assert.True(t, stored.PaidAt.Equal(h.clock))

	replay, err := h.notify(t, order.ID, "99.00", enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.True(t, replay.Replayed)
	assert.Equal(t, *result.LicenseID, *replay.LicenseID)
	assert.Equal(t, 1, h.events.Count(enums.EventOrderPaid))
	assert.Equal(t, 1, h.events.Count(enums.EventLicenseIssued))
}

func TestWebhookAmountMismatchLeavesOrderPending(t *testing.T) {
	h := newHarness(t)
	order, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)

	_, err = h.notify(t, order.ID, "9.00", enums.OrderStatusPaid)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
	appErr := pkgerrors.As(err)
	require.NotNil(t, appErr)
	details, ok := appErr.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "99.00", details["expected"])

	stored := h.storedOrder(t, order.ID)
	assert.Equal(t, enums.OrderStatusPending, stored.Status)
	assert.Nil(t, stored.LicenseID)
}

func TestWebhookFailedIsTerminal(t *testing.T) {
	h := newHarness(t)
	order, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)

	result, err := h.notify(t, order.ID, "99.00", enums.OrderStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusFailed, result.Status)
	assert.Nil(t, result.LicenseID)
	stored := h.storedOrder(t, order.ID)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, defaultFailureReason, *stored.FailureReason)

	_, err = h.notify(t, order.ID, "99.00", enums.OrderStatusPaid)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
	assert.Zero(t, h.events.Count(enums.EventLicenseIssued))
}

func TestWebhookExtendsOwnedLicense(t *testing.T) {
	h := newHarness(t)
	first, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)
	issued, err := h.notify(t, first.ID, "99.00", enums.OrderStatusPaid)
	require.NoError(t, err)
	original, err := h.licenses.GetForOwner(context.Background(), h.owner, *issued.LicenseID)
	require.NoError(t, err)

	h.clock = h.clock.Add(100 * 24 * time.Hour)
	renewal, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.yearly.ID, LicenseID: issued.LicenseID})
	require.NoError(t, err)
	extended, err := h.notify(t, renewal.ID, "99.00", enums.OrderStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, *issued.LicenseID, *extended.LicenseID)

	license, err := h.licenses.GetForOwner(context.Background(), h.owner, *issued.LicenseID)
	require.NoError(t, err)
	want := original.ValidUntil.Add(365 * 24 * time.Hour)
	assert.True(t, license.ValidUntil.Equal(want), "validUntil %s, want %s", license.ValidUntil, want)
	assert.Equal(t, 1, h.events.Count(enums.EventLicenseExtended))
}

func TestWebhookOpensSubscriptionForSubscriptionPlans(t *testing.T) {
	h := newHarness(t)
	key := &models.BillingKey{ID: uuid.New(), OwnerID: h.owner, Active: true, IsDefault: true}
	h.keys.keys[key.ID] = key

	order, err := h.svc.Create(context.Background(), h.owner, CreateOrderInput{PlanID: h.monthly.ID, BillingKeyID: &key.ID})
	require.NoError(t, err)
	result, err := h.notify(t, order.ID, "9.99", enums.OrderStatusPaid)
	require.NoError(t, err)

	sub, err := h.subs.FindByLicense(context.Background(), *result.LicenseID)
	require.NoError(t, err)
	assert.True(t, sub.AutoRenew)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, h.monthly.ID, sub.PricePlanID)
	require.NotNil(t, sub.BillingKeyID)
	assert.Equal(t, key.ID, *sub.BillingKeyID)
	assert.Equal(t, enums.BillingCycleMonthly, sub.BillingCycle)
}

func TestExpirePendingFailsOnlyUnpaidOrders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paid, err := h.svc.Create(ctx, h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)
	_, err = h.notify(t, paid.ID, "99.00", enums.OrderStatusPaid)
	require.NoError(t, err)
	stale, err := h.svc.Create(ctx, h.owner, CreateOrderInput{PlanID: h.yearly.ID})
	require.NoError(t, err)

	n, err := h.svc.ExpirePending(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, enums.OrderStatusPaid, h.storedOrder(t, paid.ID).Status)
	expired := h.storedOrder(t, stale.ID)
	assert.Equal(t, enums.OrderStatusFailed, expired.Status)
	require.NotNil(t, expired.FailureReason)
	assert.Equal(t, pendingExpiredReason, *expired.FailureReason)

	_, err = h.notify(t, stale.ID, "99.00", enums.OrderStatusPaid)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "got %v", err)
}
