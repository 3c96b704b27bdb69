package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/internal/subscriptions"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

type planReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
	GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
}

type licenseWriter interface {
	GetForOwner(ctx context.Context, ownerID, id uuid.UUID) (*models.License, error)
	Issue(ctx context.Context, tx *gorm.DB, input licenses.IssueInput) (*models.License, error)
	LockAndSync(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.License, error)
	Extend(ctx context.Context, tx *gorm.DB, id uuid.UUID, newValidUntil time.Time) (*models.License, error)
}

type billingKeyReader interface {
	GetUsable(ctx context.Context, id uuid.UUID) (*models.BillingKey, error)
}

type subscriptionOpener interface {
	CreateFromOrder(ctx context.Context, tx *gorm.DB, input subscriptions.CreateFromOrderInput) (*models.Subscription, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service creates license orders and settles them from payment notifications.
type Service interface {
	Create(ctx context.Context, ownerID uuid.UUID, input CreateOrderInput) (*models.LicenseOrder, error)
	Get(ctx context.Context, ownerID, id uuid.UUID) (*models.LicenseOrder, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error)
	HandlePaymentWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error)
	ExpirePending(ctx context.Context, cutoff time.Time) (int, error)
}

type ServiceParams struct {
	Repo          Repository
	Plans         planReader
	Licenses      licenseWriter
	BillingKeys   billingKeyReader
	Subscriptions subscriptionOpener
	Outbox        outboxEmitter
	Tx            txRunner
	WebhookSecret string
	Logger        *logger.Logger
	Now           func() time.Time
}

type service struct {
	repo          Repository
	plans         planReader
	licenses      licenseWriter
	keys          billingKeyReader
	subscriptions subscriptionOpener
	outbox        outboxEmitter
	tx            txRunner
	secret        []byte
	logg          *logger.Logger
	now           func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license service required")
	}
	if params.BillingKeys == nil {
		return nil, fmt.Errorf("billing key reader required")
	}
	if params.Subscriptions == nil {
		return nil, fmt.Errorf("subscription service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.WebhookSecret == "" {
		return nil, fmt.Errorf("payments webhook secret required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:          params.Repo,
		plans:         params.Plans,
		licenses:      params.Licenses,
		keys:          params.BillingKeys,
		subscriptions: params.Subscriptions,
		outbox:        params.Outbox,
		tx:            params.Tx,
		secret:        []byte(params.WebhookSecret),
		logg:          params.Logger,
		now:           func() time.Time { return now().UTC() },
	}, nil
}

// Create prices the order from the plan. The amount is fixed here and the
// payment notification must match it exactly.
func (s *service) Create(ctx context.Context, ownerID uuid.UUID, input CreateOrderInput) (*models.LicenseOrder, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ownerId is required")
	}
	plan, err := s.plans.GetIssuable(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}
	if !plan.Price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan has no price").
			WithDetails(map[string]any{"planId": plan.ID})
	}

	if input.LicenseID != nil {
		license, err := s.licenses.GetForOwner(ctx, ownerID, *input.LicenseID)
		if err != nil {
			return nil, err
		}
		if err := extendable(license, plan); err != nil {
			return nil, err
		}
	}
	if input.BillingKeyID != nil {
		key, err := s.keys.GetUsable(ctx, *input.BillingKeyID)
		if err != nil {
			return nil, err
		}
		if key.OwnerID != ownerID {
			return nil, pkgerrors.New(pkgerrors.CodeAccessDenied, "billing key belongs to another user")
		}
	}

	order := &models.LicenseOrder{
		OwnerID:      ownerID,
		PlanID:       plan.ID,
		LicenseID:    input.LicenseID,
		BillingKeyID: input.BillingKeyID,
		Amount:       plan.Price,
		Currency:     plan.Currency,
		Status:       enums.OrderStatusPending,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
	}

	logCtx := s.logg.WithUserID(ctx, ownerID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_id": order.ID.String(),
		"plan_id":  plan.ID.String(),
		"amount":   order.Amount.StringFixed(2),
	})
	s.logg.Info(logCtx, "license order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, ownerID, id uuid.UUID) (*models.LicenseOrder, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	if order.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeAccessDenied, "order belongs to another user")
	}
	return order, nil
}

func (s *service) ListByOwner(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListByOwner(ctx, ownerID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Page(rows, params.Limit, func(o models.LicenseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	items := make([]OrderView, 0, len(page))
	for i := range page {
		items = append(items, NewOrderView(&page[i]))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

// ExpirePending fails orders still unpaid at cutoff. A later PAID notification
// for one of them is rejected as a state conflict.
func (s *service) ExpirePending(ctx context.Context, cutoff time.Time) (int, error) {
	n, err := s.repo.FailPendingBefore(ctx, cutoff.UTC(), pendingExpiredReason)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire pending orders")
	}
	if n > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{"expired": n, "cutoff": cutoff.UTC()})
		s.logg.Info(logCtx, "pending orders expired")
	}
	return int(n), nil
}

func extendable(license *models.License, plan *models.LicensePlan) error {
	if license.ProductID != plan.ProductID {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan belongs to a different product").
			WithDetails(map[string]any{"licenseProductId": license.ProductID, "planProductId": plan.ProductID})
	}
	if license.ValidUntil == nil || plan.DurationDays <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "perpetual licenses and plans cannot be extended")
	}
	if license.Status == enums.LicenseStatusRevoked {
		return licenses.UsabilityError(license.Status)
	}
	return nil
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeOrderNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
