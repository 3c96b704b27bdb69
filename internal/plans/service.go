package plans

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

type productReader interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service manages versioned license plans. Plans are never hard-deleted.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.LicensePlan, error)
	Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.LicensePlan, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.LicensePlan, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Get(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
	GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
	List(ctx context.Context, params ListParams) (*ListResult, error)
}

type service struct {
	repo     Repository
	products productReader
	tx       txRunner
}

func NewService(repo Repository, products productReader, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	if products == nil {
		return nil, fmt.Errorf("product reader required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, products: products, tx: tx}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.LicensePlan, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "productId is required")
	}
	if _, err := s.products.Get(ctx, input.ProductID); err != nil {
		return nil, err
	}
	sessionTTL := input.SessionTTLMinutes
	if sessionTTL == 0 {
		sessionTTL = defaultSessionTTLMinutes
	}
	active := true
	if input.Active != nil {
		active = *input.Active
	}
	plan := &models.LicensePlan{
		ProductID:             input.ProductID,
		Code:                  normalizeCode(input.Code),
		Name:                  strings.TrimSpace(input.Name),
		Description:           input.Description,
		LicenseType:           input.LicenseType,
		DurationDays:          input.DurationDays,
		GraceDays:             input.GraceDays,
		MaxActivations:        input.MaxActivations,
		MaxConcurrentSessions: input.MaxConcurrentSessions,
		AllowOfflineDays:      input.AllowOfflineDays,
		SessionTTLMinutes:     sessionTTL,
		Entitlements:          normalizeEntitlements(input.Entitlements),
		Price:                 input.Price,
		Currency:              input.Currency,
		BillingCycle:          input.BillingCycle,
		Version:               1,
		Active:                active,
	}
	if err := validatePlan(plan); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodePlanCodeDuplicate, "plan code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
	}
	return plan, nil
}

// Update applies the edit and bumps the version. Issued licenses keep their snapshot.
func (s *service) Update(ctx context.Context, id uuid.UUID, input UpdateInput) (*models.LicensePlan, error) {
	var updated *models.LicensePlan
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		plan, err := s.lockPlan(ctx, repo, id)
		if err != nil {
			return err
		}
		if plan.Deleted {
			return pkgerrors.New(pkgerrors.CodePlanNotAvailable, "deleted plans cannot be edited")
		}
		applyUpdate(plan, input)
		if err := validatePlan(plan); err != nil {
			return err
		}
		plan.Version++
		if err := repo.Save(ctx, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan")
		}
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func applyUpdate(plan *models.LicensePlan, input UpdateInput) {
	if input.Name != nil {
		plan.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		plan.Description = input.Description
	}
	if input.DurationDays != nil {
		plan.DurationDays = *input.DurationDays
	}
	if input.GraceDays != nil {
		plan.GraceDays = *input.GraceDays
	}
	if input.MaxActivations != nil {
		plan.MaxActivations = *input.MaxActivations
	}
	if input.MaxConcurrentSessions != nil {
		plan.MaxConcurrentSessions = *input.MaxConcurrentSessions
	}
	if input.AllowOfflineDays != nil {
		plan.AllowOfflineDays = *input.AllowOfflineDays
	}
	if input.SessionTTLMinutes != nil {
		plan.SessionTTLMinutes = *input.SessionTTLMinutes
	}
	if input.Entitlements != nil {
		plan.Entitlements = normalizeEntitlements(input.Entitlements)
	}
	if input.Price != nil {
		plan.Price = *input.Price
	}
	if input.Currency != nil {
		plan.Currency = *input.Currency
	}
	if input.BillingCycle != nil {
		plan.BillingCycle = input.BillingCycle
	}
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.LicensePlan, error) {
	var updated *models.LicensePlan
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		plan, err := s.lockPlan(ctx, repo, id)
		if err != nil {
			return err
		}
		if plan.Deleted && active {
			return pkgerrors.New(pkgerrors.CodePlanNotAvailable, "deleted plans cannot be activated")
		}
		if plan.Active == active {
			updated = plan
			return nil
		}
		plan.Active = active
		plan.Version++
		if err := repo.Save(ctx, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "toggle plan")
		}
		updated = plan
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete hides the plan from future issuance.
func (s *service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		plan, err := s.lockPlan(ctx, repo, id)
		if err != nil {
			return err
		}
		if plan.Deleted {
			return nil
		}
		plan.Deleted = true
		plan.Active = false
		plan.Version++
		if err := repo.Save(ctx, plan); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete plan")
		}
		return nil
	})
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return plan, nil
}

// GetIssuable returns the plan only when new licenses may still be issued from it.
func (s *service) GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	plan, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !plan.Issuable() {
		return nil, pkgerrors.New(pkgerrors.CodePlanNotAvailable, "plan is not available").
			WithDetails(map[string]any{"active": plan.Active, "deleted": plan.Deleted})
	}
	return plan, nil
}

func (s *service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, listFilter{
		productID:    params.ProductID,
		issuableOnly: !params.Admin,
		limit:        pagination.LimitWithBuffer(params.Limit),
		cursor:       cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	items, next := pagination.Page(rows, params.Limit, func(p models.LicensePlan) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	if items == nil {
		items = []models.LicensePlan{}
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) lockPlan(ctx context.Context, repo Repository, id uuid.UUID) (*models.LicensePlan, error) {
	plan, err := repo.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, mapFindErr(err)
	}
	return plan, nil
}

func mapFindErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodePlanNotFound, "license plan not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
}
