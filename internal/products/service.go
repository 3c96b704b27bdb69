package products

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

// Product codes double as the audience of session tokens.
var codePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,63}$`)

type CreateInput struct {
	Code        string  `json:"code" validate:"required,min=2,max=64"`
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=2000"`
}

type ListResult struct {
	Items  []models.Product `json:"items"`
	Cursor string           `json:"cursor"`
}

// Service manages the product catalog.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Product, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Product, error)
	List(ctx context.Context, params pagination.Params) (*ListResult, error)
	SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Product, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("products repository required")
	}
	return &service{repo: repo}, nil
}

// NormalizeCode lowercases and trims a product code.
func NormalizeCode(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Product, error) {
	code := NormalizeCode(input.Code)
	if !codePattern.MatchString(code) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "code must be 2-64 lowercase letters, digits or hyphens")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	product := &models.Product{
		Code:        code,
		Name:        name,
		Description: input.Description,
		Active:      true,
	}
	if err := s.repo.Create(ctx, product); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "product code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	return product, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return product, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	items, next := pagination.Page(rows, params.Limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	if items == nil {
		items = []models.Product{}
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

func (s *service) SetActive(ctx context.Context, id uuid.UUID, active bool) (*models.Product, error) {
	if err := s.repo.UpdateActive(ctx, id, active); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeProductNotFound, "product not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update product")
	}
	return s.Get(ctx, id)
}
