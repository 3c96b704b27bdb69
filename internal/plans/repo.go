package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

// Repository persists license plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.LicensePlan) error
	Save(ctx context.Context, plan *models.LicensePlan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
	List(ctx context.Context, filter listFilter) ([]models.LicensePlan, error)
}

type listFilter struct {
	productID      *uuid.UUID
	issuableOnly   bool
	includeDeleted bool
	limit          int
	cursor         *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, plan *models.LicensePlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

// Save writes every column, including zero values.
func (r *repository) Save(ctx context.Context, plan *models.LicensePlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	var plan models.LicensePlan
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error) {
	var plan models.LicensePlan
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&plan).Error
	if err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) List(ctx context.Context, filter listFilter) ([]models.LicensePlan, error) {
	query := r.db.WithContext(ctx).Model(&models.LicensePlan{})
	if filter.productID != nil {
		query = query.Where("product_id = ?", *filter.productID)
	}
	if filter.issuableOnly {
		query = query.Where("active = ? AND deleted = ?", true, false)
	} else if !filter.includeDeleted {
		query = query.Where("deleted = ?", false)
	}
	var rows []models.LicensePlan
	if err := query.Scopes(pagination.Keyset(filter.cursor, filter.limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
