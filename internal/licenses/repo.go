package licenses

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

// Repository persists license records. Rows are never deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, license *models.License) error
	Save(ctx context.Context, license *models.License) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.License, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.License, error)
	FindByKey(ctx context.Context, key string) (*models.License, error)
	ListByOwner(ctx context.Context, filter ownerFilter) ([]models.License, error)
	ListExpiryCandidates(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.License, error)
}

type ownerFilter struct {
	ownerID   uuid.UUID
	productID *uuid.UUID
	status    *enums.LicenseStatus
	limit     int
	cursor    *pagination.Cursor
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

func (r *repository) Create(ctx context.Context, license *models.License) error {
	return r.db.WithContext(ctx).Create(license).Error
}

func (r *repository) Save(ctx context.Context, license *models.License) error {
	return r.db.WithContext(ctx).Save(license).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.License, error) {
	var license models.License
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&license).Error
	if err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *repository) FindByKey(ctx context.Context, key string) (*models.License, error) {
	var license models.License
	if err := r.db.WithContext(ctx).Where("license_key = ?", key).First(&license).Error; err != nil {
		return nil, err
	}
	return &license, nil
}

func (r *repository) ListByOwner(ctx context.Context, filter ownerFilter) ([]models.License, error) {
	query := r.db.WithContext(ctx).Model(&models.License{}).Where("owner_id = ?", filter.ownerID)
	if filter.productID != nil {
		query = query.Where("product_id = ?", *filter.productID)
	}
	if filter.status != nil {
		query = query.Where("status = ?", *filter.status)
	}
	var rows []models.License
	if err := query.Scopes(pagination.Keyset(filter.cursor, filter.limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListExpiryCandidates pages by id so the sweep never revisits a row within one run.
func (r *repository) ListExpiryCandidates(ctx context.Context, now time.Time, afterID uuid.UUID, limit int) ([]models.License, error) {
	query := r.db.WithContext(ctx).
		Model(&models.License{}).
		Where("status IN ?", []enums.LicenseStatus{enums.LicenseStatusActive, enums.LicenseStatusExpiredGrace}).
		Where("valid_until IS NOT NULL AND valid_until < ?", now)
	if afterID != uuid.Nil {
		query = query.Where("id > ?", afterID)
	}
	var rows []models.License
	if err := query.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
