package billingkeys

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, key *models.BillingKey) error
	Save(ctx context.Context, key *models.BillingKey) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.BillingKey, error)
	ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.BillingKey, error)
	FindDefault(ctx context.Context, ownerID uuid.UUID) (*models.BillingKey, error)
	ClearDefault(ctx context.Context, ownerID uuid.UUID) error
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

func (r *repository) Create(ctx context.Context, key *models.BillingKey) error {
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *repository) Save(ctx context.Context, key *models.BillingKey) error {
	return r.db.WithContext(ctx).Save(key).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.BillingKey, error) {
	var key models.BillingKey
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&key).Error; err != nil {
		return nil, err
	}
	return &key, nil
}

// ListActiveByOwner returns the default key first, then newest first.
func (r *repository) ListActiveByOwner(ctx context.Context, ownerID uuid.UUID) ([]models.BillingKey, error) {
	var keys []models.BillingKey
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND active = ?", ownerID, true).
		Order("is_default DESC").
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repository) FindDefault(ctx context.Context, ownerID uuid.UUID) (*models.BillingKey, error) {
	var key models.BillingKey
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND active = ? AND is_default = ?", ownerID, true, true).
		First(&key).Error
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repository) ClearDefault(ctx context.Context, ownerID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.BillingKey{}).
		Where("owner_id = ? AND is_default = ?", ownerID, true).
		Update("is_default", false).Error
}
