package orders

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

// Repository persists license orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.LicenseOrder) error
	Save(ctx context.Context, order *models.LicenseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseOrder, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.LicenseOrder, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LicenseOrder, error)
	FailPendingBefore(ctx context.Context, cutoff time.Time, reason string) (int64, error)
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

func (r *repository) Create(ctx context.Context, order *models.LicenseOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Save(ctx context.Context, order *models.LicenseOrder) error {
	return r.db.WithContext(ctx).Save(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LicenseOrder, error) {
	var order models.LicenseOrder
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.LicenseOrder, error) {
	var order models.LicenseOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.LicenseOrder, error) {
	query := r.db.WithContext(ctx).Model(&models.LicenseOrder{}).Where("owner_id = ?", ownerID)
	var rows []models.LicenseOrder
	if err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FailPendingBefore closes orders that never received a payment notification.
func (r *repository) FailPendingBefore(ctx context.Context, cutoff time.Time, reason string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.LicenseOrder{}).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Updates(map[string]any{
			"status":         enums.OrderStatusFailed,
			"failure_reason": reason,
			"updated_at":     time.Now().UTC(),
		})
	return result.RowsAffected, result.Error
}
