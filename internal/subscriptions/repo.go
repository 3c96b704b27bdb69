package subscriptions

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

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, sub *models.Subscription) error
	Save(ctx context.Context, sub *models.Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error)
	FindByLicense(ctx context.Context, licenseID uuid.UUID) (*models.Subscription, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Subscription, error)
	ListDue(ctx context.Context, now time.Time, afterID *uuid.UUID, limit int) ([]models.Subscription, error)

	CreatePayment(ctx context.Context, payment *models.SubscriptionPayment) error
	SavePayment(ctx context.Context, payment *models.SubscriptionPayment) error
	FindPayment(ctx context.Context, id uuid.UUID) (*models.SubscriptionPayment, error)
	FindPendingPayment(ctx context.Context, subscriptionID uuid.UUID) (*models.SubscriptionPayment, error)
	ListPayments(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionPayment, error)
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

func (r *repository) Create(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Create(sub).Error
}

func (r *repository) Save(ctx context.Context, sub *models.Subscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) FindByLicense(ctx context.Context, licenseID uuid.UUID) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.WithContext(ctx).Where("license_id = ?", licenseID).First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).Model(&models.Subscription{}).Where("owner_id = ?", ownerID)
	var rows []models.Subscription
	if err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ListDue pages through renewable subscriptions by id so one sweep visits each at most once.
func (r *repository) ListDue(ctx context.Context, now time.Time, afterID *uuid.UUID, limit int) ([]models.Subscription, error) {
	query := r.db.WithContext(ctx).
		Where("auto_renew = ? AND status = ?", true, enums.SubscriptionStatusActive).
		Where("next_billing_date IS NOT NULL AND next_billing_date <= ?", now)
	if afterID != nil {
		query = query.Where("id > ?", *afterID)
	}
	var rows []models.Subscription
	if err := query.Order("id ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.SubscriptionPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) SavePayment(ctx context.Context, payment *models.SubscriptionPayment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) FindPayment(ctx context.Context, id uuid.UUID) (*models.SubscriptionPayment, error) {
	var payment models.SubscriptionPayment
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// FindPendingPayment returns the newest charge that was opened but never settled.
func (r *repository) FindPendingPayment(ctx context.Context, subscriptionID uuid.UUID) (*models.SubscriptionPayment, error) {
	var payment models.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ? AND status = ?", subscriptionID, enums.PaymentStatusPending).
		Order("attempted_at DESC").
		First(&payment).Error
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) ListPayments(ctx context.Context, subscriptionID uuid.UUID) ([]models.SubscriptionPayment, error) {
	var rows []models.SubscriptionPayment
	err := r.db.WithContext(ctx).
		Where("subscription_id = ?", subscriptionID).
		Order("attempted_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
