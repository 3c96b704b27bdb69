package activations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
)

var seatStatuses = []enums.ActivationStatus{enums.ActivationStatusActive, enums.ActivationStatusStale}

// Repository persists device activations. Only this package mutates them.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, activation *models.Activation) error
	Save(ctx context.Context, activation *models.Activation) error
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Activation, error)
	FindCurrent(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*models.Activation, error)
	FindLatest(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*models.Activation, error)
	CountSeats(ctx context.Context, licenseID uuid.UUID) (int64, error)
	ListLiveSessions(ctx context.Context, licenseID uuid.UUID, since time.Time, excludeID uuid.UUID) ([]models.Activation, error)
	ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error)
	OfflineAllowances(ctx context.Context) ([]int, error)
	MarkStale(ctx context.Context, allowOfflineDays int, cutoff time.Time) (int64, error)
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

func (r *repository) Create(ctx context.Context, activation *models.Activation) error {
	return r.db.WithContext(ctx).Create(activation).Error
}

func (r *repository) Save(ctx context.Context, activation *models.Activation) error {
	return r.db.WithContext(ctx).Save(activation).Error
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Activation, error) {
	var rows []models.Activation
	if len(ids) == 0 {
		return rows, nil
	}
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindCurrent returns the single non-deactivated row for the device, if any.
func (r *repository) FindCurrent(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*models.Activation, error) {
	var activation models.Activation
	err := r.db.WithContext(ctx).
		Where("license_id = ? AND device_fingerprint = ? AND status <> ?", licenseID, fingerprint, enums.ActivationStatusDeactivated).
		First(&activation).Error
	if err != nil {
		return nil, err
	}
	return &activation, nil
}

// FindLatest includes deactivated rows so callers can tell a revoked session from an unknown one.
func (r *repository) FindLatest(ctx context.Context, licenseID uuid.UUID, fingerprint string) (*models.Activation, error) {
	var activation models.Activation
	err := r.db.WithContext(ctx).
		Where("license_id = ? AND device_fingerprint = ?", licenseID, fingerprint).
		Order("activated_at DESC").
		First(&activation).Error
	if err != nil {
		return nil, err
	}
	return &activation, nil
}

func (r *repository) CountSeats(ctx context.Context, licenseID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Activation{}).
		Where("license_id = ? AND status IN ?", licenseID, seatStatuses).
		Count(&count).Error
	return count, err
}

func (r *repository) ListLiveSessions(ctx context.Context, licenseID uuid.UUID, since time.Time, excludeID uuid.UUID) ([]models.Activation, error) {
	query := r.db.WithContext(ctx).
		Where("license_id = ? AND status = ? AND last_seen_at >= ?", licenseID, enums.ActivationStatusActive, since)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	var rows []models.Activation
	if err := query.Order("last_seen_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]models.Activation, error) {
	var rows []models.Activation
	err := r.db.WithContext(ctx).
		Where("license_id = ?", licenseID).
		Order("activated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// OfflineAllowances lists the distinct allowOfflineDays among licenses with ACTIVE devices.
func (r *repository) OfflineAllowances(ctx context.Context) ([]int, error) {
	var days []int
	err := r.db.WithContext(ctx).
		Model(&models.License{}).
		Distinct("allow_offline_days").
		Where("id IN (?)", r.db.Model(&models.Activation{}).Select("license_id").Where("status = ?", enums.ActivationStatusActive)).
		Order("allow_offline_days").
		Pluck("allow_offline_days", &days).Error
	if err != nil {
		return nil, err
	}
	return days, nil
}

// MarkStale flips ACTIVE devices unseen since cutoff on licenses with the given allowance.
func (r *repository) MarkStale(ctx context.Context, allowOfflineDays int, cutoff time.Time) (int64, error) {
	licenses := r.db.Model(&models.License{}).Select("id").Where("allow_offline_days = ?", allowOfflineDays)
	res := r.db.WithContext(ctx).
		Model(&models.Activation{}).
		Where("status = ? AND last_seen_at < ? AND license_id IN (?)", enums.ActivationStatusActive, cutoff, licenses).
		Update("status", enums.ActivationStatusStale)
	return res.RowsAffected, res.Error
}
