package redeem

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

// Repository persists campaigns, codes and their counters. The counters are only
// ever moved by conditional updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateCampaign(ctx context.Context, campaign *models.RedeemCampaign) error
	SaveCampaign(ctx context.Context, campaign *models.RedeemCampaign) error
	FindCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error)
	FindCampaignForUpdate(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error)
	ListCampaigns(ctx context.Context, filter campaignFilter) ([]models.RedeemCampaign, error)
	IncrementSeats(ctx context.Context, campaignID uuid.UUID) (int64, error)

	CreateCodes(ctx context.Context, codes []models.RedeemCode) error
	DisableCode(ctx context.Context, id uuid.UUID) (int64, error)
	FindCode(ctx context.Context, id uuid.UUID) (*models.RedeemCode, error)
	FindCodeByHash(ctx context.Context, hash string) (*models.RedeemCode, error)
	FindCodeByHashForUpdate(ctx context.Context, hash string) (*models.RedeemCode, error)
	HashesExist(ctx context.Context, hashes []string) (map[string]bool, error)
	ListCodes(ctx context.Context, campaignID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RedeemCode, error)
	IncrementRedemptions(ctx context.Context, codeID uuid.UUID) (int64, error)

	UserCount(ctx context.Context, campaignID, userID uuid.UUID) (int, error)
	IncrementUserCount(ctx context.Context, campaignID, userID uuid.UUID, limit int) (int64, error)
	CreateRedemption(ctx context.Context, redemption *models.RedeemRedemption) error
}

type campaignFilter struct {
	status *enums.RedeemCampaignStatus
	limit  int
	cursor *pagination.Cursor
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

func (r *repository) CreateCampaign(ctx context.Context, campaign *models.RedeemCampaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

func (r *repository) SaveCampaign(ctx context.Context, campaign *models.RedeemCampaign) error {
	return r.db.WithContext(ctx).Save(campaign).Error
}

func (r *repository) FindCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error) {
	var campaign models.RedeemCampaign
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&campaign).Error; err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) FindCampaignForUpdate(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error) {
	var campaign models.RedeemCampaign
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

func (r *repository) ListCampaigns(ctx context.Context, filter campaignFilter) ([]models.RedeemCampaign, error) {
	query := r.db.WithContext(ctx).Model(&models.RedeemCampaign{})
	if filter.status != nil {
		query = query.Where("status = ?", *filter.status)
	}
	var rows []models.RedeemCampaign
	if err := query.Scopes(pagination.Keyset(filter.cursor, filter.limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// IncrementSeats takes one seat unless the campaign is full.
func (r *repository) IncrementSeats(ctx context.Context, campaignID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RedeemCampaign{}).
		Where("id = ? AND (seat_limit IS NULL OR seats_used < seat_limit)", campaignID).
		Update("seats_used", gorm.Expr("seats_used + 1"))
	return res.RowsAffected, res.Error
}

func (r *repository) CreateCodes(ctx context.Context, codes []models.RedeemCode) error {
	if len(codes) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).CreateInBatches(codes, 200).Error
}

// DisableCode only touches the active flag; the redemption counter belongs to Redeem.
func (r *repository) DisableCode(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RedeemCode{}).
		Where("id = ? AND active = ?", id, true).
		Update("active", false)
	return res.RowsAffected, res.Error
}

func (r *repository) FindCode(ctx context.Context, id uuid.UUID) (*models.RedeemCode, error) {
	var code models.RedeemCode
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) FindCodeByHash(ctx context.Context, hash string) (*models.RedeemCode, error) {
	var code models.RedeemCode
	if err := r.db.WithContext(ctx).Where("code_hash = ?", hash).First(&code).Error; err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) FindCodeByHashForUpdate(ctx context.Context, hash string) (*models.RedeemCode, error) {
	var code models.RedeemCode
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("code_hash = ?", hash).
		First(&code).Error
	if err != nil {
		return nil, err
	}
	return &code, nil
}

func (r *repository) HashesExist(ctx context.Context, hashes []string) (map[string]bool, error) {
	found := make(map[string]bool, len(hashes))
	if len(hashes) == 0 {
		return found, nil
	}
	var existing []string
	err := r.db.WithContext(ctx).
		Model(&models.RedeemCode{}).
		Where("code_hash IN ?", hashes).
		Pluck("code_hash", &existing).Error
	if err != nil {
		return nil, err
	}
	for _, h := range existing {
		found[h] = true
	}
	return found, nil
}

func (r *repository) ListCodes(ctx context.Context, campaignID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.RedeemCode, error) {
	query := r.db.WithContext(ctx).Model(&models.RedeemCode{}).Where("campaign_id = ?", campaignID)
	var rows []models.RedeemCode
	if err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// IncrementRedemptions consumes one use unless the code is exhausted.
func (r *repository) IncrementRedemptions(ctx context.Context, codeID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.RedeemCode{}).
		Where("id = ? AND current_redemptions < max_redemptions", codeID).
		Update("current_redemptions", gorm.Expr("current_redemptions + 1"))
	return res.RowsAffected, res.Error
}

func (r *repository) UserCount(ctx context.Context, campaignID, userID uuid.UUID) (int, error) {
	var counter models.RedeemUserCampaignCounter
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND user_id = ?", campaignID, userID).
		Limit(1).
		Find(&counter).Error
	if err != nil {
		return 0, err
	}
	return counter.Count, nil
}

// IncrementUserCount upserts the per-user counter, refusing to go past limit.
// Zero rows affected means the user already reached the limit.
func (r *repository) IncrementUserCount(ctx context.Context, campaignID, userID uuid.UUID, limit int) (int64, error) {
	counter := models.RedeemUserCampaignCounter{CampaignID: campaignID, UserID: userID, Count: 1}
	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":      gorm.Expr("redeem_user_campaign_counters.count + 1"),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("redeem_user_campaign_counters.count < ?", limit),
		}},
	}).Create(&counter)
	return res.RowsAffected, res.Error
}

func (r *repository) CreateRedemption(ctx context.Context, redemption *models.RedeemRedemption) error {
	return r.db.WithContext(ctx).Create(redemption).Error
}
