package redeem

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

func (s *service) CreateCampaign(ctx context.Context, input CreateCampaignInput, actor *outbox.ActorRef) (*models.RedeemCampaign, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if actor == nil || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "creator is required")
	}
	if input.SeatLimit != nil && *input.SeatLimit < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seatLimit must be positive")
	}
	perUser := input.PerUserLimit
	if perUser == 0 {
		perUser = defaultPerUserLimit
	}
	if perUser < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "perUserLimit must be positive")
	}
	if err := validateWindow(input.ValidFrom, input.ValidUntil); err != nil {
		return nil, err
	}
	plan, err := s.plans.GetIssuable(ctx, input.PlanID)
	if err != nil {
		return nil, err
	}

	campaign := &models.RedeemCampaign{
		Name:          name,
		Description:   input.Description,
		ProductID:     plan.ProductID,
		LicensePlanID: plan.ID,
		SeatLimit:     input.SeatLimit,
		PerUserLimit:  perUser,
		Status:        enums.RedeemCampaignActive,
		ValidFrom:     utcPtr(input.ValidFrom),
		ValidUntil:    utcPtr(input.ValidUntil),
		CreatedBy:     actor.UserID,
	}
	if err := s.repo.CreateCampaign(ctx, campaign); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create redeem campaign")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"campaign_id": campaign.ID.String(),
		"plan_id":     plan.ID.String(),
	})
	s.logg.Info(logCtx, "redeem campaign created")
	return campaign, nil
}

func (s *service) UpdateCampaign(ctx context.Context, id uuid.UUID, input UpdateCampaignInput) (*models.RedeemCampaign, error) {
	return s.mutateCampaign(ctx, id, func(campaign *models.RedeemCampaign) error {
		if campaign.Status == enums.RedeemCampaignEnded {
			return campaignStateErr(campaign.Status)
		}
		if input.Name != nil {
			name := strings.TrimSpace(*input.Name)
			if name == "" {
				return pkgerrors.New(pkgerrors.CodeValidation, "name cannot be empty")
			}
			campaign.Name = name
		}
		if input.Description != nil {
			campaign.Description = input.Description
		}
		switch {
		case input.ClearSeatLimit:
			campaign.SeatLimit = nil
		case input.SeatLimit != nil:
			if *input.SeatLimit < campaign.SeatsUsed || *input.SeatLimit < 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "seatLimit cannot drop below seats already used").
					WithDetails(map[string]any{"seatsUsed": campaign.SeatsUsed})
			}
			limit := *input.SeatLimit
			campaign.SeatLimit = &limit
		}
		if input.PerUserLimit != nil {
			if *input.PerUserLimit < 1 {
				return pkgerrors.New(pkgerrors.CodeValidation, "perUserLimit must be positive")
			}
			campaign.PerUserLimit = *input.PerUserLimit
		}
		if input.ValidFrom != nil {
			campaign.ValidFrom = utcPtr(input.ValidFrom)
		}
		if input.ValidUntil != nil {
			campaign.ValidUntil = utcPtr(input.ValidUntil)
		}
		return validateWindow(campaign.ValidFrom, campaign.ValidUntil)
	})
}

func (s *service) PauseCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error) {
	return s.setCampaignStatus(ctx, id, enums.RedeemCampaignPaused, enums.RedeemCampaignActive)
}

func (s *service) ResumeCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error) {
	return s.setCampaignStatus(ctx, id, enums.RedeemCampaignActive, enums.RedeemCampaignPaused)
}

func (s *service) EndCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error) {
	return s.setCampaignStatus(ctx, id, enums.RedeemCampaignEnded, enums.RedeemCampaignActive, enums.RedeemCampaignPaused)
}

func (s *service) setCampaignStatus(ctx context.Context, id uuid.UUID, next enums.RedeemCampaignStatus, from ...enums.RedeemCampaignStatus) (*models.RedeemCampaign, error) {
	campaign, err := s.mutateCampaign(ctx, id, func(campaign *models.RedeemCampaign) error {
		for _, allowed := range from {
			if campaign.Status == allowed {
				campaign.Status = next
				return nil
			}
		}
		return campaignStateErr(campaign.Status)
	})
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"campaign_id": id.String(),
		"status":      next,
	})
	s.logg.Info(logCtx, "redeem campaign status changed")
	return campaign, nil
}

func (s *service) mutateCampaign(ctx context.Context, id uuid.UUID, mutate func(*models.RedeemCampaign) error) (*models.RedeemCampaign, error) {
	var result *models.RedeemCampaign
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		campaign, err := repo.FindCampaignForUpdate(ctx, id)
		if err != nil {
			return mapCampaignErr(err)
		}
		if err := mutate(campaign); err != nil {
			return err
		}
		if err := repo.SaveCampaign(ctx, campaign); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save redeem campaign")
		}
		result = campaign
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) GetCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error) {
	campaign, err := s.repo.FindCampaign(ctx, id)
	if err != nil {
		return nil, mapCampaignErr(err)
	}
	return campaign, nil
}

func (s *service) ListCampaigns(ctx context.Context, params CampaignListParams) (*CampaignListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}
	rows, err := s.repo.ListCampaigns(ctx, campaignFilter{
		status: params.Status,
		limit:  pagination.LimitWithBuffer(params.Limit),
		cursor: cursor,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list redeem campaigns")
	}
	page, next := pagination.Page(rows, params.Limit, func(c models.RedeemCampaign) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	items := make([]CampaignView, 0, len(page))
	for i := range page {
		items = append(items, NewCampaignView(&page[i]))
	}
	return &CampaignListResult{Items: items, Cursor: next}, nil
}

func campaignStateErr(current enums.RedeemCampaignStatus) error {
	return pkgerrors.New(pkgerrors.CodeRedeemCampaignNotActive, "operation not allowed in the campaign's current status").
		WithDetails(map[string]any{"currentStatus": current})
}

func validateWindow(from, until *time.Time) error {
	if from != nil && until != nil && !until.After(*from) {
		return pkgerrors.New(pkgerrors.CodeValidation, "validUntil must be after validFrom")
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
