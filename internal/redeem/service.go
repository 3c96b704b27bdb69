package redeem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/metrics"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
	"github.com/angelmondragon/licensing-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
)

type planReader interface {
	GetIssuable(ctx context.Context, id uuid.UUID) (*models.LicensePlan, error)
}

type licenseIssuer interface {
	Issue(ctx context.Context, tx *gorm.DB, input licenses.IssueInput) (*models.License, error)
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type rateLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimit caps redeem attempts per user inside a fixed window.
type RateLimit struct {
	Limit  int
	Window time.Duration
}

func (r RateLimit) enabled() bool {
	return r.Limit > 0 && r.Window > 0
}

// Service redeems codes into licenses and administers campaigns and their codes.
type Service interface {
	Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error)

	CreateCampaign(ctx context.Context, input CreateCampaignInput, actor *outbox.ActorRef) (*models.RedeemCampaign, error)
	UpdateCampaign(ctx context.Context, id uuid.UUID, input UpdateCampaignInput) (*models.RedeemCampaign, error)
	PauseCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error)
	ResumeCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error)
	EndCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.RedeemCampaign, error)
	ListCampaigns(ctx context.Context, params CampaignListParams) (*CampaignListResult, error)

	GenerateCodes(ctx context.Context, campaignID uuid.UUID, input GenerateCodesInput) ([]GeneratedCode, error)
	ListCodes(ctx context.Context, campaignID uuid.UUID, params pagination.Params) (*CodeListResult, error)
	DeactivateCode(ctx context.Context, codeID uuid.UUID) (*models.RedeemCode, error)
}

type ServiceParams struct {
	Repo        Repository
	Plans       planReader
	Licenses    licenseIssuer
	Outbox      outboxEmitter
	Tx          txRunner
	Hasher      *Hasher
	RateLimiter rateLimiter
	RateLimit   RateLimit
	Logger      *logger.Logger
	Metrics     *metrics.LicensingMetrics
	Now         func() time.Time
}

type service struct {
	repo      Repository
	plans     planReader
	licenses  licenseIssuer
	outbox    outboxEmitter
	tx        txRunner
	hasher    *Hasher
	limiter   rateLimiter
	rateLimit RateLimit
	logg      *logger.Logger
	metrics   *metrics.LicensingMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("redeem repository required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plan reader required")
	}
	if params.Licenses == nil {
		return nil, fmt.Errorf("license issuer required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Hasher == nil {
		return nil, fmt.Errorf("code hasher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:      params.Repo,
		plans:     params.Plans,
		licenses:  params.Licenses,
		outbox:    params.Outbox,
		tx:        params.Tx,
		hasher:    params.Hasher,
		limiter:   params.RateLimiter,
		rateLimit: params.RateLimit,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) Redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	result, err := s.redeem(ctx, input)
	s.metrics.IncRedemption(outcomeOf(err))
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) redeem(ctx context.Context, input RedeemInput) (*RedeemResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "userId is required")
	}
	if err := s.allow(ctx, input.UserID); err != nil {
		return nil, err
	}
	normalized, err := NormalizeCode(input.Code)
	if err != nil {
		return nil, err
	}
	hash := s.hasher.Hash(normalized)

	// The plan lives outside the redeem tables; load it up front and surface its
	// error only after the code and campaign checks have passed.
	var plan *models.LicensePlan
	var planErr error = pkgerrors.New(pkgerrors.CodeRedeemCampaignNotFound, "redeem campaign not found")
	if code, err := s.repo.FindCodeByHash(ctx, hash); err == nil {
		if campaign, err := s.repo.FindCampaign(ctx, code.CampaignID); err == nil {
			plan, planErr = s.plans.GetIssuable(ctx, campaign.LicensePlanID)
		}
	}

	var result *RedeemResult
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()

		code, err := repo.FindCodeByHashForUpdate(ctx, hash)
		if err != nil {
			return mapCodeErr(err)
		}
		if err := checkCode(now, code); err != nil {
			return err
		}
		campaign, err := repo.FindCampaignForUpdate(ctx, code.CampaignID)
		if err != nil {
			return mapCampaignErr(err)
		}
		if err := checkCampaignOpen(now, campaign); err != nil {
			return err
		}
		if campaign.SeatLimit != nil && campaign.SeatsUsed >= *campaign.SeatLimit {
			return pkgerrors.New(pkgerrors.CodeRedeemCampaignFull, "redeem campaign is full")
		}
		used, err := repo.UserCount(ctx, campaign.ID, input.UserID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read user redemption count")
		}
		if used >= campaign.PerUserLimit {
			return userLimitErr()
		}
		if planErr != nil {
			return planErr
		}

		if err := s.consume(ctx, repo, code, campaign, input.UserID); err != nil {
			return err
		}

		redemptionID := uuid.New()
		sourceRef := redemptionID.String()
		actor := &outbox.ActorRef{UserID: input.UserID, Role: string(enums.RoleUser)}
		license, err := s.licenses.Issue(ctx, tx, licenses.IssueInput{
			OwnerID:    input.UserID,
			Plan:       plan,
			SourceType: enums.LicenseSourceRedeem,
			SourceRef:  &sourceRef,
			ValidFrom:  now,
			Actor:      actor,
		})
		if err != nil {
			return err
		}
		if err := repo.CreateRedemption(ctx, &models.RedeemRedemption{
			ID:         redemptionID,
			CodeID:     code.ID,
			CampaignID: campaign.ID,
			UserID:     input.UserID,
			LicenseID:  license.ID,
			IPAddress:  input.IPAddress,
			UserAgent:  input.UserAgent,
			RedeemedAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record redemption")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventLicenseRedeemed,
			AggregateType: enums.AggregateRedeemCode,
			AggregateID:   code.ID,
			Actor:         actor,
			Data: payloads.LicenseRedeemedEvent{
				LicenseID:    license.ID,
				UserID:       input.UserID,
				CampaignID:   campaign.ID,
				CodeID:       code.ID,
				RedemptionID: redemptionID,
			},
			OccurredAt: now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit license redeemed")
		}
		result = &RedeemResult{
			RedemptionID: redemptionID,
			CampaignID:   campaign.ID,
			License:      licenses.NewLicenseView(license),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithUserID(ctx, input.UserID.String())
	logCtx = s.logg.WithLicenseID(logCtx, result.License.ID.String())
	logCtx = s.logg.WithField(logCtx, "campaign_id", result.CampaignID.String())
	s.logg.Info(logCtx, "code redeemed")
	return result, nil
}

// consume moves the three capacity counters. Each update is conditional, so a
// zero row count means a concurrent redeemer took the last slot.
func (s *service) consume(ctx context.Context, repo Repository, code *models.RedeemCode, campaign *models.RedeemCampaign, userID uuid.UUID) error {
	rows, err := repo.IncrementRedemptions(ctx, code.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment code redemptions")
	}
	if rows == 0 {
		return depletedErr()
	}
	rows, err = repo.IncrementSeats(ctx, campaign.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment campaign seats")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeRedeemCampaignFull, "redeem campaign is full")
	}
	rows, err = repo.IncrementUserCount(ctx, campaign.ID, userID, campaign.PerUserLimit)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment user redemptions")
	}
	if rows == 0 {
		return userLimitErr()
	}
	return nil
}

func (s *service) allow(ctx context.Context, userID uuid.UUID) error {
	if s.limiter == nil || !s.rateLimit.enabled() {
		return nil
	}
	ok, _, err := s.limiter.FixedWindowAllow(ctx, "redeem:"+userID.String(), int64(s.rateLimit.Limit), s.rateLimit.Window)
	if err != nil {
		logCtx := s.logg.WithUserID(ctx, userID.String())
		s.logg.Warn(logCtx, "redeem rate limiter unavailable; allowing attempt")
		return nil
	}
	if !ok {
		return pkgerrors.New(pkgerrors.CodeRedeemRateLimited, "too many redeem attempts")
	}
	return nil
}

func checkCode(now time.Time, code *models.RedeemCode) error {
	if code.ExpiresAt != nil && now.After(*code.ExpiresAt) {
		return pkgerrors.New(pkgerrors.CodeRedeemCodeExpired, "redeem code expired")
	}
	if !code.Active {
		return pkgerrors.New(pkgerrors.CodeRedeemCodeDisabled, "redeem code disabled")
	}
	if code.Exhausted() {
		return depletedErr()
	}
	return nil
}

func checkCampaignOpen(now time.Time, campaign *models.RedeemCampaign) error {
	open := campaign.Status == enums.RedeemCampaignActive
	if campaign.ValidFrom != nil && now.Before(*campaign.ValidFrom) {
		open = false
	}
	if campaign.ValidUntil != nil && now.After(*campaign.ValidUntil) {
		open = false
	}
	if open {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeRedeemCampaignNotActive, "redeem campaign not active").
		WithDetails(map[string]any{"currentStatus": campaign.Status})
}

func depletedErr() error {
	return pkgerrors.New(pkgerrors.CodeRedeemCodeDepleted, "redeem code fully used")
}

func userLimitErr() error {
	return pkgerrors.New(pkgerrors.CodeRedeemUserLimitExceeded, "redemption limit reached for this user")
}

func mapCodeErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeRedeemCodeNotFound, "redeem code not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load redeem code")
}

func mapCampaignErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeRedeemCampaignNotFound, "redeem campaign not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load redeem campaign")
}

func outcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	if appErr := pkgerrors.As(err); appErr != nil {
		return strings.ToLower(string(appErr.Code()))
	}
	return "error"
}
