package redeem

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/licensing-backend/pkg/db"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/pagination"
	"github.com/angelmondragon/licensing-backend/pkg/security"
)

type candidate struct {
	plain string
	hash  string
}

// GenerateCodes mints codes for a campaign. Plaintext is returned here and nowhere else.
func (s *service) GenerateCodes(ctx context.Context, campaignID uuid.UUID, input GenerateCodesInput) ([]GeneratedCode, error) {
	maxRedemptions := input.MaxRedemptions
	if maxRedemptions == 0 {
		maxRedemptions = defaultMaxRedemptions
	}
	if maxRedemptions < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "maxRedemptions must be positive")
	}
	expiresAt := utcPtr(input.ExpiresAt)
	if expiresAt != nil && !expiresAt.After(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expiresAt must be in the future")
	}

	campaign, err := s.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == enums.RedeemCampaignEnded {
		return nil, campaignStateErr(campaign.Status)
	}

	var candidates []candidate
	switch input.Type {
	case enums.RedeemCodeRandom:
		candidates, err = s.randomCandidates(ctx, input.Count)
	case enums.RedeemCodeCustom:
		candidates, err = s.customCandidate(ctx, input.Code)
	default:
		err = pkgerrors.New(pkgerrors.CodeValidation, "type must be RANDOM or CUSTOM")
	}
	if err != nil {
		return nil, err
	}

	rows := make([]models.RedeemCode, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, models.RedeemCode{
			ID:             uuid.New(),
			CampaignID:     campaign.ID,
			CodeHash:       c.hash,
			CodeType:       input.Type,
			MaxRedemptions: maxRedemptions,
			Active:         true,
			ExpiresAt:      expiresAt,
		})
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).CreateCodes(ctx, rows)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeRedeemCodeHashDuplicate, err, "redeem code already exists")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store redeem codes")
	}

	out := make([]GeneratedCode, 0, len(rows))
	for i, row := range rows {
		out = append(out, GeneratedCode{
			ID:             row.ID,
			Code:           candidates[i].plain,
			CodeType:       row.CodeType,
			MaxRedemptions: row.MaxRedemptions,
			ExpiresAt:      row.ExpiresAt,
		})
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"campaign_id": campaign.ID.String(),
		"code_type":   input.Type,
		"count":       len(out),
	})
	s.logg.Info(logCtx, "redeem codes generated")
	return out, nil
}

// randomCandidates draws codes until count unique hashes are found, re-drawing
// collisions at most maxGenerateRetries times.
func (s *service) randomCandidates(ctx context.Context, count int) ([]candidate, error) {
	if count == 0 {
		count = 1
	}
	if count < 1 || count > maxGenerateCount {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "count must be between 1 and 1000")
	}
	accepted := make([]candidate, 0, count)
	seen := make(map[string]bool, count)
	for round := 0; len(accepted) < count; round++ {
		if round > maxGenerateRetries {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "could not generate unique redeem codes")
		}
		batch := make([]candidate, 0, count-len(accepted))
		hashes := make([]string, 0, cap(batch))
		for len(batch) < count-len(accepted) {
			plain, err := security.GroupedCode(security.UnambiguousAlphabet, randomCodeGroups, randomCodeGroupSize)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate redeem code")
			}
			hash := s.hasher.Hash(strings.ReplaceAll(plain, "-", ""))
			if seen[hash] {
				continue
			}
			seen[hash] = true
			batch = append(batch, candidate{plain: plain, hash: hash})
			hashes = append(hashes, hash)
		}
		existing, err := s.repo.HashesExist(ctx, hashes)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check redeem code hashes")
		}
		for _, c := range batch {
			if !existing[c.hash] {
				accepted = append(accepted, c)
			}
		}
	}
	return accepted, nil
}

func (s *service) customCandidate(ctx context.Context, raw string) ([]candidate, error) {
	normalized, err := NormalizeCode(raw)
	if err != nil {
		return nil, err
	}
	hash := s.hasher.Hash(normalized)
	existing, err := s.repo.HashesExist(ctx, []string{hash})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check redeem code hash")
	}
	if existing[hash] {
		return nil, pkgerrors.New(pkgerrors.CodeRedeemCodeHashDuplicate, "redeem code already exists")
	}
	return []candidate{{plain: displayCode(normalized), hash: hash}}, nil
}

func (s *service) ListCodes(ctx context.Context, campaignID uuid.UUID, params pagination.Params) (*CodeListResult, error) {
	if _, err := s.GetCampaign(ctx, campaignID); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListCodes(ctx, campaignID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list redeem codes")
	}
	page, next := pagination.Page(rows, params.Limit, func(c models.RedeemCode) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})
	items := make([]CodeView, 0, len(page))
	for i := range page {
		items = append(items, NewCodeView(&page[i]))
	}
	return &CodeListResult{Items: items, Cursor: next}, nil
}

func (s *service) DeactivateCode(ctx context.Context, codeID uuid.UUID) (*models.RedeemCode, error) {
	changed, err := s.repo.DisableCode(ctx, codeID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "deactivate redeem code")
	}
	code, err := s.repo.FindCode(ctx, codeID)
	if err != nil {
		return nil, mapCodeErr(err)
	}
	if changed > 0 {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"code_id":     code.ID.String(),
			"campaign_id": code.CampaignID.String(),
		})
		s.logg.Info(logCtx, "redeem code deactivated")
	}
	return code, nil
}
