package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/redeem"
	"github.com/angelmondragon/licensing-backend/pkg/db/models"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

func AdminCampaignCreate(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		var input redeem.CreateCampaignInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaign, err := svc.CreateCampaign(r.Context(), input, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, redeem.NewCampaignView(campaign))
	}
}

func AdminCampaignList(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := redeem.CampaignListParams{Params: page}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseRedeemCampaignStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}
		result, err := svc.ListCampaigns(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminCampaignDetail(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return campaignHandler(svc, logg, func(r *http.Request, id uuid.UUID) (*models.RedeemCampaign, error) {
		return svc.GetCampaign(r.Context(), id)
	})
}

func AdminCampaignUpdate(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return campaignHandler(svc, logg, func(r *http.Request, id uuid.UUID) (*models.RedeemCampaign, error) {
		var input redeem.UpdateCampaignInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.UpdateCampaign(r.Context(), id, input)
	})
}

func AdminCampaignPause(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return campaignHandler(svc, logg, func(r *http.Request, id uuid.UUID) (*models.RedeemCampaign, error) {
		return svc.PauseCampaign(r.Context(), id)
	})
}

func AdminCampaignResume(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return campaignHandler(svc, logg, func(r *http.Request, id uuid.UUID) (*models.RedeemCampaign, error) {
		return svc.ResumeCampaign(r.Context(), id)
	})
}

// AdminCampaignEnd is terminal; an ended campaign cannot be resumed.
func AdminCampaignEnd(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return campaignHandler(svc, logg, func(r *http.Request, id uuid.UUID) (*models.RedeemCampaign, error) {
		return svc.EndCampaign(r.Context(), id)
	})
}

// AdminCodeGenerate returns plaintext codes. This response is the only place they appear.
func AdminCodeGenerate(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var input redeem.GenerateCodesInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		codes, err := svc.GenerateCodes(r.Context(), campaignID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"items": codes})
	}
}

func AdminCodeList(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.ListCodes(r.Context(), campaignID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func AdminCodeDeactivate(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		codeID, err := validators.ParseUUIDParam(r, "codeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		code, err := svc.DeactivateCode(r.Context(), codeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redeem.NewCodeView(code))
	}
}

func campaignHandler(svc redeem.Service, logg *logger.Logger, call func(*http.Request, uuid.UUID) (*models.RedeemCampaign, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		campaignID, err := validators.ParseUUIDParam(r, "campaignId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		campaign, err := call(r, campaignID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, redeem.NewCampaignView(campaign))
	}
}
