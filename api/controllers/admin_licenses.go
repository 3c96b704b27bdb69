package controllers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const maxReasonLen = 500

type transitionRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// AdminLicenseIssue grants a license outside the order and redeem flows.
func AdminLicenseIssue(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "license service")
			return
		}
		var input licenses.AdminIssueInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		license, err := svc.AdminIssue(r.Context(), input, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, licenses.NewLicenseView(license))
	}
}

func AdminLicenseDetail(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "license service")
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "licenseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		license, err := svc.Get(r.Context(), licenseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.NewLicenseView(license))
	}
}

// AdminLicenseTransition applies activate, suspend, reinstate or revoke. The body is optional.
func AdminLicenseTransition(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "license service")
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "licenseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseLicenseAction(strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "action"))))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown license action"))
			return
		}

		var body transitionRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil && !emptyBody(err) {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var reason *string
		if body.Reason != nil {
			if trimmed := validators.SanitizeString(*body.Reason, maxReasonLen); trimmed != "" {
				reason = &trimmed
			}
		}

		license, err := svc.AdminTransition(r.Context(), licenseID, action, reason, actorFrom(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.NewLicenseView(license))
	}
}

func emptyBody(err error) bool {
	return errors.Is(err, io.EOF)
}
