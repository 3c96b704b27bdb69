package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/activations"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

// ActivationCreate registers the calling device against a license. Repeating the call
// for a known fingerprint refreshes it instead of taking another seat.
func ActivationCreate(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activation service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "licenseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var input activations.ActivateInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		activation, err := svc.Activate(r.Context(), userID, licenseID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, activations.NewActivationView(activation))
	}
}

func ActivationList(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activation service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "licenseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		views, err := svc.ListByLicense(r.Context(), userID, licenseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": views})
	}
}

func ActivationDelete(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activation service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		licenseID, err := validators.ParseUUIDParam(r, "licenseId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		fingerprint := strings.TrimSpace(chi.URLParam(r, "fingerprint"))
		if fingerprint == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "fingerprint is required"))
			return
		}
		if err := svc.Deactivate(r.Context(), userID, licenseID, fingerprint); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
