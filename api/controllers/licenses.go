package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/licenses"
	"github.com/angelmondragon/licensing-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

// LicenseList returns the caller's licenses, newest first.
func LicenseList(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "license service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		page, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseOptionalUUIDQuery(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := licenses.ListParams{ProductID: productID, Params: page}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseLicenseStatus(strings.ToUpper(raw))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
				return
			}
			params.Status = &status
		}

		result, err := svc.ListByOwner(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// LicenseDetail syncs the stored status with the clock before answering, so a lapsed
// license reads as expired even when the sweep has not reached it yet.
func LicenseDetail(svc licenses.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "license service")
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
		if _, err := svc.GetForOwner(r.Context(), userID, licenseID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		license, err := svc.Reevaluate(r.Context(), licenseID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, licenses.NewLicenseView(license))
	}
}
