package controllers

import (
	"net/http"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/plans"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

// PlanList returns the plans currently offered, optionally narrowed to one product.
func PlanList(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "plan service")
			return
		}
		params, err := planListParams(r, false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// PlanDetail hides plans that are inactive or soft deleted.
func PlanDetail(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "plan service")
			return
		}
		planID, err := validators.ParseUUIDParam(r, "planId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		plan, err := svc.GetIssuable(r.Context(), planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

func planListParams(r *http.Request, admin bool) (plans.ListParams, error) {
	page, err := validators.ParsePagination(r)
	if err != nil {
		return plans.ListParams{}, err
	}
	productID, err := validators.ParseOptionalUUIDQuery(r, "productId")
	if err != nil {
		return plans.ListParams{}, err
	}
	return plans.ListParams{ProductID: productID, Admin: admin, Params: page}, nil
}
