package controllers

import (
	"net/http"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/subscriptions"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

type autoRenewRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

func SubscriptionList(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "subscription service")
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
		result, err := svc.ListByOwner(r.Context(), userID, page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// SubscriptionAutoRenew switches renewal on or off for one of the caller's subscriptions.
func SubscriptionAutoRenew(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "subscription service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		subscriptionID, err := validators.ParseUUIDParam(r, "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body autoRenewRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.ToggleAutoRenew(r.Context(), userID, subscriptionID, *body.Enabled)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.NewSubscriptionView(sub))
	}
}

// SubscriptionCancel stops renewals; the license keeps running until its end date.
func SubscriptionCancel(svc subscriptions.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "subscription service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		subscriptionID, err := validators.ParseUUIDParam(r, "subscriptionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sub, err := svc.Cancel(r.Context(), userID, subscriptionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, subscriptions.NewSubscriptionView(sub))
	}
}
