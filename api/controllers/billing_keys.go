package controllers

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/billingkeys"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

func BillingKeyList(svc billingkeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "billing key service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		keys, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": keys})
	}
}

// BillingKeyRegister stores a card with the gateway. The Idempotency-Key header is
// forwarded so a retried request cannot create a second card.
func BillingKeyRegister(svc billingkeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "billing key service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		var input billingkeys.RegisterInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

		key, err := svc.Register(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, billingkeys.NewKeyView(key))
	}
}

func BillingKeySetDefault(svc billingkeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "billing key service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		keyID, err := validators.ParseUUIDParam(r, "billingKeyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		key, err := svc.SetDefault(r.Context(), userID, keyID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, billingkeys.NewKeyView(key))
	}
}

func BillingKeyDelete(svc billingkeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "billing key service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		keyID, err := validators.ParseUUIDParam(r, "billingKeyId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, keyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
