package controllers

import (
	"net/http"

	"github.com/angelmondragon/licensing-backend/api/middleware"
	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/redeem"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

const maxUserAgentLen = 512

// Redeem exchanges a promotional code for a license. The service applies the
// per-user rate limit; the audit row keeps the caller address and user agent.
func Redeem(svc redeem.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "redeem service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}

		var input redeem.RedeemInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input.UserID = userID
		if ip := middleware.ClientIP(r); ip != "" {
			input.IPAddress = &ip
		}
		if ua := validators.SanitizeString(r.UserAgent(), maxUserAgentLen); ua != "" {
			input.UserAgent = &ua
		}

		result, err := svc.Redeem(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
