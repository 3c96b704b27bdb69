package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/api/responses"
	"github.com/angelmondragon/licensing-backend/api/validators"
	"github.com/angelmondragon/licensing-backend/internal/activations"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

type sessionCall func(r *http.Request, userID uuid.UUID) (*activations.SessionResult, error)

// SessionValidate starts a session for a running copy and returns its signed tokens.
func SessionValidate(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, func(r *http.Request, userID uuid.UUID) (*activations.SessionResult, error) {
		var input activations.SessionInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.StartSession(r.Context(), userID, input)
	})
}

// SessionForceValidate deactivates the listed devices and then starts the session.
func SessionForceValidate(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, func(r *http.Request, userID uuid.UUID) (*activations.SessionResult, error) {
		var input activations.ForceSessionInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.ForceStartSession(r.Context(), userID, input)
	})
}

func SessionHeartbeat(svc activations.Service, logg *logger.Logger) http.HandlerFunc {
	return sessionHandler(svc, logg, func(r *http.Request, userID uuid.UUID) (*activations.SessionResult, error) {
		var input activations.SessionInput
		if err := validators.DecodeJSONBody(r, &input); err != nil {
			return nil, err
		}
		return svc.Heartbeat(r.Context(), userID, input)
	})
}

func sessionHandler(svc activations.Service, logg *logger.Logger, call sessionCall) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			serviceUnavailable(w, r, logg, "activation service")
			return
		}
		userID, ok := requireUser(w, r, logg)
		if !ok {
			return
		}
		result, err := call(r, userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
