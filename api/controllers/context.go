package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/licensing-backend/api/middleware"
	"github.com/angelmondragon/licensing-backend/api/responses"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
	"github.com/angelmondragon/licensing-backend/pkg/outbox"
)

// requireUser resolves the authenticated caller or writes a 401.
func requireUser(w http.ResponseWriter, r *http.Request, logg *logger.Logger) (uuid.UUID, bool) {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing"))
		return uuid.Nil, false
	}
	return userID, true
}

// actorFrom builds the audit actor recorded on outbox events.
func actorFrom(r *http.Request) *outbox.ActorRef {
	userID, ok := middleware.UserUUIDFromContext(r.Context())
	if !ok {
		return nil
	}
	return &outbox.ActorRef{UserID: userID, Role: middleware.RoleFromContext(r.Context())}
}

func serviceUnavailable(w http.ResponseWriter, r *http.Request, logg *logger.Logger, name string) {
	responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, name+" unavailable"))
}
