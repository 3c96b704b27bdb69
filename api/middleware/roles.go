package middleware

import (
	"net/http"
	"slices"

	"github.com/angelmondragon/licensing-backend/api/responses"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

// RequireRole admits callers whose token role is one of roles. It must run
// after Auth.
func RequireRole(logg *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !slices.Contains(roles, RoleFromContext(ctx)) {
				err := pkgerrors.New(pkgerrors.CodeAccessDenied, "role not permitted for this route").
					WithDetails(map[string]any{"required": roles})
				responses.WriteError(ctx, logg, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
