package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/angelmondragon/licensing-backend/api/responses"
	pkgerrors "github.com/angelmondragon/licensing-backend/pkg/errors"
	"github.com/angelmondragon/licensing-backend/pkg/logger"
)

// Recoverer answers a panicking handler with the INTERNAL_ERROR envelope.
// http.ErrAbortHandler keeps its net/http meaning and is panicked again.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer recoverInto(w, r, logg)
			next.ServeHTTP(w, r)
		})
	}
}

func recoverInto(w http.ResponseWriter, r *http.Request, logg *logger.Logger) {
	rec := recover()
	switch v := rec.(type) {
	case nil:
		return
	case error:
		if errors.Is(v, http.ErrAbortHandler) {
			panic(v)
		}
	}
	cause := fmt.Errorf("panic serving %s %s: %v", r.Method, r.URL.Path, rec)
	responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, cause, "handler panicked"))
}
