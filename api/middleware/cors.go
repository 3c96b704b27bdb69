package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const localStorefrontOrigin = "http://localhost:3000"

// CORS applies the browser origin policy. Blank entries are ignored, and a
// list with nothing left admits only the local storefront.
func CORS(origins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedOrigins: cleanOrigins(origins),
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyHeader, "X-Requested-With"},
		ExposedHeaders:   []string{requestIDHeader, "Idempotent-Replayed", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}
	return cors.New(opts).Handler
}

func cleanOrigins(origins []string) []string {
	var out []string
	for _, origin := range origins {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	if len(out) == 0 {
		return []string{localStorefrontOrigin}
	}
	return out
}
