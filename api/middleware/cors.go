package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// The session server binds to loopback; only the local UI shells reach it.
var defaultCORSOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
	"capacitor://localhost",
}

// CORS returns middleware that applies the session server's origin policy.
// A non-empty origins list replaces the defaults.
func CORS(origins ...string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
