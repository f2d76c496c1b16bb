// middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/schoolctx/config"
	"github.com/go-chi/cors"
)

// TabHeader is the request header that scopes the school selection to one
// browser tab. It must be allowed through CORS for cross-origin clients.
const TabHeader = "X-Tab-ID"

// CORSFromConfig applies the configured CORS policy, or passes through when
// CORS is disabled. Authorization and X-Tab-ID are always allowed.
func CORSFromConfig(coreCfg *config.CoreConfig) func(next http.Handler) http.Handler {
	if coreCfg == nil || !coreCfg.CORS.EnableCORS {
		return func(next http.Handler) http.Handler { return next }
	}

	headers := append([]string{"Authorization", "Content-Type", TabHeader}, coreCfg.CORS.CORSAllowedHeaders...)
	exposed := append([]string{"X-Request-ID"}, coreCfg.CORS.CORSExposedHeaders...)

	return cors.Handler(cors.Options{
		AllowedOrigins:   coreCfg.CORS.CORSAllowedOrigins,
		AllowedMethods:   coreCfg.CORS.CORSAllowedMethods,
		AllowedHeaders:   headers,
		ExposedHeaders:   exposed,
		AllowCredentials: coreCfg.CORS.CORSAllowCredentials,
		MaxAge:           coreCfg.CORS.CORSMaxAge,
	})
}
