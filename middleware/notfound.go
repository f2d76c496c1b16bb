// middleware/notfound.go
package middleware

import (
	"net/http"

	"github.com/dalemusser/schoolctx/pantry/errors"
	"go.uber.org/zap"
)

// NotFoundHandler is meant for chi.Router.NotFound.
func NotFoundHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Debug("not_found", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		}
		errors.Write(w, errors.NotFound("the requested resource was not found"))
	}
}

// MethodNotAllowedHandler is meant for chi.Router.MethodNotAllowed.
func MethodNotAllowedHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if logger != nil {
			logger.Debug("method_not_allowed", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		}
		errors.Write(w, errors.MethodNotAllowed("the requested method is not allowed for this resource"))
	}
}
