// router/router.go
package router

import (
	"github.com/dalemusser/schoolctx/config"
	"github.com/dalemusser/schoolctx/logging"
	"github.com/dalemusser/schoolctx/metrics"
	"github.com/dalemusser/schoolctx/middleware"
	"github.com/dalemusser/schoolctx/pantry/requestid"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// New returns a chi.Router with the standard stack: request id, real IP,
// panic recovery, security headers, CORS, body limit, metrics, access log,
// and JSON 404/405 handlers. Routes are mounted by the caller.
func New(coreCfg *config.CoreConfig, logger *zap.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(requestid.Middleware)
	r.Use(chimw.RealIP)
	r.Use(logging.RequestLogger(logger))
	r.Use(logging.Recoverer(logger))
	r.Use(metrics.HTTPMetrics)
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))
	r.Use(middleware.CORSFromConfig(coreCfg))
	r.Use(middleware.LimitBodySize(coreCfg.MaxRequestBodyBytes))

	r.NotFound(middleware.NotFoundHandler(logger))
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler(logger))

	return r
}
