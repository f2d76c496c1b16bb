// pantry/health/health.go
package health

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dalemusser/schoolctx/httputil"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Check probes one dependency and returns nil when it is healthy.
type Check func(ctx context.Context) error

// Response is the /health body. Checks maps each check name to "ok" or
// its error text.
type Response struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// checkTimeout bounds each probe so a hung dependency cannot hang /health.
const checkTimeout = 2 * time.Second

// Handler runs all checks concurrently. It answers 200 {"status":"ok"}
// when every check passes and 503 {"status":"error"} otherwise, with a
// per-check breakdown.
func Handler(checks map[string]Check, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"})
			return
		}

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			failed  bool
			results = make(map[string]string, len(checks))
		)
		for name, check := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
				defer cancel()

				status := "ok"
				if check != nil {
					if err := check(ctx); err != nil {
						status = "error: " + err.Error()
						logger.Warn("health check failed", zap.String("check", name), zap.Error(err))
					}
				}
				mu.Lock()
				results[name] = status
				if status != "ok" {
					failed = true
				}
				mu.Unlock()
			}()
		}
		wg.Wait()

		if failed {
			httputil.WriteJSON(w, http.StatusServiceUnavailable, Response{Status: "error", Checks: results})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok", Checks: results})
	})
}

// Mount serves Handler at GET /health.
func Mount(r chi.Router, checks map[string]Check, logger *zap.Logger) {
	r.Method(http.MethodGet, "/health", Handler(checks, logger))
}
