// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var reqDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests.",
		Buckets: []float64{0.01, 0.1, 0.3, 1.2, 5},
	},
	[]string{"path", "method", "status"},
)

// SwitchingFetchFailures counts school-switching fetches that failed after
// all attempts and were degraded to "no data".
var SwitchingFetchFailures = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "schoolctx_switching_fetch_failures_total",
	Help: "School-switching fetches that failed and fell back to absent data.",
})

// SwitchMutations counts switch-school calls by outcome ("success", "error").
var SwitchMutations = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "schoolctx_switch_mutations_total",
	Help: "Switch-school mutations by outcome.",
}, []string{"outcome"})

// CacheLookups counts school-switching cache lookups by result ("hit", "miss").
var CacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "schoolctx_switching_cache_lookups_total",
	Help: "School-switching cache lookups by result.",
}, []string{"result"})

// RegisterDefault registers runtime collectors plus the service metrics.
// Call once at startup; repeated registration is tolerated.
func RegisterDefault(logger *zap.Logger) {
	mustRegister(logger, "Go collector", collectors.NewGoCollector())
	mustRegister(logger, "process collector", collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	mustRegister(logger, "HTTP request histogram", reqDuration)
	mustRegister(logger, "switching fetch failures", SwitchingFetchFailures)
	mustRegister(logger, "switch mutations", SwitchMutations)
	mustRegister(logger, "switching cache lookups", CacheLookups)
}

func mustRegister(logger *zap.Logger, name string, c prometheus.Collector) {
	err := prometheus.Register(c)
	if err == nil {
		return
	}
	if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
		return
	}
	if logger != nil {
		logger.Fatal("failed to register "+name, zap.Error(err))
	}
	panic("metrics: failed to register " + name + ": " + err.Error())
}

// HTTPMetrics records request duration labeled by chi route pattern, so
// path parameters do not explode label cardinality.
func HTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		protoMajor := r.ProtoMajor
		if protoMajor < 1 {
			protoMajor = 1
		}
		ww := middleware.NewWrapResponseWriter(w, protoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status < 100 || status > 599 {
			status = http.StatusInternalServerError
		}

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}

		reqDuration.WithLabelValues(path, r.Method, strconv.Itoa(status)).
			Observe(time.Since(start).Seconds())
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
