// logging/recovermw.go
package logging

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/dalemusser/schoolctx/pantry/errors"
	"github.com/dalemusser/schoolctx/pantry/requestid"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Recoverer turns a panic into a logged 500 with the JSON error envelope.
// A missing school context provider surfaces here as a panic, so the
// panic value is logged verbatim.
func Recoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			protoMajor := r.ProtoMajor
			if protoMajor < 1 {
				protoMajor = 1
			}
			ww := middleware.NewWrapResponseWriter(w, protoMajor)

			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("panic_value", fmt.Sprint(rec)),
					zap.ByteString("stacktrace", debug.Stack()),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					requestid.Field(r.Context()),
				)
				if ww.Status() == 0 {
					errors.Write(w, errors.Internal("internal server error"))
					return
				}
				logger.Warn("panic after headers were written",
					zap.Int("status_already_sent", ww.Status()),
					zap.String("path", r.URL.Path))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
