// pantry/session/middleware.go
package session

import (
	"context"
	"net/http"

	"github.com/dalemusser/schoolctx/pantry/requestid"
	"go.uber.org/zap"
)

type contextKey struct{}

// Middleware attaches the caller's session to the request context and
// saves it, if modified, just before the response header is written.
// Store failures are logged and otherwise ignored: the request proceeds
// with an in-memory session.
func Middleware(m *Manager, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := m.Get(r)
			if err != nil {
				logger.Warn("session load failed; using a fresh session",
					zap.Error(err), requestid.Field(r.Context()))
			}
			r = r.WithContext(NewContext(r.Context(), s))

			sw := &saveWriter{ResponseWriter: w, save: func() {
				if !s.Modified() {
					return
				}
				if err := m.Save(w, r, s); err != nil {
					logger.Warn("session save failed", zap.Error(err), requestid.Field(r.Context()))
				}
			}}
			next.ServeHTTP(sw, r)
			sw.flushSave()
		})
	}
}

// NewContext returns ctx carrying s.
func NewContext(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns nil when Middleware did not run.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(contextKey{}).(*Session)
	return s
}

type saveWriter struct {
	http.ResponseWriter
	save  func()
	saved bool
}

func (sw *saveWriter) flushSave() {
	if !sw.saved {
		sw.saved = true
		sw.save()
	}
}

// WriteHeader saves the session before the status line goes out, so a
// Set-Cookie header can still be added.
func (sw *saveWriter) WriteHeader(code int) {
	sw.flushSave()
	sw.ResponseWriter.WriteHeader(code)
}

// Write saves the session before the first body byte.
func (sw *saveWriter) Write(b []byte) (int, error) {
	sw.flushSave()
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the wrapped writer to http.ResponseController.
func (sw *saveWriter) Unwrap() http.ResponseWriter { return sw.ResponseWriter }
