// pantry/requestid/requestid.go
package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey struct{}

// DefaultHeader carries the request id in both directions.
const DefaultHeader = "X-Request-ID"

const maxIncomingLen = 128

// Middleware tags each request with an id. A well-formed incoming
// X-Request-ID is reused; otherwise a new UUID is generated. The id is
// echoed on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(DefaultHeader)
		if id == "" || len(id) > maxIncomingLen {
			id = uuid.NewString()
		}
		w.Header().Set(DefaultHeader, id)
		next.ServeHTTP(w, r.WithContext(Set(r.Context(), id)))
	})
}

// Get returns the request id in ctx, or "".
func Get(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// Set stores id in ctx, e.g. for background work started by a request.
func Set(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// Field is a zap field for the id in ctx; it is skipped when absent.
func Field(ctx context.Context) zap.Field {
	id := Get(ctx)
	if id == "" {
		return zap.Skip()
	}
	return zap.String("request_id", id)
}

// Logger returns logger annotated with the request id in ctx.
func Logger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	if id := Get(ctx); id != "" {
		return logger.With(zap.String("request_id", id))
	}
	return logger
}
