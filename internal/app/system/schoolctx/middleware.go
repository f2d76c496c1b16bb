package schoolctx

import (
	"net/http"
	"strings"

	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/middleware"
	apperrors "github.com/dalemusser/schoolctx/pantry/errors"
	"github.com/dalemusser/schoolctx/pantry/session"
	"github.com/google/uuid"
)

// TabHeader names the browser tab a request comes from. The query
// parameter "tab" is accepted as a fallback.
const TabHeader = middleware.TabHeader

// TabID returns the canonical tab id of r, "" when none was sent, or an
// error when the value is not a UUID.
func TabID(r *http.Request) (string, error) {
	raw := strings.TrimSpace(r.Header.Get(TabHeader))
	if raw == "" {
		raw = strings.TrimSpace(r.URL.Query().Get("tab"))
	}
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewTabID returns a fresh tab id for clients that cannot generate one.
func NewTabID() string { return uuid.NewString() }

// Middleware mounts p for every request. It runs after auth and session
// middleware; the selection lives in the session under the tab's key.
func Middleware(p *Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tab, err := TabID(r)
			if err != nil {
				apperrors.Write(w, apperrors.InvalidInput("X-Tab-ID must be a UUID"))
				return
			}

			var user *models.User
			if u, ok := auth.UserFromContext(r.Context()); ok {
				user = &u
			}
			store := SessionPersister{Session: session.FromContext(r.Context()), Tab: tab}
			ctx := p.Mount(r.Context(), user, auth.TokenFromContext(r.Context()), store)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
