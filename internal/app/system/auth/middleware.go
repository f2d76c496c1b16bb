package auth

import (
	"errors"
	"net/http"

	apperrors "github.com/dalemusser/schoolctx/pantry/errors"
	"github.com/dalemusser/schoolctx/pantry/requestid"
	"go.uber.org/zap"
)

// Optional attaches the caller when a valid token is present and lets
// anonymous requests through. A token that is present but invalid is
// rejected.
func (a *Authenticator) Optional(logger *zap.Logger) func(http.Handler) http.Handler {
	return a.middleware(false, logger)
}

// Required rejects requests without a valid token.
func (a *Authenticator) Required(logger *zap.Logger) func(http.Handler) http.Handler {
	return a.middleware(true, logger)
}

func (a *Authenticator) middleware(required bool, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := BearerToken(r)
			if errors.Is(err, ErrNoToken) {
				if required {
					apperrors.Write(w, apperrors.Unauthorized("authentication required"))
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := a.Verify(raw)
			if err != nil {
				logger.Debug("token rejected", zap.Error(err), requestid.Field(r.Context()))
				apperrors.Write(w, apperrors.Unauthorized("invalid or expired token"))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), claims.User(), raw)))
		})
	}
}
