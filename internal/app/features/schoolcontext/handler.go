// Package schoolcontext serves the school context over HTTP.
package schoolcontext

import (
	"net/http"

	"github.com/dalemusser/schoolctx/httputil"
	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/app/system/notify"
	"github.com/dalemusser/schoolctx/internal/app/system/schoolctx"
	"github.com/dalemusser/schoolctx/middleware"
	apperrors "github.com/dalemusser/schoolctx/pantry/errors"
	"github.com/dalemusser/schoolctx/pantry/ratelimit"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler serves the school context, the selection setter, the switch
// mutation and the notification queue for the current session.
type Handler struct {
	provider    *schoolctx.Provider
	switcher    *schoolctx.Switcher
	switchLimit *ratelimit.KeyLimiter
	logger      *zap.Logger
}

// NewHandler builds a Handler. The switch route is not rate limited
// until LimitSwitches is called.
func NewHandler(provider *schoolctx.Provider, switcher *schoolctx.Switcher, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{provider: provider, switcher: switcher, logger: logger}
}

// LimitSwitches rate limits POST /school-context/switch per user.
func (h *Handler) LimitSwitches(kl *ratelimit.KeyLimiter) *Handler {
	h.switchLimit = kl
	return h
}

// Routes expects the session and auth middleware to have run. The school
// context provider is mounted here, only on the routes that read it, so
// minting a tab or draining notifications never calls the backend.
//
//	GET    /school-context            current value
//	PUT    /school-context/selection  {"schoolId": "..."}; "" clears
//	DELETE /school-context/selection
//	POST   /school-context/switch     {"schoolId": "..."}
//	POST   /school-context/tabs       mint a tab id
//	GET    /notifications             drain queued toasts
func Routes(h *Handler) chi.Router {
	r := chi.NewRouter()
	handle := func(fn apperrors.HandlerFunc) http.HandlerFunc { return apperrors.Handle(fn, h.logger) }
	withContext := schoolctx.Middleware(h.provider)

	r.With(withContext).Get("/school-context", handle(h.get))
	r.Post("/school-context/tabs", handle(h.newTab))
	r.Group(func(r chi.Router) {
		r.Use(requireUser)
		r.Get("/notifications", handle(h.notifications))
		r.With(middleware.RequireJSON, withContext).Put("/school-context/selection", handle(h.setSelection))
		r.With(withContext).Delete("/school-context/selection", handle(h.clearSelection))
		sw := r.With(middleware.RequireJSON)
		if h.switchLimit != nil {
			sw = sw.With(ratelimit.Middleware(h.switchLimit, userKey))
		}
		sw.With(withContext).Post("/school-context/switch", handle(h.switchSchool))
	})
	return r
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := auth.UserFromContext(r.Context()); !ok {
			apperrors.Write(w, apperrors.Unauthorized("authentication required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func userKey(r *http.Request) string {
	u, _ := auth.UserFromContext(r.Context())
	return u.TenantID + ":" + u.ID
}

type selectionRequest struct {
	SchoolID string `json:"schoolId"`
}

type switchResponse struct {
	Message string           `json:"message,omitempty"`
	Context *schoolctx.Value `json:"context"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) error {
	v, err := schoolctx.FromContext(r.Context())
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, v)
	return nil
}

func (h *Handler) newTab(w http.ResponseWriter, r *http.Request) error {
	httputil.WriteJSON(w, http.StatusCreated, map[string]string{"tabId": schoolctx.NewTabID()})
	return nil
}

func (h *Handler) setSelection(w http.ResponseWriter, r *http.Request) error {
	var req selectionRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	return h.applySelection(w, r, req.SchoolID)
}

func (h *Handler) clearSelection(w http.ResponseWriter, r *http.Request) error {
	return h.applySelection(w, r, "")
}

func (h *Handler) applySelection(w http.ResponseWriter, r *http.Request, schoolID string) error {
	if err := h.provider.SetSelectedSchoolID(r.Context(), schoolID); err != nil {
		return err
	}
	return h.get(w, r)
}

// switchSchool applies the choice locally first, then asks the backend.
// A failed switch leaves the local selection in place.
func (h *Handler) switchSchool(w http.ResponseWriter, r *http.Request) error {
	var req selectionRequest
	if err := httputil.BindJSON(r, &req); err != nil {
		return apperrors.InvalidInput(err.Error())
	}
	user, _ := auth.UserFromContext(r.Context())

	if req.SchoolID != "" {
		if err := h.provider.SetSelectedSchoolID(r.Context(), req.SchoolID); err != nil {
			return err
		}
	}
	res, err := h.switcher.Switch(r.Context(), user, req.SchoolID)
	if err != nil {
		return err
	}

	v, err := schoolctx.FromContext(r.Context())
	if err != nil {
		return err
	}
	httputil.WriteJSON(w, http.StatusOK, switchResponse{Message: res.Message, Context: v})
	return nil
}

func (h *Handler) notifications(w http.ResponseWriter, r *http.Request) error {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"notifications": notify.Drain(r.Context())})
	return nil
}
