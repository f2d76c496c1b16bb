package schoolctx

import (
	"context"
	"errors"
	"strings"

	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/app/system/dashboard"
	"github.com/dalemusser/schoolctx/internal/app/system/notify"
	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/metrics"
	apperrors "github.com/dalemusser/schoolctx/pantry/errors"
	"github.com/dalemusser/schoolctx/pantry/requestid"
	"go.uber.org/zap"
)

const (
	switchFailedMessage    = "Failed to switch school"
	switchSucceededMessage = "School switched successfully"
)

// SwitchClient performs the remote switch.
type SwitchClient interface {
	SwitchSchool(ctx context.Context, token, schoolID string) (dashboard.SwitchResult, error)
}

// Switcher changes the user's active school on the backend.
type Switcher struct {
	client   SwitchClient
	provider *Provider
	notifier notify.Notifier
	logger   *zap.Logger
}

// NewSwitcher sends toasts through notifier. A nil notifier falls back
// to logging them.
func NewSwitcher(client SwitchClient, provider *Provider, notifier notify.Notifier, logger *zap.Logger) *Switcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = notify.Log{Logger: logger}
	}
	return &Switcher{client: client, provider: provider, notifier: notifier, logger: logger}
}

// Switch asks the backend to make schoolID the active school for user,
// forwarding the bearer token found in ctx.
//
// On success the cached switching data for user is dropped, the provider
// mounted in ctx (if any) refetches, and a success notification is sent.
// On failure an error notification carries the backend's message and the
// returned *errors.Error has the same message. Local selection is never
// rolled back.
func (s *Switcher) Switch(ctx context.Context, user models.User, schoolID string) (dashboard.SwitchResult, error) {
	schoolID = strings.TrimSpace(schoolID)
	if schoolID == "" {
		return dashboard.SwitchResult{}, apperrors.InvalidInput("schoolId is required")
	}

	res, err := s.client.SwitchSchool(ctx, auth.TokenFromContext(ctx), schoolID)
	if err != nil {
		msg := FailureMessage(err)
		metrics.SwitchMutations.WithLabelValues("error").Inc()
		s.logger.Warn("school switch failed",
			zap.String("user_id", user.ID), zap.String("school_id", schoolID),
			zap.Error(err), requestid.Field(ctx))
		s.notifier.Error(ctx, msg)
		return res, apperrors.SwitchFailed(msg, err).WithDetail("schoolId", schoolID)
	}

	metrics.SwitchMutations.WithLabelValues("success").Inc()
	if err := s.provider.Invalidate(ctx, user); err != nil {
		s.logger.Warn("switching cache invalidation failed", zap.Error(err), requestid.Field(ctx))
	}
	if err := s.provider.Refresh(ctx); err != nil && !errors.Is(err, ErrNoProvider) {
		s.logger.Warn("switching refresh failed", zap.Error(err), requestid.Field(ctx))
	}

	msg := res.Message
	if msg == "" {
		msg = switchSucceededMessage
	}
	s.notifier.Success(ctx, msg)
	return res, nil
}

// FailureMessage extracts a user-facing message from a switch error,
// falling back to a generic one.
func FailureMessage(err error) string {
	var rejected *dashboard.RejectedError
	if errors.As(err, &rejected) && rejected.Message != "" {
		return rejected.Message
	}
	var status *dashboard.StatusError
	if errors.As(err, &status) && status.Message != "" {
		return status.Message
	}
	return switchFailedMessage
}
