// Package notify delivers fire-and-forget user notifications (toasts).
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/dalemusser/schoolctx/pantry/requestid"
	"github.com/dalemusser/schoolctx/pantry/session"
	"go.uber.org/zap"
)

// Kind tells the client how to style a notification.
type Kind string

const (
	// KindSuccess follows a completed mutation.
	KindSuccess Kind = "success"

	// KindError carries a failure message for the user.
	KindError Kind = "error"
)

// Notification is one queued toast as the client receives it.
type Notification struct {
	Kind    Kind      `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier never fails and never blocks on delivery.
type Notifier interface {
	Success(ctx context.Context, message string)
	Error(ctx context.Context, message string)
}

const (
	sessionKey = "notifications"
	maxQueued  = 20
)

// Session queues notifications in the caller's session until the client
// drains them. Without a session in ctx it does nothing.
type Session struct{}

// Success queues a success toast.
func (Session) Success(ctx context.Context, message string) { push(ctx, KindSuccess, message) }

// Error queues an error toast.
func (Session) Error(ctx context.Context, message string) { push(ctx, KindError, message) }

func push(ctx context.Context, kind Kind, message string) {
	s := session.FromContext(ctx)
	if s == nil {
		return
	}
	queue := append(load(s), Notification{Kind: kind, Message: message, At: time.Now().UTC()})
	if len(queue) > maxQueued {
		queue = queue[len(queue)-maxQueued:]
	}
	b, err := json.Marshal(queue)
	if err != nil {
		return
	}
	s.Set(sessionKey, string(b))
}

// Drain returns and clears the queued notifications, oldest first.
func Drain(ctx context.Context) []Notification {
	s := session.FromContext(ctx)
	if s == nil {
		return []Notification{}
	}
	queue := load(s)
	s.Delete(sessionKey)
	return queue
}

func load(s *session.Session) []Notification {
	queue := []Notification{}
	if raw := s.GetString(sessionKey); raw != "" {
		_ = json.Unmarshal([]byte(raw), &queue)
	}
	return queue
}

// Log writes notifications to logger at info (success) or warn (error).
type Log struct {
	Logger *zap.Logger
}

// Success logs message at info.
func (l Log) Success(ctx context.Context, message string) {
	if l.Logger != nil {
		l.Logger.Info("notify", zap.String("kind", string(KindSuccess)), zap.String("message", message), requestid.Field(ctx))
	}
}

// Error logs message at warn.
func (l Log) Error(ctx context.Context, message string) {
	if l.Logger != nil {
		l.Logger.Warn("notify", zap.String("kind", string(KindError)), zap.String("message", message), requestid.Field(ctx))
	}
}

// Multi fans out to every notifier in order.
type Multi []Notifier

// Success forwards message to each notifier.
func (m Multi) Success(ctx context.Context, message string) {
	for _, n := range m {
		n.Success(ctx, message)
	}
}

// Error forwards message to each notifier.
func (m Multi) Error(ctx context.Context, message string) {
	for _, n := range m {
		n.Error(ctx, message)
	}
}
