package bootstrap

import (
	"github.com/dalemusser/schoolctx/internal/app/policy"
	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/app/system/dashboard"
	"github.com/dalemusser/schoolctx/pantry/cache"
	"github.com/dalemusser/schoolctx/pantry/session"
	"github.com/redis/go-redis/v9"
)

// Deps are the connected backends and long-lived clients.
type Deps struct {
	// Redis is nil when session_store=memory.
	Redis *redis.Client

	Sessions  session.Store
	Cache     cache.Cache
	Dashboard *dashboard.Client
	Auth      *auth.Authenticator
	Policy    policy.RolePolicy
}
