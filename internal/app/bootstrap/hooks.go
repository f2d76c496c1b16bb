package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dalemusser/schoolctx/app"
	"github.com/dalemusser/schoolctx/config"
	"github.com/dalemusser/schoolctx/httputil"
	"github.com/dalemusser/schoolctx/internal/app/features/schoolcontext"
	"github.com/dalemusser/schoolctx/internal/app/policy"
	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/app/system/dashboard"
	"github.com/dalemusser/schoolctx/internal/app/system/notify"
	"github.com/dalemusser/schoolctx/internal/app/system/querycache"
	"github.com/dalemusser/schoolctx/internal/app/system/schoolctx"
	"github.com/dalemusser/schoolctx/metrics"
	"github.com/dalemusser/schoolctx/pantry/cache"
	redisdb "github.com/dalemusser/schoolctx/pantry/db/redis"
	"github.com/dalemusser/schoolctx/pantry/health"
	"github.com/dalemusser/schoolctx/pantry/ratelimit"
	"github.com/dalemusser/schoolctx/pantry/session"
	"github.com/dalemusser/schoolctx/pantry/version"
	"github.com/dalemusser/schoolctx/router"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LoadConfig loads core config plus the service keys.
func LoadConfig(logger *zap.Logger) (*config.CoreConfig, AppConfig, error) {
	core, vals, err := config.Load(logger, EnvPrefix, appKeys)
	if err != nil {
		return nil, AppConfig{}, err
	}
	appCfg, err := appConfigFrom(core, vals)
	if err != nil {
		return nil, AppConfig{}, fmt.Errorf("app config: %w", err)
	}
	return core, appCfg, nil
}

// ConnectDB builds the dashboard client and authenticator, loads the role
// policy, and connects Redis when sessions are shared.
func ConnectDB(ctx context.Context, core *config.CoreConfig, appCfg AppConfig, logger *zap.Logger) (Deps, error) {
	var deps Deps

	pol, err := policy.Load(appCfg.RolePolicyFile)
	if err != nil {
		return deps, err
	}
	deps.Policy = pol

	deps.Auth, err = auth.New(auth.Config{
		SigningKey: appCfg.JWTSigningKey,
		Issuer:     appCfg.JWTIssuer,
		Audience:   appCfg.JWTAudience,
	})
	if err != nil {
		return deps, err
	}

	deps.Dashboard, err = dashboard.New(dashboard.Config{
		BaseURL:       appCfg.BackendBaseURL,
		Timeout:       appCfg.BackendTimeout,
		FetchAttempts: appCfg.SwitchingFetchAttempts,
	}, logger.Named("dashboard"))
	if err != nil {
		return deps, err
	}

	switch appCfg.SessionStore {
	case "redis":
		client, err := redisdb.ConnectURL(ctx, appCfg.RedisURL)
		if err != nil {
			return deps, err
		}
		deps.Redis = client
		deps.Sessions = session.NewRedisStore(client, "schoolctx:session:")
		deps.Cache = cache.NewRedis(client, "schoolctx:cache:", appCfg.SwitchingCacheTTL)
		logger.Info("using redis for sessions and switching cache")
	default:
		deps.Sessions = session.NewMemoryStore(time.Minute)
		deps.Cache = cache.NewMemory(appCfg.SwitchingCacheSize, appCfg.SwitchingCacheTTL)
		logger.Info("using in-memory sessions and switching cache")
	}

	logger.Info("role policy loaded",
		zap.Strings("switch_roles", pol.SwitchRoles),
		zap.Strings("cross_school_roles", pol.CrossSchoolRoles))
	return deps, nil
}

// BuildHandler wires the router, middleware and routes.
func BuildHandler(core *config.CoreConfig, appCfg AppConfig, deps Deps, logger *zap.Logger) (http.Handler, error) {
	httputil.SetJSONLogger(logger)

	queries := querycache.New(deps.Cache, deps.Dashboard, appCfg.SwitchingCacheTTL, logger.Named("querycache"))
	provider := schoolctx.NewProvider(deps.Policy, queries, logger.Named("schoolctx"))
	notifier := notify.Multi{notify.Session{}, notify.Log{Logger: logger.Named("notify")}}
	switcher := schoolctx.NewSwitcher(deps.Dashboard, provider, notifier, logger.Named("switcher"))

	sessions := session.NewManager(deps.Sessions, session.Config{
		CookieName: appCfg.SessionCookieName,
		MaxAge:     appCfg.SessionMaxAge,
		Secure:     appCfg.SessionSecure,
	})

	checks := map[string]health.Check{}
	if deps.Redis != nil {
		checks["redis"] = redisdb.HealthCheck(deps.Redis)
	}

	r := router.New(core, logger)
	health.Mount(r, checks, logger)
	version.Mount(r)
	r.Handle("/metrics", metrics.Handler())

	h := schoolcontext.NewHandler(provider, switcher, logger)
	if appCfg.SwitchRatePerMinute > 0 {
		h.LimitSwitches(ratelimit.NewKeyLimiter(float64(appCfg.SwitchRatePerMinute)/60, max(appCfg.SwitchBurst, 1), appCfg.SwitchingCacheSize, time.Hour))
	}

	r.Group(func(r chi.Router) {
		r.Use(session.Middleware(sessions, logger))
		r.Use(deps.Auth.Optional(logger))
		r.Mount("/api", schoolcontext.Routes(h))
	})

	logger.Info("handler built", zap.String("version", version.String()))
	return r, nil
}

// Shutdown releases stores and the Redis connection.
func Shutdown(ctx context.Context, deps Deps, logger *zap.Logger) error {
	var errs []error
	if deps.Sessions != nil {
		errs = append(errs, deps.Sessions.Close())
	}
	if deps.Cache != nil {
		errs = append(errs, deps.Cache.Close())
	}
	if deps.Redis != nil {
		errs = append(errs, deps.Redis.Close())
	}
	return errors.Join(errs...)
}

// Hooks wires the service into app.Run.
var Hooks = app.Hooks[AppConfig, Deps]{
	Name:         "schoolctx",
	LoadConfig:   LoadConfig,
	ConnectDB:    ConnectDB,
	BuildHandler: BuildHandler,
	Shutdown:     Shutdown,
}
