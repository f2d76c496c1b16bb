// app/app.go
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/dalemusser/schoolctx/config"
	"github.com/dalemusser/schoolctx/logging"
	"github.com/dalemusser/schoolctx/metrics"
	"github.com/dalemusser/schoolctx/server"
	"go.uber.org/zap"
)

// Hooks are the integration points a service provides to Run. C is the
// service config and D its connected dependencies.
type Hooks[C any, D any] struct {
	Name string

	// LoadConfig returns core and service config; it normally wraps config.Load.
	LoadConfig func(logger *zap.Logger) (*config.CoreConfig, C, error)

	// ConnectDB opens backends (Redis, HTTP clients). ctx is bounded by
	// core.BackendConnectTimeout.
	ConnectDB func(ctx context.Context, core *config.CoreConfig, appCfg C, logger *zap.Logger) (D, error)

	// BuildHandler assembles routers, middleware and routes.
	BuildHandler func(core *config.CoreConfig, appCfg C, deps D, logger *zap.Logger) (http.Handler, error)

	// Shutdown releases dependencies after the server stops. Optional.
	Shutdown func(ctx context.Context, deps D, logger *zap.Logger) error
}

// Run loads config, builds the logger, registers metrics, connects
// dependencies, and serves until ctx is canceled or a signal arrives.
func Run[C any, D any](ctx context.Context, hooks Hooks[C, D]) error {
	bootstrap := logging.BootstrapLogger()
	defer func() { _ = bootstrap.Sync() }()

	coreCfg, appCfg, err := hooks.LoadConfig(bootstrap)
	if err != nil {
		bootstrap.Error("config load failed", zap.Error(err))
		return fmt.Errorf("load config: %w", err)
	}

	logger := logging.MustBuildLogger(coreCfg.LogLevel, coreCfg.Env)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("app", hooks.Name),
		zap.String("env", coreCfg.Env),
		zap.String("log_level", coreCfg.LogLevel))

	metrics.RegisterDefault(logger)

	connectCtx, cancelConnect := context.WithTimeout(ctx, coreCfg.BackendConnectTimeout)
	deps, err := hooks.ConnectDB(connectCtx, coreCfg, appCfg, logger)
	cancelConnect()
	if err != nil {
		logger.Error("backend connect failed", zap.Error(err))
		return fmt.Errorf("connect: %w", err)
	}
	if hooks.Shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), coreCfg.HTTP.ShutdownTimeout)
			defer cancel()
			if err := hooks.Shutdown(shutdownCtx, deps, logger); err != nil {
				logger.Warn("dependency shutdown failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := server.WithShutdownSignals(ctx, logger)
	defer cancel()

	handler, err := hooks.BuildHandler(coreCfg, appCfg, deps, logger)
	if err != nil {
		logger.Error("handler build failed", zap.Error(err))
		return fmt.Errorf("build handler: %w", err)
	}

	if err := server.ListenAndServeWithContext(ctx, coreCfg, handler, logger); err != nil {
		logger.Error("server exited with error", zap.Error(err))
		return err
	}
	return nil
}
