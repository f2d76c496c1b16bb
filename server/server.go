// server/server.go
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dalemusser/schoolctx/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/crypto/acme/autocert"
)

// WithShutdownSignals returns a context canceled on SIGINT or SIGTERM.
// The cancel func also stops signal delivery.
func WithShutdownSignals(parent context.Context, logger *zap.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			if logger != nil {
				logger.Info("shutdown signal received", zap.Stringer("signal", sig))
			}
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// ListenAndServeWithContext serves handler over plain HTTP, HTTPS with
// Let's Encrypt (http-01), or HTTPS with a manual key pair, and blocks
// until ctx is canceled or a listener fails. In HTTPS modes :80 serves
// redirects (and ACME challenges).
func ListenAndServeWithContext(ctx context.Context, cfg *config.CoreConfig, handler http.Handler, logger *zap.Logger) error {
	if cfg == nil {
		return errors.New("server: cfg is nil")
	}
	if handler == nil {
		return errors.New("server: handler is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	srv := newServer(cfg, handler, logger)
	serveErr := make(chan error, 1)
	var (
		aux    *http.Server
		auxErr chan error
	)

	startAux := func(h http.Handler) {
		aux = newServer(cfg, h, logger)
		aux.Addr = ":80"
		auxErr = make(chan error, 1)
		go func() { auxErr <- ignoreClosed(aux.ListenAndServe()) }()
		logger.Info("redirect server listening", zap.String("addr", aux.Addr))
	}

	switch {
	case !cfg.HTTP.UseHTTPS:
		ln, err := net.Listen("tcp", ":"+strconv.Itoa(cfg.HTTP.HTTPPort))
		if err != nil {
			return fmt.Errorf("listen http: %w", err)
		}
		logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		go func() { serveErr <- ignoreClosed(srv.Serve(ln)) }()

	case cfg.TLS.UseLetsEncrypt:
		m := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.TLS.Domain),
			Cache:      autocert.DirCache(cfg.TLS.LetsEncryptCacheDir),
			Email:      cfg.TLS.LetsEncryptEmail,
		}
		startAux(m.HTTPHandler(redirectHandler()))
		if err := waitForCert(ctx, m, cfg.TLS.Domain, 60*time.Second); err != nil {
			logger.Warn("autocert pre-warm failed; first HTTPS hits may see TLS errors", zap.Error(err))
		}
		if err := serveTLS(srv, cfg, &tls.Config{MinVersion: tls.VersionTLS12, GetCertificate: m.GetCertificate}, serveErr, logger); err != nil {
			_ = aux.Close()
			return err
		}

	default:
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return fmt.Errorf("load TLS cert/key: %w", err)
		}
		startAux(redirectHandler())
		if err := serveTLS(srv, cfg, &tls.Config{MinVersion: tls.VersionTLS12, Certificates: []tls.Certificate{cert}}, serveErr, logger); err != nil {
			_ = aux.Close()
			return err
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if aux != nil {
			_ = aux.Shutdown(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		logger.Info("server stopped gracefully")
		return nil

	case err := <-serveErr:
		if aux != nil {
			_ = aux.Close()
		}
		if err != nil {
			return fmt.Errorf("primary server: %w", err)
		}
		return nil

	case err := <-auxErr:
		_ = srv.Close()
		if err != nil {
			return fmt.Errorf("redirect server: %w", err)
		}
		return nil
	}
}

func newServer(cfg *config.CoreConfig, h http.Handler, logger *zap.Logger) *http.Server {
	srv := &http.Server{
		Handler:           h,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}
	if stdlog, err := zap.NewStdLogAt(logger, zapcore.WarnLevel); err == nil {
		srv.ErrorLog = stdlog
	}
	return srv
}

func serveTLS(srv *http.Server, cfg *config.CoreConfig, tlsCfg *tls.Config, serveErr chan<- error, logger *zap.Logger) error {
	addr := ":" + strconv.Itoa(cfg.HTTP.HTTPSPort)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen https %s: %w", addr, err)
	}
	srv.TLSConfig = tlsCfg
	logger.Info("HTTPS server listening",
		zap.String("addr", addr),
		zap.Bool("lets_encrypt", cfg.TLS.UseLetsEncrypt),
		zap.String("domain", cfg.TLS.Domain))
	go func() { serveErr <- ignoreClosed(srv.Serve(tls.NewListener(ln, tlsCfg))) }()
	return nil
}

func ignoreClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// waitForCert polls autocert until host has a certificate, ctx ends, or
// timeout elapses.
func waitForCert(ctx context.Context, m *autocert.Manager, host string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		_, err := m.GetCertificate(&tls.ClientHelloInfo{ServerName: host})
		if err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for cert for %q: %w", host, err)
		case <-ticker.C:
		}
	}
}
