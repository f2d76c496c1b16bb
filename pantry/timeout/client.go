// pantry/timeout/client.go
package timeout

import (
	"net"
	"net/http"
	"time"
)

// ClientConfig sets the timeouts of an outbound HTTP client. Zero fields
// take the defaults from DefaultClientConfig.
type ClientConfig struct {
	Timeout               time.Duration
	DialTimeout           time.Duration
	TLSHandshakeTimeout   time.Duration
	ResponseHeaderTimeout time.Duration
	IdleConnTimeout       time.Duration
	MaxIdleConnsPerHost   int
}

// DefaultClientConfig suits calls to an internal API.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:               10 * time.Second,
		DialTimeout:           3 * time.Second,
		TLSHandshakeTimeout:   3 * time.Second,
		ResponseHeaderTimeout: 8 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConnsPerHost:   16,
	}
}

// NewTransport builds a pooled transport with cfg's connection timeouts.
func NewTransport(cfg ClientConfig) *http.Transport {
	cfg = withDefaults(cfg)
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		MaxIdleConns:          cfg.MaxIdleConnsPerHost * 4,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient wraps base (NewTransport(cfg) when nil) in a client with an
// overall per-request timeout.
func NewClient(cfg ClientConfig, base http.RoundTripper) *http.Client {
	cfg = withDefaults(cfg)
	if base == nil {
		base = NewTransport(cfg)
	}
	return &http.Client{Transport: base, Timeout: cfg.Timeout}
}

func withDefaults(cfg ClientConfig) ClientConfig {
	def := DefaultClientConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.TLSHandshakeTimeout <= 0 {
		cfg.TLSHandshakeTimeout = def.TLSHandshakeTimeout
	}
	if cfg.ResponseHeaderTimeout <= 0 {
		cfg.ResponseHeaderTimeout = min(def.ResponseHeaderTimeout, cfg.Timeout)
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	return cfg
}
