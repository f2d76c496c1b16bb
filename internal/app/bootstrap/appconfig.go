package bootstrap

import (
	"fmt"
	"time"

	"github.com/dalemusser/schoolctx/config"
)

// EnvPrefix scopes the service's env vars, e.g. SCHOOLCTX_BACKEND_BASE_URL.
const EnvPrefix = "SCHOOLCTX"

var appKeys = []config.AppKey{
	{Name: "backend_base_url", Default: "", Desc: "Base URL of the school-management API (required)"},
	{Name: "backend_timeout", Default: "10s", Desc: "Overall timeout for one backend call"},
	{Name: "switching_fetch_attempts", Default: 2, Desc: "Attempts for the school-switching read, counting the first"},
	{Name: "switching_cache_ttl", Default: "5m", Desc: "How long school-switching data is reused"},
	{Name: "switching_cache_size", Default: 10000, Desc: "Max users held in the in-memory switching cache"},
	{Name: "jwt_signing_key", Default: "", Desc: "HMAC secret or PEM public key for bearer tokens (required)", Secret: true},
	{Name: "jwt_issuer", Default: "", Desc: "Expected token issuer; empty skips the check"},
	{Name: "jwt_audience", Default: "", Desc: "Expected token audience; empty skips the check"},
	{Name: "session_store", Default: "memory", Desc: "Where sessions and the switching cache live: memory or redis"},
	{Name: "redis_url", Default: "", Desc: "redis:// URL, required when session_store=redis", Secret: true},
	{Name: "session_cookie_name", Default: "schoolctx_session", Desc: "Session cookie name"},
	{Name: "session_max_age", Default: "12h", Desc: "Idle lifetime of a session"},
	{Name: "session_secure", Default: false, Desc: "Mark the session cookie Secure (always on in prod)"},
	{Name: "switch_rate_per_minute", Default: 30, Desc: "Switch-school calls allowed per user per minute; 0 disables the limit"},
	{Name: "switch_burst", Default: 5, Desc: "Switch-school calls a user may make back to back"},
	{Name: "role_policy_file", Default: "", Desc: "YAML file overriding which roles switch schools"},
}

// AppConfig is the typed form of appKeys.
type AppConfig struct {
	BackendBaseURL         string
	BackendTimeout         time.Duration
	SwitchingFetchAttempts int
	SwitchingCacheTTL      time.Duration
	SwitchingCacheSize     int

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	SessionStore      string
	RedisURL          string
	SessionCookieName string
	SessionMaxAge     time.Duration
	SessionSecure     bool

	SwitchRatePerMinute int
	SwitchBurst         int

	RolePolicyFile string
}

func appConfigFrom(core *config.CoreConfig, v config.AppConfigValues) (AppConfig, error) {
	cfg := AppConfig{
		BackendBaseURL:         v.String("backend_base_url"),
		BackendTimeout:         v.Duration("backend_timeout", 10*time.Second),
		SwitchingFetchAttempts: v.Int("switching_fetch_attempts"),
		SwitchingCacheTTL:      v.Duration("switching_cache_ttl", 5*time.Minute),
		SwitchingCacheSize:     v.Int("switching_cache_size"),
		JWTSigningKey:          v.String("jwt_signing_key"),
		JWTIssuer:              v.String("jwt_issuer"),
		JWTAudience:            v.String("jwt_audience"),
		SessionStore:           v.String("session_store"),
		RedisURL:               v.String("redis_url"),
		SessionCookieName:      v.String("session_cookie_name"),
		SessionMaxAge:          v.Duration("session_max_age", 12*time.Hour),
		SessionSecure:          v.Bool("session_secure") || core.IsProd(),
		SwitchRatePerMinute:    v.Int("switch_rate_per_minute"),
		SwitchBurst:            v.Int("switch_burst"),
		RolePolicyFile:         v.String("role_policy_file"),
	}
	return cfg, cfg.validate()
}

func (c AppConfig) validate() error {
	if c.BackendBaseURL == "" {
		return fmt.Errorf("backend_base_url is required")
	}
	if c.JWTSigningKey == "" {
		return fmt.Errorf("jwt_signing_key is required")
	}
	switch c.SessionStore {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("redis_url is required when session_store=redis")
		}
	default:
		return fmt.Errorf("session_store must be memory or redis (got %q)", c.SessionStore)
	}
	if c.SwitchingFetchAttempts < 1 || c.SwitchingFetchAttempts > 5 {
		return fmt.Errorf("switching_fetch_attempts must be between 1 and 5 (got %d)", c.SwitchingFetchAttempts)
	}
	return nil
}
