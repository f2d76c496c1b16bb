// config/config.go
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// DefaultEnvPrefix is the environment variable prefix for core keys,
// e.g. SCHOOLCTX_HTTP_PORT.
const DefaultEnvPrefix = "SCHOOLCTX"

// HTTPConfig groups listener ports and server timeouts.
type HTTPConfig struct {
	HTTPPort  int  `mapstructure:"http_port"`
	HTTPSPort int  `mapstructure:"https_port"`
	UseHTTPS  bool `mapstructure:"use_https"`

	ReadTimeout       time.Duration `mapstructure:"-"`
	ReadHeaderTimeout time.Duration `mapstructure:"-"`
	WriteTimeout      time.Duration `mapstructure:"-"`
	IdleTimeout       time.Duration `mapstructure:"-"`
	ShutdownTimeout   time.Duration `mapstructure:"-"`
}

// TLSConfig groups manual TLS and Let's Encrypt (http-01) settings.
type TLSConfig struct {
	CertFile            string `mapstructure:"cert_file"`
	KeyFile             string `mapstructure:"key_file"`
	UseLetsEncrypt      bool   `mapstructure:"use_lets_encrypt"`
	LetsEncryptEmail    string `mapstructure:"lets_encrypt_email"`
	LetsEncryptCacheDir string `mapstructure:"lets_encrypt_cache_dir"`
	Domain              string `mapstructure:"domain"`
}

// CORSConfig groups all CORS behavior and lists.
type CORSConfig struct {
	EnableCORS           bool     `mapstructure:"enable_cors"`
	CORSAllowedOrigins   []string `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string `mapstructure:"cors_allowed_headers"`
	CORSExposedHeaders   []string `mapstructure:"cors_exposed_headers"`
	CORSAllowCredentials bool     `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int      `mapstructure:"cors_max_age"`
}

// CoreConfig holds the configuration every schoolctx process needs,
// independent of which backends it talks to.
type CoreConfig struct {
	Env      string `mapstructure:"env"`       // "dev" | "prod"
	LogLevel string `mapstructure:"log_level"` // debug, info, warn, error …

	HTTP HTTPConfig `mapstructure:",squash"`
	TLS  TLSConfig  `mapstructure:",squash"`
	CORS CORSConfig `mapstructure:",squash"`

	// BackendConnectTimeout bounds startup connections (Redis ping etc).
	BackendConnectTimeout time.Duration `mapstructure:"-"`

	MaxRequestBodyBytes   int64 `mapstructure:"max_request_body_bytes"`
	EnableSecurityHeaders bool  `mapstructure:"enable_security_headers"`
}

// IsProd reports whether the process runs with env=prod.
func (c CoreConfig) IsProd() bool {
	return c.Env == "prod"
}

// Dump returns a pretty JSON string of the config for debugging.
// CoreConfig carries no secrets; app keys are redacted separately.
func (c CoreConfig) Dump() string {
	b, _ := json.MarshalIndent(c, "", "  ")
	return string(b)
}

// durationKeys maps duration config keys to their defaults. Durations are
// parsed by hand so that "90s", "2m" and plain seconds are all accepted.
var durationKeys = map[string]time.Duration{
	"read_timeout":            15 * time.Second,
	"read_header_timeout":     10 * time.Second,
	"write_timeout":           30 * time.Second,
	"idle_timeout":            120 * time.Second,
	"shutdown_timeout":        15 * time.Second,
	"backend_connect_timeout": 10 * time.Second,
}

// Load merges defaults → config.* file(s) → env vars → explicit flags into
// one CoreConfig plus the values of the given app keys.
// Final precedence (highest wins): flags(explicit) > env > config > defaults.
//
// App keys use appEnvPrefix for env vars (e.g. "SCHOOLCTX" makes
// "backend_base_url" read SCHOOLCTX_BACKEND_BASE_URL).
func Load(logger *zap.Logger, appEnvPrefix string, appKeys []AppKey) (*CoreConfig, AppConfigValues, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if appEnvPrefix == "" {
		appEnvPrefix = DefaultEnvPrefix
	}

	// .env is optional; real env still wins over it.
	if err := godotenv.Load(); err == nil {
		logger.Info("loaded .env file")
	}

	registerCoreFlags()
	if err := registerAppFlags(appKeys); err != nil {
		return nil, nil, err
	}
	if !pflag.Parsed() {
		pflag.Parse()
	}

	v := viper.New()
	v.SetEnvPrefix(DefaultEnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for _, k := range allKeys() {
		_ = v.BindEnv(k)
	}

	mergeConfigFiles(logger, v)
	setDefaults(v)

	pflag.CommandLine.VisitAll(func(f *pflag.Flag) {
		if f.Changed {
			_ = v.BindPFlag(f.Name, f)
		}
	})

	if err := normalizeListKeys(logger, v,
		"cors_allowed_origins",
		"cors_allowed_methods",
		"cors_allowed_headers",
		"cors_exposed_headers",
	); err != nil {
		return nil, nil, err
	}

	var cfg CoreConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unable to decode core config: %w", err)
	}

	durations := make(map[string]time.Duration, len(durationKeys))
	for key, def := range durationKeys {
		d, err := parseDurationFlexible(v.Get(key), def)
		if err != nil {
			logger.Warn("invalid duration; using default",
				zap.String("key", key), zap.Any("value", v.Get(key)),
				zap.Duration("default", def), zap.Error(err))
		}
		durations[key] = d
	}
	cfg.HTTP.ReadTimeout = durations["read_timeout"]
	cfg.HTTP.ReadHeaderTimeout = durations["read_header_timeout"]
	cfg.HTTP.WriteTimeout = durations["write_timeout"]
	cfg.HTTP.IdleTimeout = durations["idle_timeout"]
	cfg.HTTP.ShutdownTimeout = durations["shutdown_timeout"]
	cfg.BackendConnectTimeout = durations["backend_connect_timeout"]

	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))

	if err := validateCoreConfig(cfg); err != nil {
		return nil, nil, err
	}

	appVals := loadAppConfig(logger, v, appEnvPrefix, appKeys)
	return &cfg, appVals, nil
}

func registerCoreFlags() {
	if pflag.Lookup("env") != nil {
		return
	}
	pflag.String("env", "dev", `Runtime environment "dev"|"prod"`)
	pflag.String("log_level", "debug", "Log level")

	pflag.Int("http_port", 8080, "HTTP port")
	pflag.Int("https_port", 443, "HTTPS port")
	pflag.Bool("use_https", false, "Serve HTTPS")

	pflag.Bool("use_lets_encrypt", false, "Use Let's Encrypt (http-01)")
	pflag.String("lets_encrypt_email", "", "ACME account e-mail")
	pflag.String("lets_encrypt_cache_dir", "letsencrypt-cache", "ACME cache dir")
	pflag.String("cert_file", "", "TLS cert file (manual TLS)")
	pflag.String("key_file", "", "TLS key file  (manual TLS)")
	pflag.String("domain", "", "Domain for TLS or ACME")

	pflag.String("read_timeout", "15s", "HTTP server read timeout")
	pflag.String("read_header_timeout", "10s", "HTTP server read-header timeout")
	pflag.String("write_timeout", "30s", "HTTP server write timeout")
	pflag.String("idle_timeout", "120s", "HTTP server idle timeout")
	pflag.String("shutdown_timeout", "15s", "Graceful shutdown window")
	pflag.String("backend_connect_timeout", "10s", "Startup timeout for backend connections (Redis)")

	pflag.Bool("enable_cors", false, "Enable CORS")
	pflag.String("cors_allowed_origins", "", `JSON array of origins, e.g. '["https://a.example"]'`)
	pflag.String("cors_allowed_methods", "", `JSON array of methods, e.g. '["GET","PUT"]'`)
	pflag.String("cors_allowed_headers", "", `JSON array of headers, e.g. '["Authorization","X-Tab-ID"]'`)
	pflag.String("cors_exposed_headers", "", `JSON array of headers, e.g. '["X-Request-ID"]'`)
	pflag.Bool("cors_allow_credentials", false, "CORS: allow credentials")
	pflag.Int("cors_max_age", 0, "CORS: max age seconds (0 disables cache)")

	pflag.Int64("max_request_body_bytes", 1<<20, "Max HTTP request body size in bytes (0 = unlimited)")
	pflag.Bool("enable_security_headers", true, "Send security response headers")
}

// mergeConfigFiles merges optional config.{yaml,yml,json,toml} from the
// working directory.
func mergeConfigFiles(logger *zap.Logger, v *viper.Viper) {
	for _, ext := range [...]string{"yaml", "yml", "json", "toml"} {
		file := "config." + ext
		if _, err := os.Stat(file); err != nil {
			continue
		}
		b, err := os.ReadFile(file)
		if err != nil {
			logger.Warn("cannot read config file", zap.String("file", file), zap.Error(err))
			continue
		}
		v.SetConfigType(ext)
		if err := v.MergeConfig(bytes.NewReader(b)); err != nil {
			logger.Warn("cannot decode config file", zap.String("file", file), zap.Error(err))
			continue
		}
		logger.Info("loaded config file", zap.String("file", file))
	}
}

func allKeys() []string {
	keys := []string{
		"env", "log_level",
		"http_port", "https_port", "use_https",
		"use_lets_encrypt", "lets_encrypt_email", "lets_encrypt_cache_dir",
		"cert_file", "key_file", "domain",
		"enable_cors",
		"cors_allowed_origins", "cors_allowed_methods", "cors_allowed_headers",
		"cors_exposed_headers", "cors_allow_credentials", "cors_max_age",
		"max_request_body_bytes", "enable_security_headers",
	}
	for k := range durationKeys {
		keys = append(keys, k)
	}
	return keys
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "dev")
	v.SetDefault("log_level", "debug")

	v.SetDefault("http_port", 8080)
	v.SetDefault("https_port", 443)
	v.SetDefault("use_https", false)

	v.SetDefault("use_lets_encrypt", false)
	v.SetDefault("lets_encrypt_email", "")
	v.SetDefault("lets_encrypt_cache_dir", "letsencrypt-cache")
	v.SetDefault("cert_file", "")
	v.SetDefault("key_file", "")
	v.SetDefault("domain", "")

	for k, d := range durationKeys {
		v.SetDefault(k, d.String())
	}

	v.SetDefault("enable_cors", false)
	v.SetDefault("cors_allowed_origins", []string{})
	v.SetDefault("cors_allowed_methods", []string{})
	v.SetDefault("cors_allowed_headers", []string{})
	v.SetDefault("cors_exposed_headers", []string{})
	v.SetDefault("cors_allow_credentials", false)
	v.SetDefault("cors_max_age", 0)

	v.SetDefault("max_request_body_bytes", int64(1<<20))
	v.SetDefault("enable_security_headers", true)
}

// normalizeListKeys coerces JSON-string values into []string for the given keys.
func normalizeListKeys(logger *zap.Logger, v *viper.Viper, keys ...string) error {
	for _, key := range keys {
		switch t := v.Get(key).(type) {
		case string:
			s := strings.TrimSpace(t)
			if s == "" {
				continue
			}
			var arr []string
			if err := json.Unmarshal([]byte(s), &arr); err != nil {
				return fmt.Errorf("config key %q expects a JSON array string, got %q: %w", key, s, err)
			}
			v.Set(key, arr)
		case []interface{}:
			arr := make([]string, 0, len(t))
			for _, e := range t {
				arr = append(arr, fmt.Sprint(e))
			}
			v.Set(key, arr)
		case []string, nil:
		default:
			logger.Warn("unexpected type for list key; expected JSON array/string",
				zap.String("key", key), zap.Any("value", t))
		}
	}
	return nil
}

func validateCoreConfig(cfg CoreConfig) error {
	var missing []string
	var invalid []string

	if cfg.Env != "dev" && cfg.Env != "prod" {
		invalid = append(invalid, `env must be "dev" or "prod"`)
	}

	if cfg.TLS.UseLetsEncrypt {
		if !cfg.HTTP.UseHTTPS {
			invalid = append(invalid, "use_lets_encrypt=true requires use_https=true")
		}
		if strings.TrimSpace(cfg.TLS.CertFile) != "" || strings.TrimSpace(cfg.TLS.KeyFile) != "" {
			invalid = append(invalid, "use_lets_encrypt=true cannot be combined with cert_file/key_file")
		}
		if strings.TrimSpace(cfg.TLS.Domain) == "" {
			missing = append(missing, "SCHOOLCTX_DOMAIN (or --domain) for Let's Encrypt")
		}
		if s := strings.TrimSpace(cfg.TLS.LetsEncryptEmail); s == "" {
			missing = append(missing, "SCHOOLCTX_LETS_ENCRYPT_EMAIL (or --lets_encrypt_email)")
		} else if !strings.Contains(s, "@") {
			invalid = append(invalid, "lets_encrypt_email must look like an email address")
		}
	}

	if cfg.HTTP.UseHTTPS && !cfg.TLS.UseLetsEncrypt {
		if strings.TrimSpace(cfg.TLS.CertFile) == "" || strings.TrimSpace(cfg.TLS.KeyFile) == "" {
			missing = append(missing, "SCHOOLCTX_CERT_FILE and SCHOOLCTX_KEY_FILE (or --cert_file/--key_file) for manual TLS")
		}
	}

	if cfg.HTTP.HTTPPort <= 0 || cfg.HTTP.HTTPPort > 65535 {
		invalid = append(invalid, "http_port must be in 1..65535")
	}
	if cfg.HTTP.HTTPSPort <= 0 || cfg.HTTP.HTTPSPort > 65535 {
		invalid = append(invalid, "https_port must be in 1..65535")
	}
	if cfg.HTTP.UseHTTPS && cfg.HTTP.HTTPPort == cfg.HTTP.HTTPSPort {
		invalid = append(invalid, "http_port and https_port cannot be equal when use_https=true")
	}

	if cfg.CORS.EnableCORS {
		if len(cfg.CORS.CORSAllowedOrigins) == 0 {
			missing = append(missing, "CORS: cors_allowed_origins (JSON array) required when enable_cors=true")
		}
		if len(cfg.CORS.CORSAllowedMethods) == 0 {
			missing = append(missing, "CORS: cors_allowed_methods (JSON array) required when enable_cors=true")
		}
		for _, o := range cfg.CORS.CORSAllowedOrigins {
			if o == "*" && cfg.CORS.CORSAllowCredentials {
				invalid = append(invalid, `CORS: cannot use "*" in cors_allowed_origins when cors_allow_credentials=true`)
				break
			}
		}
		if cfg.CORS.CORSMaxAge < 0 {
			invalid = append(invalid, "CORS: cors_max_age must be >= 0")
		}
	}

	if cfg.MaxRequestBodyBytes < 0 {
		invalid = append(invalid, "max_request_body_bytes must be >= 0")
	}

	if len(missing) == 0 && len(invalid) == 0 {
		return nil
	}

	var parts []string
	if len(missing) > 0 {
		parts = append(parts, "missing: "+strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		parts = append(parts, "invalid: "+strings.Join(invalid, ", "))
	}
	return fmt.Errorf("core configuration errors: %s", strings.Join(parts, " | "))
}
