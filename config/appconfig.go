// config/appconfig.go
package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AppKey declares one service-specific configuration key. It is read from
// config files and flags under Name, and from the env as PREFIX_NAME.
type AppKey struct {
	Name    string
	Default any // string, int, int64, bool or []string
	Desc    string
	// Secret values are redacted when the loaded config is logged.
	Secret bool
}

// AppConfigValues maps AppKey.Name to its loaded value.
type AppConfigValues map[string]any

// String returns the key trimmed, or "" when unset. Non-string values
// are formatted with fmt.Sprint.
func (a AppConfigValues) String(key string) string {
	switch v := a[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int tolerates int64 and numeric strings, which env vars and TOML produce.
func (a AppConfigValues) Int(key string) int {
	return int(a.Int64(key))
}

// Int64 returns the key as an int64, or 0 when it is unset or not numeric.
func (a AppConfigValues) Int64(key string) int64 {
	switch v := a[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		var n int64
		if _, err := fmt.Sscan(strings.TrimSpace(v), &n); err == nil {
			return n
		}
	}
	return 0
}

// Bool accepts a native bool or one of 1, t, true, yes, on (any case).
// Everything else is false.
func (a AppConfigValues) Bool(key string) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "yes", "on":
			return true
		}
	}
	return false
}

// StringSlice accepts a native list or a JSON array string.
func (a AppConfigValues) StringSlice(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case string:
		var out []string
		if err := json.Unmarshal([]byte(strings.TrimSpace(v)), &out); err == nil {
			return out
		}
	}
	return nil
}

// Duration returns the key as a duration ("5m", "90s" or plain seconds),
// or def when it is unset or unparseable.
func (a AppConfigValues) Duration(key string, def time.Duration) time.Duration {
	d, err := parseDurationFlexible(a[key], def)
	if err != nil {
		return def
	}
	return d
}

// loadAppConfig resolves app keys with the same precedence as core keys.
// Config file values come from v; env vars use envPrefix.
func loadAppConfig(logger *zap.Logger, v *viper.Viper, envPrefix string, keys []AppKey) AppConfigValues {
	result := make(AppConfigValues, len(keys))
	if len(keys) == 0 {
		return result
	}

	av := viper.New()
	av.SetEnvPrefix(envPrefix)
	av.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	av.AutomaticEnv()

	for _, key := range keys {
		av.SetDefault(key.Name, key.Default)
		_ = av.BindEnv(key.Name)
		if v.InConfig(key.Name) {
			av.Set(key.Name, v.Get(key.Name))
		}
		if f := pflag.Lookup(key.Name); f != nil && f.Changed {
			_ = av.BindPFlag(key.Name, f)
		}
	}

	fields := make([]zap.Field, 0, len(keys))
	for _, key := range keys {
		val := av.Get(key.Name)
		if _, isSlice := key.Default.([]string); isSlice {
			if s, ok := val.(string); ok {
				var arr []string
				if err := json.Unmarshal([]byte(s), &arr); err == nil {
					val = arr
				}
			}
		}
		result[key.Name] = val

		if key.Secret || looksSecret(key.Name) {
			fields = append(fields, zap.String(key.Name, "[REDACTED]"))
		} else {
			fields = append(fields, zap.Any(key.Name, val))
		}
	}
	logger.Info("app config loaded", fields...)

	return result
}

func looksSecret(name string) bool {
	n := strings.ToLower(name)
	for _, s := range [...]string{"key", "secret", "password", "token"} {
		if strings.Contains(n, s) {
			return true
		}
	}
	return false
}

// registerAppFlags must run before pflag.Parse.
func registerAppFlags(keys []AppKey) error {
	for _, key := range keys {
		if pflag.Lookup(key.Name) != nil {
			return fmt.Errorf("config key %q conflicts with existing flag", key.Name)
		}
		switch d := key.Default.(type) {
		case string:
			pflag.String(key.Name, d, key.Desc)
		case int:
			pflag.Int(key.Name, d, key.Desc)
		case int64:
			pflag.Int64(key.Name, d, key.Desc)
		case bool:
			pflag.Bool(key.Name, d, key.Desc)
		case []string:
			pflag.String(key.Name, "", key.Desc+" (JSON array)")
		default:
			return fmt.Errorf("config key %q has unsupported default type %T", key.Name, key.Default)
		}
	}
	return nil
}
