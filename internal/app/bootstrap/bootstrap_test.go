package bootstrap

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/schoolctx/config"
	pt "github.com/dalemusser/schoolctx/pantry/testing"
)

func baseValues() config.AppConfigValues {
	return config.AppConfigValues{
		"backend_base_url":         "http://backend.internal",
		"backend_timeout":          "3s",
		"switching_fetch_attempts": 2,
		"switching_cache_ttl":      "1m",
		"switching_cache_size":     100,
		"jwt_signing_key":          "bootstrap-test-secret-bootstrap!!",
		"session_store":            "memory",
		"session_cookie_name":      "sc",
		"session_max_age":          "1h",
	}
}

func TestAppConfigFrom(t *testing.T) {
	core := &config.CoreConfig{Env: "dev"}
	cfg, err := appConfigFrom(core, baseValues())
	if err != nil {
		t.Fatalf("appConfigFrom: %v", err)
	}
	if cfg.BackendTimeout != 3*time.Second || cfg.SwitchingCacheTTL != time.Minute || cfg.SessionSecure {
		t.Errorf("cfg = %+v", cfg)
	}

	prod, _ := appConfigFrom(&config.CoreConfig{Env: "prod"}, baseValues())
	if !prod.SessionSecure {
		t.Error("prod must force secure cookies")
	}

	tests := []struct {
		key  string
		val  any
		want string
	}{
		{"backend_base_url", "", "backend_base_url"},
		{"jwt_signing_key", "", "jwt_signing_key"},
		{"session_store", "disk", "session_store"},
		{"session_store", "redis", "redis_url"},
		{"switching_fetch_attempts", 0, "switching_fetch_attempts"},
	}
	for _, tt := range tests {
		vals := baseValues()
		vals[tt.key] = tt.val
		if _, err := appConfigFrom(core, vals); err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("%s=%v: err = %v", tt.key, tt.val, err)
		}
	}
}

func TestBuildHandlerServesRoutes(t *testing.T) {
	core := &config.CoreConfig{Env: "dev", MaxRequestBodyBytes: 1 << 20}
	appCfg, err := appConfigFrom(core, baseValues())
	if err != nil {
		t.Fatal(err)
	}
	logger, _ := pt.TestLogger()
	deps, err := ConnectDB(pt.Context(t), core, appCfg, logger)
	if err != nil {
		t.Fatalf("ConnectDB: %v", err)
	}
	t.Cleanup(func() { _ = Shutdown(pt.Context(t), deps, logger) })

	h, err := BuildHandler(core, appCfg, deps, logger)
	if err != nil {
		t.Fatal(err)
	}

	for path, status := range map[string]int{
		"/health":             http.StatusOK,
		"/version":            http.StatusOK,
		"/metrics":            http.StatusOK,
		"/api/school-context": http.StatusOK,
		"/api/notifications":  http.StatusUnauthorized,
		"/nope":               http.StatusNotFound,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != status {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, status)
		}
	}
}
