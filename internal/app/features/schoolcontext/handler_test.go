package schoolcontext

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/schoolctx/internal/app/policy"
	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/app/system/dashboard"
	"github.com/dalemusser/schoolctx/internal/app/system/notify"
	"github.com/dalemusser/schoolctx/internal/app/system/querycache"
	"github.com/dalemusser/schoolctx/internal/app/system/schoolctx"
	"github.com/dalemusser/schoolctx/pantry/cache"
	"github.com/dalemusser/schoolctx/pantry/ratelimit"
	"github.com/dalemusser/schoolctx/pantry/session"
	pt "github.com/dalemusser/schoolctx/pantry/testing"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "handler-test-secret-handler-test!"

// fakeBackend serves the dashboard endpoints with a switchable current school.
type fakeBackend struct {
	current   atomic.Value
	reads     atomic.Int32
	rejectAll atomic.Bool
}

func (b *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/dashboard/school-switching":
		b.reads.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"CurrentSchoolId":  b.current.Load(),
				"AvailableSchools": []map[string]string{{"Id": "s1", "Name": "North"}, {"Id": "s2", "Name": "South"}},
				"CanSwitchSchools": true,
			},
		})
	case "/dashboard/switch-school":
		if b.rejectAll.Load() {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = io.WriteString(w, `{"Message":"School is closed for the term"}`)
			return
		}
		var body struct {
			SchoolID string `json:"schoolId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.current.Store(body.SchoolID)
		_, _ = io.WriteString(w, `{"success":true,"message":"Switched"}`)
	default:
		http.NotFound(w, r)
	}
}

func newStack(t *testing.T) (*pt.Recorder, *fakeBackend) {
	return newLimitedStack(t, nil)
}

func newLimitedStack(t *testing.T, kl *ratelimit.KeyLimiter) (*pt.Recorder, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{}
	backend.current.Store("s1")
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	client, err := dashboard.New(dashboard.Config{BaseURL: srv.URL, RetryDelay: time.Millisecond}, nil)
	if err != nil {
		t.Fatal(err)
	}
	authn, err := auth.New(auth.Config{SigningKey: secret})
	if err != nil {
		t.Fatal(err)
	}
	queries := querycache.New(cache.NewMemory(16, time.Minute), client, time.Minute, nil)
	provider := schoolctx.NewProvider(policy.Default(), queries, nil)
	switcher := schoolctx.NewSwitcher(client, provider, notify.Session{}, nil)

	cfg := session.DefaultConfig()
	cfg.Secure = false
	mgr := session.NewManager(session.NewMemoryStore(time.Minute), cfg)

	r := chi.NewRouter()
	r.Use(session.Middleware(mgr, nil))
	r.Use(authn.Optional(nil))
	r.Mount("/api", Routes(NewHandler(provider, switcher, nil).LimitSwitches(kl)))

	return pt.NewRecorder(t, r), backend
}

func token(t *testing.T, role string) string {
	t.Helper()
	claims := auth.Claims{
		Role:     role,
		SchoolID: "s9",
		TenantID: "t1",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestGetSchoolContext(t *testing.T) {
	rec, _ := newStack(t)
	tok := token(t, "admin")

	res := rec.Get("/api/school-context").Bearer(tok).Do().Status(http.StatusOK)
	var v schoolctx.Value
	res.JSON(&v)
	if v.EffectiveSchoolID != "s1" || v.SelectedSchoolID != "s1" || !v.ShowSchoolPicker || v.TenantID != "t1" {
		t.Errorf("value = %+v", v)
	}
	if len(v.AvailableSchools) != 2 || v.AvailableSchools[1].Name != "South" {
		t.Errorf("available = %+v", v.AvailableSchools)
	}
	if res.Header.Get("Cache-Control") != "no-store" {
		t.Error("school context must not be cached")
	}

	anon := rec.Get("/api/school-context").Do().Status(http.StatusOK)
	if anon.JSONPath("isAuthenticated") != false {
		t.Errorf("anonymous body = %s", anon.Body)
	}
}

func TestSelectionRoundTrip(t *testing.T) {
	rec, backend := newStack(t)
	tok := token(t, "superadmin")
	tab := schoolctx.NewTabID()

	rec.Put("/api/school-context/selection").Bearer(tok).Header(schoolctx.TabHeader, tab).
		JSON(map[string]string{"schoolId": "s2"}).Do().Status(http.StatusOK)

	got := rec.Get("/api/school-context").Bearer(tok).Header(schoolctx.TabHeader, tab).Do().Status(http.StatusOK)
	if got.JSONPath("effectiveSchoolId") != "s2" {
		t.Errorf("after select = %s", got.Body)
	}

	cleared := rec.Delete("/api/school-context/selection").Bearer(tok).Header(schoolctx.TabHeader, tab).Do().Status(http.StatusOK)
	if cleared.JSONPath("selectedSchoolId") != "" || cleared.JSONPath("effectiveSchoolId") != "s1" {
		t.Errorf("after clear = %s", cleared.Body)
	}
	if n := backend.reads.Load(); n != 1 {
		t.Errorf("backend reads = %d, want 1 (cached)", n)
	}
}

func TestSelectionValidation(t *testing.T) {
	rec, _ := newStack(t)
	tok := token(t, "admin")

	rec.Put("/api/school-context/selection").JSON(map[string]string{"schoolId": "s2"}).Do().Status(http.StatusUnauthorized)
	rec.Put("/api/school-context/selection").Bearer(tok).BodyString(`{"schoolId":"s2"}`).
		Header("Content-Type", "text/plain").Do().Status(http.StatusUnsupportedMediaType)
	rec.Put("/api/school-context/selection").Bearer(tok).BodyString(`{"school":"s2"}`).
		Header("Content-Type", "application/json").Do().Status(http.StatusBadRequest)
	rec.Get("/api/school-context").Bearer("garbage").Do().Status(http.StatusUnauthorized)
}

func TestSwitchAndNotifications(t *testing.T) {
	rec, backend := newStack(t)
	tok := token(t, "admin")

	res := rec.Post("/api/school-context/switch").Bearer(tok).JSON(map[string]string{"schoolId": "s2"}).Do().Status(http.StatusOK)
	if res.JSONPath("message") != "Switched" || res.JSONPath("context.currentSchoolId") != "s2" {
		t.Errorf("switch body = %s", res.Body)
	}
	if res.JSONPath("context.effectiveSchoolId") != "s2" {
		t.Errorf("effective after switch = %v", res.JSONPath("context.effectiveSchoolId"))
	}
	if n := backend.reads.Load(); n != 2 {
		t.Errorf("backend reads = %d, want refetch after switch", n)
	}

	notes := rec.Get("/api/notifications").Bearer(tok).Do().Status(http.StatusOK)
	if notes.JSONPath("notifications.0.kind") != "success" || notes.JSONPath("notifications.0.message") != "Switched" {
		t.Errorf("notifications = %s", notes.Body)
	}
	if empty := rec.Get("/api/notifications").Bearer(tok).Do(); len(empty.JSONPath("notifications").([]any)) != 0 {
		t.Errorf("notifications not drained: %s", empty.Body)
	}
}

func TestSwitchFailure(t *testing.T) {
	rec, backend := newStack(t)
	backend.rejectAll.Store(true)
	tok := token(t, "admin")

	res := rec.Post("/api/school-context/switch").Bearer(tok).JSON(map[string]string{"schoolId": "s2"}).Do().Status(http.StatusBadGateway)
	if res.JSONPath("error.code") != "switch_failed" || res.JSONPath("error.message") != "School is closed for the term" {
		t.Errorf("error body = %s", res.Body)
	}

	// no rollback: the optimistic selection stays
	if got := rec.Get("/api/school-context").Bearer(tok).Do().JSONPath("selectedSchoolId"); got != "s2" {
		t.Errorf("selection = %v", got)
	}
	notes := rec.Get("/api/notifications").Bearer(tok).Do()
	if notes.JSONPath("notifications.0.kind") != "error" {
		t.Errorf("notifications = %s", notes.Body)
	}
}

func TestNewTab(t *testing.T) {
	rec, _ := newStack(t)
	res := rec.Post("/api/school-context/tabs").Do().Status(http.StatusCreated)
	if id, _ := res.JSONPath("tabId").(string); len(id) != 36 {
		t.Errorf("tab id = %q", id)
	}
}

func TestTabsAndNotificationsSkipBackend(t *testing.T) {
	rec, backend := newStack(t)
	tok := token(t, "admin")

	rec.Post("/api/school-context/tabs").Bearer(tok).Do().Status(http.StatusCreated)
	rec.Get("/api/notifications").Bearer(tok).Do().Status(http.StatusOK)
	if n := backend.reads.Load(); n != 0 {
		t.Errorf("backend reads = %d, want none", n)
	}

	rec.Get("/api/school-context").Bearer(tok).Do().Status(http.StatusOK)
	if n := backend.reads.Load(); n != 1 {
		t.Errorf("backend reads = %d, want 1 for the context read", n)
	}
}

func TestSwitchIsRateLimited(t *testing.T) {
	rec, _ := newLimitedStack(t, ratelimit.NewKeyLimiter(0.001, 1, 10, time.Minute))
	tok := token(t, "admin")

	rec.Post("/api/school-context/switch").Bearer(tok).JSON(map[string]string{"schoolId": "s2"}).Do().Status(http.StatusOK)
	res := rec.Post("/api/school-context/switch").Bearer(tok).JSON(map[string]string{"schoolId": "s1"}).Do().Status(http.StatusTooManyRequests)
	if res.JSONPath("error.code") != "rate_limited" {
		t.Errorf("body = %s", res.Body)
	}
}
