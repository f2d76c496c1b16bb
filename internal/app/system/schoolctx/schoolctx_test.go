package schoolctx

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/schoolctx/internal/app/policy"
	"github.com/dalemusser/schoolctx/internal/app/system/querycache"
	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/pantry/cache"
	pt "github.com/dalemusser/schoolctx/pantry/testing"
)

type fakeQueries struct {
	mu          sync.Mutex
	data        models.SchoolSwitchingData
	err         error
	gets        int
	invalidates int
}

func (f *fakeQueries) Get(ctx context.Context, user models.User, token string) (models.SchoolSwitchingData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	return f.data, f.err
}

func (f *fakeQueries) Invalidate(ctx context.Context, user models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidates++
	return nil
}

func (f *fakeQueries) counts() (gets, invalidates int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets, f.invalidates
}

func schools(ids ...string) []models.SchoolOption {
	out := make([]models.SchoolOption, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.SchoolOption{ID: id, Name: "School " + id})
	}
	return out
}

func TestResolve(t *testing.T) {
	p := policy.Default()
	tests := []struct {
		name string
		in   Inputs
		want string
	}{
		{"student uses own school", Inputs{Role: "student", SelectedSchoolID: "S1", CurrentSchoolID: "S2", DefaultSchoolID: "S3", UserSchoolID: "S4"}, "S4"},
		{"unknown role without school", Inputs{Role: "parent", SelectedSchoolID: "S1", CurrentSchoolID: "S2"}, ""},
		{"empty role", Inputs{UserSchoolID: "S4", CurrentSchoolID: "S2"}, "S4"},
		{"admin selection wins", Inputs{Role: "admin", SelectedSchoolID: "S1", CurrentSchoolID: "S2", DefaultSchoolID: "S3", UserSchoolID: "S4"}, "S1"},
		{"admin falls back to current", Inputs{Role: "admin", CurrentSchoolID: "S2", DefaultSchoolID: "S3", UserSchoolID: "S4"}, "S2"},
		{"superadmin falls back to default", Inputs{Role: "superadmin", DefaultSchoolID: "S3", UserSchoolID: "S4"}, "S3"},
		{"admin falls back to own school", Inputs{Role: "admin", UserSchoolID: "S4"}, "S4"},
		{"admin with nothing", Inputs{Role: "admin"}, ""},
		{"teacher ignores selection", Inputs{Role: "teacher", SelectedSchoolID: "S1", CurrentSchoolID: "S2"}, "S2"},
		{"principal ignores default", Inputs{Role: "principal", SelectedSchoolID: "S1", DefaultSchoolID: "S3", UserSchoolID: "S4"}, "S4"},
		{"teacher with nothing", Inputs{Role: "teacher", SelectedSchoolID: "S1"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(p, tt.in); got != tt.want {
				t.Errorf("Resolve = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNonSwitchRoleSkipsFetch(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{CurrentSchoolID: "S2", AvailableSchools: schools("S2", "S3")}}
	p := NewProvider(policy.Default(), q, nil)
	store := NewMemoryPersister()
	_ = store.Write(context.Background(), "S1")

	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "student", SchoolID: "S4"}, "", store)
	v := MustFromContext(ctx)
	if v.EffectiveSchoolID != "S4" || v.CanSwitchSchools || v.ShowSchoolPicker {
		t.Errorf("value = %+v", v)
	}
	if gets, _ := q.counts(); gets != 0 {
		t.Errorf("fetched %d times for a non-switching role", gets)
	}
}

func TestAdminSelectionWins(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{CurrentSchoolID: "S2", AvailableSchools: schools("S3", "S2")}}
	p := NewProvider(policy.Default(), q, nil)
	store := NewMemoryPersister()
	_ = store.Write(context.Background(), "S1")

	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "admin", SchoolID: "S4", TenantID: "T"}, "tok", store)
	v := MustFromContext(ctx)
	if v.EffectiveSchoolID != "S1" || v.SelectedSchoolID != "S1" {
		t.Errorf("effective = %q, selected = %q", v.EffectiveSchoolID, v.SelectedSchoolID)
	}
	if !v.IsAdmin || v.IsSuperAdmin || !v.CanSwitchSchools || !v.ShowSchoolPicker || v.TenantID != "T" {
		t.Errorf("flags = %+v", v)
	}
}

func TestTeacherServerValueWins(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{CurrentSchoolID: "S2", AvailableSchools: schools("S2")}}
	p := NewProvider(policy.Default(), q, nil)
	store := NewMemoryPersister()

	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "teacher", SchoolID: "S4"}, "", store)
	if err := p.SetSelectedSchoolID(ctx, "S1"); err != nil {
		t.Fatal(err)
	}
	v := MustFromContext(ctx)
	if v.SelectedSchoolID != "S1" || v.EffectiveSchoolID != "S2" {
		t.Errorf("selected = %q, effective = %q", v.SelectedSchoolID, v.EffectiveSchoolID)
	}
	if !v.IsTeacher || v.ShowSchoolPicker {
		t.Errorf("flags = %+v", v)
	}
}

func TestClearingSelectionRemovesStoredKey(t *testing.T) {
	q := &fakeQueries{}
	p := NewProvider(policy.Default(), q, nil)
	store := NewMemoryPersister()
	user := &models.User{ID: "u", Role: "admin"}

	ctx := p.Mount(pt.Context(t), user, "", store)
	_ = p.SetSelectedSchoolID(ctx, "S1")
	if got, ok := store.Stored(); !ok || got != "S1" {
		t.Fatalf("stored = %q, %v", got, ok)
	}

	_ = p.SetSelectedSchoolID(ctx, "")
	if _, ok := store.Stored(); ok {
		t.Error("empty selection must remove the stored key")
	}
	if v := MustFromContext(ctx); v.SelectedSchoolID != "" {
		t.Errorf("in-memory selection = %q", v.SelectedSchoolID)
	}

	remounted := p.Mount(pt.Context(t), user, "", store)
	if v := MustFromContext(remounted); v.SelectedSchoolID != "" {
		t.Errorf("fresh mount selection = %q, want empty", v.SelectedSchoolID)
	}
}

type countingFetcher struct {
	calls atomic.Int32
	data  models.SchoolSwitchingData
}

func (f *countingFetcher) SchoolSwitching(context.Context, string) (models.SchoolSwitchingData, error) {
	f.calls.Add(1)
	return f.data, nil
}

func TestSelectionSurvivesRemount(t *testing.T) {
	fetcher := &countingFetcher{data: models.SchoolSwitchingData{AvailableSchools: []models.SchoolOption{}}}
	q := querycache.New(cache.NewMemory(16, time.Minute), fetcher, time.Minute, nil)
	p := NewProvider(policy.Default(), q, nil)
	store := NewMemoryPersister()
	user := &models.User{ID: "u", Role: "superadmin"}

	ctx := p.Mount(pt.Context(t), user, "", store)
	_ = p.SetSelectedSchoolID(ctx, "S9")

	if sel := LoadSelection(pt.Context(t), store, nil); sel.Get() != "S9" {
		t.Errorf("LoadSelection = %q", sel.Get())
	}

	remounted := p.Mount(pt.Context(t), user, "", store)
	if v := MustFromContext(remounted); v.SelectedSchoolID != "S9" || v.EffectiveSchoolID != "S9" {
		t.Errorf("after remount = %+v", v)
	}
	if n := fetcher.calls.Load(); n != 1 {
		t.Errorf("network fetches = %d, want 1", n)
	}
}

func TestAutoSelectFiresOnce(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{CurrentSchoolID: "S5", AvailableSchools: schools("S5", "S6")}}
	p := NewProvider(policy.Default(), q, nil)
	store := NewMemoryPersister()

	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "principal"}, "", store)
	first := MustFromContext(ctx)
	if first.SelectedSchoolID != "S5" {
		t.Fatalf("selected = %q, want S5", first.SelectedSchoolID)
	}
	for range 3 {
		if MustFromContext(ctx) != first {
			t.Fatal("value pointer changed with unchanged inputs")
		}
		_ = p.Refresh(ctx)
	}
	if store.Writes() != 1 {
		t.Errorf("store writes = %d, want 1", store.Writes())
	}
}

func TestAutoSelectUsesDefaultSchool(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{AvailableSchools: schools("S3", "S7")}}
	p := NewProvider(policy.Default(), q, nil)
	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "admin"}, "", NewMemoryPersister())
	if v := MustFromContext(ctx); v.SelectedSchoolID != "S3" || v.EffectiveSchoolID != "S3" {
		t.Errorf("value = %+v", v)
	}
}

func TestFromContextWithoutProvider(t *testing.T) {
	if _, err := FromContext(context.Background()); !errors.Is(err, ErrNoProvider) {
		t.Errorf("err = %v, want ErrNoProvider", err)
	}

	p := NewProvider(policy.Default(), &fakeQueries{}, nil)
	if err := p.SetSelectedSchoolID(context.Background(), "S1"); !errors.Is(err, ErrNoProvider) {
		t.Errorf("SetSelectedSchoolID err = %v", err)
	}

	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrNoProvider) || !strings.Contains(err.Error(), "provider") {
			t.Errorf("recovered %v, want ErrNoProvider", r)
		}
	}()
	MustFromContext(context.Background())
	t.Error("MustFromContext did not panic")
}

func TestFetchFailureDegrades(t *testing.T) {
	q := &fakeQueries{err: errors.New("connection refused")}
	logger, logs := pt.TestLogger()
	p := NewProvider(policy.Default(), q, logger)
	store := NewMemoryPersister()

	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "admin", SchoolID: "S4"}, "", store)
	v, err := FromContext(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if v.AvailableSchools == nil || len(v.AvailableSchools) != 0 {
		t.Errorf("available = %#v, want empty", v.AvailableSchools)
	}
	if v.EffectiveSchoolID != "S4" {
		t.Errorf("effective = %q, want S4", v.EffectiveSchoolID)
	}
	if _, ok := store.Stored(); ok {
		t.Error("auto-select must not fire without server data")
	}
	if logs.FilterMessageSnippet("fetch failed").Len() != 1 {
		t.Error("fetch failure should be logged once")
	}
}

func TestStorageFailuresAreSwallowed(t *testing.T) {
	q := &fakeQueries{}
	logger, logs := pt.TestLogger()
	p := NewProvider(policy.Default(), q, logger)

	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "admin"}, "", FailingPersister{})
	if err := p.SetSelectedSchoolID(ctx, "S1"); err != nil {
		t.Fatalf("storage error leaked: %v", err)
	}
	if v := MustFromContext(ctx); v.SelectedSchoolID != "S1" {
		t.Errorf("in-memory selection = %q", v.SelectedSchoolID)
	}
	_ = p.SetSelectedSchoolID(ctx, "")
	if logs.FilterMessage("selection persist failed").Len() != 2 {
		t.Errorf("persist failures logged %d times", logs.FilterMessage("selection persist failed").Len())
	}
}

func TestValuePointerChangesWithInputs(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{CurrentSchoolID: "S2", AvailableSchools: schools("S2", "S3")}}
	p := NewProvider(policy.Default(), q, nil)
	ctx := p.Mount(pt.Context(t), &models.User{ID: "u", Role: "admin"}, "", NewMemoryPersister())

	a := MustFromContext(ctx)
	_ = p.SetSelectedSchoolID(ctx, "S3")
	b := MustFromContext(ctx)
	if a == b || b.EffectiveSchoolID != "S3" {
		t.Errorf("expected a new value, got same=%v effective=%q", a == b, b.EffectiveSchoolID)
	}
	if MustFromContext(ctx) != b {
		t.Error("value pointer not stable")
	}
}

func TestAnonymousMount(t *testing.T) {
	q := &fakeQueries{}
	p := NewProvider(policy.Default(), q, nil)
	ctx := p.Mount(pt.Context(t), nil, "", nil)
	v := MustFromContext(ctx)
	if v.IsAuthenticated || v.EffectiveSchoolID != "" || v.AvailableSchools == nil {
		t.Errorf("value = %+v", v)
	}
	if gets, _ := q.counts(); gets != 0 {
		t.Error("anonymous mount must not fetch")
	}
}
