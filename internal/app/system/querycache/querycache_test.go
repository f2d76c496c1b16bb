package querycache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/metrics"
	"github.com/dalemusser/schoolctx/pantry/cache"
	pt "github.com/dalemusser/schoolctx/pantry/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeFetcher struct {
	calls atomic.Int32
	delay time.Duration
	err   error
	data  models.SchoolSwitchingData
}

func (f *fakeFetcher) SchoolSwitching(ctx context.Context, token string) (models.SchoolSwitchingData, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.data, f.err
}

var user = models.User{ID: "u1", Role: models.RoleAdmin, TenantID: "t1"}

func TestGetCachesUntilInvalidated(t *testing.T) {
	ctx := pt.Context(t)
	f := &fakeFetcher{data: models.SchoolSwitchingData{CurrentSchoolID: "s1", AvailableSchools: []models.SchoolOption{{ID: "s1"}}}}
	c := New(cache.NewMemory(16, time.Minute), f, time.Minute, nil)

	for range 3 {
		got, err := c.Get(ctx, user, "tok")
		if err != nil || got.CurrentSchoolID != "s1" {
			t.Fatalf("Get = %+v, %v", got, err)
		}
	}
	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}

	if err := c.Invalidate(ctx, user); err != nil {
		t.Fatal(err)
	}
	f.data.CurrentSchoolID = "s2"
	got, _ := c.Get(ctx, user, "tok")
	if got.CurrentSchoolID != "s2" || f.calls.Load() != 2 {
		t.Errorf("after invalidate got %q with %d calls", got.CurrentSchoolID, f.calls.Load())
	}
}

func TestGetScopesByUser(t *testing.T) {
	ctx := pt.Context(t)
	f := &fakeFetcher{}
	c := New(cache.NewMemory(16, time.Minute), f, time.Minute, nil)

	other := user
	other.ID = "u2"
	_, _ = c.Get(ctx, user, "a")
	_, _ = c.Get(ctx, other, "b")
	if f.calls.Load() != 2 {
		t.Errorf("fetch calls = %d, want one per user", f.calls.Load())
	}
	if Key(user) == Key(models.User{ID: "u1", TenantID: "t2"}) {
		t.Error("keys must differ across tenants")
	}
}

func TestGetDoesNotCacheFailures(t *testing.T) {
	ctx := pt.Context(t)
	f := &fakeFetcher{err: errors.New("backend down")}
	c := New(cache.NewMemory(16, time.Minute), f, time.Minute, nil)

	before := testutil.ToFloat64(metrics.SwitchingFetchFailures)
	for range 2 {
		if _, err := c.Get(ctx, user, "tok"); err == nil {
			t.Fatal("expected error")
		}
	}
	if f.calls.Load() != 2 {
		t.Errorf("fetch calls = %d, failures must not be cached", f.calls.Load())
	}
	if got := testutil.ToFloat64(metrics.SwitchingFetchFailures); got != before+2 {
		t.Errorf("failure counter = %v, want %v", got, before+2)
	}
}

func TestGetCoalescesConcurrentFetches(t *testing.T) {
	ctx := pt.Context(t)
	f := &fakeFetcher{delay: 50 * time.Millisecond, data: models.SchoolSwitchingData{CurrentSchoolID: "s1"}}
	c := New(cache.NewMemory(16, time.Minute), f, time.Minute, nil)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if got, err := c.Get(ctx, user, "tok"); err != nil || got.CurrentSchoolID != "s1" {
				t.Errorf("Get = %+v, %v", got, err)
			}
		}()
	}
	wg.Wait()
	if f.calls.Load() != 1 {
		t.Errorf("fetch calls = %d, want 1", f.calls.Load())
	}
}

func TestGetHonorsCallerCancellation(t *testing.T) {
	f := &fakeFetcher{delay: 100 * time.Millisecond}
	c := New(cache.NewMemory(16, time.Minute), f, time.Minute, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := c.Get(ctx, user, "tok"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

// gatedFetcher blocks its first call until release is closed and answers
// "old" to it; later calls answer "new" immediately.
type gatedFetcher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *gatedFetcher) SchoolSwitching(ctx context.Context, token string) (models.SchoolSwitchingData, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
		<-g.release
		return models.SchoolSwitchingData{CurrentSchoolID: "old"}, nil
	}
	return models.SchoolSwitchingData{CurrentSchoolID: "new"}, nil
}

func TestInvalidateDropsInFlightResult(t *testing.T) {
	ctx := pt.Context(t)
	g := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	c := New(cache.NewMemory(16, time.Minute), g, time.Minute, nil)

	first := make(chan string, 1)
	go func() {
		d, _ := c.Get(ctx, user, "tok")
		first <- d.CurrentSchoolID
	}()
	<-g.started

	if err := c.Invalidate(ctx, user); err != nil {
		t.Fatal(err)
	}
	got, err := c.Get(ctx, user, "tok")
	if err != nil || got.CurrentSchoolID != "new" {
		t.Fatalf("refetch after invalidate = %+v, %v", got, err)
	}

	close(g.release)
	if id := <-first; id != "old" {
		t.Errorf("in-flight caller got %q, want old", id)
	}

	got, err = c.Get(ctx, user, "tok")
	if err != nil || got.CurrentSchoolID != "new" {
		t.Errorf("cached after invalidate = %+v, %v", got, err)
	}
	if n := g.calls.Load(); n != 2 {
		t.Errorf("fetch calls = %d, want 2", n)
	}
}
