package schoolctx

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/dalemusser/schoolctx/internal/app/policy"
	"github.com/dalemusser/schoolctx/internal/app/system/auth"
	"github.com/dalemusser/schoolctx/internal/app/system/dashboard"
	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/metrics"
	apperrors "github.com/dalemusser/schoolctx/pantry/errors"
	pt "github.com/dalemusser/schoolctx/pantry/testing"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSwitchClient struct {
	res      dashboard.SwitchResult
	err      error
	token    string
	schoolID string
}

func (f *fakeSwitchClient) SwitchSchool(ctx context.Context, token, schoolID string) (dashboard.SwitchResult, error) {
	f.token, f.schoolID = token, schoolID
	return f.res, f.err
}

type recordingNotifier struct {
	mu      sync.Mutex
	success []string
	errors  []string
}

func (n *recordingNotifier) Success(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.success = append(n.success, msg)
}

func (n *recordingNotifier) Error(_ context.Context, msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func TestSwitchSuccess(t *testing.T) {
	q := &fakeQueries{data: models.SchoolSwitchingData{CurrentSchoolID: "S1", AvailableSchools: schools("S1", "S2")}}
	p := NewProvider(policy.Default(), q, nil)
	client := &fakeSwitchClient{res: dashboard.SwitchResult{Success: true}}
	n := &recordingNotifier{}
	s := NewSwitcher(client, p, n, nil)

	user := models.User{ID: "u", Role: "admin"}
	ctx := auth.WithUser(pt.Context(t), user, "tok")
	ctx = p.Mount(ctx, &user, "tok", NewMemoryPersister())

	// the backend now reports S2 as current
	q.mu.Lock()
	q.data.CurrentSchoolID = "S2"
	q.mu.Unlock()

	before := testutil.ToFloat64(metrics.SwitchMutations.WithLabelValues("success"))
	if _, err := s.Switch(ctx, user, " S2 "); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if client.token != "tok" || client.schoolID != "S2" {
		t.Errorf("client saw token=%q school=%q", client.token, client.schoolID)
	}
	gets, invalidates := q.counts()
	if invalidates != 1 || gets != 2 {
		t.Errorf("gets = %d, invalidates = %d", gets, invalidates)
	}
	if v := MustFromContext(ctx); v.CurrentSchoolID != "S2" {
		t.Errorf("current after refresh = %q", v.CurrentSchoolID)
	}
	if len(n.success) != 1 || n.success[0] != switchSucceededMessage {
		t.Errorf("success notifications = %v", n.success)
	}
	if got := testutil.ToFloat64(metrics.SwitchMutations.WithLabelValues("success")); got != before+1 {
		t.Errorf("success counter = %v", got)
	}
}

func TestSwitchFailure(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rejected with message", &dashboard.RejectedError{Message: "School is archived"}, "School is archived"},
		{"http error with message", &dashboard.StatusError{Status: 403, Message: "Not permitted"}, "Not permitted"},
		{"bare status", &dashboard.StatusError{Status: 500}, "Failed to switch school"},
		{"network", errors.New("dial tcp: connection refused"), "Failed to switch school"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQueries{}
			p := NewProvider(policy.Default(), q, nil)
			n := &recordingNotifier{}
			s := NewSwitcher(&fakeSwitchClient{err: tt.err}, p, n, nil)

			user := models.User{ID: "u", Role: "admin"}
			ctx := p.Mount(pt.Context(t), &user, "", NewMemoryPersister())
			_ = p.SetSelectedSchoolID(ctx, "S7")

			_, err := s.Switch(ctx, user, "S7")
			var ae *apperrors.Error
			if !errors.As(err, &ae) || ae.Code != apperrors.CodeSwitchFailed || ae.HTTPStatus() != http.StatusBadGateway {
				t.Fatalf("err = %v", err)
			}
			if ae.Message != tt.want {
				t.Errorf("message = %q, want %q", ae.Message, tt.want)
			}
			if len(n.errors) != 1 || n.errors[0] != tt.want {
				t.Errorf("error notifications = %v", n.errors)
			}
			if _, invalidates := q.counts(); invalidates != 0 {
				t.Error("failed switch must not invalidate")
			}
			if v := MustFromContext(ctx); v.SelectedSchoolID != "S7" {
				t.Errorf("selection rolled back to %q", v.SelectedSchoolID)
			}
		})
	}
}

func TestSwitchRequiresSchoolID(t *testing.T) {
	client := &fakeSwitchClient{}
	s := NewSwitcher(client, NewProvider(policy.Default(), &fakeQueries{}, nil), nil, nil)
	_, err := s.Switch(pt.Context(t), models.User{ID: "u"}, "  ")
	var ae *apperrors.Error
	if !errors.As(err, &ae) || ae.Code != apperrors.CodeInvalidInput {
		t.Errorf("err = %v", err)
	}
	if client.schoolID != "" {
		t.Error("backend called for an empty school id")
	}
}

func TestSwitchWithoutMountedProvider(t *testing.T) {
	q := &fakeQueries{}
	n := &recordingNotifier{}
	s := NewSwitcher(&fakeSwitchClient{res: dashboard.SwitchResult{Success: true, Message: "Switched"}}, NewProvider(policy.Default(), q, nil), n, nil)
	if _, err := s.Switch(pt.Context(t), models.User{ID: "u", Role: "admin"}, "S1"); err != nil {
		t.Fatalf("Switch: %v", err)
	}
	if len(n.success) != 1 || n.success[0] != "Switched" {
		t.Errorf("success = %v", n.success)
	}
}
