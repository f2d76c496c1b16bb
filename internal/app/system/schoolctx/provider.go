package schoolctx

import (
	"context"
	"reflect"
	"sync"

	"github.com/dalemusser/schoolctx/internal/app/policy"
	"github.com/dalemusser/schoolctx/internal/domain/models"
	"github.com/dalemusser/schoolctx/pantry/requestid"
	"go.uber.org/zap"
)

// Queries reads and invalidates per-user school-switching data.
type Queries interface {
	Get(ctx context.Context, user models.User, token string) (models.SchoolSwitchingData, error)
	Invalidate(ctx context.Context, user models.User) error
}

// Value is what consumers see. A mounted provider hands out the same
// *Value until one of its fields changes; treat it as read-only.
type Value struct {
	IsAuthenticated   bool                  `json:"isAuthenticated"`
	Role              string                `json:"role,omitempty"`
	TenantID          string                `json:"tenantId,omitempty"`
	UserSchoolID      string                `json:"userSchoolId,omitempty"`
	EffectiveSchoolID string                `json:"effectiveSchoolId"`
	SelectedSchoolID  string                `json:"selectedSchoolId"`
	CurrentSchoolID   string                `json:"currentSchoolId"`
	AvailableSchools  []models.SchoolOption `json:"availableSchools"`
	CanSwitchSchools  bool                  `json:"canSwitchSchools"`
	ShowSchoolPicker  bool                  `json:"showSchoolPicker"`
	IsAdmin           bool                  `json:"isAdmin"`
	IsSuperAdmin      bool                  `json:"isSuperAdmin"`
	IsPrincipal       bool                  `json:"isPrincipal"`
	IsTeacher         bool                  `json:"isTeacher"`
}

func (v *Value) equal(o *Value) bool {
	return reflect.DeepEqual(v, o)
}

// Provider builds per-request school contexts.
type Provider struct {
	policy  policy.RolePolicy
	queries Queries
	logger  *zap.Logger
}

// NewProvider uses p to decide which roles fetch switching data and
// whose selection counts. queries is usually a *querycache.Cache.
func NewProvider(p policy.RolePolicy, queries Queries, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{policy: p, queries: queries, logger: logger}
}

// state is one mounted provider.
type state struct {
	p         *Provider
	user      *models.User
	token     string
	selection *Selection

	mu    sync.Mutex
	data  models.SchoolSwitchingData
	value *Value
}

// Mount loads the selection from store, fetches switching data when the
// user's role can switch, applies the auto-select rule, and returns a
// context that FromContext can read. user is nil for anonymous callers.
func (p *Provider) Mount(ctx context.Context, user *models.User, token string, store Persister) context.Context {
	st := &state{
		p:         p,
		user:      user,
		token:     token,
		selection: LoadSelection(ctx, store, p.logger),
		data:      emptyData(),
	}
	st.load(ctx)
	return context.WithValue(ctx, contextKey{}, st)
}

func emptyData() models.SchoolSwitchingData {
	return models.SchoolSwitchingData{AvailableSchools: []models.SchoolOption{}}
}

func (st *state) canSwitch() bool {
	return st.user != nil && st.p.policy.CanSwitch(st.user.Role)
}

// load fetches switching data. Failures degrade to empty data.
func (st *state) load(ctx context.Context) {
	if !st.canSwitch() {
		return
	}
	data, err := st.p.queries.Get(ctx, *st.user, st.token)
	if err != nil {
		st.p.logger.Warn("school-switching fetch failed; continuing without it",
			zap.String("user_id", st.user.ID), zap.Error(err), requestid.Field(ctx))
		data = emptyData()
	}
	if data.AvailableSchools == nil {
		data.AvailableSchools = []models.SchoolOption{}
	}

	st.mu.Lock()
	st.data = data
	st.mu.Unlock()

	st.autoSelect(ctx)
}

// autoSelect persists the server-resolved school as the explicit
// selection when none exists yet. Once set, the guard stops it firing.
func (st *state) autoSelect(ctx context.Context) {
	if !st.canSwitch() || st.selection.Get() != "" {
		return
	}
	st.mu.Lock()
	id := firstNonEmpty(st.data.CurrentSchoolID, st.data.DefaultSchoolID())
	st.mu.Unlock()
	if id != "" {
		st.selection.Set(ctx, id)
	}
}

func (st *state) snapshot() *Value {
	st.mu.Lock()
	defer st.mu.Unlock()

	v := &Value{
		SelectedSchoolID: st.selection.Get(),
		CurrentSchoolID:  st.data.CurrentSchoolID,
		AvailableSchools: st.data.AvailableSchools,
	}
	if u := st.user; u != nil {
		v.IsAuthenticated = true
		v.Role = u.Role
		v.TenantID = u.TenantID
		v.UserSchoolID = u.SchoolID
		v.IsAdmin = u.Role == models.RoleAdmin
		v.IsSuperAdmin = u.Role == models.RoleSuperAdmin
		v.IsPrincipal = u.Role == models.RolePrincipal
		v.IsTeacher = u.Role == models.RoleTeacher
		v.CanSwitchSchools = st.p.policy.CanSwitch(u.Role)
		v.ShowSchoolPicker = v.CanSwitchSchools && len(v.AvailableSchools) > 1
		v.EffectiveSchoolID = Resolve(st.p.policy, Inputs{
			Role:             u.Role,
			SelectedSchoolID: v.SelectedSchoolID,
			CurrentSchoolID:  st.data.CurrentSchoolID,
			DefaultSchoolID:  st.data.DefaultSchoolID(),
			UserSchoolID:     u.SchoolID,
		})
	}

	if st.value != nil && st.value.equal(v) {
		return st.value
	}
	st.value = v
	return v
}

// SetSelectedSchoolID updates the selection of the provider mounted in
// ctx. Storage failures are swallowed.
func (p *Provider) SetSelectedSchoolID(ctx context.Context, schoolID string) error {
	st, ok := stateFrom(ctx)
	if !ok {
		return ErrNoProvider
	}
	st.selection.Set(ctx, schoolID)
	return nil
}

// Refresh refetches switching data for the provider mounted in ctx.
func (p *Provider) Refresh(ctx context.Context) error {
	st, ok := stateFrom(ctx)
	if !ok {
		return ErrNoProvider
	}
	st.load(ctx)
	return nil
}

// Invalidate drops the cached switching data for user.
func (p *Provider) Invalidate(ctx context.Context, user models.User) error {
	return p.queries.Invalidate(ctx, user)
}
