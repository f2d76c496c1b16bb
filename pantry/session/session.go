// pantry/session/session.go
package session

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means the store has no session with the cookie's id.
	ErrNotFound = errors.New("session: not found")

	// ErrExpired means the session exists but is past its expiry.
	ErrExpired = errors.New("session: expired")
)

// Session is the mutable, request-scoped view of one stored session.
// Values must survive a JSON round trip (strings, numbers, bools, maps).
type Session struct {
	mu        sync.RWMutex
	id        string
	data      map[string]any
	isNew     bool
	modified  bool
	expiresAt time.Time
}

// ID is the random id sent in the session cookie.
func (s *Session) ID() string { return s.id }

// IsNew reports whether the session has never been saved.
func (s *Session) IsNew() bool { return s.isNew }

// Get returns the value stored under key.
func (s *Session) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// GetString returns "" for missing or non-string values.
func (s *Session) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// Set stores value under key and marks the session modified.
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.modified = true
}

// Delete removes key. Removing a missing key does not mark the session
// modified.
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		delete(s.data, key)
		s.modified = true
	}
}

// Modified reports whether Set or Delete changed the session since it
// was loaded or last saved.
func (s *Session) Modified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

func (s *Session) snapshot() *Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	values := make(map[string]any, len(s.data))
	for k, v := range s.data {
		values[k] = v
	}
	return &Data{ID: s.id, Values: values, ExpiresAt: s.expiresAt, UpdatedAt: time.Now()}
}

// Store persists session data between requests.
type Store interface {
	// Load returns ErrNotFound or ErrExpired when id is unusable.
	Load(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, data *Data) error
	Delete(ctx context.Context, id string) error
	Close() error
}

// Data is the stored form of a session.
type Data struct {
	ID        string         `json:"id"`
	Values    map[string]any `json:"values"`
	ExpiresAt time.Time      `json:"expires_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Config controls the session cookie.
type Config struct {
	CookieName string
	MaxAge     time.Duration
	Path       string
	Secure     bool
	SameSite   http.SameSite
}

// DefaultConfig returns a secure, HttpOnly, SameSite=Lax cookie named
// schoolctx_session that lives 12 hours.
func DefaultConfig() Config {
	return Config{
		CookieName: "schoolctx_session",
		MaxAge:     12 * time.Hour,
		Path:       "/",
		Secure:     true,
		SameSite:   http.SameSiteLaxMode,
	}
}

// Manager maps the session cookie to stored data.
type Manager struct {
	store Store
	cfg   Config
}

// NewManager fills unset fields of cfg from DefaultConfig. Secure is
// taken as given, so development setups can turn it off.
func NewManager(store Store, cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = def.MaxAge
	}
	if cfg.Path == "" {
		cfg.Path = def.Path
	}
	if cfg.SameSite == 0 {
		cfg.SameSite = def.SameSite
	}
	return &Manager{store: store, cfg: cfg}
}

// Get loads the session named by the request cookie. A missing, expired
// or unreadable session yields a fresh one; the load error is returned
// alongside it so callers can log store outages.
func (m *Manager) Get(r *http.Request) (*Session, error) {
	c, err := r.Cookie(m.cfg.CookieName)
	if err != nil || c.Value == "" {
		return m.New(), nil
	}
	data, err := m.store.Load(r.Context(), c.Value)
	switch {
	case err == nil && time.Now().Before(data.ExpiresAt):
		values := data.Values
		if values == nil {
			values = make(map[string]any)
		}
		return &Session{id: data.ID, data: values, expiresAt: data.ExpiresAt}, nil
	case err == nil, errors.Is(err, ErrNotFound), errors.Is(err, ErrExpired):
		return m.New(), nil
	default:
		return m.New(), err
	}
}

// New returns an unsaved session with a random id.
func (m *Manager) New() *Session {
	return &Session{
		id:        uuid.NewString(),
		data:      make(map[string]any),
		isNew:     true,
		expiresAt: time.Now().Add(m.cfg.MaxAge),
	}
}

// Save stores s, slides its expiry, and sets the cookie.
func (m *Manager) Save(w http.ResponseWriter, r *http.Request, s *Session) error {
	s.mu.Lock()
	s.expiresAt = time.Now().Add(m.cfg.MaxAge)
	s.mu.Unlock()

	if err := m.store.Save(r.Context(), s.snapshot()); err != nil {
		return err
	}

	s.mu.Lock()
	s.modified = false
	s.isNew = false
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    s.id,
		Path:     m.cfg.Path,
		MaxAge:   int(m.cfg.MaxAge.Seconds()),
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: m.cfg.SameSite,
	})
	return nil
}

// Destroy deletes s and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request, s *Session) error {
	if err := m.store.Delete(r.Context(), s.id); err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Path:     m.cfg.Path,
		MaxAge:   -1,
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: m.cfg.SameSite,
	})
	return nil
}

// Close closes the underlying store.
func (m *Manager) Close() error { return m.store.Close() }
