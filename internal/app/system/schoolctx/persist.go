package schoolctx

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/schoolctx/pantry/session"
)

// ErrStorageUnavailable is returned by persisters that cannot reach
// their backing storage.
var ErrStorageUnavailable = errors.New("schoolctx: selection storage unavailable")

// Persister stores the explicit selection for one tab.
type Persister interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, schoolID string) error
	Remove(ctx context.Context) error
}

const selectionKey = "selectedSchoolId"

// SelectionKey is the session key for tab, or the shared key when tab
// is empty.
func SelectionKey(tab string) string {
	if tab == "" {
		return selectionKey
	}
	return selectionKey + ":" + tab
}

// SessionPersister keeps the selection in the caller's session.
type SessionPersister struct {
	Session *session.Session
	Tab     string
}

// Read returns the stored id, "" when the key is absent.
func (p SessionPersister) Read(context.Context) (string, error) {
	if p.Session == nil {
		return "", ErrStorageUnavailable
	}
	return p.Session.GetString(SelectionKey(p.Tab)), nil
}

// Write stores schoolID under the tab's key. The session is saved when
// the response is written.
func (p SessionPersister) Write(_ context.Context, schoolID string) error {
	if p.Session == nil {
		return ErrStorageUnavailable
	}
	p.Session.Set(SelectionKey(p.Tab), schoolID)
	return nil
}

// Remove deletes the tab's key.
func (p SessionPersister) Remove(context.Context) error {
	if p.Session == nil {
		return ErrStorageUnavailable
	}
	p.Session.Delete(SelectionKey(p.Tab))
	return nil
}

// MemoryPersister holds one value in process memory.
type MemoryPersister struct {
	mu     sync.Mutex
	value  string
	set    bool
	writes int
}

// NewMemoryPersister returns an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister { return &MemoryPersister{} }

// Read returns the held value.
func (p *MemoryPersister) Read(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, nil
}

// Write replaces the held value.
func (p *MemoryPersister) Write(_ context.Context, schoolID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value, p.set = schoolID, true
	p.writes++
	return nil
}

// Remove clears the held value.
func (p *MemoryPersister) Remove(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.value, p.set = "", false
	p.writes++
	return nil
}

// Stored reports the persisted value and whether the key exists.
func (p *MemoryPersister) Stored() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.set
}

// Writes counts Write and Remove calls.
func (p *MemoryPersister) Writes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writes
}

// FailingPersister behaves like disabled storage.
type FailingPersister struct{}

// Read always fails with ErrStorageUnavailable.
func (FailingPersister) Read(context.Context) (string, error) { return "", ErrStorageUnavailable }

// Write always fails with ErrStorageUnavailable.
func (FailingPersister) Write(context.Context, string) error { return ErrStorageUnavailable }

// Remove always fails with ErrStorageUnavailable.
func (FailingPersister) Remove(context.Context) error { return ErrStorageUnavailable }
