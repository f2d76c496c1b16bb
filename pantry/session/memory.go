// pantry/session/memory.go
package session

import (
	"context"
	"maps"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process. Expired entries are swept
// periodically until Close.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Data
	stop     chan struct{}
	done     chan struct{}
}

// NewMemoryStore starts a sweeper that removes expired sessions every
// cleanupInterval (default 10 minutes). Call Close to stop it.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	s := &MemoryStore{
		sessions: make(map[string]*Data),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.sweep(cleanupInterval)
	return s
}

// Load returns a copy of the stored data.
func (s *MemoryStore) Load(_ context.Context, id string) (*Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if time.Now().After(d.ExpiresAt) {
		return nil, ErrExpired
	}
	return cloneData(d), nil
}

// Save stores a copy of d.
func (s *MemoryStore) Save(_ context.Context, d *Data) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[d.ID] = cloneData(d)
	return nil
}

// Delete removes id. Missing ids are not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// Close stops the sweeper and waits for it. It is safe to call twice.
func (s *MemoryStore) Close() error {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
	<-s.done
	return nil
}

// Len counts stored sessions, including expired ones not yet swept.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) sweep(interval time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-t.C:
			s.mu.Lock()
			for id, d := range s.sessions {
				if now.After(d.ExpiresAt) {
					delete(s.sessions, id)
				}
			}
			s.mu.Unlock()
		}
	}
}

func cloneData(d *Data) *Data {
	c := *d
	c.Values = maps.Clone(d.Values)
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	return &c
}
