package schoolctx

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// Selection is the explicitly chosen school for one tab. Storage is
// best-effort: failures are logged at debug and the in-memory value
// stays authoritative.
type Selection struct {
	mu     sync.RWMutex
	id     string
	store  Persister
	logger *zap.Logger
}

// LoadSelection reads the persisted selection once.
func LoadSelection(ctx context.Context, store Persister, logger *zap.Logger) *Selection {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = FailingPersister{}
	}
	s := &Selection{store: store, logger: logger}
	id, err := store.Read(ctx)
	if err != nil {
		logger.Debug("selection read failed", zap.Error(err))
	}
	s.id = strings.TrimSpace(id)
	return s
}

// Get returns the current selection, "" when none.
func (s *Selection) Get() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Set replaces the selection. An empty id clears it and removes the
// stored key.
func (s *Selection) Set(ctx context.Context, id string) {
	id = strings.TrimSpace(id)

	s.mu.Lock()
	s.id = id
	s.mu.Unlock()

	var err error
	if id == "" {
		err = s.store.Remove(ctx)
	} else {
		err = s.store.Write(ctx, id)
	}
	if err != nil {
		s.logger.Debug("selection persist failed", zap.String("school_id", id), zap.Error(err))
	}
}
