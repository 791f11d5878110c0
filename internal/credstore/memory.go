package credstore

import (
	"context"
	"sync"

	"github.com/authkeeper/authkeeper/internal/apperrors"
	"github.com/authkeeper/authkeeper/internal/models"
)

// MemoryStore keeps the session in process memory. It does not survive
// restarts; meant for tests and short-lived tools.
type MemoryStore struct {
	mu      sync.RWMutex
	session *models.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.session == nil {
		return models.Session{}, apperrors.ErrNoSession
	}
	return *s.session, nil
}

func (s *MemoryStore) Save(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = &session
	return nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}
