package filestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/authkeeper/authkeeper/internal/apperrors"
	"github.com/authkeeper/authkeeper/internal/credstore"
	"github.com/authkeeper/authkeeper/internal/models"
)

// FileStore persists the session as a single JSON file. Writes go to a
// temporary file in the same directory followed by a rename, so a crash mid
// write leaves either the old record or the new one, never a mix.
type FileStore struct {
	path string

	// Serializes writers within the process; cross process locking is out of scope
	mu sync.Mutex
}

var _ credstore.Store = (*FileStore)(nil)

// Persisted record. Kept separate from the domain model so the on disk
// format does not drift with internal refactors.
type record struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	User         userRecord `json:"user"`
	SavedAt      time.Time  `json:"saved_at"`
}

type userRecord struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Role        int        `json:"role"`
	RoleName    string     `json:"role_name"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

func New(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("session file path must not be empty")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	return &FileStore{path: path}, nil
}

func (s *FileStore) Load(_ context.Context) (models.Session, error) {
	data, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return models.Session{}, apperrors.ErrNoSession
	case err != nil:
		return models.Session{}, fmt.Errorf("failed to read session file: %w", err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		// Corrupt data reads as logged out, not as an error
		return models.Session{}, apperrors.ErrNoSession
	}

	if rec.AccessToken == "" || rec.RefreshToken == "" {
		return models.Session{}, apperrors.ErrNoSession
	}

	return models.Session{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		User: models.User{
			ID:          rec.User.ID,
			Email:       rec.User.Email,
			Username:    rec.User.Username,
			Role:        models.Role(rec.User.Role),
			RoleName:    rec.User.RoleName,
			IsActive:    rec.User.IsActive,
			CreatedAt:   rec.User.CreatedAt,
			LastLoginAt: rec.User.LastLoginAt,
		},
	}, nil
}

func (s *FileStore) Save(_ context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := record{
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		User: userRecord{
			ID:          session.User.ID,
			Email:       session.User.Email,
			Username:    session.User.Username,
			Role:        int(session.User.Role),
			RoleName:    session.User.RoleName,
			IsActive:    session.User.IsActive,
			CreatedAt:   session.User.CreatedAt,
			LastLoginAt: session.User.LastLoginAt,
		},
		SavedAt: time.Now().UTC(),
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	// Write sideways then rename for an atomic swap
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".session-*")
	if err != nil {
		return fmt.Errorf("failed to create temp session file: %w", err)
	}
	defer os.Remove(tmp.Name()) // nolint:errcheck

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("failed to set session file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close() // nolint:errcheck
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close session file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}

func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove session file: %w", err)
	}
	return nil
}
