package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/authkeeper/authkeeper/internal/apperrors"
	"github.com/authkeeper/authkeeper/internal/credstore"
	"github.com/authkeeper/authkeeper/internal/models"
)

// SQLiteStore persists the session in a single-row sqlite table. Each Save
// replaces the row in one statement, so readers see either the previous
// session or the new one.
type SQLiteStore struct {
	db *sql.DB
}

var _ credstore.Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS session (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	access_token  TEXT NOT NULL,
	refresh_token TEXT NOT NULL,
	user_profile  TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);`

type userProfile struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	Username    string     `json:"username"`
	Role        int        `json:"role"`
	RoleName    string     `json:"role_name"`
	IsActive    bool       `json:"is_active"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// Open opens (creating if needed) the sqlite database at path and ensures
// the session table exists.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("database path must not be empty")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open session database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close() // nolint:errcheck
		return nil, fmt.Errorf("failed to create session table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (models.Session, error) {
	var access, refresh, profileJSON string

	err := s.db.QueryRowContext(ctx,
		"SELECT access_token, refresh_token, user_profile FROM session WHERE id = 1",
	).Scan(&access, &refresh, &profileJSON)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return models.Session{}, apperrors.ErrNoSession
	case err != nil:
		return models.Session{}, fmt.Errorf("failed to load session: %w", err)
	}

	var p userProfile
	if err := json.Unmarshal([]byte(profileJSON), &p); err != nil {
		// Corrupt profile reads as logged out, not as an error
		return models.Session{}, apperrors.ErrNoSession
	}

	if access == "" || refresh == "" {
		return models.Session{}, apperrors.ErrNoSession
	}

	return models.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		User: models.User{
			ID:          p.ID,
			Email:       p.Email,
			Username:    p.Username,
			Role:        models.Role(p.Role),
			RoleName:    p.RoleName,
			IsActive:    p.IsActive,
			CreatedAt:   p.CreatedAt,
			LastLoginAt: p.LastLoginAt,
		},
	}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, session models.Session) error {
	profileJSON, err := json.Marshal(userProfile{
		ID:          session.User.ID,
		Email:       session.User.Email,
		Username:    session.User.Username,
		Role:        int(session.User.Role),
		RoleName:    session.User.RoleName,
		IsActive:    session.User.IsActive,
		CreatedAt:   session.User.CreatedAt,
		LastLoginAt: session.User.LastLoginAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session (id, access_token, refresh_token, user_profile, updated_at)
		 VALUES (1, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			user_profile  = excluded.user_profile,
			updated_at    = excluded.updated_at`,
		session.AccessToken, session.RefreshToken, string(profileJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM session WHERE id = 1"); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// Close releases the underlying database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
