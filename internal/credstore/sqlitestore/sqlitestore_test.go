package sqlitestore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/authkeeper/authkeeper/internal/apperrors"
	"github.com/authkeeper/authkeeper/internal/models"
)

func testSession() models.Session {
	return models.Session{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		User: models.User{
			ID:        42,
			Email:     "user@example.com",
			Username:  "testuser",
			Role:      models.RoleSuperAdmin,
			RoleName:  "super_admin",
			IsActive:  true,
			CreatedAt: time.Date(2024, 1, 1, 19, 0, 1, 0, time.UTC),
		},
	}
}

func TestSQLiteStore(t *testing.T) {
	t.Parallel()

	newStore := func(t *testing.T) *SQLiteStore {
		store, err := Open(t.Context(), filepath.Join(t.TempDir(), "session.db"))
		require.NoError(t, err, "store should open without errors")
		t.Cleanup(func() { _ = store.Close() })
		return store
	}

	t.Run("empty path rejected", func(t *testing.T) {
		_, err := Open(t.Context(), "")

		require.Error(t, err)
	})

	t.Run("load empty database", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Load(t.Context())

		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("save then load round trip", func(t *testing.T) {
		store := newStore(t)
		session := testSession()

		err := store.Save(t.Context(), session)
		require.NoError(t, err)

		got, err := store.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, session, got, "loaded session should equal saved one in all fields")
	})

	t.Run("save replaces the single row", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Save(t.Context(), testSession()))

		rotated := testSession()
		rotated.AccessToken = "rotated-access"
		rotated.RefreshToken = "rotated-refresh"

		require.NoError(t, store.Save(t.Context(), rotated))

		got, err := store.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, rotated, got)

		var count int
		err = store.db.QueryRowContext(t.Context(), "SELECT COUNT(*) FROM session").Scan(&count)
		require.NoError(t, err)
		require.Equal(t, 1, count, "store should keep exactly one row")
	})

	t.Run("survives reopen", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.db")

		first, err := Open(t.Context(), path)
		require.NoError(t, err)
		require.NoError(t, first.Save(t.Context(), testSession()))
		require.NoError(t, first.Close())

		second, err := Open(t.Context(), path)
		require.NoError(t, err)
		t.Cleanup(func() { _ = second.Close() })

		got, err := second.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, testSession(), got)
	})

	t.Run("corrupt profile reads as logged out", func(t *testing.T) {
		store := newStore(t)

		_, err := store.db.ExecContext(t.Context(),
			`INSERT INTO session (id, access_token, refresh_token, user_profile, updated_at)
			 VALUES (1, 'a', 'r', '{broken', '2024-01-01T00:00:00Z')`)
		require.NoError(t, err)

		_, err = store.Load(t.Context())
		require.ErrorIs(t, err, apperrors.ErrNoSession, "corrupt data should read as absent, not as an error")
	})

	t.Run("clear", func(t *testing.T) {
		store := newStore(t)

		require.NoError(t, store.Save(t.Context(), testSession()))
		require.NoError(t, store.Clear(t.Context()))

		_, err := store.Load(t.Context())
		require.ErrorIs(t, err, apperrors.ErrNoSession)
	})

	t.Run("clear when empty", func(t *testing.T) {
		store := newStore(t)

		err := store.Clear(t.Context())

		require.NoError(t, err)
	})
}
