package credstore

import (
	"context"

	"github.com/authkeeper/authkeeper/internal/models"
)

// Store persists the client's session credentials.
//
// Implementations must swap the whole session as a unit: Load never observes
// a token from one Save paired with a profile from another. Load returns
// apperrors.ErrNoSession when nothing is persisted or the persisted data is
// corrupt, so a broken record degrades to the logged-out state instead of a
// partially populated session.
type Store interface {
	Load(ctx context.Context) (models.Session, error)
	Save(ctx context.Context, session models.Session) error
	Clear(ctx context.Context) error
}
