// Package sessions declares the durable store of issued tokens
// (the user_session relation) and its PostgreSQL implementation.
package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository is the source of truth for token records.
type Repository interface {
	// Create inserts s and returns it with the store-assigned ID and CreatedAt.
	Create(ctx context.Context, s *models.Session) (*models.Session, error)

	// FindByJTI returns common.ErrorNotFound when no record carries jti.
	FindByJTI(ctx context.Context, jti string) (*models.Session, error)

	// FindForUser looks a record up by id, scoped to its owner.
	FindForUser(ctx context.Context, id int64, userIdentity string) (*models.Session, error)

	// ListForUser returns all records of userIdentity, revoked or not, by id.
	ListForUser(ctx context.Context, userIdentity string) ([]*models.Session, error)

	// SetRevoked updates a single owned record; common.ErrorNotFound if none matched.
	SetRevoked(ctx context.Context, id int64, userIdentity string, revoked bool) error

	// JTIsForUser resolves the jtis of the given ids that belong to userIdentity.
	JTIsForUser(ctx context.Context, userIdentity string, ids []int64) ([]string, error)

	// DeleteForUser removes the owned records among ids in one statement.
	DeleteForUser(ctx context.Context, userIdentity string, ids []int64) (int64, error)

	// ListExpired returns the jtis of records with expires_at strictly before now.
	ListExpired(ctx context.Context, now time.Time) ([]string, error)

	// DeleteExpired removes every record with expires_at strictly before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
