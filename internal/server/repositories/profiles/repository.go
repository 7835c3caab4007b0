// Package profiles stores the user_profile relation.
package profiles

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	// Create inserts an empty profile for a freshly registered user.
	Create(ctx context.Context, userID int64) error
	// Get returns the profile joined with the account email.
	Get(ctx context.Context, userID int64) (*models.Profile, error)
	// Update applies the non-nil fields of upd.
	Update(ctx context.Context, userID int64, upd models.ProfileUpdate) error
	SetImageKey(ctx context.Context, userID int64, key string) error
}
