// Package users declares the server-side repository contract for accounts.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

// Repository defines account persistence. Lookups return common.ErrorNotFound
// when nothing matches.
type Repository interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByActivationKey(ctx context.Context, key string) (*models.User, error)

	// FindByResetKey only matches keys that are still valid at now.
	FindByResetKey(ctx context.Context, key string, now time.Time) (*models.User, error)

	// KeyInUse reports whether key is a live activation or reset key.
	KeyInUse(ctx context.Context, key string) (bool, error)

	SetFacebookID(ctx context.Context, id int64, facebookID string) error
	Activate(ctx context.Context, id int64) error
	SetResetKey(ctx context.Context, id int64, key string, expiresAt time.Time) error

	// SetPassword stores a new hash and invalidates any pending reset key.
	SetPassword(ctx context.Context, id int64, passwordHash string) error
}
