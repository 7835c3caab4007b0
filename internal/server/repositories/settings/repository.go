// Package settings stores the user_settings relation.
package settings

import (
	"context"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID int64) error
	Get(ctx context.Context, userID int64) (*models.Settings, error)
	Update(ctx context.Context, userID int64, upd models.SettingsUpdate) error
}
