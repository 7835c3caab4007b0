// Package httpapi exposes the authentication and account endpoints over
// HTTP using gin. Errors are reported as {"message", "error_code"}.
package httpapi

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/services"
)

// TokenManager is the owner-scoped token lifecycle.
type TokenManager interface {
	ListTokens(ctx context.Context, userIdentity string) ([]*models.Session, error)
	GetToken(ctx context.Context, tokenID int64, userIdentity string) (*models.Session, error)
	Revoke(ctx context.Context, tokenID int64, userIdentity string) (bool, error)
	Unrevoke(ctx context.Context, tokenID int64, userIdentity string) (bool, error)
	DeleteTokens(ctx context.Context, tokenIDs []int64, userIdentity string) error
}

// Accounts is implemented by services.UserService.
type Accounts interface {
	Register(ctx context.Context, email, password, facebookID string) error
	Login(ctx context.Context, email, password, facebookID string) (*services.TokenPair, error)
	Refresh(ctx context.Context, identity string) (string, error)
	RequestActivation(ctx context.Context, email string) error
	Activate(ctx context.Context, key string) error
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, key string, pc services.PasswordChange) error
	GetProfile(ctx context.Context, userID int64) (*models.Profile, error)
	UpdateProfile(ctx context.Context, userID int64, upd models.ProfileUpdate) error
	GetSettings(ctx context.Context, userID int64) (*models.Settings, error)
	UpdateSettings(ctx context.Context, userID int64, upd models.SettingsUpdate, pc *services.PasswordChange) error
}

// ProfileImages is implemented by services.ProfileImageService.
type ProfileImages interface {
	Upload(ctx context.Context, userID int64, fileName string) (*services.ImageUpload, error)
	URL(ctx context.Context, userID int64) (string, error)
	Delete(ctx context.Context, userID int64) error
}

type Handler struct {
	tokens   TokenManager
	accounts Accounts
	images   ProfileImages
	logger   logging.Logger
}

func NewHandler(tokens TokenManager, accounts Accounts, images ProfileImages, logger logging.Logger) *Handler {
	return &Handler{
		tokens:   tokens,
		accounts: accounts,
		images:   images,
		logger:   logger.With("module", "http"),
	}
}

type tokenResponse struct {
	ID           int64     `json:"id"`
	JTI          string    `json:"jti"`
	TokenType    string    `json:"token_type"`
	UserIdentity string    `json:"user_identity"`
	Revoked      bool      `json:"revoked"`
	Expires      time.Time `json:"expires"`
	CreatedAt    time.Time `json:"created_at"`
}

func newTokenResponse(s *models.Session) tokenResponse {
	return tokenResponse{
		ID:           s.ID,
		JTI:          s.JTI,
		TokenType:    string(s.TokenType),
		UserIdentity: s.UserIdentity,
		Revoked:      s.Revoked,
		Expires:      s.ExpiresAt,
		CreatedAt:    s.CreatedAt,
	}
}

type profileResponse struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Headline  string `json:"headline"`
	CountryID int64  `json:"country_id"`
	CityID    int64  `json:"city_id"`
}

type settingsResponse struct {
	EmailNotifications     int `json:"email_notifications"`
	EmailMonthlyNewsletter int `json:"email_monthly_newsletter"`
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
