// Package services contains server-side business logic. This file implements
// UserService, which handles accounts: registration, login and token
// refresh, activation, password reset, profile and settings.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/mailer"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/repomanager"
)

const (
	keyLength         = 20
	keyAttempts       = 5
	resetKeyValidity  = 4 * 7 * 24 * time.Hour
	minPasswordLength = 8
	maxPasswordLength = 255
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenRegistry records freshly issued tokens as active.
type TokenRegistry interface {
	Register(ctx context.Context, signedToken string) error
}

// PasswordChange is a new password with its confirmation.
type PasswordChange struct {
	Password        string
	PasswordConfirm string
}

// UserService provides account operations. Tokens it issues are registered
// with the TokenRegistry before they are handed out.
type UserService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	issuer       *auth.Issuer
	tokens       TokenRegistry
	mailer       mailer.Mailer
	publicDomain string
	logger       logging.Logger
	now          func() time.Time
	bcryptCost   int
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, issuer *auth.Issuer, tokens TokenRegistry,
	ml mailer.Mailer, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		db:           db,
		repomanager:  m,
		issuer:       issuer,
		tokens:       tokens,
		mailer:       ml,
		publicDomain: cfg.PublicDomain,
		logger:       logger.With("module", "users"),
		now:          time.Now,
		bcryptCost:   bcrypt.DefaultCost,
	}
}

// Identity is the token identity of a user id.
func Identity(userID int64) string {
	return strconv.FormatInt(userID, 10)
}

// ParseIdentity converts a token identity back to a user id.
func ParseIdentity(identity string) (int64, error) {
	id, err := strconv.ParseInt(identity, 10, 64)
	if err != nil || id <= 0 {
		return 0, common.ErrInvalidToken
	}
	return id, nil
}

// Register creates an account with either a password or a Facebook id.
// Password accounts start inactive and receive an activation mail.
func (s *UserService) Register(ctx context.Context, email, password, facebookID string) error {
	if email == "" || (password == "" && facebookID == "") {
		return common.ErrorInvalidRequest
	}

	repo := s.repomanager.Users(s.db)

	existing, err := repo.FindByEmail(ctx, email)
	if err == nil {
		if existing.FacebookID == "" && facebookID != "" {
			if err := repo.SetFacebookID(ctx, existing.ID, facebookID); err != nil {
				return fmt.Errorf("error attaching facebook id: %w", err)
			}
		}
		return common.ErrUserExists
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return fmt.Errorf("error searching user: %w", err)
	}

	user := &models.User{Email: email}
	if facebookID != "" {
		user.FacebookID = facebookID
		user.Active = true
	}
	if password != "" {
		hash, err := s.hashPassword(password)
		if err != nil {
			return err
		}
		user.PasswordHash = hash
	}
	if !user.Active {
		if user.ActivationKey, err = s.newKey(ctx); err != nil {
			return err
		}
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		created, err := s.repomanager.Users(tx).Create(ctx, user)
		if err != nil {
			return fmt.Errorf("error creating user: %w", err)
		}
		if err := s.repomanager.Profiles(tx).Create(ctx, created.ID); err != nil {
			return fmt.Errorf("error creating profile: %w", err)
		}
		if err := s.repomanager.Settings(tx).Create(ctx, created.ID); err != nil {
			return fmt.Errorf("error creating settings: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if user.ActivationKey != "" {
		s.sendMail(ctx, mailer.TemplateRegisterAndActivation, email, map[string]string{
			"USER_EMAIL":          email,
			"USER_ACTIVATION_URL": s.activationURL(user.ActivationKey),
		})
	}
	return nil
}

// Login checks the password or Facebook id and issues a registered token
// pair. Unknown emails and wrong secrets both yield ErrorUnauthorized.
func (s *UserService) Login(ctx context.Context, email, password, facebookID string) (*TokenPair, error) {
	if email == "" || (password == "" && facebookID == "") {
		return nil, common.ErrorInvalidRequest
	}

	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("error searching user: %w", err)
	}

	if facebookID != "" {
		if user.FacebookID == "" || user.FacebookID != facebookID {
			return nil, common.ErrorUnauthorized
		}
	} else {
		if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return nil, common.ErrorUnauthorized
		}
		if !user.Active {
			return nil, common.ErrInactiveAccount
		}
	}

	identity := Identity(user.ID)

	access, _, err := s.issuer.NewAccessToken(identity, true)
	if err != nil {
		return nil, fmt.Errorf("error issuing access token: %w", err)
	}
	refresh, _, err := s.issuer.NewRefreshToken(identity)
	if err != nil {
		return nil, fmt.Errorf("error issuing refresh token: %w", err)
	}

	if err := s.tokens.Register(ctx, access); err != nil {
		return nil, err
	}
	if err := s.tokens.Register(ctx, refresh); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "user logged in", "user", identity)
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh issues a new, non-fresh access token for identity.
func (s *UserService) Refresh(ctx context.Context, identity string) (string, error) {
	if _, err := ParseIdentity(identity); err != nil {
		return "", err
	}
	access, _, err := s.issuer.NewAccessToken(identity, false)
	if err != nil {
		return "", fmt.Errorf("error issuing access token: %w", err)
	}
	if err := s.tokens.Register(ctx, access); err != nil {
		return "", err
	}
	return access, nil
}

// RequestActivation mails the activation link again.
func (s *UserService) RequestActivation(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.Active || user.ActivationKey == "" {
		return common.ErrorInvalidRequest
	}

	s.sendMail(ctx, mailer.TemplateRequestActivation, email, map[string]string{
		"USERS_FIRST_NAME":    s.firstName(ctx, user.ID),
		"USER_EMAIL":          email,
		"USER_ACTIVATION_URL": s.activationURL(user.ActivationKey),
	})
	return nil
}

// Activate enables the account owning key and consumes the key.
func (s *UserService) Activate(ctx context.Context, key string) error {
	if key == "" {
		return common.ErrInvalidKey
	}
	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByActivationKey(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidKey
		}
		return err
	}
	if err := repo.Activate(ctx, user.ID); err != nil {
		return fmt.Errorf("error activating user: %w", err)
	}

	s.logger.Info(ctx, "user activated", "user", Identity(user.ID))
	return nil
}

// RequestPasswordReset stores a reset key valid for four weeks and mails it.
func (s *UserService) RequestPasswordReset(ctx context.Context, email string) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	key, err := s.newKey(ctx)
	if err != nil {
		return err
	}
	if err := repo.SetResetKey(ctx, user.ID, key, s.now().Add(resetKeyValidity)); err != nil {
		return fmt.Errorf("error storing reset key: %w", err)
	}

	s.sendMail(ctx, mailer.TemplatePasswordReset, email, map[string]string{
		"USERS_FIRST_NAME":            s.firstName(ctx, user.ID),
		"USER_FORGOTTEN_PASSWORD_URL": s.publicDomain + "/u/forgotten/password/key/" + key,
	})
	return nil
}

// ResetPassword sets a new password for the owner of an unexpired reset key.
func (s *UserService) ResetPassword(ctx context.Context, key string, pc PasswordChange) error {
	repo := s.repomanager.Users(s.db)

	user, err := repo.FindByResetKey(ctx, key, s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrInvalidKey
		}
		return err
	}

	if err := validatePassword(pc); err != nil {
		return err
	}
	hash, err := s.hashPassword(pc.Password)
	if err != nil {
		return err
	}
	if err := repo.SetPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("error storing password: %w", err)
	}
	return nil
}

func (s *UserService) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	return s.repomanager.Profiles(s.db).Get(ctx, userID)
}

func (s *UserService) UpdateProfile(ctx context.Context, userID int64, upd models.ProfileUpdate) error {
	if upd.Empty() {
		return common.ErrorInvalidRequest
	}
	return s.repomanager.Profiles(s.db).Update(ctx, userID, upd)
}

func (s *UserService) GetSettings(ctx context.Context, userID int64) (*models.Settings, error) {
	return s.repomanager.Settings(s.db).Get(ctx, userID)
}

// UpdateSettings applies the set fields of upd and, when pc is not nil,
// changes the password. Both happen in one transaction.
func (s *UserService) UpdateSettings(ctx context.Context, userID int64, upd models.SettingsUpdate, pc *PasswordChange) error {
	if upd.Empty() && pc == nil {
		return common.ErrorInvalidRequest
	}

	var hash string
	if pc != nil {
		if err := validatePassword(*pc); err != nil {
			return err
		}
		var err error
		if hash, err = s.hashPassword(pc.Password); err != nil {
			return err
		}
	}

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if pc != nil {
			if err := s.repomanager.Users(tx).SetPassword(ctx, userID, hash); err != nil {
				return fmt.Errorf("error storing password: %w", err)
			}
		}
		if !upd.Empty() {
			if err := s.repomanager.Settings(tx).Update(ctx, userID, upd); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetPassword replaces the password of the account with email. Used by the
// admin tool.
func (s *UserService) SetPassword(ctx context.Context, email string, pc PasswordChange) error {
	if err := validatePassword(pc); err != nil {
		return err
	}
	repo := s.repomanager.Users(s.db)
	user, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	hash, err := s.hashPassword(pc.Password)
	if err != nil {
		return err
	}
	return repo.SetPassword(ctx, user.ID, hash)
}

// --- helpers below ---

func validatePassword(pc PasswordChange) error {
	if pc.Password != pc.PasswordConfirm || len(pc.Password) < minPasswordLength || len(pc.Password) > maxPasswordLength {
		return common.ErrorInvalidRequest
	}
	return nil
}

func (s *UserService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", common.ErrorInvalidRequest
		}
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}

// newKey returns an activation or reset key not currently held by any user.
func (s *UserService) newKey(ctx context.Context) (string, error) {
	repo := s.repomanager.Users(s.db)
	for range keyAttempts {
		key, err := common.MakeRandKey(keyLength)
		if err != nil {
			return "", err
		}
		used, err := repo.KeyInUse(ctx, key)
		if err != nil {
			return "", fmt.Errorf("error checking key: %w", err)
		}
		if !used {
			return key, nil
		}
	}
	return "", common.ErrorInternal
}

func (s *UserService) activationURL(key string) string {
	return s.publicDomain + "/u/activation/key/" + key
}

func (s *UserService) firstName(ctx context.Context, userID int64) string {
	p, err := s.repomanager.Profiles(s.db).Get(ctx, userID)
	if err != nil {
		return ""
	}
	return p.FirstName
}

// sendMail does not fail the calling operation; the account change is
// already stored.
func (s *UserService) sendMail(ctx context.Context, tmpl, to string, params map[string]string) {
	if err := s.mailer.Send(ctx, tmpl, to, params); err != nil {
		s.logger.Error(ctx, "failed to send mail", "template", tmpl, "to", to, "error", err)
	}
}
