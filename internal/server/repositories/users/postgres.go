package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const userColumns = `id, email, password_hash, facebook_id, is_active, activation_key, reset_key, reset_key_expires_at, created_at`

// PostgresRepository implements Repository over dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, u *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email, password_hash, facebook_id, is_active, activation_key)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	created := *u
	if err := r.db.QueryRowContext(ctx, query, u.Email, u.PasswordHash, u.FacebookID, u.Active, u.ActivationKey).
		Scan(&created.ID, &created.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &created, nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PostgresRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PostgresRepository) FindByActivationKey(ctx context.Context, key string) (*models.User, error) {
	return r.findOne(ctx, `SELECT `+userColumns+` FROM users WHERE activation_key = $1 AND activation_key <> ''`, key)
}

func (r *PostgresRepository) FindByResetKey(ctx context.Context, key string, now time.Time) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE reset_key = $1 AND reset_key <> '' AND reset_key_expires_at > $2`
	return r.findOne(ctx, query, key, now)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.User, error) {
	u := &models.User{}
	var resetExpires sql.NullTime
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.PasswordHash, &u.FacebookID, &u.Active,
		&u.ActivationKey, &u.ResetKey, &resetExpires, &u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if resetExpires.Valid {
		u.ResetKeyExpiresAt = resetExpires.Time
	}
	return u, nil
}

func (r *PostgresRepository) KeyInUse(ctx context.Context, key string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM users WHERE activation_key = $1 OR reset_key = $1)`
	var exists bool
	if err := r.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) SetFacebookID(ctx context.Context, id int64, facebookID string) error {
	return r.update(ctx, `UPDATE users SET facebook_id = $1 WHERE id = $2`, facebookID, id)
}

func (r *PostgresRepository) Activate(ctx context.Context, id int64) error {
	return r.update(ctx, `UPDATE users SET is_active = true, activation_key = '' WHERE id = $1`, id)
}

func (r *PostgresRepository) SetResetKey(ctx context.Context, id int64, key string, expiresAt time.Time) error {
	return r.update(ctx, `UPDATE users SET reset_key = $1, reset_key_expires_at = $2 WHERE id = $3`, key, expiresAt, id)
}

func (r *PostgresRepository) SetPassword(ctx context.Context, id int64, passwordHash string) error {
	query := `UPDATE users SET password_hash = $1, reset_key = '', reset_key_expires_at = NULL WHERE id = $2`
	return r.update(ctx, query, passwordHash, id)
}

func (r *PostgresRepository) update(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
