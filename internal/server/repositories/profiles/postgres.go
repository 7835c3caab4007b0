package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/dbx"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID int64) error {
	if _, err := r.db.ExecContext(ctx, `INSERT INTO user_profile (user_id) VALUES ($1)`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.Profile, error) {
	query := `
		SELECT p.user_id, u.email, p.first_name, p.last_name, p.headline, p.country_id, p.city_id, p.profile_image_key
		FROM user_profile AS p
		JOIN users AS u ON u.id = p.user_id
		WHERE p.user_id = $1
	`
	p := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&p.UserID, &p.Email, &p.FirstName, &p.LastName, &p.Headline, &p.CountryID, &p.CityID, &p.ProfileImageKey,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return p, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID int64, upd models.ProfileUpdate) error {
	if upd.Empty() {
		return common.ErrorInvalidRequest
	}

	var (
		sets []string
		args []any
	)
	add := func(column string, v any) {
		args = append(args, v)
		sets = append(sets, column+" = $"+strconv.Itoa(len(args)))
	}
	if upd.FirstName != nil {
		add("first_name", *upd.FirstName)
	}
	if upd.LastName != nil {
		add("last_name", *upd.LastName)
	}
	if upd.Headline != nil {
		add("headline", *upd.Headline)
	}
	if upd.CountryID != nil {
		add("country_id", *upd.CountryID)
	}
	if upd.CityID != nil {
		add("city_id", *upd.CityID)
	}
	args = append(args, userID)

	query := `UPDATE user_profile SET ` + strings.Join(sets, ", ") + ` WHERE user_id = $` + strconv.Itoa(len(args))
	return r.exec(ctx, query, args...)
}

func (r *PostgresRepository) SetImageKey(ctx context.Context, userID int64, key string) error {
	return r.exec(ctx, `UPDATE user_profile SET profile_image_key = $1 WHERE user_id = $2`, key, userID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
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
