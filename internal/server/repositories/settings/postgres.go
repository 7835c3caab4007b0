package settings

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
	if _, err := r.db.ExecContext(ctx, `INSERT INTO user_settings (user_id) VALUES ($1)`, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.Settings, error) {
	query := `SELECT user_id, email_notifications, email_monthly_newsletter FROM user_settings WHERE user_id = $1`

	s := &models.Settings{}
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&s.UserID, &s.EmailNotifications, &s.EmailMonthlyNewsletter); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) Update(ctx context.Context, userID int64, upd models.SettingsUpdate) error {
	if upd.Empty() {
		return common.ErrorInvalidRequest
	}

	var (
		sets []string
		args []any
	)
	if upd.EmailNotifications != nil {
		args = append(args, *upd.EmailNotifications)
		sets = append(sets, "email_notifications = $"+strconv.Itoa(len(args)))
	}
	if upd.EmailMonthlyNewsletter != nil {
		args = append(args, *upd.EmailMonthlyNewsletter)
		sets = append(sets, "email_monthly_newsletter = $"+strconv.Itoa(len(args)))
	}
	args = append(args, userID)

	query := `UPDATE user_settings SET ` + strings.Join(sets, ", ") + ` WHERE user_id = $` + strconv.Itoa(len(args))

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
