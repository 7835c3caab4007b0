package sessions

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

const sessionColumns = `id, jti, token_type, user_identity, revoked, expires_at, created_at`

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.Session, error) {
	s := &models.Session{}
	var tokenType string
	if err := row.Scan(&s.ID, &s.JTI, &tokenType, &s.UserIdentity, &s.Revoked, &s.ExpiresAt, &s.CreatedAt); err != nil {
		return nil, err
	}
	s.TokenType = models.TokenType(tokenType)
	return s, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.Session) (*models.Session, error) {
	query := `
		INSERT INTO user_session (jti, token_type, user_identity, revoked, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	created := *s
	if err := r.db.QueryRowContext(ctx, query, s.JTI, string(s.TokenType), s.UserIdentity, s.Revoked, s.ExpiresAt).
		Scan(&created.ID, &created.CreatedAt); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &created, nil
}

func (r *PostgresRepository) FindByJTI(ctx context.Context, jti string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_session WHERE jti = $1`
	return r.findOne(ctx, query, jti)
}

func (r *PostgresRepository) FindForUser(ctx context.Context, id int64, userIdentity string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_session WHERE id = $1 AND user_identity = $2`
	return r.findOne(ctx, query, id, userIdentity)
}

func (r *PostgresRepository) findOne(ctx context.Context, query string, args ...any) (*models.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) ListForUser(ctx context.Context, userIdentity string) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_session WHERE user_identity = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, userIdentity)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) SetRevoked(ctx context.Context, id int64, userIdentity string, revoked bool) error {
	query := `UPDATE user_session SET revoked = $1 WHERE id = $2 AND user_identity = $3`

	res, err := r.db.ExecContext(ctx, query, revoked, id, userIdentity)
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

func (r *PostgresRepository) JTIsForUser(ctx context.Context, userIdentity string, ids []int64) ([]string, error) {
	if len(ids) == 0 {
		return []string{}, nil
	}
	query := `SELECT jti FROM user_session WHERE user_identity = $1 AND id IN (` + dbx.Placeholders(2, len(ids)) + `)`
	return r.selectJTIs(ctx, query, idArgs(userIdentity, ids)...)
}

func (r *PostgresRepository) DeleteForUser(ctx context.Context, userIdentity string, ids []int64) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query := `DELETE FROM user_session WHERE user_identity = $1 AND id IN (` + dbx.Placeholders(2, len(ids)) + `)`
	return r.exec(ctx, query, idArgs(userIdentity, ids)...)
}

func (r *PostgresRepository) ListExpired(ctx context.Context, now time.Time) ([]string, error) {
	return r.selectJTIs(ctx, `SELECT jti FROM user_session WHERE expires_at < $1`, now)
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, `DELETE FROM user_session WHERE expires_at < $1`, now)
}

func (r *PostgresRepository) selectJTIs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	jtis := make([]string, 0)
	for rows.Next() {
		var jti string
		if err := rows.Scan(&jti); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		jtis = append(jtis, jti)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return jtis, nil
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func idArgs(userIdentity string, ids []int64) []any {
	args := make([]any, 0, len(ids)+1)
	args = append(args, userIdentity)
	for _, id := range ids {
		args = append(args, id)
	}
	return args
}
