package sessions

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionCols = []string{"id", "jti", "token_type", "user_identity", "revoked", "expires_at", "created_at"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_ReturnsIDAndCreatedAt(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	expires := time.Now().Add(time.Hour).UTC()
	created := time.Now().UTC()

	q := `(?s)^\s*INSERT\s+INTO\s+user_session\s+\(jti,\s*token_type,\s*user_identity,\s*revoked,\s*expires_at\)\s+VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5\)\s+RETURNING\s+id,\s*created_at\s*$`
	mock.ExpectQuery(q).
		WithArgs("A1", "access", "U1", false, expires).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), created))

	in := &models.Session{JTI: "A1", TokenType: models.TokenTypeAccess, UserIdentity: "U1", ExpiresAt: expires}
	got, err := repo.Create(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, int64(1), got.ID)
	assert.Equal(t, created, got.CreatedAt)
	assert.Equal(t, "A1", got.JTI)
	assert.Zero(t, in.ID, "input must not be mutated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT\s+INTO\s+user_session`).WillReturnError(errors.New("unique violation"))

	_, err := repo.Create(context.Background(), &models.Session{JTI: "A1", TokenType: models.TokenTypeAccess})
	if err == nil || !regexp.MustCompile(`db error: .*unique violation`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByJTI(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	created := time.Now()
	q := `(?s)^SELECT\s+id,\s*jti,\s*token_type,\s*user_identity,\s*revoked,\s*expires_at,\s*created_at\s+FROM\s+user_session\s+WHERE\s+jti\s*=\s*\$1$`

	t.Run("found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("A1").
			WillReturnRows(sqlmock.NewRows(sessionCols).AddRow(int64(7), "A1", "refresh", "U1", true, expires, created))

		got, err := repo.FindByJTI(context.Background(), "A1")
		require.NoError(t, err)
		assert.Equal(t, &models.Session{
			ID: 7, JTI: "A1", TokenType: models.TokenTypeRefresh, UserIdentity: "U1",
			Revoked: true, ExpiresAt: expires, CreatedAt: created,
		}, got)
	})

	t.Run("not found", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("missing").WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByJTI(context.Background(), "missing")
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("db error is not a miss", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectQuery(q).WithArgs("A1").WillReturnError(context.DeadlineExceeded)

		_, err := repo.FindByJTI(context.Background(), "A1")
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestFindForUser_ScopedByOwner(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `FROM\s+user_session\s+WHERE\s+id\s*=\s*\$1\s+AND\s+user_identity\s*=\s*\$2$`
	mock.ExpectQuery(q).WithArgs(int64(1), "U2").WillReturnError(sql.ErrNoRows)

	_, err := repo.FindForUser(context.Background(), 1, "U2")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	q := `WHERE\s+user_identity\s*=\s*\$1\s+ORDER\s+BY\s+id$`
	mock.ExpectQuery(q).WithArgs("U1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(int64(1), "A1", "access", "U1", false, now, now).
			AddRow(int64(2), "R1", "refresh", "U1", true, now, now))

	got, err := repo.ListForUser(context.Background(), "U1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "A1", got[0].JTI)
	assert.Equal(t, models.TokenTypeRefresh, got[1].TokenType)
	assert.True(t, got[1].Revoked)
}

func TestListForUser_EmptyIsNotNil(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`FROM\s+user_session`).WithArgs("U1").WillReturnRows(sqlmock.NewRows(sessionCols))

	got, err := repo.ListForUser(context.Background(), "U1")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListForUser_RowError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`FROM\s+user_session`).WithArgs("U1").
		WillReturnRows(sqlmock.NewRows(sessionCols).
			AddRow(int64(1), "A1", "access", "U1", false, now, now).
			RowError(0, errors.New("broken row")))

	_, err := repo.ListForUser(context.Background(), "U1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestSetRevoked(t *testing.T) {
	q := `^UPDATE\s+user_session\s+SET\s+revoked\s*=\s*\$1\s+WHERE\s+id\s*=\s*\$2\s+AND\s+user_identity\s*=\s*\$3$`

	t.Run("updated", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs(true, int64(1), "U1").WillReturnResult(sqlmock.NewResult(0, 1))
		require.NoError(t, repo.SetRevoked(context.Background(), 1, "U1", true))
	})

	t.Run("no row matched", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs(false, int64(1), "U2").WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, repo.SetRevoked(context.Background(), 1, "U2", false), common.ErrorNotFound)
	})

	t.Run("db error", func(t *testing.T) {
		repo, mock, db := newRepoWithMock(t)
		defer db.Close()

		mock.ExpectExec(q).WithArgs(true, int64(1), "U1").WillReturnError(errors.New("conn reset"))
		err := repo.SetRevoked(context.Background(), 1, "U1", true)
		require.Error(t, err)
		assert.NotErrorIs(t, err, common.ErrorNotFound)
	})
}

func TestJTIsForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^SELECT\s+jti\s+FROM\s+user_session\s+WHERE\s+user_identity\s*=\s*\$1\s+AND\s+id\s+IN\s+\(\$2,\s*\$3\)$`
	mock.ExpectQuery(q).WithArgs("U1", int64(1), int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"jti"}).AddRow("A1").AddRow("R1"))

	got, err := repo.JTIsForUser(context.Background(), "U1", []int64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "R1"}, got)
}

func TestJTIsForUser_NoIDsSkipsQuery(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	got, err := repo.JTIsForUser(context.Background(), "U1", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteForUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^DELETE\s+FROM\s+user_session\s+WHERE\s+user_identity\s*=\s*\$1\s+AND\s+id\s+IN\s+\(\$2\)$`
	mock.ExpectExec(q).WithArgs("U1", int64(1)).WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.DeleteForUser(context.Background(), "U1", []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeleteForUser_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE\s+FROM\s+user_session`).WillReturnError(errors.New("db down"))

	_, err := repo.DeleteForUser(context.Background(), "U1", []int64{1, 2})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestListExpired_StrictPredicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery(`^SELECT\s+jti\s+FROM\s+user_session\s+WHERE\s+expires_at\s*<\s*\$1$`).WithArgs(now).
		WillReturnRows(sqlmock.NewRows([]string{"jti"}).AddRow("old"))

	got, err := repo.ListExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, []string{"old"}, got)
}

func TestDeleteExpired(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(`^DELETE\s+FROM\s+user_session\s+WHERE\s+expires_at\s*<\s*\$1$`).WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
