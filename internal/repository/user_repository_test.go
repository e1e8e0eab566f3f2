package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/ops-tracker-api/internal/models"
)

func newMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	return sqlxdb, mock, func() {
		db.Close()
	}
}

var userRowColumns = []string{"id", "name", "email", "password_hash", "role", "active", "last_login", "created_at", "updated_at"}

func TestFindByEmailNormalises(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows(userRowColumns).
		AddRow("u1", "Jane", "jane@example.com", "hash", string(models.RoleManager), true, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("jane@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "  Jane@Example.com ")
	require.NoError(t, err)
	assert.Equal(t, "Jane", user.Name)
	assert.Equal(t, models.RoleManager, user.Role)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestFindRefs(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, email FROM users WHERE id = ANY($1)")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "email"}).
			AddRow("u1", "Admin", "admin@example.com"))

	refs, err := repo.FindRefs(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	assert.Len(t, refs, 1)
	assert.Equal(t, "Admin", refs["u1"].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindRefsEmptySkipsQuery(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	refs, err := NewUserRepository(db).FindRefs(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, refs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewUserRepository(db)

	mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))

	user := &models.User{Name: "Bob", Email: "Bob@Example.com", PasswordHash: "hash", Role: models.RoleUser, Active: true}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "bob@example.com", user.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}
