package main

import (
	"context"
	"regexp"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrationsOrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/0002_issues.up.sql": {Data: []byte("CREATE TABLE issues ();")},
		"migrations/0001_users.up.sql":  {Data: []byte("CREATE TABLE users ();")},
		"migrations/README.md":          {Data: []byte("ignored")},
	}

	migrations, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, "0001_users", migrations[0].Version)
	assert.Equal(t, "0002_issues", migrations[1].Version)
}

func TestEmbeddedMigrationsCreateAuditTable(t *testing.T) {
	migrations, err := loadMigrations(migrationFiles)
	require.NoError(t, err)
	require.Len(t, migrations, 3)
	assert.Contains(t, migrations[2].SQL, "CREATE TABLE IF NOT EXISTS audit_logs")
	assert.NotContains(t, migrations[2].SQL, "REFERENCES issues")
}

func TestApplySkipsRecordedVersions(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := sqlx.NewDb(sqlDB, "sqlmock")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT version FROM schema_migrations")).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow("0001_users"))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE issues ();")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO schema_migrations")).WithArgs("0002_issues").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	applied, err := apply(context.Background(), db, []migration{
		{Version: "0001_users", SQL: "CREATE TABLE users ();"},
		{Version: "0002_issues", SQL: "CREATE TABLE issues ();"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"0002_issues"}, applied)
	require.NoError(t, mock.ExpectationsWereMet())
}
