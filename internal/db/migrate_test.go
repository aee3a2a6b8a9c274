package db

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func expectApplied(mock pgxmock.PgxPoolIface, name string, applied bool) {
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(name).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(applied))
}

func TestMigrate_AppliesPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	expectApplied(mock, "migrations/001_init.sql", true)
	expectApplied(mock, "migrations/002_payments.sql", false)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS payments").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").
		WithArgs("migrations/002_payments.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_SkipsApplied(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	expectApplied(mock, "migrations/001_init.sql", true)
	expectApplied(mock, "migrations/002_payments.sql", true)

	require.NoError(t, Migrate(context.Background(), mock))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_RollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	expectApplied(mock, "migrations/001_init.sql", false)
	mock.ExpectBegin()
	mock.ExpectExec("CREATE EXTENSION").
		WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = Migrate(context.Background(), mock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_init.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}
