package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func TestMigrate(t *testing.T) {
	t.Run("applies schema in one transaction", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_accounts").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		assert.NoError(t, Migrate(context.Background(), db))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rolls back on failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE IF NOT EXISTS ledger_accounts").WillReturnError(errors.New("permission denied"))
		mock.ExpectRollback()

		err = Migrate(context.Background(), db)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "error applying schema")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSchemaInvariants(t *testing.T) {
	assert.Contains(t, Schema, "UNIQUE (initiator_id, idempotency_key)")
	assert.Contains(t, Schema, "UNIQUE (owner_type, owner_ref, code, currency)")
	assert.Contains(t, Schema, "DEFERRABLE INITIALLY DEFERRED")
	assert.Contains(t, Schema, "CREATE OR REPLACE VIEW loc_exposure")
	assert.Contains(t, Schema, "CREATE OR REPLACE VIEW timeline_by_customer")
}

func TestDBConfig_DSN(t *testing.T) {
	c := &DBConfig{Host: "db", Port: "5432", User: "u", Password: "p", Name: "jbank", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=jbank sslmode=disable", c.DSN())
}
