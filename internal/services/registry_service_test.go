package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jbank/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountRegistry_ProvisionAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := NewAccountRegistry(db)
	ctx := context.Background()

	t.Run("creates missing and reuses existing", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO ledger_accounts .* ON CONFLICT \\(owner_type, owner_ref, code, currency\\) DO NOTHING RETURNING id").
			WithArgs(models.OwnerLoan, "user-1:7", models.CodePrincipalCharged, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

		mock.ExpectQuery("INSERT INTO ledger_accounts").
			WithArgs(models.OwnerLoan, "user-1:7", models.CodePrincipalDue, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectQuery("SELECT id FROM ledger_accounts WHERE owner_type = \\$1 AND owner_ref = \\$2 AND code = \\$3 AND currency = \\$4").
			WithArgs(models.OwnerLoan, "user-1:7", models.CodePrincipalDue, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

		ids, err := registry.ProvisionAccounts(ctx, db, models.OwnerLoan, "user-1:7", "USD",
			[]models.AccountCode{models.CodePrincipalCharged, models.CodePrincipalDue})

		require.NoError(t, err)
		assert.Equal(t, int64(11), ids[models.CodePrincipalCharged])
		assert.Equal(t, int64(12), ids[models.CodePrincipalDue])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("storage failure is wrapped", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO ledger_accounts").
			WillReturnError(errors.New("connection reset"))

		_, err := registry.ProvisionAccounts(ctx, db, models.OwnerCustomer, "user-1:1", "USD",
			[]models.AccountCode{models.CodeCustomerDeposit})

		assert.ErrorIs(t, err, ErrStorageFailure)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountRegistry_Resolve(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := NewAccountRegistry(db)
	ctx := context.Background()

	t.Run("resolve single account", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM ledger_accounts WHERE owner_type = \\$1 AND owner_ref = \\$2 AND code = \\$3 ORDER BY id LIMIT 1").
			WithArgs(models.OwnerBank, models.BankInterestOwnerRef, models.CodeBankInterestEarned).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(3))

		id, err := registry.ResolveAccount(ctx, models.OwnerBank, models.BankInterestOwnerRef, models.CodeBankInterestEarned)
		require.NoError(t, err)
		assert.Equal(t, int64(3), id)
	})

	t.Run("missing account", func(t *testing.T) {
		mock.ExpectQuery("SELECT id FROM ledger_accounts").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := registry.ResolveAccount(ctx, models.OwnerLoan, "user-1:9", models.CodeInterestDue)
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("resolve many requires every code", func(t *testing.T) {
		mock.ExpectQuery("SELECT code, id FROM ledger_accounts WHERE owner_type = \\$1 AND owner_ref = \\$2 AND currency = \\$3 AND code = ANY\\(\\$4\\)").
			WithArgs(models.OwnerLoan, "user-1:7", "USD", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"code", "id"}).
				AddRow("CUSTOMER_PRINCIPAL_CHARGED", 11))

		_, err := registry.ResolveAccounts(ctx, db, models.OwnerLoan, "user-1:7", "USD",
			[]models.AccountCode{models.CodePrincipalCharged, models.CodePrincipalDue})
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAccountNumbers(t *testing.T) {
	t.Run("format with luhn digit", func(t *testing.T) {
		n := FormatAccountNumber("loc", 2024, 1)
		assert.Equal(t, "LOC-20240000016", n)
		assert.True(t, ValidAccountNumber(n))
	})

	t.Run("tampered number fails check", func(t *testing.T) {
		assert.False(t, ValidAccountNumber("LOC-20240000017"))
		assert.False(t, ValidAccountNumber("LOC20240000016"))
		assert.False(t, ValidAccountNumber("LN-2024x000016"))
	})

	t.Run("next number uses the sequence", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("SELECT nextval\\('account_number_seq'\\)").
			WillReturnRows(sqlmock.NewRows([]string{"nextval"}).AddRow(42))

		n, err := NewAccountRegistry(db).NextAccountNumber(context.Background(), db, "LN",
			time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "LN-2025000042", n[:len(n)-1])
		assert.True(t, ValidAccountNumber(n))
	})
}

func TestAccountRegistry_EnsureBankAccounts(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	registry := NewAccountRegistry(db)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ledger_accounts").
		WithArgs(models.OwnerBank, models.BankInterestOwnerRef, models.CodeBankInterestEarned, "USD").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO ledger_accounts").
		WithArgs(models.OwnerBank, models.BankRepaymentsOwnerRef, models.CodeBankLoanRepayments, "USD").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT id FROM ledger_accounts").
		WithArgs(models.OwnerBank, models.BankRepaymentsOwnerRef, models.CodeBankLoanRepayments, "USD").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
	mock.ExpectCommit()

	require.NoError(t, registry.EnsureBankAccounts(context.Background(), []string{"USD"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
