package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/jbank/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var schedNow = time.Date(2024, time.March, 28, 6, 0, 0, 0, time.UTC)

const (
	candidatesSQL   = "SELECT t.id, t.user_id, t.currency, array_agg\\(rs.id ORDER BY rs.installment_no\\)"
	resolveCodesSQL = "SELECT code, id FROM ledger_accounts WHERE owner_type = \\$1 AND owner_ref = \\$2 AND currency = \\$3 AND code = ANY\\(\\$4\\)"
	lockRowsSQL     = "SELECT id, principal_due_cents, interest_due_cents FROM repayment_schedule WHERE id = ANY\\(\\$1\\) AND status = \\$2 ORDER BY id FOR UPDATE"
	advanceSQL      = "UPDATE repayment_schedule SET status = \\$1, updated_at = \\$2 WHERE id = ANY\\(\\$3\\) AND status = \\$4"
)

var (
	candidateColumns = []string{"id", "user_id", "currency", "array_agg", "sum", "sum"}
	lockedColumns    = []string{"id", "principal_due_cents", "interest_due_cents"}
)

func newScheduler(t *testing.T, rdb *redis.Client) (*LoanScheduler, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	ledger := NewDoubleLedgerService(db, nil, nil)
	ledger.clock = FixedClock(schedNow)
	scheduler := NewLoanScheduler(db, ledger, NewAccountRegistry(db), rdb, nil, nil, SchedulerOptions{})
	scheduler.clock = FixedClock(schedNow)
	scheduler.newRunID = func() string { return "run-1" }
	return scheduler, mock, func() { db.Close() }
}

func expectPosting(mock sqlmock.Sqlmock, txnID int64, user, key string, lines ...[2]int64) {
	mock.ExpectQuery(insertTxnSQL).WithArgs(user, key, sqlmock.AnyArg(), schedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "posted_at"}).AddRow(txnID, schedNow))
	accounts := make([][]any, 0, len(lines))
	for _, l := range lines {
		accounts = append(accounts, []any{l[0], "USD", true})
	}
	expectAccounts(mock, accounts...)
	for i, l := range lines {
		mock.ExpectExec(insertLineSQL).WithArgs(txnID, l[0], l[1], schedNow).
			WillReturnResult(sqlmock.NewResult(int64(i+1), 1))
	}
}

func TestLoanScheduler_RunMatureDue(t *testing.T) {
	ctx := context.Background()

	t.Run("only runs on the 28th", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		summary, err := scheduler.RunMatureDue(ctx, time.Date(2024, time.March, 27, 12, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.True(t, summary.Skipped)
		assert.Equal(t, "Due date processing only runs on the 28th of each month", summary.Message)
		assert.Equal(t, "2024-03-27", summary.AsOf)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reclassifies each loan and isolates failures", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		day := time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(candidatesSQL).WithArgs(models.SchedulePending, day).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{201}", int64(39424), int64(5000)).
				AddRow(int64(12), "user-2", "USD", "{301,302}", int64(1000), int64(100)))

		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.SchedulePending).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(int64(201), int64(39424), int64(5000)))
		mock.ExpectQuery(resolveCodesSQL).WithArgs(models.OwnerLoan, "user-1:9", "USD", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"code", "id"}).
				AddRow("CUSTOMER_PRINCIPAL_CHARGED", int64(101)).
				AddRow("CUSTOMER_PRINCIPAL_DUE", int64(102)).
				AddRow("CUSTOMER_INTEREST_CHARGED", int64(104)).
				AddRow("CUSTOMER_INTEREST_DUE", int64(105)))
		expectPosting(mock, 70, "user-1", "principal_reclass_9_2024_3", [2]int64{101, -39424}, [2]int64{102, 39424})
		expectPosting(mock, 71, "user-1", "interest_reclass_9_2024_3", [2]int64{104, -5000}, [2]int64{105, 5000})
		mock.ExpectExec(advanceSQL).WithArgs(models.ScheduleDue, schedNow, sqlmock.AnyArg(), models.SchedulePending).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.SchedulePending).
			WillReturnRows(sqlmock.NewRows(lockedColumns).
				AddRow(int64(301), int64(600), int64(60)).
				AddRow(int64(302), int64(400), int64(40)))
		mock.ExpectQuery(resolveCodesSQL).WithArgs(models.OwnerLoan, "user-2:12", "USD", sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"code", "id"}))
		mock.ExpectRollback()

		summary, err := scheduler.RunMatureDue(ctx, schedNow)
		require.NoError(t, err)
		assert.False(t, summary.Skipped)
		assert.Equal(t, "run-1", summary.RunID)
		assert.Equal(t, 2, summary.TotalCandidates)
		assert.Equal(t, 1, summary.ProcessedCount)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], "Loan 12: required ledger accounts not found")
		assert.Equal(t, "Due date processing completed", summary.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("uses the configured timezone's calendar date", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		lagos, err := time.LoadLocation("Africa/Lagos")
		require.NoError(t, err)
		scheduler.tz = lagos

		mock.ExpectQuery(candidatesSQL).
			WithArgs(models.SchedulePending, time.Date(2024, time.March, 28, 0, 0, 0, 0, time.UTC)).
			WillReturnRows(sqlmock.NewRows(candidateColumns))

		summary, err := scheduler.RunMatureDue(ctx, time.Date(2024, time.March, 27, 23, 30, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.False(t, summary.Skipped)
		assert.Equal(t, "2024-03-28", summary.AsOf)
		assert.Equal(t, "No loans with payments due today", summary.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanScheduler_RunAgeOverdue(t *testing.T) {
	scheduler, mock, done := newScheduler(t, nil)
	defer done()

	asOf := time.Date(2024, time.April, 2, 6, 0, 0, 0, time.UTC)
	mock.ExpectQuery(candidatesSQL).
		WithArgs(models.ScheduleDue, time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC)).
		WillReturnRows(sqlmock.NewRows(candidateColumns).
			AddRow(int64(9), "user-1", "USD", "{201}", int64(39424), int64(0)))

	mock.ExpectBegin()
	mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.ScheduleDue).
		WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(int64(201), int64(39424), int64(0)))
	mock.ExpectQuery(resolveCodesSQL).
		WillReturnRows(sqlmock.NewRows([]string{"code", "id"}).
			AddRow("CUSTOMER_PRINCIPAL_DUE", int64(102)).
			AddRow("CUSTOMER_PRINCIPAL_OVERDUE", int64(103)))
	expectPosting(mock, 80, "user-1", "principal_overdue_9_20240402", [2]int64{102, -39424}, [2]int64{103, 39424})
	mock.ExpectExec(advanceSQL).WithArgs(models.ScheduleOverdue, schedNow, sqlmock.AnyArg(), models.ScheduleDue).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	summary, err := scheduler.RunAgeOverdue(context.Background(), asOf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.ProcessedCount)
	assert.Empty(t, summary.Errors)
	assert.Equal(t, "Overdue aging processing completed", summary.Message)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func expectReplay(mock sqlmock.Sqlmock, txnID int64, user, key string, amount int64) {
	mock.ExpectQuery(insertTxnSQL).WithArgs(user, key, sqlmock.AnyArg(), schedNow).
		WillReturnRows(sqlmock.NewRows([]string{"id", "posted_at"}))
	mock.ExpectQuery(findTxnSQL).WithArgs(user, key).
		WillReturnRows(sqlmock.NewRows([]string{"id", "initiator_id", "idempotency_key", "metadata", "posted_at"}).
			AddRow(txnID, user, key, []byte(`{}`), schedNow.Add(-24*time.Hour)))
	mock.ExpectQuery(entryTotalSQL).WithArgs(txnID).
		WillReturnRows(sqlmock.NewRows([]string{"amount_cents", "currency"}).
			AddRow(-amount, "USD").
			AddRow(amount, "USD"))
}

func TestLoanScheduler_RowLocking(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, time.April, 2, 6, 0, 0, 0, time.UTC)
	overdueCodes := func() *sqlmock.Rows {
		return sqlmock.NewRows([]string{"code", "id"}).
			AddRow("CUSTOMER_PRINCIPAL_DUE", int64(102)).
			AddRow("CUSTOMER_PRINCIPAL_OVERDUE", int64(103))
	}

	t.Run("rolls back when the advance misses rows", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		mock.ExpectQuery(candidatesSQL).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{201}", int64(39424), int64(0)))
		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(int64(201), int64(39424), int64(0)))
		mock.ExpectQuery(resolveCodesSQL).WillReturnRows(overdueCodes())
		expectPosting(mock, 80, "user-1", "principal_overdue_9_20240402", [2]int64{102, -39424}, [2]int64{103, 39424})
		mock.ExpectExec(advanceSQL).WithArgs(models.ScheduleOverdue, schedNow, sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, 0, summary.ProcessedCount)
		require.Len(t, summary.Errors, 1)
		assert.Contains(t, summary.Errors[0], "Loan 9: ")
		assert.Contains(t, summary.Errors[0], "advanced 0 of 1 schedule rows from DUE")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("skips rows paid after candidates were loaded", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		mock.ExpectQuery(candidatesSQL).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{201}", int64(39424), int64(0)))
		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnRows(sqlmock.NewRows(lockedColumns))
		mock.ExpectRollback()

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.TotalCandidates)
		assert.Equal(t, 0, summary.ProcessedCount)
		assert.Empty(t, summary.Errors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("posts only the rows still due", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		mock.ExpectQuery(candidatesSQL).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{201,202}", int64(79242), int64(0)))
		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(int64(202), int64(39818), int64(0)))
		mock.ExpectQuery(resolveCodesSQL).WillReturnRows(overdueCodes())
		expectPosting(mock, 81, "user-1", "principal_overdue_9_20240402", [2]int64{102, -39818}, [2]int64{103, 39818})
		mock.ExpectExec(advanceSQL).WithArgs(models.ScheduleOverdue, schedNow, sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ProcessedCount)
		assert.Empty(t, summary.Errors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rerun replays postings by key", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		mock.ExpectQuery(candidatesSQL).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{201}", int64(39424), int64(0)))
		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(int64(201), int64(39424), int64(0)))
		mock.ExpectQuery(resolveCodesSQL).WillReturnRows(overdueCodes())
		expectReplay(mock, 80, "user-1", "principal_overdue_9_20240402", 39424)
		mock.ExpectExec(advanceSQL).WithArgs(models.ScheduleOverdue, schedNow, sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ProcessedCount)
		assert.Empty(t, summary.Errors)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("second run after commit changes nothing", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		// candidates were read before the first run committed
		mock.ExpectQuery(candidatesSQL).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{201}", int64(39424), int64(0)))
		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.ScheduleDue).
			WillReturnRows(sqlmock.NewRows(lockedColumns))
		mock.ExpectRollback()

		summary, err := scheduler.RunAgeOverdue(ctx, asOf.AddDate(0, 0, 1))
		require.NoError(t, err)
		assert.Equal(t, 0, summary.ProcessedCount)
		assert.Empty(t, summary.Errors)
		assert.Equal(t, "Overdue aging processing completed", summary.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanScheduler_RunAccrueInterest(t *testing.T) {
	ctx := context.Background()

	t.Run("only runs on the 1st", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		summary, err := scheduler.RunAccrueInterest(ctx, schedNow)
		require.NoError(t, err)
		assert.True(t, summary.Skipped)
		assert.Equal(t, "Interest accrual only runs on the 1st of each month", summary.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("accrues the month's interest", func(t *testing.T) {
		scheduler, mock, done := newScheduler(t, nil)
		defer done()

		first := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)
		mock.ExpectQuery(candidatesSQL).
			WithArgs(models.SchedulePending, first, first.AddDate(0, 1, 0)).
			WillReturnRows(sqlmock.NewRows(candidateColumns).
				AddRow(int64(9), "user-1", "USD", "{202}", int64(39818), int64(4606)))

		mock.ExpectBegin()
		mock.ExpectQuery(lockRowsSQL).WithArgs(sqlmock.AnyArg(), models.SchedulePending).
			WillReturnRows(sqlmock.NewRows(lockedColumns).AddRow(int64(202), int64(39818), int64(4606)))
		mock.ExpectQuery(resolveCodesSQL).
			WillReturnRows(sqlmock.NewRows([]string{"code", "id"}).AddRow("CUSTOMER_INTEREST_CHARGED", int64(104)))
		mock.ExpectQuery("INSERT INTO ledger_accounts").
			WithArgs(models.OwnerBank, models.BankInterestOwnerRef, models.CodeBankInterestEarned, "USD").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
		expectPosting(mock, 90, "user-1", "interest_accrual_9_2024_4", [2]int64{104, 4606}, [2]int64{1, -4606})
		mock.ExpectCommit()

		summary, err := scheduler.RunAccrueInterest(ctx, first.Add(3*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, summary.ProcessedCount)
		assert.Equal(t, 1, summary.TotalCandidates)
		assert.Equal(t, "Interest accrual processing completed", summary.Message)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLoanScheduler_RedisLock(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, time.March, 29, 6, 0, 0, 0, time.UTC)

	t.Run("skips while another run holds the lock", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		scheduler, mock, done := newScheduler(t, rdb)
		defer done()

		rmock.ExpectSetNX("jobs:lock:age-overdue:2024-03-29", "run-1", 10*time.Minute).SetVal(false)

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.True(t, summary.Skipped)
		assert.Contains(t, summary.Message, "already running")
		assert.NoError(t, rmock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("stores the last run and releases the lock", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		scheduler, mock, done := newScheduler(t, rdb)
		defer done()

		expected := models.JobSummary{
			Job:         JobAgeOverdue,
			RunID:       "run-1",
			Message:     "No loans with overdue payments",
			Errors:      []string{},
			AsOf:        "2024-03-29",
			ProcessedAt: schedNow,
		}
		payload, err := json.Marshal(expected)
		require.NoError(t, err)

		rmock.ExpectSetNX("jobs:lock:age-overdue:2024-03-29", "run-1", 10*time.Minute).SetVal(true)
		mock.ExpectQuery(candidatesSQL).WillReturnRows(sqlmock.NewRows(candidateColumns))
		rmock.ExpectSet("jobs:last:age-overdue", string(payload), 0).SetVal("OK")
		rmock.ExpectEval(releaseLockScript, []string{"jobs:lock:age-overdue:2024-03-29"}, "run-1").SetVal(int64(1))

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, &expected, summary)

		rmock.ExpectGet("jobs:last:age-overdue").SetVal(string(payload))
		last, err := scheduler.LastRun(ctx, JobAgeOverdue)
		require.NoError(t, err)
		assert.Equal(t, expected.RunID, last.RunID)
		assert.Equal(t, expected.Message, last.Message)
		assert.True(t, expected.ProcessedAt.Equal(last.ProcessedAt))

		assert.NoError(t, rmock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("leaves a lock taken over by another run", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		scheduler, mock, done := newScheduler(t, rdb)
		defer done()

		rmock.ExpectSetNX("jobs:lock:age-overdue:2024-03-29", "run-1", 10*time.Minute).SetVal(true)
		mock.ExpectQuery(candidatesSQL).WillReturnRows(sqlmock.NewRows(candidateColumns))
		rmock.Regexp().ExpectSet("jobs:last:age-overdue", `"run_id":"run-1"`, 0).SetVal("OK")
		rmock.ExpectEval(releaseLockScript, []string{"jobs:lock:age-overdue:2024-03-29"}, "run-1").SetVal(int64(0))

		summary, err := scheduler.RunAgeOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.False(t, summary.Skipped)
		assert.NoError(t, rmock.ExpectationsWereMet())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no recorded run", func(t *testing.T) {
		rdb, rmock := redismock.NewClientMock()
		scheduler, _, done := newScheduler(t, rdb)
		defer done()

		rmock.ExpectGet("jobs:last:mature-due").RedisNil()
		_, err := scheduler.LastRun(ctx, JobMatureDue)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestLoanScheduler_UnknownJob(t *testing.T) {
	scheduler, _, done := newScheduler(t, nil)
	defer done()

	_, err := scheduler.Run(context.Background(), "compound-interest", schedNow)
	assert.ErrorIs(t, err, ErrNotFound)
}
