package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/jbank/backend/internal/audit"
	"github.com/jbank/backend/internal/metrics"
	"github.com/jbank/backend/internal/models"
	"github.com/lib/pq"
)

// Scheduler job names, also used in routes, lock keys and metrics labels
const (
	JobMatureDue      = "mature-due"
	JobAgeOverdue     = "age-overdue"
	JobAccrueInterest = "accrue-interest"
)

// SchedulerOptions tunes the loan lifecycle jobs
type SchedulerOptions struct {
	Timezone    *time.Location
	LoanTimeout time.Duration
	LockTTL     time.Duration
}

// LoanScheduler advances repayment schedules through PENDING -> DUE -> OVERDUE
// and accrues interest. Every loan is handled in its own database transaction,
// so one failing loan never blocks the rest of a run.
type LoanScheduler struct {
	db       *sql.DB
	ledger   *DoubleLedgerService
	registry *AccountRegistry
	redis    *redis.Client
	metrics  *metrics.Collector
	audit    *audit.Logger
	clock    Clock
	tz       *time.Location
	timeout  time.Duration
	lockTTL  time.Duration
	newRunID func() string
}

func NewLoanScheduler(db *sql.DB, ledger *DoubleLedgerService, registry *AccountRegistry, rdb *redis.Client,
	collector *metrics.Collector, auditLogger *audit.Logger, opts SchedulerOptions) *LoanScheduler {
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}
	if opts.LoanTimeout <= 0 {
		opts.LoanTimeout = 30 * time.Second
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Minute
	}
	return &LoanScheduler{
		db:       db,
		ledger:   ledger,
		registry: registry,
		redis:    rdb,
		metrics:  collector,
		audit:    auditLogger,
		clock:    SystemClock{},
		tz:       opts.Timezone,
		timeout:  opts.LoanTimeout,
		lockTTL:  opts.LockTTL,
		newRunID: uuid.NewString,
	}
}

// Now is the scheduler's current time, used when a trigger carries no as-of date
func (s *LoanScheduler) Now() time.Time {
	return s.clock.Now()
}

// Location is the timezone whose calendar dates the jobs act on
func (s *LoanScheduler) Location() *time.Location {
	return s.tz
}

// loanBatch is the set of schedule rows one job run touches for a loan
type loanBatch struct {
	loanID      int64
	userID      string
	currency    string
	scheduleIDs pq.Int64Array
	principal   int64
	interest    int64
}

func (b loanBatch) ownerRef() string {
	return models.OwnerRef(b.userID, strconv.FormatInt(b.loanID, 10))
}

type jobDefinition struct {
	name       string
	from       models.ScheduleStatus
	skip       func(day time.Time) string
	candidates func(ctx context.Context, day time.Time) ([]loanBatch, error)
	process    func(ctx context.Context, tx *sql.Tx, b loanBatch, day time.Time) error
	noneMsg    string
	doneMsg    string
}

// Run dispatches a job by name
func (s *LoanScheduler) Run(ctx context.Context, job string, asOf time.Time) (*models.JobSummary, error) {
	switch job {
	case JobMatureDue:
		return s.RunMatureDue(ctx, asOf)
	case JobAgeOverdue:
		return s.RunAgeOverdue(ctx, asOf)
	case JobAccrueInterest:
		return s.RunAccrueInterest(ctx, asOf)
	}
	return nil, fmt.Errorf("%w: unknown job %q", ErrNotFound, job)
}

// RunMatureDue moves PENDING installments due on the 28th to DUE and
// reclassifies their principal and interest from CHARGED to DUE.
func (s *LoanScheduler) RunMatureDue(ctx context.Context, asOf time.Time) (*models.JobSummary, error) {
	return s.run(ctx, asOf, jobDefinition{
		name: JobMatureDue,
		from: models.SchedulePending,
		skip: func(day time.Time) string {
			if day.Day() != DueDayOfMonth {
				return "Due date processing only runs on the 28th of each month"
			}
			return ""
		},
		candidates: func(ctx context.Context, day time.Time) ([]loanBatch, error) {
			return s.loadBatches(ctx, `rs.status = $1 AND rs.due_date = $2`, models.SchedulePending, day)
		},
		process: func(ctx context.Context, tx *sql.Tx, b loanBatch, day time.Time) error {
			meta := func(kind string, amount int64) models.Metadata {
				return models.Metadata{
					"loan_id":      b.loanID,
					"reclass_type": kind,
					"due_date":     day.Format("2006-01-02"),
					"amount_cents": amount,
				}
			}
			period := fmt.Sprintf("%d_%d_%d", b.loanID, day.Year(), int(day.Month()))
			return s.reclassify(ctx, tx, b, models.SchedulePending, models.ScheduleDue, []reclass{
				{key: "principal_reclass_" + period, from: models.CodePrincipalCharged, to: models.CodePrincipalDue,
					amount: b.principal, meta: meta("principal_charged_to_due", b.principal)},
				{key: "interest_reclass_" + period, from: models.CodeInterestCharged, to: models.CodeInterestDue,
					amount: b.interest, meta: meta("interest_charged_to_due", b.interest)},
			})
		},
		noneMsg: "No loans with payments due today",
		doneMsg: "Due date processing completed",
	})
}

// RunAgeOverdue moves DUE installments whose due date has passed to OVERDUE
func (s *LoanScheduler) RunAgeOverdue(ctx context.Context, asOf time.Time) (*models.JobSummary, error) {
	return s.run(ctx, asOf, jobDefinition{
		name: JobAgeOverdue,
		from: models.ScheduleDue,
		skip: func(time.Time) string { return "" },
		candidates: func(ctx context.Context, day time.Time) ([]loanBatch, error) {
			return s.loadBatches(ctx, `rs.status = $1 AND rs.due_date < $2`, models.ScheduleDue, day)
		},
		process: func(ctx context.Context, tx *sql.Tx, b loanBatch, day time.Time) error {
			meta := func(kind string, amount int64) models.Metadata {
				return models.Metadata{
					"loan_id":      b.loanID,
					"reclass_type": kind,
					"overdue_date": day.Format("2006-01-02"),
					"amount_cents": amount,
				}
			}
			stamp := fmt.Sprintf("%d_%s", b.loanID, day.Format("20060102"))
			return s.reclassify(ctx, tx, b, models.ScheduleDue, models.ScheduleOverdue, []reclass{
				{key: "principal_overdue_" + stamp, from: models.CodePrincipalDue, to: models.CodePrincipalOverdue,
					amount: b.principal, meta: meta("principal_due_to_overdue", b.principal)},
				{key: "interest_overdue_" + stamp, from: models.CodeInterestDue, to: models.CodeInterestOverdue,
					amount: b.interest, meta: meta("interest_due_to_overdue", b.interest)},
			})
		},
		noneMsg: "No loans with overdue payments",
		doneMsg: "Overdue aging processing completed",
	})
}

// RunAccrueInterest charges the month's scheduled interest to each loan on
// the 1st: DEBIT interest charged, CREDIT bank interest earned.
func (s *LoanScheduler) RunAccrueInterest(ctx context.Context, asOf time.Time) (*models.JobSummary, error) {
	return s.run(ctx, asOf, jobDefinition{
		name: JobAccrueInterest,
		from: models.SchedulePending,
		skip: func(day time.Time) string {
			if day.Day() != 1 {
				return "Interest accrual only runs on the 1st of each month"
			}
			return ""
		},
		candidates: func(ctx context.Context, day time.Time) ([]loanBatch, error) {
			return s.loadBatches(ctx, `rs.status = $1 AND rs.due_date >= $2 AND rs.due_date < $3`,
				models.SchedulePending, day, day.AddDate(0, 1, 0))
		},
		process: func(ctx context.Context, tx *sql.Tx, b loanBatch, day time.Time) error {
			if b.interest <= 0 {
				return nil
			}
			loanAccounts, err := s.registry.ResolveAccounts(ctx, tx, models.OwnerLoan, b.ownerRef(), b.currency,
				[]models.AccountCode{models.CodeInterestCharged})
			if err != nil {
				return fmt.Errorf("required ledger accounts not found: %w", err)
			}
			bank, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerBank, models.BankInterestOwnerRef, b.currency,
				[]models.AccountCode{models.CodeBankInterestEarned})
			if err != nil {
				return err
			}
			_, err = s.ledger.PostTx(ctx, tx, b.userID, models.PostingRequest{
				IdempotencyKey: fmt.Sprintf("interest_accrual_%d_%d_%d", b.loanID, day.Year(), int(day.Month())),
				Lines: []models.PostingLine{
					{AccountID: loanAccounts[models.CodeInterestCharged], AmountCents: b.interest, Direction: models.Debit},
					{AccountID: bank[models.CodeBankInterestEarned], AmountCents: b.interest, Direction: models.Credit},
				},
				Metadata: models.Metadata{
					"loan_id":        b.loanID,
					"accrual_type":   "monthly_interest",
					"accrual_month":  day.Format("2006-01"),
					"interest_cents": b.interest,
				},
			})
			return err
		},
		noneMsg: "No active loans with pending payments this month",
		doneMsg: "Interest accrual processing completed",
	})
}

func (s *LoanScheduler) run(ctx context.Context, asOf time.Time, job jobDefinition) (*models.JobSummary, error) {
	local := asOf.In(s.tz)
	day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)

	summary := &models.JobSummary{
		Job:         job.name,
		RunID:       s.newRunID(),
		Errors:      []string{},
		AsOf:        day.Format("2006-01-02"),
		ProcessedAt: s.clock.Now(),
	}

	if msg := job.skip(day); msg != "" {
		summary.Skipped = true
		summary.Message = msg
		s.finish(ctx, summary, "skipped")
		return summary, nil
	}

	release, acquired := s.acquireLock(ctx, job.name, summary)
	if !acquired {
		summary.Skipped = true
		summary.Message = fmt.Sprintf("Job %s is already running for %s", job.name, summary.AsOf)
		s.metrics.RecordJob(job.name, "locked", 0, 0)
		return summary, nil
	}
	defer release()

	batches, err := job.candidates(ctx, day)
	if err != nil {
		log.Printf("[SCHEDULER] %s: failed to load candidates: %v", job.name, err)
		s.metrics.RecordJob(job.name, "failed", 0, 0)
		return nil, err
	}
	summary.TotalCandidates = len(batches)
	if len(batches) == 0 {
		summary.Message = job.noneMsg
		s.finish(ctx, summary, "success")
		return summary, nil
	}

	for _, b := range batches {
		err := s.processLoan(ctx, job, b, day)
		if errors.Is(err, errAlreadyAdvanced) {
			log.Printf("[SCHEDULER] %s: loan %d already advanced, skipping", job.name, b.loanID)
			continue
		}
		if err != nil {
			log.Printf("[SCHEDULER] %s: loan %d failed: %v", job.name, b.loanID, err)
			summary.Errors = append(summary.Errors, fmt.Sprintf("Loan %d: %v", b.loanID, err))
			continue
		}
		summary.ProcessedCount++
	}

	summary.Message = job.doneMsg
	result := "success"
	if len(summary.Errors) > 0 {
		result = "partial"
	}
	s.finish(ctx, summary, result)
	return summary, nil
}

func (s *LoanScheduler) processLoan(ctx context.Context, job jobDefinition, b loanBatch, day time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageError("begin", err)
	}
	defer tx.Rollback()

	locked, err := s.lockRows(ctx, tx, b, job.from)
	if err != nil {
		return err
	}
	if len(locked.scheduleIDs) == 0 {
		return errAlreadyAdvanced
	}

	if err := job.process(ctx, tx, locked, day); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return storageError("commit", err)
	}
	return nil
}

// errAlreadyAdvanced marks a loan whose rows left the job's status after
// candidates were loaded
var errAlreadyAdvanced = errors.New("schedule rows already advanced")

// lockRows re-reads the batch's rows under FOR UPDATE and keeps only those
// still in status. Amounts are recomputed from the locked rows.
func (s *LoanScheduler) lockRows(ctx context.Context, tx *sql.Tx, b loanBatch, status models.ScheduleStatus) (loanBatch, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT id, principal_due_cents, interest_due_cents
		FROM repayment_schedule
		WHERE id = ANY($1) AND status = $2
		ORDER BY id
		FOR UPDATE`,
		b.scheduleIDs, status)
	if err != nil {
		return b, storageError("lock schedule rows", err)
	}
	defer rows.Close()

	locked := b
	locked.scheduleIDs = pq.Int64Array{}
	locked.principal, locked.interest = 0, 0
	for rows.Next() {
		var id, principal, interest int64
		if err := rows.Scan(&id, &principal, &interest); err != nil {
			return b, storageError("scan schedule row", err)
		}
		locked.scheduleIDs = append(locked.scheduleIDs, id)
		locked.principal += principal
		locked.interest += interest
	}
	if err := rows.Err(); err != nil {
		return b, storageError("lock schedule rows", err)
	}
	return locked, nil
}

type reclass struct {
	key    string
	from   models.AccountCode
	to     models.AccountCode
	amount int64
	meta   models.Metadata
}

// reclassify posts CREDIT from / DEBIT to for each non-zero amount, then moves
// the batch's schedule rows from one status to the next. The status update is
// conditioned on the prior status so a retried run is a no-op.
func (s *LoanScheduler) reclassify(ctx context.Context, tx *sql.Tx, b loanBatch, from, to models.ScheduleStatus, moves []reclass) error {
	if !from.CanTransitionTo(to) {
		return fmt.Errorf("%w: %s -> %s", ErrValidation, from, to)
	}

	var codes []models.AccountCode
	for _, m := range moves {
		if m.amount > 0 {
			codes = append(codes, m.from, m.to)
		}
	}
	if len(codes) > 0 {
		accounts, err := s.registry.ResolveAccounts(ctx, tx, models.OwnerLoan, b.ownerRef(), b.currency, codes)
		if err != nil {
			return fmt.Errorf("required ledger accounts not found: %w", err)
		}
		for _, m := range moves {
			if m.amount <= 0 {
				continue
			}
			if _, err := s.ledger.PostTx(ctx, tx, b.userID, models.PostingRequest{
				IdempotencyKey: m.key,
				Lines: []models.PostingLine{
					{AccountID: accounts[m.from], AmountCents: m.amount, Direction: models.Credit},
					{AccountID: accounts[m.to], AmountCents: m.amount, Direction: models.Debit},
				},
				Metadata: m.meta,
			}); err != nil {
				return err
			}
		}
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE repayment_schedule SET status = $1, updated_at = $2
		WHERE id = ANY($3) AND status = $4`,
		to, s.clock.Now(), b.scheduleIDs, from)
	if err != nil {
		return storageError("update schedule status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageError("update schedule status", err)
	}
	if n != int64(len(b.scheduleIDs)) {
		return fmt.Errorf("%w: advanced %d of %d schedule rows from %s", ErrStorageFailure, n, len(b.scheduleIDs), from)
	}
	return nil
}

// loadBatches groups matching schedule rows of ACTIVE loans per loan
func (s *LoanScheduler) loadBatches(ctx context.Context, where string, args ...any) ([]loanBatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.user_id, t.currency, array_agg(rs.id ORDER BY rs.installment_no),
			SUM(rs.principal_due_cents), SUM(rs.interest_due_cents)
		FROM term_loans t
		JOIN repayment_schedule rs ON rs.loan_id = t.id
		WHERE t.status = 'ACTIVE' AND `+where+`
		GROUP BY t.id, t.user_id, t.currency
		ORDER BY t.id`, args...)
	if err != nil {
		return nil, storageError("load candidates", err)
	}
	defer rows.Close()

	var batches []loanBatch
	for rows.Next() {
		var b loanBatch
		if err := rows.Scan(&b.loanID, &b.userID, &b.currency, &b.scheduleIDs, &b.principal, &b.interest); err != nil {
			return nil, storageError("scan candidate", err)
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load candidates", err)
	}
	return batches, nil
}

// releaseLockScript deletes the lock only while it still holds this run's id
const releaseLockScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

func lockKey(job, day string) string { return "jobs:lock:" + job + ":" + day }
func lastRunKey(job string) string   { return "jobs:last:" + job }

// acquireLock takes the per-job, per-day lock. Without Redis, or when Redis
// is unreachable, the run proceeds: jobs are idempotent on their own.
func (s *LoanScheduler) acquireLock(ctx context.Context, job string, summary *models.JobSummary) (func(), bool) {
	noop := func() {}
	if s.redis == nil {
		return noop, true
	}

	key := lockKey(job, summary.AsOf)
	ok, err := s.redis.SetNX(ctx, key, summary.RunID, s.lockTTL).Result()
	if err != nil {
		log.Printf("[SCHEDULER] Redis lock unavailable for %s: %v", job, err)
		return noop, true
	}
	if !ok {
		log.Printf("[SCHEDULER] %s already running for %s", job, summary.AsOf)
		return noop, false
	}
	return func() {
		released, err := s.redis.Eval(context.Background(), releaseLockScript, []string{key}, summary.RunID).Int64()
		if err != nil {
			log.Printf("[SCHEDULER] Failed to release lock %s: %v", key, err)
			return
		}
		if released == 0 {
			log.Printf("[SCHEDULER] Lock %s expired and is held by another run", key)
		}
	}, true
}

func (s *LoanScheduler) finish(ctx context.Context, summary *models.JobSummary, result string) {
	failures := len(summary.Errors)
	s.metrics.RecordJob(summary.Job, result, summary.ProcessedCount, failures)
	s.audit.LogJob(summary.Job, summary.RunID, summary.ProcessedCount, summary.TotalCandidates, failures)
	log.Printf("[SCHEDULER] %s %s: %s (processed %d of %d, %d errors)",
		summary.Job, summary.AsOf, summary.Message, summary.ProcessedCount, summary.TotalCandidates, failures)

	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(summary)
	if err != nil {
		log.Printf("[SCHEDULER] Failed to encode summary: %v", err)
		return
	}
	if err := s.redis.Set(ctx, lastRunKey(summary.Job), string(payload), 0).Err(); err != nil {
		log.Printf("[SCHEDULER] Failed to store last run of %s: %v", summary.Job, err)
	}
}

// LastRun returns the most recent summary stored for a job
func (s *LoanScheduler) LastRun(ctx context.Context, job string) (*models.JobSummary, error) {
	if s.redis == nil {
		return nil, fmt.Errorf("%w: no run history without redis", ErrNotFound)
	}
	payload, err := s.redis.Get(ctx, lastRunKey(job)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: no recorded run for %s", ErrNotFound, job)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: last run: %v", ErrStorageFailure, err)
	}

	var summary models.JobSummary
	if err := json.Unmarshal([]byte(payload), &summary); err != nil {
		return nil, fmt.Errorf("%w: decode last run: %v", ErrStorageFailure, err)
	}
	return &summary, nil
}
