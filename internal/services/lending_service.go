package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/jbank/backend/internal/audit"
	"github.com/jbank/backend/internal/models"
	"github.com/lib/pq"
)

// LendingService creates deposit, line-of-credit and term-loan products and
// applies repayments. Every product creation provisions its ledger accounts
// in the same database transaction as the product row.
type LendingService struct {
	db       *sql.DB
	ledger   *DoubleLedgerService
	registry *AccountRegistry
	audit    *audit.Logger
	clock    Clock
}

func NewLendingService(db *sql.DB, ledger *DoubleLedgerService, registry *AccountRegistry, auditLogger *audit.Logger) *LendingService {
	return &LendingService{
		db:       db,
		ledger:   ledger,
		registry: registry,
		audit:    auditLogger,
		clock:    SystemClock{},
	}
}

func (s *LendingService) CreateDepositAccount(ctx context.Context, userID string, req models.CreateDepositRequest) (*models.CreateDepositResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	defer tx.Rollback()

	var depositID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO deposit_accounts (user_id, currency, status, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		userID, req.Currency, models.DepositActive, s.clock.Now()).Scan(&depositID); err != nil {
		return nil, storageError("insert deposit account", err)
	}

	ids, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerCustomer,
		models.OwnerRef(userID, strconv.FormatInt(depositID, 10)), req.Currency,
		[]models.AccountCode{models.CodeCustomerDeposit})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}

	s.audit.LogProduct(userID, "DEPOSIT", strconv.FormatInt(depositID, 10), 0)
	log.Printf("[LENDING] Deposit account %d opened for %s (%s)", depositID, userID, req.Currency)
	return &models.CreateDepositResult{
		DepositAccountID: depositID,
		LedgerAccountID:  ids[models.CodeCustomerDeposit],
	}, nil
}

func (s *LendingService) CreateLineOfCredit(ctx context.Context, userID string, req models.CreateLocRequest) (*models.CreateLocResult, error) {
	if req.CreditLimitCents <= 0 {
		return nil, fmt.Errorf("%w: credit_limit_cents must be positive", ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	defer tx.Rollback()

	number, err := s.registry.NextAccountNumber(ctx, tx, "LOC", s.clock.Now())
	if err != nil {
		return nil, err
	}

	var locID int64
	if err := tx.QueryRowContext(ctx, `
		INSERT INTO loc_accounts (user_id, account_number, currency, credit_limit_cents, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		userID, number, req.Currency, req.CreditLimitCents, s.clock.Now()).Scan(&locID); err != nil {
		return nil, storageError("insert line of credit", err)
	}

	if _, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerCustomer,
		models.OwnerRef(userID, strconv.FormatInt(locID, 10)), req.Currency,
		[]models.AccountCode{models.CodeLocFacility}); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}

	s.audit.LogProduct(userID, "LOC", number, req.CreditLimitCents)
	log.Printf("[LENDING] Line of credit %s opened for %s, limit %d %s", number, userID, req.CreditLimitCents, req.Currency)
	return &models.CreateLocResult{
		LocAccountID:     locID,
		AccountNumber:    number,
		CreditLimitCents: req.CreditLimitCents,
		Currency:         req.Currency,
	}, nil
}

// CreateTermLoan draws a loan against a line of credit, writes its schedule,
// provisions the loan accounts and disburses the principal into the
// customer's deposit account. Retrying with the same idempotency key returns
// the loan created by the first call.
func (s *LendingService) CreateTermLoan(ctx context.Context, userID string, req models.CreateLoanRequest) (*models.CreateLoanResult, error) {
	if req.LoanType != models.LoanTypeTerm {
		return nil, fmt.Errorf("%w: Only TERM loans are supported", ErrValidation)
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency_key is required", ErrValidation)
	}

	now := s.clock.Now()
	startDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	schedule, err := GenerateSchedule(req.PrincipalAmountCents, req.MonthlyInterestRateBps, req.TenureMonths, startDate)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	defer tx.Rollback()

	// serializes loan creation per line of credit
	var loc models.LineOfCredit
	err = tx.QueryRowContext(ctx, `
		SELECT id, currency, credit_limit_cents FROM loc_accounts
		WHERE account_number = $1 AND user_id = $2
		FOR UPDATE`,
		req.LocAccountNumber, userID).Scan(&loc.ID, &loc.Currency, &loc.CreditLimitCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: Line of Credit not found or access denied", ErrNotFound)
	}
	if err != nil {
		return nil, storageError("lock line of credit", err)
	}

	existing, err := s.existingLoan(ctx, tx, userID, req.IdempotencyKey)
	if err != nil {
		return nil, storageError("replay loan", err)
	}
	if existing != nil {
		if err := tx.Commit(); err != nil {
			return nil, storageError("commit", err)
		}
		return existing, nil
	}

	var available int64
	if err := tx.QueryRowContext(ctx, `
		SELECT available_credit_cents FROM loc_exposure WHERE loc_account_id = $1`,
		loc.ID).Scan(&available); err != nil {
		return nil, storageError("check available credit", err)
	}
	if req.PrincipalAmountCents > available {
		return nil, fmt.Errorf("%w: Principal amount (%d cents) exceeds available credit (%d cents)",
			ErrInsufficientCredit, req.PrincipalAmountCents, available)
	}

	deposit, err := s.ledger.loadAccount(ctx, tx, req.DepositAccountID)
	if err != nil {
		return nil, err
	}
	if deposit.Code != models.CodeCustomerDeposit || !ownedBy(deposit, userID) {
		return nil, fmt.Errorf("%w: deposit account %d", ErrAccountNotFound, req.DepositAccountID)
	}
	if deposit.Currency != loc.Currency {
		return nil, fmt.Errorf("%w: deposit account is %s, line of credit is %s", ErrCurrencyMismatch, deposit.Currency, loc.Currency)
	}

	loanNumber, err := s.registry.NextAccountNumber(ctx, tx, "LN", now)
	if err != nil {
		return nil, err
	}

	var loanID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO term_loans (user_id, loc_account_id, loan_account_number, currency,
			principal_amount_cents, monthly_interest_rate_bps, tenure_months,
			start_date, maturity_date, status, idempotency_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id`,
		userID, loc.ID, loanNumber, loc.Currency,
		req.PrincipalAmountCents, req.MonthlyInterestRateBps, req.TenureMonths,
		startDate, MaturityDate(startDate, req.TenureMonths), models.LoanActive, req.IdempotencyKey, now).Scan(&loanID)
	if isUniqueViolation(err) {
		return nil, fmt.Errorf("%w: idempotency_key already used for another loan", ErrValidation)
	}
	if err != nil {
		return nil, storageError("insert loan", err)
	}

	for _, line := range schedule {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO repayment_schedule (loan_id, installment_no, due_date, principal_due_cents, interest_due_cents, status, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			loanID, line.InstallmentNo, line.DueDate, line.PrincipalDueCents, line.InterestDueCents,
			models.SchedulePending, now); err != nil {
			return nil, storageError("insert schedule", err)
		}
	}

	loanRef := models.OwnerRef(userID, strconv.FormatInt(loanID, 10))
	loanAccounts, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerLoan, loanRef, loc.Currency, models.LoanAccountCodes)
	if err != nil {
		return nil, err
	}
	if _, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerBank, models.BankInterestOwnerRef, loc.Currency,
		[]models.AccountCode{models.CodeBankInterestEarned}); err != nil {
		return nil, err
	}

	disbursal, err := s.ledger.PostTx(ctx, tx, userID, models.PostingRequest{
		IdempotencyKey: DisbursalKey(req.IdempotencyKey),
		Lines: []models.PostingLine{
			{AccountID: deposit.ID, AmountCents: req.PrincipalAmountCents, Direction: models.Debit},
			{AccountID: loanAccounts[models.CodePrincipalCharged], AmountCents: req.PrincipalAmountCents, Direction: models.Credit},
		},
		Metadata: models.Metadata{
			"loan_id":                loanID,
			"disbursal_type":         "loan_disbursal",
			"principal_amount_cents": req.PrincipalAmountCents,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}

	s.audit.LogProduct(userID, "LOAN", loanNumber, req.PrincipalAmountCents)
	log.Printf("[LENDING] Loan %s (%d) disbursed %d %s to account %d", loanNumber, loanID, req.PrincipalAmountCents, loc.Currency, deposit.ID)
	return &models.CreateLoanResult{
		LoanID:            loanID,
		LoanAccountNumber: loanNumber,
		ScheduleCount:     len(schedule),
		DisbursalTxnID:    disbursal.TxnID,
	}, nil
}

func DisbursalKey(key string) string { return key + "_disbursal" }

// existingLoan returns the loan already created for (user, key), or nil
func (s *LendingService) existingLoan(ctx context.Context, q Querier, userID, key string) (*models.CreateLoanResult, error) {
	var result models.CreateLoanResult
	err := q.QueryRowContext(ctx, `
		SELECT t.id, t.loan_account_number,
			(SELECT COUNT(*) FROM repayment_schedule rs WHERE rs.loan_id = t.id)
		FROM term_loans t
		WHERE t.user_id = $1 AND t.idempotency_key = $2`,
		userID, key).Scan(&result.LoanID, &result.LoanAccountNumber, &result.ScheduleCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	txn, err := s.ledger.FindTransaction(ctx, q, userID, DisbursalKey(key))
	if err != nil {
		return nil, err
	}
	if txn != nil {
		result.DisbursalTxnID = txn.ID
	}
	result.Replayed = true
	return &result, nil
}

func (s *LendingService) GetLocExposure(ctx context.Context, userID string, locID int64) (*models.LocExposure, error) {
	var e models.LocExposure
	err := s.db.QueryRowContext(ctx, `
		SELECT loc_account_id, currency, credit_limit_cents, outstanding_principal_cents, available_credit_cents
		FROM loc_exposure
		WHERE loc_account_id = $1 AND user_id = $2`,
		locID, userID).Scan(&e.LocAccountID, &e.Currency, &e.CreditLimitCents, &e.OutstandingCents, &e.AvailableCreditCents)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: line of credit %d", ErrNotFound, locID)
	}
	if err != nil {
		return nil, storageError("loc exposure", err)
	}
	return &e, nil
}

func (s *LendingService) GetLoanSchedule(ctx context.Context, userID string, loanID int64) ([]models.RepaymentScheduleEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rs.id, rs.loan_id, rs.installment_no, rs.due_date, rs.principal_due_cents,
			rs.interest_due_cents, rs.status, rs.paid_at
		FROM repayment_schedule rs
		JOIN term_loans t ON t.id = rs.loan_id
		WHERE t.id = $1 AND t.user_id = $2
		ORDER BY rs.installment_no`,
		loanID, userID)
	if err != nil {
		return nil, storageError("loan schedule", err)
	}
	defer rows.Close()

	var entries []models.RepaymentScheduleEntry
	for rows.Next() {
		var e models.RepaymentScheduleEntry
		if err := rows.Scan(&e.ID, &e.LoanID, &e.InstallmentNo, &e.DueDate, &e.PrincipalDueCents,
			&e.InterestDueCents, &e.Status, &e.PaidAt); err != nil {
			return nil, storageError("scan schedule", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("loan schedule", err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	return entries, nil
}

type dueInstallment struct {
	id            int64
	installmentNo int
	principal     int64
	interest      int64
	status        models.ScheduleStatus
}

// ApplyRepayment settles whole DUE and OVERDUE installments, oldest first,
// from the customer's deposit account. It posts a cash movement to the bank
// repayment account and a settlement that clears the due/overdue balances,
// then marks the installments PAID. Any remainder smaller than the next
// installment is not taken.
func (s *LendingService) ApplyRepayment(ctx context.Context, userID string, loanID int64, req models.RepaymentRequest) (*models.RepaymentResult, error) {
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount_cents must be a positive integer", ErrInvalidAmount)
	}
	if req.IdempotencyKey == "" {
		return nil, fmt.Errorf("%w: idempotency_key is required", ErrValidation)
	}
	cashKey, settleKey := req.IdempotencyKey+"_cash", req.IdempotencyKey+"_settle"

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	defer tx.Rollback()

	var currency string
	var status models.LoanStatus
	err = tx.QueryRowContext(ctx, `
		SELECT currency, status FROM term_loans
		WHERE id = $1 AND user_id = $2
		FOR UPDATE`,
		loanID, userID).Scan(&currency, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, loanID)
	}
	if err != nil {
		return nil, storageError("lock loan", err)
	}

	if prior, err := s.ledger.FindTransaction(ctx, tx, userID, cashKey); err != nil {
		return nil, err
	} else if prior != nil {
		return s.replayRepayment(ctx, tx, userID, loanID, status, prior, settleKey)
	}

	if status != models.LoanActive {
		return nil, fmt.Errorf("%w: loan %d is %s", ErrValidation, loanID, status)
	}

	due, err := s.dueInstallments(ctx, tx, loanID)
	if err != nil {
		return nil, err
	}
	if len(due) == 0 {
		return nil, fmt.Errorf("%w: loan %d has no due installments", ErrNothingDue, loanID)
	}

	var applied int64
	var paidIDs []int64
	var paidNos []int
	owed := map[models.AccountCode]int64{}
	for _, d := range due {
		total := d.principal + d.interest
		if applied+total > req.AmountCents {
			break
		}
		applied += total
		paidIDs = append(paidIDs, d.id)
		paidNos = append(paidNos, d.installmentNo)
		if d.status == models.ScheduleOverdue {
			owed[models.CodePrincipalOverdue] += d.principal
			owed[models.CodeInterestOverdue] += d.interest
		} else {
			owed[models.CodePrincipalDue] += d.principal
			owed[models.CodeInterestDue] += d.interest
		}
	}
	if applied == 0 {
		return nil, fmt.Errorf("%w: amount %d does not cover the next installment of %d",
			ErrInvalidAmount, req.AmountCents, due[0].principal+due[0].interest)
	}

	deposit, err := s.ledger.loadAccount(ctx, tx, req.DepositAccountID)
	if err != nil {
		return nil, err
	}
	if deposit.Code != models.CodeCustomerDeposit || !ownedBy(deposit, userID) {
		return nil, fmt.Errorf("%w: deposit account %d", ErrAccountNotFound, req.DepositAccountID)
	}
	if deposit.Currency != currency {
		return nil, fmt.Errorf("%w: deposit account is %s, loan is %s", ErrCurrencyMismatch, deposit.Currency, currency)
	}

	loanRef := models.OwnerRef(userID, strconv.FormatInt(loanID, 10))
	repaid, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerLoan, loanRef, currency,
		[]models.AccountCode{models.CodeLoanRepaid})
	if err != nil {
		return nil, err
	}
	bank, err := s.registry.ProvisionAccounts(ctx, tx, models.OwnerBank, models.BankRepaymentsOwnerRef, currency,
		[]models.AccountCode{models.CodeBankLoanRepayments})
	if err != nil {
		return nil, err
	}

	var codes []models.AccountCode
	for _, c := range []models.AccountCode{models.CodePrincipalDue, models.CodeInterestDue, models.CodePrincipalOverdue, models.CodeInterestOverdue} {
		if owed[c] > 0 {
			codes = append(codes, c)
		}
	}
	loanAccounts, err := s.registry.ResolveAccounts(ctx, tx, models.OwnerLoan, loanRef, currency, codes)
	if err != nil {
		return nil, err
	}

	meta := models.Metadata{
		"loan_id":           loanID,
		"repayment_type":    "installment",
		"applied_cents":     applied,
		"installments_paid": paidNos,
	}
	cash, err := s.ledger.PostTx(ctx, tx, userID, models.PostingRequest{
		IdempotencyKey: cashKey,
		Lines: []models.PostingLine{
			{AccountID: deposit.ID, AmountCents: applied, Direction: models.Credit},
			{AccountID: bank[models.CodeBankLoanRepayments], AmountCents: applied, Direction: models.Debit},
		},
		Metadata: meta,
	})
	if err != nil {
		return nil, err
	}

	settleLines := []models.PostingLine{
		{AccountID: repaid[models.CodeLoanRepaid], AmountCents: applied, Direction: models.Debit},
	}
	for _, c := range codes {
		settleLines = append(settleLines, models.PostingLine{AccountID: loanAccounts[c], AmountCents: owed[c], Direction: models.Credit})
	}
	settle, err := s.ledger.PostTx(ctx, tx, userID, models.PostingRequest{
		IdempotencyKey: settleKey,
		Lines:          settleLines,
		Metadata:       meta,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if _, err := tx.ExecContext(ctx, `
		UPDATE repayment_schedule SET status = $1, paid_at = $2, updated_at = $2
		WHERE id = ANY($3) AND status IN ('DUE', 'OVERDUE')`,
		models.SchedulePaid, now, pq.Array(paidIDs)); err != nil {
		return nil, storageError("mark installments paid", err)
	}

	var unpaid int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM repayment_schedule WHERE loan_id = $1 AND status <> 'PAID'`,
		loanID).Scan(&unpaid); err != nil {
		return nil, storageError("count unpaid", err)
	}
	if unpaid == 0 {
		if _, err := tx.ExecContext(ctx, `UPDATE term_loans SET status = $1 WHERE id = $2`,
			models.LoanPaidOff, loanID); err != nil {
			return nil, storageError("close loan", err)
		}
		status = models.LoanPaidOff
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}

	log.Printf("[LENDING] Repayment of %d on loan %d settled installments %v", applied, loanID, paidNos)
	return &models.RepaymentResult{
		LoanID:           loanID,
		AppliedCents:     applied,
		InstallmentsPaid: paidNos,
		CashTxnID:        cash.TxnID,
		SettlementTxnID:  settle.TxnID,
		LoanStatus:       status,
	}, nil
}

func (s *LendingService) dueInstallments(ctx context.Context, q Querier, loanID int64) ([]dueInstallment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, installment_no, principal_due_cents, interest_due_cents, status
		FROM repayment_schedule
		WHERE loan_id = $1 AND status IN ('DUE', 'OVERDUE')
		ORDER BY due_date, installment_no
		FOR UPDATE`, loanID)
	if err != nil {
		return nil, storageError("load due installments", err)
	}
	defer rows.Close()

	var due []dueInstallment
	for rows.Next() {
		var d dueInstallment
		if err := rows.Scan(&d.id, &d.installmentNo, &d.principal, &d.interest, &d.status); err != nil {
			return nil, storageError("scan installment", err)
		}
		due = append(due, d)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load due installments", err)
	}
	return due, nil
}

// replayRepayment rebuilds the result of a repayment from its cash posting
func (s *LendingService) replayRepayment(ctx context.Context, tx *sql.Tx, userID string, loanID int64, status models.LoanStatus, cash *models.LedgerTransaction, settleKey string) (*models.RepaymentResult, error) {
	result := &models.RepaymentResult{
		LoanID:     loanID,
		CashTxnID:  cash.ID,
		LoanStatus: status,
		Replayed:   true,
	}
	if v, ok := cash.Metadata["applied_cents"].(float64); ok {
		result.AppliedCents = int64(v)
	}
	if nos, ok := cash.Metadata["installments_paid"].([]any); ok {
		for _, n := range nos {
			if f, ok := n.(float64); ok {
				result.InstallmentsPaid = append(result.InstallmentsPaid, int(f))
			}
		}
	}

	settle, err := s.ledger.FindTransaction(ctx, tx, userID, settleKey)
	if err != nil {
		return nil, err
	}
	if settle != nil {
		result.SettlementTxnID = settle.ID
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}
	return result, nil
}
