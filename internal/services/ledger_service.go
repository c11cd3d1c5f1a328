package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jbank/backend/internal/audit"
	"github.com/jbank/backend/internal/metrics"
	"github.com/jbank/backend/internal/models"
	"github.com/lib/pq"
)

const (
	DefaultMaxMetadataBytes = 8192
	DefaultMaxMetadataKeys  = 64
	maxIdempotencyKeyLen    = 255
)

// DoubleLedgerService posts balanced, idempotent transactions. Balances are
// always derived from entries and never stored.
type DoubleLedgerService struct {
	db               *sql.DB
	audit            *audit.Logger
	metrics          *metrics.Collector
	clock            Clock
	maxMetadataBytes int
	maxMetadataKeys  int
}

func NewDoubleLedgerService(db *sql.DB, auditLogger *audit.Logger, collector *metrics.Collector) *DoubleLedgerService {
	return &DoubleLedgerService{
		db:               db,
		audit:            auditLogger,
		metrics:          collector,
		clock:            SystemClock{},
		maxMetadataBytes: DefaultMaxMetadataBytes,
		maxMetadataKeys:  DefaultMaxMetadataKeys,
	}
}

// SetMetadataLimits bounds the size of transaction metadata
func (s *DoubleLedgerService) SetMetadataLimits(maxBytes, maxKeys int) {
	if maxBytes > 0 {
		s.maxMetadataBytes = maxBytes
	}
	if maxKeys > 0 {
		s.maxMetadataKeys = maxKeys
	}
}

// PostBalancedTransaction validates and records a transaction in its own
// database transaction. A repeated (initiator, key) returns the original result.
func (s *DoubleLedgerService) PostBalancedTransaction(ctx context.Context, initiatorID string, req models.PostingRequest) (*models.PostingResult, error) {
	start := time.Now()

	signed, err := s.validate(initiatorID, req)
	if err != nil {
		s.reject(initiatorID, req.IdempotencyKey, start, "rejected", err)
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		err = storageError("begin", err)
		s.reject(initiatorID, req.IdempotencyKey, start, "failed", err)
		return nil, err
	}
	defer tx.Rollback()

	result, err := s.post(ctx, tx, initiatorID, req, signed)
	if err != nil {
		s.reject(initiatorID, req.IdempotencyKey, start, outcomeFor(err), err)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		err = storageError("commit", err)
		s.reject(initiatorID, req.IdempotencyKey, start, outcomeFor(err), err)
		return nil, err
	}

	s.record(initiatorID, req, result, start)
	return result, nil
}

// PostTx posts inside a caller-owned database transaction. The caller commits.
func (s *DoubleLedgerService) PostTx(ctx context.Context, q Querier, initiatorID string, req models.PostingRequest) (*models.PostingResult, error) {
	start := time.Now()

	signed, err := s.validate(initiatorID, req)
	if err != nil {
		s.reject(initiatorID, req.IdempotencyKey, start, "rejected", err)
		return nil, err
	}

	result, err := s.post(ctx, q, initiatorID, req, signed)
	if err != nil {
		s.reject(initiatorID, req.IdempotencyKey, start, outcomeFor(err), err)
		return nil, err
	}

	s.record(initiatorID, req, result, start)
	return result, nil
}

// validate performs every check that needs no storage access
func (s *DoubleLedgerService) validate(initiatorID string, req models.PostingRequest) ([]int64, error) {
	if strings.TrimSpace(initiatorID) == "" {
		return nil, fmt.Errorf("%w: initiator is required", ErrValidation)
	}
	if strings.TrimSpace(req.IdempotencyKey) == "" {
		return nil, fmt.Errorf("%w: idempotency_key is required", ErrValidation)
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		return nil, fmt.Errorf("%w: idempotency_key exceeds %d characters", ErrValidation, maxIdempotencyKeyLen)
	}
	if len(req.Lines) == 0 {
		return nil, fmt.Errorf("%w: at least one line is required", ErrValidation)
	}

	signed := make([]int64, len(req.Lines))
	var sum int64
	for i, line := range req.Lines {
		if line.AmountCents <= 0 {
			return nil, fmt.Errorf("%w: line %d amount_cents must be a positive integer", ErrInvalidAmount, i)
		}
		if line.Direction != models.Debit && line.Direction != models.Credit {
			return nil, fmt.Errorf("%w: line %d direction must be DEBIT or CREDIT", ErrValidation, i)
		}
		if line.AccountID <= 0 {
			return nil, fmt.Errorf("%w: line %d account_id is required", ErrValidation, i)
		}
		signed[i] = line.Signed()
		sum += signed[i]
	}
	if sum != 0 {
		return nil, fmt.Errorf("%w: lines sum to %d", ErrUnbalancedTransaction, sum)
	}

	if err := s.validateMetadata(req.Metadata); err != nil {
		return nil, err
	}
	return signed, nil
}

func (s *DoubleLedgerService) validateMetadata(meta models.Metadata) error {
	if meta == nil {
		return nil
	}
	if len(meta) > s.maxMetadataKeys {
		return fmt.Errorf("%w: metadata has more than %d keys", ErrValidation, s.maxMetadataKeys)
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("%w: metadata is not JSON-serializable: %v", ErrValidation, err)
	}
	if len(raw) > s.maxMetadataBytes {
		return fmt.Errorf("%w: metadata exceeds %d bytes", ErrValidation, s.maxMetadataBytes)
	}
	return nil
}

func (s *DoubleLedgerService) post(ctx context.Context, q Querier, initiatorID string, req models.PostingRequest, signed []int64) (*models.PostingResult, error) {
	postedAt := s.clock.Now()

	var txnID int64
	err := q.QueryRowContext(ctx, `
		INSERT INTO ledger_transactions (initiator_id, idempotency_key, metadata, posted_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (initiator_id, idempotency_key) DO NOTHING
		RETURNING id, posted_at`,
		initiatorID, req.IdempotencyKey, req.Metadata, postedAt).Scan(&txnID, &postedAt)

	if errors.Is(err, sql.ErrNoRows) {
		// key already used; the stored transaction wins
		return s.replay(ctx, q, initiatorID, req.IdempotencyKey)
	}
	if err != nil {
		return nil, storageError("insert transaction", err)
	}

	currency, err := s.checkAccounts(ctx, q, req.Lines)
	if err != nil {
		return nil, err
	}

	for i, line := range req.Lines {
		if _, err := q.ExecContext(ctx, `
			INSERT INTO ledger_entries (transaction_id, account_id, amount_cents, created_at)
			VALUES ($1, $2, $3, $4)`,
			txnID, line.AccountID, signed[i], postedAt); err != nil {
			return nil, storageError("insert entry", err)
		}
	}

	return &models.PostingResult{
		TxnID:    txnID,
		PostedAt: postedAt,
		Totals:   models.TotalsOf(signed),
		Currency: currency,
	}, nil
}

// checkAccounts verifies every referenced account exists, is active and
// that all lines share one currency
func (s *DoubleLedgerService) checkAccounts(ctx context.Context, q Querier, lines []models.PostingLine) (string, error) {
	ids := make([]int64, 0, len(lines))
	seen := make(map[int64]bool, len(lines))
	for _, l := range lines {
		if !seen[l.AccountID] {
			seen[l.AccountID] = true
			ids = append(ids, l.AccountID)
		}
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, currency, active FROM ledger_accounts WHERE id = ANY($1)`,
		pq.Array(ids))
	if err != nil {
		return "", storageError("load accounts", err)
	}
	defer rows.Close()

	found := make(map[int64]bool, len(ids))
	currency := ""
	for rows.Next() {
		var id int64
		var ccy string
		var active bool
		if err := rows.Scan(&id, &ccy, &active); err != nil {
			return "", storageError("scan account", err)
		}
		if !active {
			return "", fmt.Errorf("%w: account %d is inactive", ErrAccountNotFound, id)
		}
		if currency != "" && ccy != currency {
			return "", fmt.Errorf("%w: lines span %s and %s", ErrCurrencyMismatch, currency, ccy)
		}
		currency = ccy
		found[id] = true
	}
	if err := rows.Err(); err != nil {
		return "", storageError("load accounts", err)
	}

	for _, id := range ids {
		if !found[id] {
			return "", fmt.Errorf("%w: account %d", ErrAccountNotFound, id)
		}
	}
	return currency, nil
}

// replay rebuilds the result of an already-committed transaction
func (s *DoubleLedgerService) replay(ctx context.Context, q Querier, initiatorID, key string) (*models.PostingResult, error) {
	txn, err := s.FindTransaction(ctx, q, initiatorID, key)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, fmt.Errorf("%w: transaction for key %q vanished during replay", ErrStorageFailure, key)
	}
	result, err := s.totalsFor(ctx, q, txn)
	if err != nil {
		return nil, err
	}
	result.Replayed = true
	return result, nil
}

// FindTransaction looks up a transaction by (initiator, key). It returns nil
// without error when none exists.
func (s *DoubleLedgerService) FindTransaction(ctx context.Context, q Querier, initiatorID, key string) (*models.LedgerTransaction, error) {
	var txn models.LedgerTransaction
	err := q.QueryRowContext(ctx, `
		SELECT id, initiator_id, idempotency_key, metadata, posted_at
		FROM ledger_transactions
		WHERE initiator_id = $1 AND idempotency_key = $2`,
		initiatorID, key).Scan(&txn.ID, &txn.InitiatorID, &txn.IdempotencyKey, &txn.Metadata, &txn.PostedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageError("find transaction", err)
	}
	return &txn, nil
}

func (s *DoubleLedgerService) totalsFor(ctx context.Context, q Querier, txn *models.LedgerTransaction) (*models.PostingResult, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT e.amount_cents, a.currency
		FROM ledger_entries e
		JOIN ledger_accounts a ON a.id = e.account_id
		WHERE e.transaction_id = $1
		ORDER BY e.id`, txn.ID)
	if err != nil {
		return nil, storageError("load entries", err)
	}
	defer rows.Close()

	var amounts []int64
	currency := ""
	for rows.Next() {
		var amount int64
		if err := rows.Scan(&amount, &currency); err != nil {
			return nil, storageError("scan entry", err)
		}
		amounts = append(amounts, amount)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load entries", err)
	}

	return &models.PostingResult{
		TxnID:    txn.ID,
		PostedAt: txn.PostedAt,
		Totals:   models.TotalsOf(amounts),
		Currency: currency,
	}, nil
}

// Transfer moves funds between two accounts of the same currency. The
// source account must belong to the initiator.
func (s *DoubleLedgerService) Transfer(ctx context.Context, initiatorID string, req models.TransferRequest) (*models.TransferResult, error) {
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccount
	}
	if req.AmountCents <= 0 {
		return nil, fmt.Errorf("%w: amount_cents must be a positive integer", ErrInvalidAmount)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	defer tx.Rollback()

	from, err := s.loadAccount(ctx, tx, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	to, err := s.loadAccount(ctx, tx, req.ToAccountID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(from, initiatorID) {
		return nil, fmt.Errorf("%w: account %d", ErrAccountNotFound, from.ID)
	}
	if from.Currency != to.Currency {
		return nil, fmt.Errorf("%w: Both accounts must have the same currency", ErrCurrencyMismatch)
	}

	meta := models.Metadata{}
	for k, v := range req.Metadata {
		meta[k] = v
	}
	meta["transfer_type"] = "internal"
	meta["from_account_id"] = req.FromAccountID
	meta["to_account_id"] = req.ToAccountID

	result, err := s.PostTx(ctx, tx, initiatorID, models.PostingRequest{
		IdempotencyKey: req.IdempotencyKey,
		Lines: []models.PostingLine{
			{AccountID: req.FromAccountID, AmountCents: req.AmountCents, Direction: models.Credit},
			{AccountID: req.ToAccountID, AmountCents: req.AmountCents, Direction: models.Debit},
		},
		Metadata: meta,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}

	log.Printf("[LEDGER] Transfer %d -> %d of %d %s (txn %d)", req.FromAccountID, req.ToAccountID, req.AmountCents, from.Currency, result.TxnID)
	return &models.TransferResult{
		PostingResult: *result,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		AmountCents:   req.AmountCents,
	}, nil
}

func (s *DoubleLedgerService) loadAccount(ctx context.Context, q Querier, id int64) (*models.LedgerAccount, error) {
	var a models.LedgerAccount
	err := q.QueryRowContext(ctx, `
		SELECT id, owner_type, owner_ref, code, currency, active, created_at
		FROM ledger_accounts WHERE id = $1`, id).
		Scan(&a.ID, &a.OwnerType, &a.OwnerRef, &a.Code, &a.Currency, &a.Active, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: account %d", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, storageError("load account", err)
	}
	return &a, nil
}

// ownedBy reports whether a customer or loan account belongs to the user
func ownedBy(a *models.LedgerAccount, userID string) bool {
	if a.OwnerType == models.OwnerBank {
		return false
	}
	owner, _, found := strings.Cut(a.OwnerRef, ":")
	return found && userID != "" && owner == userID
}

// GetTransaction returns a transaction and its entries
func (s *DoubleLedgerService) GetTransaction(ctx context.Context, txnID int64) (*models.LedgerTransaction, error) {
	var txn models.LedgerTransaction
	err := s.db.QueryRowContext(ctx, `
		SELECT id, initiator_id, idempotency_key, metadata, posted_at
		FROM ledger_transactions WHERE id = $1`, txnID).
		Scan(&txn.ID, &txn.InitiatorID, &txn.IdempotencyKey, &txn.Metadata, &txn.PostedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, txnID)
	}
	if err != nil {
		return nil, storageError("get transaction", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, transaction_id, account_id, amount_cents, created_at
		FROM ledger_entries WHERE transaction_id = $1 ORDER BY id`, txnID)
	if err != nil {
		return nil, storageError("get entries", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.AccountID, &e.AmountCents, &e.CreatedAt); err != nil {
			return nil, storageError("scan entry", err)
		}
		txn.Entries = append(txn.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("get entries", err)
	}
	return &txn, nil
}

// GetAccountBalance sums all entries of an account owned by the user
func (s *DoubleLedgerService) GetAccountBalance(ctx context.Context, userID string, accountID int64) (*models.AccountBalance, error) {
	account, err := s.loadAccount(ctx, s.db, accountID)
	if err != nil {
		return nil, err
	}
	if !ownedBy(account, userID) {
		return nil, fmt.Errorf("%w: account %d", ErrAccountNotFound, accountID)
	}

	var balance int64
	if err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_cents), 0) FROM ledger_entries WHERE account_id = $1`,
		accountID).Scan(&balance); err != nil {
		return nil, storageError("sum entries", err)
	}

	return &models.AccountBalance{
		AccountID:    account.ID,
		Code:         account.Code,
		Currency:     account.Currency,
		BalanceCents: balance,
	}, nil
}

func (s *DoubleLedgerService) record(initiatorID string, req models.PostingRequest, result *models.PostingResult, start time.Time) {
	if result.Replayed {
		s.metrics.RecordPosting(time.Since(start), "replayed")
		s.audit.LogReplay(initiatorID, result.TxnID, req.IdempotencyKey)
		return
	}
	s.metrics.RecordPosting(time.Since(start), "committed")
	s.audit.LogPosting(initiatorID, result.TxnID, req.IdempotencyKey, result.Totals.Debits, len(req.Lines))
}

func (s *DoubleLedgerService) reject(initiatorID, key string, start time.Time, outcome string, err error) {
	s.metrics.RecordPosting(time.Since(start), outcome)
	s.audit.LogError(initiatorID, key, err)
	log.Printf("[LEDGER] Posting %q by %s %s: %v", key, initiatorID, outcome, err)
}

func outcomeFor(err error) string {
	if errors.Is(err, ErrStorageFailure) {
		return "failed"
	}
	return "rejected"
}
