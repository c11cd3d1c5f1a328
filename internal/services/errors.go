package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

var (
	ErrValidation            = errors.New("validation failed")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrUnbalancedTransaction = errors.New("unbalanced transaction")
	ErrAccountNotFound       = errors.New("account not found")
	ErrCurrencyMismatch      = errors.New("currency mismatch")
	ErrStorageFailure        = errors.New("storage failure")
	ErrInvalidQuery          = errors.New("invalid query")
	ErrNotFound              = errors.New("not found")
	ErrInsufficientCredit    = errors.New("insufficient credit")
	ErrSameAccount           = errors.New("source and destination accounts must differ")
	ErrNothingDue            = errors.New("nothing due")
)

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Clock supplies the current time to jobs and postings
type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant
type FixedClock time.Time

func (c FixedClock) Now() time.Time { return time.Time(c) }

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
	pqRaiseException      = "P0001"
)

// storageError classifies a driver error. Sentinel-wrapped errors pass through.
func storageError(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrValidation, ErrInvalidAmount, ErrUnbalancedTransaction, ErrAccountNotFound,
		ErrCurrencyMismatch, ErrStorageFailure, ErrNotFound, ErrInsufficientCredit,
		ErrSameAccount, ErrNothingDue,
	} {
		if errors.Is(err, known) {
			return err
		}
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return fmt.Errorf("%w: %s", ErrAccountNotFound, pqErr.Detail)
		case pqRaiseException:
			// zero-sum trigger
			return fmt.Errorf("%w: %s", ErrUnbalancedTransaction, pqErr.Message)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageFailure, op, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation
}
