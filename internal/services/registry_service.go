package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/jbank/backend/internal/models"
	"github.com/lib/pq"
)

// AccountRegistry provisions and resolves ledger accounts by (owner, code, currency)
type AccountRegistry struct {
	db *sql.DB
}

func NewAccountRegistry(db *sql.DB) *AccountRegistry {
	return &AccountRegistry{db: db}
}

// ProvisionAccounts creates any missing accounts for the owner and returns
// the ids of all requested codes. Safe to call repeatedly.
func (r *AccountRegistry) ProvisionAccounts(ctx context.Context, q Querier, ownerType models.OwnerType, ownerRef, currency string, codes []models.AccountCode) (map[models.AccountCode]int64, error) {
	ids := make(map[models.AccountCode]int64, len(codes))
	for _, code := range codes {
		var id int64
		err := q.QueryRowContext(ctx, `
			INSERT INTO ledger_accounts (owner_type, owner_ref, code, currency)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (owner_type, owner_ref, code, currency) DO NOTHING
			RETURNING id`,
			ownerType, ownerRef, code, currency).Scan(&id)

		if errors.Is(err, sql.ErrNoRows) {
			err = q.QueryRowContext(ctx, `
				SELECT id FROM ledger_accounts
				WHERE owner_type = $1 AND owner_ref = $2 AND code = $3 AND currency = $4`,
				ownerType, ownerRef, code, currency).Scan(&id)
		}
		if err != nil {
			return nil, storageError("provision account "+string(code), err)
		}
		ids[code] = id
	}
	return ids, nil
}

// Provision runs ProvisionAccounts in its own transaction
func (r *AccountRegistry) Provision(ctx context.Context, ownerType models.OwnerType, ownerRef, currency string, codes []models.AccountCode) (map[models.AccountCode]int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin", err)
	}
	defer tx.Rollback()

	ids, err := r.ProvisionAccounts(ctx, tx, ownerType, ownerRef, currency, codes)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, storageError("commit", err)
	}
	return ids, nil
}

// ResolveAccount returns the first account matching owner and code
func (r *AccountRegistry) ResolveAccount(ctx context.Context, ownerType models.OwnerType, ownerRef string, code models.AccountCode) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM ledger_accounts
		WHERE owner_type = $1 AND owner_ref = $2 AND code = $3
		ORDER BY id LIMIT 1`,
		ownerType, ownerRef, code).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s %s %s", ErrAccountNotFound, ownerType, ownerRef, code)
	}
	if err != nil {
		return 0, storageError("resolve account", err)
	}
	return id, nil
}

// ResolveAccounts resolves several codes for one owner and currency.
// Every code must exist.
func (r *AccountRegistry) ResolveAccounts(ctx context.Context, q Querier, ownerType models.OwnerType, ownerRef, currency string, codes []models.AccountCode) (map[models.AccountCode]int64, error) {
	names := make([]string, len(codes))
	for i, c := range codes {
		names[i] = string(c)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT code, id FROM ledger_accounts
		WHERE owner_type = $1 AND owner_ref = $2 AND currency = $3 AND code = ANY($4)`,
		ownerType, ownerRef, currency, pq.Array(names))
	if err != nil {
		return nil, storageError("resolve accounts", err)
	}
	defer rows.Close()

	ids := make(map[models.AccountCode]int64, len(codes))
	for rows.Next() {
		var code string
		var id int64
		if err := rows.Scan(&code, &id); err != nil {
			return nil, storageError("scan account", err)
		}
		ids[models.AccountCode(code)] = id
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("resolve accounts", err)
	}

	for _, c := range codes {
		if _, ok := ids[c]; !ok {
			return nil, fmt.Errorf("%w: %s %s %s", ErrAccountNotFound, ownerType, ownerRef, c)
		}
	}
	return ids, nil
}

// EnsureBankAccounts provisions the bank-level accounts for each currency
func (r *AccountRegistry) EnsureBankAccounts(ctx context.Context, currencies []string) error {
	for _, ccy := range currencies {
		if _, err := r.Provision(ctx, models.OwnerBank, models.BankInterestOwnerRef, ccy,
			[]models.AccountCode{models.CodeBankInterestEarned}); err != nil {
			return err
		}
		if _, err := r.Provision(ctx, models.OwnerBank, models.BankRepaymentsOwnerRef, ccy,
			[]models.AccountCode{models.CodeBankLoanRepayments}); err != nil {
			return err
		}
		log.Printf("[REGISTRY] Bank accounts ready for %s", ccy)
	}
	return nil
}

// NextAccountNumber issues "{PREFIX}-{year}{sequence}{check digit}" from a
// database sequence, so numbers never collide.
func (r *AccountRegistry) NextAccountNumber(ctx context.Context, q Querier, prefix string, now time.Time) (string, error) {
	var seq int64
	if err := q.QueryRowContext(ctx, `SELECT nextval('account_number_seq')`).Scan(&seq); err != nil {
		return "", storageError("account number", err)
	}
	return FormatAccountNumber(prefix, now.Year(), seq), nil
}

func FormatAccountNumber(prefix string, year int, seq int64) string {
	body := fmt.Sprintf("%04d%06d", year, seq)
	return strings.ToUpper(prefix) + "-" + body + strconv.Itoa(luhnCheckDigit(body))
}

func luhnCheckDigit(digits string) int {
	sum := 0
	double := true
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return (10 - sum%10) % 10
}

// ValidAccountNumber checks the Luhn digit of an issued account number
func ValidAccountNumber(number string) bool {
	i := strings.LastIndex(number, "-")
	if i < 0 || len(number)-i < 3 {
		return false
	}
	digits := number[i+1:]
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return luhnCheckDigit(digits[:len(digits)-1]) == int(digits[len(digits)-1]-'0')
}
