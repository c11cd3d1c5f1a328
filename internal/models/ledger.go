package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// OwnerType identifies who a ledger account belongs to
type OwnerType string

const (
	OwnerCustomer OwnerType = "CUSTOMER"
	OwnerLoan     OwnerType = "LOAN"
	OwnerBank     OwnerType = "BANK"
)

// AccountCode classifies the purpose of a ledger account
type AccountCode string

const (
	CodeCustomerDeposit    AccountCode = "CUSTOMER_DEPOSIT_ACCOUNT"
	CodeLocFacility        AccountCode = "CUSTOMER_LOC_FACILITY"
	CodePrincipalCharged   AccountCode = "CUSTOMER_PRINCIPAL_CHARGED"
	CodePrincipalDue       AccountCode = "CUSTOMER_PRINCIPAL_DUE"
	CodePrincipalOverdue   AccountCode = "CUSTOMER_PRINCIPAL_OVERDUE"
	CodeInterestCharged    AccountCode = "CUSTOMER_INTEREST_CHARGED"
	CodeInterestDue        AccountCode = "CUSTOMER_INTEREST_DUE"
	CodeInterestOverdue    AccountCode = "CUSTOMER_INTEREST_OVERDUE"
	CodeLoanRepaid         AccountCode = "CUSTOMER_LOAN_REPAID"
	CodeBankInterestEarned AccountCode = "BANK_INTEREST_EARNED"
	CodeBankLoanRepayments AccountCode = "BANK_LOAN_REPAYMENTS"
)

// Owner references for bank-level accounts
const (
	BankInterestOwnerRef   = "BANK:INTEREST"
	BankRepaymentsOwnerRef = "BANK:REPAYMENTS"
)

// LoanAccountCodes are provisioned for every term loan
var LoanAccountCodes = []AccountCode{
	CodePrincipalCharged,
	CodePrincipalDue,
	CodePrincipalOverdue,
	CodeInterestCharged,
	CodeInterestDue,
	CodeInterestOverdue,
}

// Direction of a posting line
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// OwnerRef builds the composite owner reference "{user}:{product}"
func OwnerRef(userID, productID string) string {
	return userID + ":" + productID
}

type LedgerAccount struct {
	ID        int64       `json:"id" db:"id"`
	OwnerType OwnerType   `json:"owner_type" db:"owner_type"`
	OwnerRef  string      `json:"owner_ref" db:"owner_ref"`
	Code      AccountCode `json:"code" db:"code"`
	Currency  string      `json:"currency" db:"currency"`
	Active    bool        `json:"active" db:"active"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

type LedgerTransaction struct {
	ID             int64         `json:"id" db:"id"`
	InitiatorID    string        `json:"initiator_id" db:"initiator_id"`
	IdempotencyKey string        `json:"idempotency_key" db:"idempotency_key"`
	Metadata       Metadata      `json:"metadata" db:"metadata"`
	PostedAt       time.Time     `json:"posted_at" db:"posted_at"`
	Entries        []LedgerEntry `json:"entries,omitempty"`
}

// LedgerEntry is a signed movement; positive amounts are debits
type LedgerEntry struct {
	ID            int64     `json:"id" db:"id"`
	TransactionID int64     `json:"transaction_id" db:"transaction_id"`
	AccountID     int64     `json:"account_id" db:"account_id"`
	AmountCents   int64     `json:"amount_cents" db:"amount_cents"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// PostingLine is one requested movement, amount always positive
type PostingLine struct {
	AccountID   int64     `json:"account_id" validate:"required,gt=0"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
	Direction   Direction `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
}

// Signed returns the line amount with debits positive and credits negative
func (l PostingLine) Signed() int64 {
	if l.Direction == Credit {
		return -l.AmountCents
	}
	return l.AmountCents
}

type PostingRequest struct {
	IdempotencyKey string        `json:"idempotency_key" validate:"required,max=255"`
	Lines          []PostingLine `json:"lines" validate:"required,min=1,dive"`
	Metadata       Metadata      `json:"meta,omitempty"`
}

type Totals struct {
	Debits  int64 `json:"debits"`
	Credits int64 `json:"credits"`
	Net     int64 `json:"net"`
}

// TotalsOf sums signed amounts into debit and credit columns
func TotalsOf(amounts []int64) Totals {
	var t Totals
	for _, a := range amounts {
		if a > 0 {
			t.Debits += a
		} else {
			t.Credits += -a
		}
	}
	t.Net = t.Debits - t.Credits
	return t
}

type PostingResult struct {
	TxnID    int64     `json:"txn_id"`
	PostedAt time.Time `json:"posted_at"`
	Totals   Totals    `json:"totals"`
	Currency string    `json:"currency"`
	Replayed bool      `json:"replayed"`
}

type TransferRequest struct {
	FromAccountID  int64    `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID    int64    `json:"to_account_id" validate:"required,gt=0"`
	AmountCents    int64    `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey string   `json:"idempotency_key" validate:"required,max=255"`
	Metadata       Metadata `json:"meta,omitempty"`
}

type TransferResult struct {
	PostingResult
	FromAccountID int64 `json:"from_account_id"`
	ToAccountID   int64 `json:"to_account_id"`
	AmountCents   int64 `json:"amount_cents"`
}

type AccountBalance struct {
	AccountID    int64       `json:"account_id"`
	Code         AccountCode `json:"code"`
	Currency     string      `json:"currency"`
	BalanceCents int64       `json:"balance_cents"`
}

// Metadata type for JSONB fields
type Metadata map[string]any

// Value implements driver.Valuer for Metadata
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for Metadata
func (m *Metadata) Scan(value any) error {
	if value == nil {
		*m = nil
		return nil
	}

	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
