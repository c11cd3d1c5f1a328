package models

import "time"

type DepositStatus string

const (
	DepositActive DepositStatus = "ACTIVE"
	DepositClosed DepositStatus = "CLOSED"
)

type LoanStatus string

const (
	LoanActive    LoanStatus = "ACTIVE"
	LoanPaidOff   LoanStatus = "PAID_OFF"
	LoanDefaulted LoanStatus = "DEFAULTED"
)

// ScheduleStatus is the lifecycle state of one installment
type ScheduleStatus string

const (
	SchedulePending ScheduleStatus = "PENDING"
	ScheduleDue     ScheduleStatus = "DUE"
	ScheduleOverdue ScheduleStatus = "OVERDUE"
	SchedulePaid    ScheduleStatus = "PAID"
)

// CanTransitionTo reports whether an installment may move to next.
// Transitions only go forward: PENDING -> DUE -> OVERDUE, DUE|OVERDUE -> PAID.
func (s ScheduleStatus) CanTransitionTo(next ScheduleStatus) bool {
	switch s {
	case SchedulePending:
		return next == ScheduleDue
	case ScheduleDue:
		return next == ScheduleOverdue || next == SchedulePaid
	case ScheduleOverdue:
		return next == SchedulePaid
	}
	return false
}

const LoanTypeTerm = "TERM"

type DepositAccount struct {
	ID              int64         `json:"id" db:"id"`
	UserID          string        `json:"user_id" db:"user_id"`
	Currency        string        `json:"currency" db:"currency"`
	Status          DepositStatus `json:"status" db:"status"`
	LedgerAccountID int64         `json:"ledger_account_id"`
	CreatedAt       time.Time     `json:"created_at" db:"created_at"`
}

type LineOfCredit struct {
	ID               int64     `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	AccountNumber    string    `json:"account_number" db:"account_number"`
	Currency         string    `json:"currency" db:"currency"`
	CreditLimitCents int64     `json:"credit_limit_cents" db:"credit_limit_cents"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

type TermLoan struct {
	ID                     int64      `json:"id" db:"id"`
	UserID                 string     `json:"user_id" db:"user_id"`
	LocAccountID           int64      `json:"loc_account_id" db:"loc_account_id"`
	LoanAccountNumber      string     `json:"loan_account_number" db:"loan_account_number"`
	Currency               string     `json:"currency" db:"currency"`
	PrincipalAmountCents   int64      `json:"principal_amount_cents" db:"principal_amount_cents"`
	MonthlyInterestRateBps int64      `json:"monthly_interest_rate_bps" db:"monthly_interest_rate_bps"`
	TenureMonths           int        `json:"tenure_months" db:"tenure_months"`
	StartDate              time.Time  `json:"start_date" db:"start_date"`
	MaturityDate           time.Time  `json:"maturity_date" db:"maturity_date"`
	Status                 LoanStatus `json:"status" db:"status"`
	IdempotencyKey         string     `json:"idempotency_key" db:"idempotency_key"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
}

// ScheduleLine is one computed installment before it is persisted
type ScheduleLine struct {
	InstallmentNo     int       `json:"installment_no"`
	DueDate           time.Time `json:"due_date"`
	PrincipalDueCents int64     `json:"principal_due_cents"`
	InterestDueCents  int64     `json:"interest_due_cents"`
	RemainingCents    int64     `json:"remaining_cents"`
}

type RepaymentScheduleEntry struct {
	ID                int64          `json:"id" db:"id"`
	LoanID            int64          `json:"loan_id" db:"loan_id"`
	InstallmentNo     int            `json:"installment_no" db:"installment_no"`
	DueDate           time.Time      `json:"due_date" db:"due_date"`
	PrincipalDueCents int64          `json:"principal_due_cents" db:"principal_due_cents"`
	InterestDueCents  int64          `json:"interest_due_cents" db:"interest_due_cents"`
	Status            ScheduleStatus `json:"status" db:"status"`
	PaidAt            *time.Time     `json:"paid_at,omitempty" db:"paid_at"`
}

type LocExposure struct {
	LocAccountID         int64  `json:"loc_account_id"`
	Currency             string `json:"currency"`
	CreditLimitCents     int64  `json:"credit_limit_cents"`
	OutstandingCents     int64  `json:"outstanding_principal_cents"`
	AvailableCreditCents int64  `json:"available_credit_cents"`
}

type CreateDepositRequest struct {
	Currency string `json:"currency" validate:"required,iso4217"`
}

type CreateDepositResult struct {
	DepositAccountID int64 `json:"deposit_account_id"`
	LedgerAccountID  int64 `json:"ledger_account_id"`
}

type CreateLocRequest struct {
	Currency         string `json:"currency" validate:"required,iso4217"`
	CreditLimitCents int64  `json:"credit_limit_cents" validate:"required,gt=0"`
}

type CreateLocResult struct {
	LocAccountID     int64  `json:"loc_account_id"`
	AccountNumber    string `json:"account_number"`
	CreditLimitCents int64  `json:"credit_limit_cents"`
	Currency         string `json:"currency"`
}

type CreateLoanRequest struct {
	LocAccountNumber       string `json:"loc_account_number" validate:"required"`
	DepositAccountID       int64  `json:"deposit_account_id" validate:"required,gt=0"`
	LoanType               string `json:"loan_type" validate:"required,oneof=TERM"`
	PrincipalAmountCents   int64  `json:"principal_amount_cents" validate:"required,gt=0"`
	MonthlyInterestRateBps int64  `json:"monthly_interest_rate_bps" validate:"gte=0,lte=10000"`
	TenureMonths           int    `json:"tenure_months" validate:"required,gt=0,lte=600"`
	IdempotencyKey         string `json:"idempotency_key" validate:"required,max=255"`
}

type CreateLoanResult struct {
	LoanID            int64  `json:"loan_id"`
	LoanAccountNumber string `json:"loan_account_number"`
	ScheduleCount     int    `json:"schedule_count"`
	DisbursalTxnID    int64  `json:"disbursal_txn_id"`
	Replayed          bool   `json:"replayed"`
}

type RepaymentRequest struct {
	DepositAccountID int64  `json:"deposit_account_id" validate:"required,gt=0"`
	AmountCents      int64  `json:"amount_cents" validate:"required,gt=0"`
	IdempotencyKey   string `json:"idempotency_key" validate:"required,max=255"`
}

type RepaymentResult struct {
	LoanID           int64      `json:"loan_id"`
	AppliedCents     int64      `json:"applied_cents"`
	InstallmentsPaid []int      `json:"installments_paid"`
	CashTxnID        int64      `json:"cash_txn_id"`
	SettlementTxnID  int64      `json:"settlement_txn_id"`
	LoanStatus       LoanStatus `json:"loan_status"`
	Replayed         bool       `json:"replayed"`
}
