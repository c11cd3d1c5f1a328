package models

import "time"

// Timeline event types
const (
	TimelineLedgerTransaction = "LEDGER_TRANSACTION"
	TimelineDepositOpened     = "DEPOSIT_OPENED"
	TimelineLocOpened         = "LOC_OPENED"
	TimelineLoanCreated       = "LOAN_CREATED"
)

type TimelineItem struct {
	CustomerID  string    `json:"customer_id" db:"customer_id"`
	Date        time.Time `json:"date" db:"event_date"`
	Type        string    `json:"type" db:"event_type"`
	ReferenceID string    `json:"reference_id" db:"reference_id"`
	AmountCents *int64    `json:"amount_cents,omitempty" db:"amount_cents"`
	Currency    string    `json:"currency,omitempty" db:"currency"`
	Details     Metadata  `json:"details,omitempty" db:"details"`
}

// TimelineFilter holds optional history filters
type TimelineFilter struct {
	From *time.Time `json:"from,omitempty"`
	To   *time.Time `json:"to,omitempty"`
	Type string     `json:"type,omitempty"`
}

type Pagination struct {
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

type TimelinePage struct {
	Items      []TimelineItem `json:"items"`
	Pagination Pagination     `json:"pagination"`
	Filters    TimelineFilter `json:"filters"`
}

// JobSummary reports one scheduler run
type JobSummary struct {
	Job             string    `json:"job"`
	RunID           string    `json:"run_id"`
	Message         string    `json:"message"`
	ProcessedCount  int       `json:"processed_count"`
	TotalCandidates int       `json:"total_loans"`
	Errors          []string  `json:"errors"`
	Skipped         bool      `json:"skipped"`
	AsOf            string    `json:"as_of"`
	ProcessedAt     time.Time `json:"processed_at"`
}
