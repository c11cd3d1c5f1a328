package audit

import (
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	InitiatorID   string    `json:"initiator_id,omitempty"`
	TransactionID int64     `json:"transaction_id,omitempty"`
	Reference     string    `json:"reference,omitempty"`
	Amount        int64     `json:"amount_cents,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// Logger writes one JSON line per business event. A nil *Logger discards events.
type Logger struct {
	sink func(format string, v ...any)
}

func NewLogger() *Logger {
	return &Logger{sink: log.Printf}
}

// NewLoggerWithSink is used by tests to capture output
func NewLoggerWithSink(sink func(format string, v ...any)) *Logger {
	return &Logger{sink: sink}
}

func (a *Logger) LogPosting(initiatorID string, txnID int64, key string, debits int64, lines int) {
	a.log(Event{
		EventType:     "POSTING",
		InitiatorID:   initiatorID,
		TransactionID: txnID,
		Reference:     key,
		Amount:        debits,
		Status:        "COMMITTED",
		Details:       map[string]int{"lines": lines},
	})
}

func (a *Logger) LogReplay(initiatorID string, txnID int64, key string) {
	a.log(Event{
		EventType:     "POSTING",
		InitiatorID:   initiatorID,
		TransactionID: txnID,
		Reference:     key,
		Status:        "REPLAYED",
	})
}

func (a *Logger) LogError(initiatorID, reference string, err error) {
	a.log(Event{
		EventType:   "ERROR",
		InitiatorID: initiatorID,
		Reference:   reference,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	})
}

// LogProduct records creation of a deposit, line of credit or loan
func (a *Logger) LogProduct(initiatorID, product, reference string, amount int64) {
	a.log(Event{
		EventType:   product + "_CREATED",
		InitiatorID: initiatorID,
		Reference:   reference,
		Amount:      amount,
		Status:      "SUCCESS",
	})
}

func (a *Logger) LogJob(job, runID string, processed, candidates, failures int) {
	status := "SUCCESS"
	if failures > 0 {
		status = "PARTIAL"
	}
	a.log(Event{
		EventType: "JOB_" + job,
		Reference: runID,
		Status:    status,
		Details: map[string]int{
			"processed":  processed,
			"candidates": candidates,
			"failures":   failures,
		},
	})
}

func (a *Logger) log(event Event) {
	if a == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.Timestamp = time.Now().UTC()
	data, _ := json.Marshal(event)
	a.sink("AUDIT: %s", string(data))
}
