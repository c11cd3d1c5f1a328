package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func scrape(m *Collector) string {
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return w.Body.String()
}

func TestCollector(t *testing.T) {
	t.Run("records postings by outcome", func(t *testing.T) {
		m := NewCollector()
		m.RecordPosting(10*time.Millisecond, "committed")
		m.RecordPosting(5*time.Millisecond, "committed")
		m.RecordPosting(time.Millisecond, "replayed")

		body := scrape(m)
		assert.Contains(t, body, `ledger_postings_total{outcome="committed"} 2`)
		assert.Contains(t, body, `ledger_postings_total{outcome="replayed"} 1`)
		assert.Contains(t, body, "ledger_posting_duration_seconds_count 3")
	})

	t.Run("records jobs", func(t *testing.T) {
		m := NewCollector()
		m.RecordJob("mature_due", "partial", 3, 1)

		body := scrape(m)
		assert.Contains(t, body, `loan_job_runs_total{job="mature_due",result="partial"} 1`)
		assert.Contains(t, body, `loan_job_loans_processed_total{job="mature_due"} 3`)
		assert.Contains(t, body, `loan_job_loan_errors_total{job="mature_due"} 1`)
	})

	t.Run("nil collector is a no-op", func(t *testing.T) {
		var m *Collector
		assert.NotPanics(t, func() {
			m.RecordPosting(time.Second, "failed")
			m.RecordJob("x", "ok", 1, 0)
		})
	})
}
