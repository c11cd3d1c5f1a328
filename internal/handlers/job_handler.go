package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jbank/backend/internal/models"
	"github.com/jbank/backend/internal/services"
)

// JobRunner runs loan lifecycle jobs and reports their last run
type JobRunner interface {
	Run(ctx context.Context, job string, asOf time.Time) (*models.JobSummary, error)
	LastRun(ctx context.Context, job string) (*models.JobSummary, error)
	Now() time.Time
	Location() *time.Location
}

type JobHandler struct {
	scheduler JobRunner
}

func NewJobHandler(scheduler JobRunner) *JobHandler {
	return &JobHandler{scheduler: scheduler}
}

// Trigger runs one loan lifecycle job
// @Summary Trigger loan job
// @Description Invoked by the external cron dispatcher. Jobs are idempotent; mature-due only acts on the 28th and accrue-interest on the 1st.
// @Tags Jobs
// @Produce json
// @Param X-Scheduler-Token header string true "Scheduler token"
// @Param job path string true "Job name" Enums(mature-due, age-overdue, accrue-interest)
// @Param as_of query string false "Run as of date (YYYY-MM-DD)"
// @Success 200 {object} models.JobSummary
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /jobs/loans/{job} [post]
func (h *JobHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	asOf := h.scheduler.Now()
	if v := r.URL.Query().Get("as_of"); v != "" {
		parsed, err := time.ParseInLocation(dateLayout, v, h.scheduler.Location())
		if err != nil {
			services.SendErrorResponse(w, "as_of must be YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		asOf = parsed
	}

	summary, err := h.scheduler.Run(r.Context(), chi.URLParam(r, "job"), asOf)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// LastRun returns the summary of the most recent run of a job
// @Summary Last job run
// @Tags Jobs
// @Produce json
// @Param X-Scheduler-Token header string true "Scheduler token"
// @Param job path string true "Job name"
// @Success 200 {object} models.JobSummary
// @Failure 404 {object} services.ErrorResponse
// @Router /jobs/{job}/last [get]
func (h *JobHandler) LastRun(w http.ResponseWriter, r *http.Request) {
	summary, err := h.scheduler.LastRun(r.Context(), chi.URLParam(r, "job"))
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
