package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/jbank/backend/internal/models"
	"github.com/jbank/backend/internal/services"
)

const dateLayout = "2006-01-02"

type TimelineReader interface {
	GetTimeline(ctx context.Context, customerID string, filter models.TimelineFilter, page, limit int) (*models.TimelinePage, error)
}

type TimelineHandler struct {
	timeline TimelineReader
}

func NewTimelineHandler(timeline TimelineReader) *TimelineHandler {
	return &TimelineHandler{timeline: timeline}
}

// GetHistory returns the caller's history, newest first
// @Summary Customer history
// @Tags History
// @Produce json
// @Security BearerAuth
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD), inclusive"
// @Param type query string false "Event type" Enums(LEDGER_TRANSACTION, DEPOSIT_OPENED, LOC_OPENED, LOAN_CREATED)
// @Param page query int false "Page, from 1" default(1)
// @Param limit query int false "Page size, 1-100" default(50)
// @Success 200 {object} models.TimelinePage
// @Failure 400 {object} services.ErrorResponse
// @Router /history [get]
func (h *TimelineHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	var filter models.TimelineFilter
	filter.Type = q.Get("type")

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			services.SendErrorResponse(w, "from must be YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		filter.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			services.SendErrorResponse(w, "to must be YYYY-MM-DD", http.StatusBadRequest, nil)
			return
		}
		end := to.Add(24*time.Hour - time.Nanosecond)
		filter.To = &end
	}

	page, ok := intParam(w, q.Get("page"), "page", 1)
	if !ok {
		return
	}
	limit, ok := intParam(w, q.Get("limit"), "limit", 0)
	if !ok {
		return
	}

	result, err := h.timeline.GetTimeline(r.Context(), userID, filter, page, limit)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func intParam(w http.ResponseWriter, raw, name string, def int) (int, bool) {
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		services.SendErrorResponse(w, name+" must be an integer", http.StatusBadRequest, nil)
		return 0, false
	}
	return n, true
}
