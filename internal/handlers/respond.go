package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/jbank/backend/internal/middleware"
	"github.com/jbank/backend/internal/services"
)

const maxBodyBytes = 1_048_576

// clientErrors map to 400, in the order they are checked
var clientErrors = []error{
	services.ErrValidation,
	services.ErrInvalidAmount,
	services.ErrUnbalancedTransaction,
	services.ErrCurrencyMismatch,
	services.ErrInvalidQuery,
	services.ErrInsufficientCredit,
	services.ErrSameAccount,
	services.ErrNothingDue,
}

var notFoundErrors = []error{
	services.ErrNotFound,
	services.ErrAccountNotFound,
}

// statusFor maps a service error to an HTTP status
func statusFor(err error) int {
	for _, e := range clientErrors {
		if errors.Is(err, e) {
			return http.StatusBadRequest
		}
	}
	for _, e := range notFoundErrors {
		if errors.Is(err, e) {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// sendServiceError writes a service error without leaking storage details
func sendServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] Internal error: %v", err)
		services.SendErrorResponse(w, "Internal server error", status, nil)
		return
	}
	services.SendErrorResponse(w, errorMessage(err), status, nil)
}

// errorMessage drops the sentinel prefix when the error carries its own detail
func errorMessage(err error) string {
	msg := err.Error()
	for _, e := range append(clientErrors, notFoundErrors...) {
		if errors.Is(err, e) {
			if rest, ok := strings.CutPrefix(msg, e.Error()+": "); ok {
				return rest
			}
		}
	}
	return msg
}

// decodeJSON reads exactly one JSON object into dst and validates it
func decodeJSON(w http.ResponseWriter, r *http.Request, v *services.ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[HTTP] Failed to encode response: %v", err)
	}
}

func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := middleware.UserIDFromContext(r.Context())
	if userID == "" {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return "", false
	}
	return userID, true
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		services.SendErrorResponse(w, "Invalid "+name, http.StatusBadRequest, nil)
		return 0, false
	}
	return id, true
}

// createdOrReplayed answers 201 for new work and 200 for an idempotent replay
func createdOrReplayed(replayed bool) int {
	if replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}
