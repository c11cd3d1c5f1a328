package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/jbank/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid posting", func(t *testing.T) {
		req := models.PostingRequest{
			IdempotencyKey: "k1",
			Lines: []models.PostingLine{
				{AccountID: 1, AmountCents: 1000, Direction: models.Debit},
				{AccountID: 2, AmountCents: 1000, Direction: models.Credit},
			},
		}
		assert.NoError(t, vh.ValidateStruct(&req))
	})

	t.Run("invalid posting line", func(t *testing.T) {
		req := models.PostingRequest{
			IdempotencyKey: "k1",
			Lines: []models.PostingLine{
				{AccountID: 1, AmountCents: -5, Direction: "SIDEWAYS"},
			},
		}

		err := vh.ValidateStruct(&req)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 2)
	})

	t.Run("currency must be ISO 4217", func(t *testing.T) {
		err := vh.ValidateStruct(&models.CreateDepositRequest{Currency: "XYZW"})
		assert.Error(t, err)

		details := FieldErrors(err)
		assert.Contains(t, details, "currency")
	})

	t.Run("loan type must be TERM", func(t *testing.T) {
		req := models.CreateLoanRequest{
			LocAccountNumber:     "LOC-1",
			DepositAccountID:     1,
			LoanType:             "REVOLVING",
			PrincipalAmountCents: 500000,
			TenureMonths:         12,
			IdempotencyKey:       "k",
		}

		details := FieldErrors(vh.ValidateStruct(&req))
		assert.Contains(t, details, "loan_type")
	})
}

func TestFieldErrors(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("nested fields use json names", func(t *testing.T) {
		req := models.PostingRequest{
			IdempotencyKey: "k1",
			Lines:          []models.PostingLine{{AccountID: 0, AmountCents: 10, Direction: models.Debit}},
		}

		details := FieldErrors(vh.ValidateStruct(&req))
		assert.Contains(t, details, "lines[0].account_id")
	})

	t.Run("non validation error yields nil", func(t *testing.T) {
		assert.Nil(t, FieldErrors(ErrInvalidAmount))
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("error response without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("error response with validation errors", func(t *testing.T) {
		vh := NewValidationHelper()
		validationErr := vh.ValidateStruct(&models.CreateLocRequest{Currency: "usd", CreditLimitCents: 0})
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var response ErrorResponse
		err := json.Unmarshal(w.Body.Bytes(), &response)
		assert.NoError(t, err)
		assert.Equal(t, "Validation failed", response.Error)
		assert.Contains(t, response.Details, "currency")
		assert.Contains(t, response.Details, "credit_limit_cents")
	})

	t.Run("non validation error is not fatal", func(t *testing.T) {
		w := httptest.NewRecorder()

		assert.NotPanics(t, func() {
			SendErrorResponse(w, "Invalid request", http.StatusBadRequest, ErrInvalidQuery)
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
