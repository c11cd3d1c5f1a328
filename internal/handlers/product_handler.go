package handlers

import (
	"context"
	"net/http"

	"github.com/jbank/backend/internal/models"
	"github.com/jbank/backend/internal/services"
)

// LendingService creates products and applies repayments
type LendingService interface {
	CreateDepositAccount(ctx context.Context, userID string, req models.CreateDepositRequest) (*models.CreateDepositResult, error)
	CreateLineOfCredit(ctx context.Context, userID string, req models.CreateLocRequest) (*models.CreateLocResult, error)
	GetLocExposure(ctx context.Context, userID string, locID int64) (*models.LocExposure, error)
	CreateTermLoan(ctx context.Context, userID string, req models.CreateLoanRequest) (*models.CreateLoanResult, error)
	GetLoanSchedule(ctx context.Context, userID string, loanID int64) ([]models.RepaymentScheduleEntry, error)
	ApplyRepayment(ctx context.Context, userID string, loanID int64, req models.RepaymentRequest) (*models.RepaymentResult, error)
}

type ProductHandler struct {
	lending   LendingService
	validator *services.ValidationHelper
}

func NewProductHandler(lending LendingService) *ProductHandler {
	return &ProductHandler{
		lending:   lending,
		validator: services.NewValidationHelper(),
	}
}

// CreateDeposit opens a deposit account
// @Summary Create deposit account
// @Tags Products
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateDepositRequest true "Deposit account"
// @Success 201 {object} models.CreateDepositResult
// @Failure 400 {object} services.ErrorResponse
// @Router /deposits [post]
func (h *ProductHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateDepositRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.lending.CreateDepositAccount(r.Context(), userID, req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// CreateLoc opens a line of credit
// @Summary Create line of credit
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateLocRequest true "Line of credit"
// @Success 201 {object} models.CreateLocResult
// @Failure 400 {object} services.ErrorResponse
// @Router /lending/locs [post]
func (h *ProductHandler) CreateLoc(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateLocRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.lending.CreateLineOfCredit(r.Context(), userID, req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// GetLocExposure reports limit, outstanding principal and available credit
// @Summary Line of credit exposure
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Param locId path int true "Line of credit ID"
// @Success 200 {object} models.LocExposure
// @Failure 404 {object} services.ErrorResponse
// @Router /lending/locs/{locId}/exposure [get]
func (h *ProductHandler) GetLocExposure(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	locID, ok := pathID(w, r, "locId")
	if !ok {
		return
	}

	exposure, err := h.lending.GetLocExposure(r.Context(), userID, locID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exposure)
}

// CreateLoan draws a term loan against a line of credit
// @Summary Create term loan
// @Description Creates the loan, its repayment schedule and ledger accounts, and disburses the principal into the deposit account.
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateLoanRequest true "Loan request"
// @Success 201 {object} models.CreateLoanResult
// @Success 200 {object} models.CreateLoanResult "Replayed"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /lending/loans [post]
func (h *ProductHandler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.CreateLoanRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.lending.CreateTermLoan(r.Context(), userID, req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, createdOrReplayed(result.Replayed), result)
}

// GetSchedule lists the installments of a loan
// @Summary Loan repayment schedule
// @Tags Lending
// @Produce json
// @Security BearerAuth
// @Param loanId path int true "Loan ID"
// @Success 200 {array} models.RepaymentScheduleEntry
// @Failure 404 {object} services.ErrorResponse
// @Router /lending/loans/{loanId}/schedule [get]
func (h *ProductHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	loanID, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	schedule, err := h.lending.GetLoanSchedule(r.Context(), userID, loanID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, schedule)
}

// ApplyRepayment pays due and overdue installments from a deposit account
// @Summary Repay loan
// @Description Settles whole DUE/OVERDUE installments oldest first. Any amount smaller than the next installment is not taken.
// @Tags Lending
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param loanId path int true "Loan ID"
// @Param request body models.RepaymentRequest true "Repayment"
// @Success 201 {object} models.RepaymentResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /lending/loans/{loanId}/repayments [post]
func (h *ProductHandler) ApplyRepayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	loanID, ok := pathID(w, r, "loanId")
	if !ok {
		return
	}

	var req models.RepaymentRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.lending.ApplyRepayment(r.Context(), userID, loanID, req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, createdOrReplayed(result.Replayed), result)
}
