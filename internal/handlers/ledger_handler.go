package handlers

import (
	"context"
	"net/http"

	"github.com/jbank/backend/internal/models"
	"github.com/jbank/backend/internal/services"
)

// LedgerService is the posting engine as the HTTP layer sees it
type LedgerService interface {
	PostBalancedTransaction(ctx context.Context, initiatorID string, req models.PostingRequest) (*models.PostingResult, error)
	Transfer(ctx context.Context, initiatorID string, req models.TransferRequest) (*models.TransferResult, error)
	GetTransaction(ctx context.Context, txnID int64) (*models.LedgerTransaction, error)
	GetAccountBalance(ctx context.Context, userID string, accountID int64) (*models.AccountBalance, error)
}

// Pacs008Exporter renders a posted transfer as ISO 20022 XML
type Pacs008Exporter interface {
	ExportPacs008(ctx context.Context, userID string, txnID int64) (string, error)
}

type LedgerHandler struct {
	ledger    LedgerService
	iso       Pacs008Exporter
	validator *services.ValidationHelper
}

func NewLedgerHandler(ledger LedgerService, iso Pacs008Exporter) *LedgerHandler {
	return &LedgerHandler{
		ledger:    ledger,
		iso:       iso,
		validator: services.NewValidationHelper(),
	}
}

// PostTransaction posts a balanced multi-line transaction
// @Summary Post balanced transaction
// @Description Post a double-entry transaction. Debits and credits must net to zero. Retrying with the same idempotency key returns the original result.
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.PostingRequest true "Posting request"
// @Success 201 {object} models.PostingResult
// @Success 200 {object} models.PostingResult "Replayed"
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/postings [post]
func (h *LedgerHandler) PostTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.PostingRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.PostBalancedTransaction(r.Context(), userID, req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, createdOrReplayed(result.Replayed), result)
}

// Transfer moves funds between two accounts of the same currency
// @Summary Internal transfer
// @Description Transfer between two ledger accounts. The source account must belong to the caller.
// @Tags Ledger
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.TransferRequest true "Transfer request"
// @Success 201 {object} models.TransferResult
// @Failure 400 {object} services.ErrorResponse
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/transfers [post]
func (h *LedgerHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req models.TransferRequest
	if !decodeJSON(w, r, h.validator, &req) {
		return
	}

	result, err := h.ledger.Transfer(r.Context(), userID, req)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, createdOrReplayed(result.Replayed), result)
}

// GetTransaction returns a posted transaction with its entries
// @Summary Get transaction
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param txnId path int true "Transaction ID"
// @Success 200 {object} models.LedgerTransaction
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/transactions/{txnId} [get]
func (h *LedgerHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	txnID, ok := pathID(w, r, "txnId")
	if !ok {
		return
	}

	txn, err := h.ledger.GetTransaction(r.Context(), txnID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	if txn.InitiatorID != userID {
		services.SendErrorResponse(w, "Transaction not found", http.StatusNotFound, nil)
		return
	}
	writeJSON(w, http.StatusOK, txn)
}

// ExportPacs008 renders a transfer as ISO 20022 pacs.008
// @Summary Export transfer as pacs.008
// @Tags Ledger
// @Produce xml
// @Security BearerAuth
// @Param txnId path int true "Transaction ID"
// @Success 200 {string} string "pacs.008.001.08 document"
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/transactions/{txnId}/pacs008 [get]
func (h *LedgerHandler) ExportPacs008(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	txnID, ok := pathID(w, r, "txnId")
	if !ok {
		return
	}

	xmlData, err := h.iso.ExportPacs008(r.Context(), userID, txnID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Write([]byte(xmlData))
}

// GetBalance returns the derived balance of an account
// @Summary Account balance
// @Description Balance is the sum of all entries on the account, debits positive.
// @Tags Ledger
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Ledger account ID"
// @Success 200 {object} models.AccountBalance
// @Failure 404 {object} services.ErrorResponse
// @Router /ledger/accounts/{accountId}/balance [get]
func (h *LedgerHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	accountID, ok := pathID(w, r, "accountId")
	if !ok {
		return
	}

	balance, err := h.ledger.GetAccountBalance(r.Context(), userID, accountID)
	if err != nil {
		sendServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balance)
}
