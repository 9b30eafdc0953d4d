package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/finvault/mybank/pkg/bank"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
	"github.com/go-chi/chi/v5"
)

// BankService is the engine surface the HTTP layer depends on.
type BankService interface {
	CreateAccount(ctx context.Context, ownerName string, openingBalance int64) (*models.Account, error)
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	Deposit(ctx context.Context, id string, amount int64) (*models.Account, error)
	Withdraw(ctx context.Context, id string, amount int64) (*models.Account, error)
	ChangeStatus(ctx context.Context, id string, status models.AccountStatus) (*models.Account, error)
	Transfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferResponse, error)
}

// ApiHandler holds the HTTP layer's dependencies. All business rules live
// in the engine; handlers only decode, dispatch and map errors to status
// codes.
type ApiHandler struct {
	Service BankService
	Ledger  storage.LedgerReader
}

// NewApiHandler creates a new ApiHandler.
func NewApiHandler(service BankService, ledger storage.LedgerReader) *ApiHandler {
	return &ApiHandler{Service: service, Ledger: ledger}
}

// Routes mounts every endpoint on a chi router.
func (h *ApiHandler) Routes(r chi.Router) {
	r.Post("/accounts", h.CreateAccount)
	r.Get("/accounts/{accountID}", h.GetAccount)
	r.Post("/accounts/{accountID}/deposit", h.Deposit)
	r.Post("/accounts/{accountID}/withdraw", h.Withdraw)
	r.Put("/accounts/{accountID}/status", h.ChangeStatus)
	r.Post("/transfers", h.Transfer)
	r.Get("/transactions/{transactionID}/entries", h.ListLedgerEntries)
}

type newAccountRequest struct {
	OwnerName      string `json:"owner_name"`
	OpeningBalance int64  `json:"opening_balance"`
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

type statusRequest struct {
	Status models.AccountStatus `json:"status"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// CreateAccount handles the logic for opening a new account.
func (h *ApiHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req newAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	account, err := h.Service.CreateAccount(r.Context(), req.OwnerName, req.OpeningBalance)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// GetAccount handles the logic for retrieving an account by its ID.
func (h *ApiHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Service.GetAccount(r.Context(), chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Deposit handles the logic for adding funds to an account.
func (h *ApiHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	account, err := h.Service.Deposit(r.Context(), chi.URLParam(r, "accountID"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Withdraw handles the logic for removing funds from an account.
func (h *ApiHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	account, err := h.Service.Withdraw(r.Context(), chi.URLParam(r, "accountID"), req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// ChangeStatus handles the logic for account lifecycle transitions.
func (h *ApiHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	switch req.Status {
	case models.ACTIVE, models.FROZEN, models.CLOSED:
	default:
		http.Error(w, fmt.Sprintf("Unknown status %q", req.Status), http.StatusBadRequest)
		return
	}

	account, err := h.Service.ChangeStatus(r.Context(), chi.URLParam(r, "accountID"), req.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// Transfer handles the logic for moving funds between two accounts. The
// idempotency key may come from the body or the Idempotency-Key header;
// the header wins when both are set.
func (h *ApiHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req bank.TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	if key := r.Header.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}

	resp, err := h.Service.Transfer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, resp)
}

// ListLedgerEntries handles the logic for reading the postings written for
// a transaction.
func (h *ApiHandler) ListLedgerEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Ledger.ListLedgerEntries(r.Context(), chi.URLParam(r, "transactionID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// writeError maps engine sentinel errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, bank.ErrInvalidAmount),
		errors.Is(err, bank.ErrInvalidOwnerName),
		errors.Is(err, bank.ErrInvalidOpeningBalance),
		errors.Is(err, bank.ErrSameAccountTransfer):
		status = http.StatusBadRequest
	case errors.Is(err, bank.ErrAccountNotFound),
		errors.Is(err, storage.ErrRecordNotFound):
		status = http.StatusNotFound
	case errors.Is(err, bank.ErrInsufficientFunds):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, bank.ErrAccountNotActive),
		errors.Is(err, bank.ErrActionNotAllowed):
		status = http.StatusConflict
	case errors.Is(err, bank.ErrLockConflict):
		status = http.StatusTooManyRequests
	}

	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf("Failed to write response: %v", err), http.StatusInternalServerError)
	}
}
