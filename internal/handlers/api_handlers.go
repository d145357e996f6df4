package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/sand/wallet-transactions/backend/internal/core/ports"
	"github.com/sand/wallet-transactions/backend/internal/entities"
)

type HTTPHandler struct {
	logger *slog.Logger

	transactions ports.TransactionsService
	accounts     ports.AccountsService
	validate     *validator.Validate
}

func NewHTTPHandler(logger *slog.Logger, transactions ports.TransactionsService, accounts ports.AccountsService) *HTTPHandler {
	return &HTTPHandler{
		logger:       logger,
		transactions: transactions,
		accounts:     accounts,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *HTTPHandler) RegisterRoutes(router *mux.Router) {
	// Accounts
	router.HandleFunc("/mnemonic/generate", h.GenerateMnemonic).Methods(http.MethodPost)
	router.HandleFunc("/accounts/import", h.ImportMnemonic).Methods(http.MethodPost)

	// Transactions
	router.HandleFunc("/accounts/{accountId}/transactions", h.GetTransactions).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{accountId}/transactions/merged", h.GetMergedTransactions).Methods(http.MethodPost)
	router.HandleFunc("/accounts/{accountId}/transactions/{slug}", h.GetTokenTransactions).Methods(http.MethodGet)

	// Transfers
	router.HandleFunc("/accounts/{accountId}/transfers/check", h.CheckTransfer).Methods(http.MethodPost)
	router.HandleFunc("/accounts/{accountId}/transfers", h.SubmitTransfer).Methods(http.MethodPost)
}

type importMnemonicRequest struct {
	Blockchain entities.BlockchainKey `json:"blockchain" validate:"required,oneof=bsc solana"`
	Network    string                 `json:"network"    validate:"omitempty,alphanum"`
	Mnemonic   string                 `json:"mnemonic"   validate:"required"`
	Password   string                 `json:"password"   validate:"required"`
}

type mergedSliceRequest struct {
	LastTxIDs entities.TxIDBySlug `json:"last_tx_ids"`
	Limit     int                 `json:"limit" validate:"gte=0,lte=100"`
}

type transferDraftRequest struct {
	Slug      string `json:"slug"       validate:"required"`
	ToAddress string `json:"to_address" validate:"required"`
	Amount    string `json:"amount"     validate:"required,numeric"`
	Comment   string `json:"comment"    validate:"max=512"`
}

type submitTransferRequest struct {
	transferDraftRequest
	Password string `json:"password" validate:"required"`
	Fee      string `json:"fee"      validate:"omitempty,numeric"`
}

type submitTransferResponse struct {
	OK        bool   `json:"ok"`
	LocalTxID string `json:"local_tx_id,omitempty"`
}

func (h *HTTPHandler) GenerateMnemonic(w http.ResponseWriter, r *http.Request) {
	mnemonic, err := h.accounts.GenerateMnemonic()
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"mnemonic": mnemonic})
}

func (h *HTTPHandler) ImportMnemonic(w http.ResponseWriter, r *http.Request) {
	var req importMnemonicRequest
	if !h.decode(w, r, &req) {
		return
	}

	account, err := h.accounts.ImportMnemonic(r.Context(), req.Blockchain, req.Network, req.Mnemonic, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, account)
}

func (h *HTTPHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.transactions.FetchTransactions(r.Context(), mux.Vars(r)["accountId"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, nonNil(txs))
}

func (h *HTTPHandler) GetTokenTransactions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
	}

	txs, err := h.transactions.FetchTokenTransactionSlice(r.Context(), vars["accountId"], vars["slug"], query.Get("before"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, nonNil(txs))
}

func (h *HTTPHandler) GetMergedTransactions(w http.ResponseWriter, r *http.Request) {
	var req mergedSliceRequest
	if !h.decode(w, r, &req) {
		return
	}

	txs, err := h.transactions.FetchAllTransactionSlice(r.Context(), mux.Vars(r)["accountId"], req.LastTxIDs, req.Limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, nonNil(txs))
}

func (h *HTTPHandler) CheckTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferDraftRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.transactions.CheckTransactionDraft(r.Context(), mux.Vars(r)["accountId"], req.Slug, req.ToAddress, req.Amount, req.Comment)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

func (h *HTTPHandler) SubmitTransfer(w http.ResponseWriter, r *http.Request) {
	var req submitTransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	accountID := mux.Vars(r)["accountId"]

	localTxID, ok, err := h.transactions.SubmitTransfer(r.Context(), accountID, req.Password, req.Slug, req.ToAddress, req.Amount, req.Comment, req.Fee)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if !ok {
		h.writeJSON(w, http.StatusUnprocessableEntity, submitTransferResponse{OK: false})
		return
	}

	h.writeJSON(w, http.StatusAccepted, submitTransferResponse{OK: true, LocalTxID: localTxID})
}

// decode reads and validates the JSON body, answering 400 on failure.
func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			fields := make(map[string]string, len(validationErrs))
			for _, fieldErr := range validationErrs {
				fields[fieldErr.Field()] = fieldErr.Tag()
			}
			h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "validation failed", "fields": fields})
			return false
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}

	return true
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)
	if status == http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "Request failed", "path", r.URL.Path, "error", err)
		http.Error(w, "Internal server error", status)
		return
	}

	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, entities.ErrUnresolvableAccount),
		errors.Is(err, entities.ErrInvalidMnemonic),
		errors.Is(err, entities.ErrUnsupportedToken):
		return http.StatusBadRequest
	case errors.Is(err, entities.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, entities.ErrInvalidPassword):
		return http.StatusForbidden
	case errors.Is(err, entities.ErrAccountExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Error encoding response", "error", err)
	}
}

func nonNil(txs []entities.Transaction) []entities.Transaction {
	if txs == nil {
		return []entities.Transaction{}
	}
	return txs
}
