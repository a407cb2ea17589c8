package wallet

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/marketloop/wallet-service/internal/auth"
	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/id"
	"github.com/marketloop/wallet-service/pkg/logger"
	"github.com/marketloop/wallet-service/pkg/money"
	"github.com/marketloop/wallet-service/pkg/utils"
)

type Handler struct {
	Config  config.Config
	Service *Service
}

func NewHandler(cfg config.Config, service *Service) *Handler {
	return &Handler{Config: cfg, Service: service}
}

type TopupRequest struct {
	Amount        string `json:"amount"`
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) InitiateTopup(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req TopupRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	amount, err := money.Parse(req.Amount, h.Config.DefaultCurrency)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount", map[string]string{"amount": err.Error()})
		return
	}

	intent, err := h.Service.InitiateTopup(r.Context(), ownerID, amount, PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Topup initiated", map[string]interface{}{
		"transaction_id":    intent.Transaction.ID,
		"reference":         intent.Reference,
		"authorization_url": intent.AuthorizationURL,
		"status":            intent.Transaction.Status,
	})
}

type gatewayCallback struct {
	GatewayTransactionID string `json:"gateway_transaction_id"`
	Status               string `json:"status"`
	Amount               string `json:"amount,omitempty"`
	Currency             string `json:"currency,omitempty"`
	FailureReason        string `json:"failure_reason,omitempty"`
}

// GatewayWebhook verifies the HMAC signature, then reconciles the referenced
// transaction. Unknown references answer non-2xx so the gateway redelivers;
// replays of terminal transactions answer 200.
func (h *Handler) GatewayWebhook(w http.ResponseWriter, r *http.Request) {
	signature := r.Header.Get("x-gateway-signature")

	body, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Error("webhook: failed to read body", logger.WithError(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	mac := hmac.New(sha512.New, []byte(h.Config.GatewaySecret))
	mac.Write(body)
	expectedSig := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(signature), []byte(expectedSig)) {
		logger.Error("webhook: signature mismatch", logger.Fields{"remote_addr": r.RemoteAddr})
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var event gatewayCallback
	if err := json.Unmarshal(body, &event); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if event.GatewayTransactionID == "" {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "gateway_transaction_id is required", nil)
		return
	}

	txn, err := h.Service.HandleGatewayCallback(r.Context(), event.GatewayTransactionID, event.Status, event.FailureReason)
	if err != nil {
		logger.Error("webhook: reconciliation failed", logger.Fields{
			logger.GatewayRefKey: event.GatewayTransactionID,
			logger.ErrorKey:      err.Error(),
		})
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Callback processed", map[string]interface{}{
		"transaction_id": txn.ID,
		"status":         txn.Status,
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	wlt, balance, err := h.Service.GetBalance(r.Context(), ownerID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet balance", map[string]interface{}{
		"wallet_id": wlt.ID,
		"balance":   balance,
		"status":    wlt.Status,
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	filter, err := parseTransactionFilter(r)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid filter", map[string]string{"error": err.Error()})
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)
	filter.Limit = limit
	filter.Offset = offset

	txns, count, err := h.Service.ListTransactions(r.Context(), ownerID, filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction history", map[string]interface{}{
		"transactions": txns,
		"meta": map[string]interface{}{
			"total_items":  count,
			"current_page": page,
			"limit":        limit,
		},
	})
}

type AdjustRequest struct {
	Amount      string `json:"amount"`
	Type        string `json:"type"`
	Description string `json:"description"`
}

func (h *Handler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	actor, _ := auth.FromContext(r.Context())

	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req AdjustRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	amount, err := money.Parse(req.Amount, h.Config.DefaultCurrency)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount", map[string]string{"amount": err.Error()})
		return
	}

	txn, err := h.Service.AdjustBalance(r.Context(), ownerID, amount, TransactionType(req.Type), req.Description, actor.ID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Adjustment applied", txn)
}

type StatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) SetWalletStatus(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req StatusRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	wlt, err := h.Service.SetStatus(r.Context(), ownerID, WalletStatus(req.Status))
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallet status updated", wlt)
}

func (h *Handler) RollbackTransaction(w http.ResponseWriter, r *http.Request) {
	txnID := mux.Vars(r)["id"]
	if _, err := id.IsValidUUID(txnID); err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid transaction id", nil)
		return
	}

	compensation, err := h.Service.RollbackTransaction(r.Context(), txnID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Transaction rolled back", map[string]interface{}{
		"compensating_transaction": compensation,
	})
}

func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	filter, err := parseWalletFilter(r)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid filter", map[string]string{"error": err.Error()})
		return
	}

	limit, offset, page := utils.GetPaginationDetails(r)
	filter.Limit = limit
	filter.Offset = offset

	wallets, count, err := h.Service.ListWallets(r.Context(), filter)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Wallets", map[string]interface{}{
		"wallets": wallets,
		"meta": map[string]interface{}{
			"total_items":  count,
			"current_page": page,
			"limit":        limit,
		},
	})
}

type OrderDebitRequest struct {
	Amount  string `json:"amount"`
	OrderID string `json:"order_id"`
}

// DebitForOrder is the internal surface the order service calls at checkout.
func (h *Handler) DebitForOrder(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req OrderDebitRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	amount, err := money.Parse(req.Amount, h.Config.DefaultCurrency)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount", map[string]string{"amount": err.Error()})
		return
	}

	txn, err := h.Service.DebitForOrder(r.Context(), ownerID, amount, req.OrderID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Order debit applied", txn)
}

// CreditForRefund is the internal surface the order service calls on refund.
func (h *Handler) CreditForRefund(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.ownerID(w, r)
	if !ok {
		return
	}

	var req OrderDebitRequest
	if status, err := utils.DecodeJSONBody(w, r, &req); err != nil {
		utils.BuildErrorResponse(w, status, "Invalid request", map[string]string{"error": err.Error()})
		return
	}

	amount, err := money.Parse(req.Amount, h.Config.DefaultCurrency)
	if err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid amount", map[string]string{"amount": err.Error()})
		return
	}

	txn, err := h.Service.CreditForRefund(r.Context(), ownerID, amount, req.OrderID)
	if err != nil {
		h.respondError(w, err)
		return
	}

	utils.BuildSuccessResponse(w, http.StatusOK, "Refund credit applied", txn)
}

func (h *Handler) ownerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	ownerID := mux.Vars(r)["userId"]
	if _, err := id.IsValidUUID(ownerID); err != nil {
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Invalid user id", nil)
		return "", false
	}
	return ownerID, true
}

// respondError maps ledger errors to HTTP statuses.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	var insufficient *InsufficientFundsError

	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, money.ErrCurrencyMismatch), errors.Is(err, money.ErrInvalidAmount):
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Validation failed", map[string]string{"error": err.Error()})
	case errors.As(err, &insufficient):
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Insufficient funds", map[string]interface{}{
			"available": money.New(insufficient.Available, h.Config.DefaultCurrency).Format(),
			"requested": money.New(insufficient.Requested, h.Config.DefaultCurrency).Format(),
		})
	case errors.Is(err, ErrInsufficientFunds):
		utils.BuildErrorResponse(w, http.StatusBadRequest, "Insufficient funds", nil)
	case errors.Is(err, ErrWalletNotFound), errors.Is(err, ErrTransactionNotFound), errors.Is(err, ErrGatewayCallbackMismatch):
		utils.BuildErrorResponse(w, http.StatusNotFound, "Not found", map[string]string{"error": err.Error()})
	case errors.Is(err, ErrWalletBlocked):
		utils.BuildErrorResponse(w, http.StatusForbidden, "Wallet is not active", nil)
	case errors.Is(err, ErrInvalidStateTransition):
		utils.BuildErrorResponse(w, http.StatusConflict, "Invalid state transition", map[string]string{"error": err.Error()})
	case errors.Is(err, ErrConcurrencyConflict):
		utils.BuildErrorResponse(w, http.StatusConflict, "Concurrent modification, retry the request", nil)
	default:
		logger.Error("unhandled wallet error", logger.WithError(err))
		utils.BuildErrorResponse(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func parseTransactionFilter(r *http.Request) (TransactionFilter, error) {
	q := r.URL.Query()
	var filter TransactionFilter

	if v := q.Get("transaction_type"); v != "" {
		t := TransactionType(v)
		if !t.Valid() {
			return filter, errors.New("invalid transaction_type")
		}
		filter.Type = t
	}
	if v := q.Get("status"); v != "" {
		s := TransactionStatus(v)
		if !s.Valid() {
			return filter, errors.New("invalid status")
		}
		filter.Status = s
	}
	if v := q.Get("reference_type"); v != "" {
		rt := ReferenceType(v)
		if !rt.Valid() {
			return filter, errors.New("invalid reference_type")
		}
		filter.ReferenceType = rt
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		return filter, errors.New("invalid from date")
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		return filter, errors.New("invalid to date")
	}

	filter.SortBy = SortCreatedAt
	if v := q.Get("sort_by"); v != "" {
		sf := SortField(v)
		if !sf.Valid() {
			return filter, errors.New("invalid sort_by")
		}
		filter.SortBy = sf
	}
	filter.SortDesc = q.Get("sort_dir") != "asc"

	return filter, nil
}

func parseWalletFilter(r *http.Request) (WalletFilter, error) {
	q := r.URL.Query()
	var filter WalletFilter

	if v := q.Get("status"); v != "" {
		s := WalletStatus(v)
		if !s.Valid() {
			return filter, errors.New("invalid status")
		}
		filter.Status = s
	}
	filter.Currency = q.Get("currency")
	if v := q.Get("user_id"); v != "" {
		if _, err := id.IsValidUUID(v); err != nil {
			return filter, errors.New("invalid user_id")
		}
		filter.OwnerID = v
	}
	if v := q.Get("min_balance"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid min_balance")
		}
		filter.MinBalance = &parsed
	}
	if v := q.Get("max_balance"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return filter, errors.New("invalid max_balance")
		}
		filter.MaxBalance = &parsed
	}

	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		return filter, errors.New("invalid from date")
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		return filter, errors.New("invalid to date")
	}

	return filter, nil
}

func parseTimeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
