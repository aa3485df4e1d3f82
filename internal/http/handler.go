package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"YONASettlement/internal/ledger"
	"YONASettlement/internal/models"
	"YONASettlement/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type PaymentAPI interface {
	Initiate(ctx context.Context, req services.InitiateRequest) (*services.InitiateResult, error)
	GetStatus(ctx context.Context, intentID string) (*services.StatusView, error)
	ListUserIntents(ctx context.Context, yonaID string) ([]services.StatusView, error)
	OnDescriptorReceived(ctx context.Context, cb services.DescriptorCallback) (*services.TransitionResult, error)
	OnTemplateAcknowledged(ctx context.Context, intentID, correlationID string) (*services.TransitionResult, error)
	OnTemplateAccepted(ctx context.Context, intentID, correlationID, status string) (*services.TransitionResult, error)
	OnPaymentComplete(ctx context.Context, intentID, status, txHash, message string) (*services.TransitionResult, error)
}

type MemberDirectory interface {
	Member(ctx context.Context, memberID string) (*models.Member, error)
}

type AddressLookup interface {
	GetUserAddresses(ctx context.Context, m models.Member, yonaID string) ([]string, error)
}

type AccountHistory interface {
	AccountHistory(ctx context.Context, account string, maxPages int) ([]ledger.HistoryEntry, error)
}

type Handler struct {
	Payments     PaymentAPI
	Directory    MemberDirectory
	Addresses    AddressLookup
	Ledger       AccountHistory
	HistoryPages int
	Logger       *zap.Logger
}

type initiateRequest struct {
	SenderUsername    string          `json:"sender_username"`
	RecipientUsername string          `json:"recipient_username"`
	Currency          string          `json:"currency"`
	Amount            decimal.Decimal `json:"amount"`
}

type initiateResponse struct {
	IntentID        string                 `json:"intent_id"`
	Status          models.IntentStatus    `json:"status"`
	TransactionType models.TransactionType `json:"transaction_type"`
}

type userAddressesRequest struct {
	MemberID string `json:"member_id"`
	YonaID   string `json:"yona_id"`
}

type userAddressesResponse struct {
	Addresses []string `json:"addresses"`
}

type historyResponse struct {
	Address      string               `json:"address"`
	Transactions []ledger.HistoryEntry `json:"transactions"`
}

func NewHandler(payments PaymentAPI, directory MemberDirectory, addresses AddressLookup, history AccountHistory, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Payments:     payments,
		Directory:    directory,
		Addresses:    addresses,
		Ledger:       history,
		HistoryPages: 5,
		Logger:       logger,
	}
}

func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.Payments.Initiate(r.Context(), services.InitiateRequest{
		SenderUsername:    req.SenderUsername,
		RecipientUsername: req.RecipientUsername,
		Currency:          req.Currency,
		Amount:            req.Amount,
	})
	if err != nil {
		h.Logger.Warn("payment initiation failed",
			zap.String("sender", req.SenderUsername),
			zap.String("recipient", req.RecipientUsername),
			zap.Error(err),
		)
		writeServiceError(w, err)
		return
	}

	writeOK(w, "Payment initiated successfully. Requesting descriptor from beneficiary member.", initiateResponse{
		IntentID:        res.IntentID,
		Status:          res.Status,
		TransactionType: res.TransactionType,
	})
}

func (h *Handler) GetPaymentStatus(w http.ResponseWriter, r *http.Request) {
	intentID := chi.URLParam(r, "intent_id")
	if intentID == "" {
		writeError(w, http.StatusBadRequest, "missing intent_id parameter")
		return
	}

	view, err := h.Payments.GetStatus(r.Context(), intentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOK(w, "", view)
}

func (h *Handler) ListUserIntents(w http.ResponseWriter, r *http.Request) {
	views, err := h.Payments.ListUserIntents(r.Context(), chi.URLParam(r, "yona_id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeOK(w, "", views)
}

// GetUserAddresses proxies the address lookup to the user's member institution.
func (h *Handler) GetUserAddresses(w http.ResponseWriter, r *http.Request) {
	var req userAddressesRequest
	if !decode(w, r, &req) {
		return
	}
	if req.MemberID == "" || req.YonaID == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: member_id and yona_id")
		return
	}

	m, err := h.Directory.Member(r.Context(), req.MemberID)
	if err != nil {
		writeServiceError(w, fmt.Errorf("member %s: %w", req.MemberID, err))
		return
	}
	addresses, err := h.Addresses.GetUserAddresses(r.Context(), *m, req.YonaID)
	if err != nil {
		h.Logger.Warn("member address lookup failed", zap.String("member_id", req.MemberID), zap.Error(err))
		writeServiceError(w, err)
		return
	}
	if addresses == nil {
		addresses = []string{}
	}
	writeOK(w, "", userAddressesResponse{Addresses: addresses})
}

func (h *Handler) GetAccountTransactions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	entries, err := h.Ledger.AccountHistory(r.Context(), address, h.HistoryPages)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []ledger.HistoryEntry{}
	}
	writeOK(w, "", historyResponse{Address: address, Transactions: entries})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}
