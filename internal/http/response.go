package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"YONASettlement/internal/ledger"
	"YONASettlement/internal/locks"
	"YONASettlement/internal/members"
	"YONASettlement/internal/services"
	"YONASettlement/internal/settlement"
	"YONASettlement/internal/store"
)

// envelope is the body of every response.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: message, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrTrust),
		errors.Is(err, services.ErrFundingDenied),
		errors.Is(err, services.ErrCorrelationMismatch),
		errors.Is(err, settlement.ErrMissingIssuer),
		errors.Is(err, ledger.ErrInvalidAddress):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrIntentNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrMemberNotFound),
		errors.Is(err, ledger.ErrAccountNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrStaleTransition):
		return http.StatusConflict
	case errors.Is(err, members.ErrMemberRejected):
		return http.StatusBadGateway
	case errors.Is(err, members.ErrMemberUnreachable),
		errors.Is(err, members.ErrNoEndpoint),
		errors.Is(err, services.ErrMemberUnavailable),
		errors.Is(err, locks.ErrLockTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err with its mapped status. Internal errors keep their message so a
// calling member can log it.
func writeServiceError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
