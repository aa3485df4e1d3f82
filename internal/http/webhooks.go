package http

import (
	"net/http"

	"YONASettlement/internal/models"
	"YONASettlement/internal/services"

	"go.uber.org/zap"
)

const templateReceivedStatus = "template_received"

type descriptorWebhook struct {
	IntentID             string `json:"intent_id"`
	DescriptorJWS        string `json:"descriptor_compact_jws"`
	DescriptorToken      string `json:"descriptor_compact_token"`
	OriginatorMemberName string `json:"originator_member_name"`
}

type correlationWebhook struct {
	IntentID        string `json:"intent_id"`
	TRCorrelationID string `json:"tr_correlation_id"`
	Status          string `json:"status"`
}

type paymentCompleteWebhook struct {
	IntentID        string `json:"intent_id"`
	Status          string `json:"status"`
	TransactionHash string `json:"transaction_hash"`
	Message         string `json:"message"`
}

type transitionResponse struct {
	IntentID  string              `json:"intent_id"`
	Status    models.IntentStatus `json:"status"`
	Duplicate bool                `json:"duplicate,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func (h *Handler) DescriptorResponse(w http.ResponseWriter, r *http.Request) {
	var body descriptorWebhook
	if !decode(w, r, &body) {
		return
	}
	token := body.DescriptorJWS
	if token == "" {
		token = body.DescriptorToken
	}
	if body.IntentID == "" || token == "" || body.OriginatorMemberName == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: intent_id, descriptor_compact_jws, originator_member_name")
		return
	}

	res, err := h.Payments.OnDescriptorReceived(r.Context(), services.DescriptorCallback{
		IntentID:             body.IntentID,
		Token:                token,
		OriginatorMemberName: body.OriginatorMemberName,
	})
	if err != nil {
		h.webhookFailed("descriptor-response", body.IntentID, err)
		writeServiceError(w, err)
		return
	}
	writeOK(w, "Descriptor received and template sent to originator member", transition(res, ""))
}

func (h *Handler) TemplateReceived(w http.ResponseWriter, r *http.Request) {
	var body correlationWebhook
	if !decode(w, r, &body) {
		return
	}
	if body.IntentID == "" || body.TRCorrelationID == "" || body.Status == "" {
		writeError(w, http.StatusBadRequest, "missing required fields: intent_id, tr_correlation_id, status")
		return
	}
	if body.Status != templateReceivedStatus {
		writeError(w, http.StatusBadRequest, "invalid status: expected \"template_received\"")
		return
	}

	res, err := h.Payments.OnTemplateAcknowledged(r.Context(), body.IntentID, body.TRCorrelationID)
	if err != nil {
		h.webhookFailed("template-received-by-originator", body.IntentID, err)
		writeServiceError(w, err)
		return
	}
	writeOK(w, "Template receipt processed successfully", transition(res, ""))
}

func (h *Handler) TRAccepted(w http.ResponseWriter, r *http.Request) {
	var body correlationWebhook
	if !decode(w, r, &body) {
		return
	}

	res, err := h.Payments.OnTemplateAccepted(r.Context(), body.IntentID, body.TRCorrelationID, body.Status)
	if err != nil {
		h.webhookFailed("tr-accepted", body.IntentID, err)
		writeServiceError(w, err)
		return
	}
	writeOK(w, "TR accepted processed successfully", transition(res, ""))
}

func (h *Handler) PaymentComplete(w http.ResponseWriter, r *http.Request) {
	var body paymentCompleteWebhook
	if !decode(w, r, &body) {
		return
	}

	res, err := h.Payments.OnPaymentComplete(r.Context(), body.IntentID, body.Status, body.TransactionHash, body.Message)
	if err != nil {
		h.webhookFailed("payment-complete", body.IntentID, err)
		writeServiceError(w, err)
		return
	}
	if body.Status == services.PaymentFailed {
		writeOK(w, "Payment failure notification received", transition(res, body.Message))
		return
	}
	writeOK(w, "Payment completed successfully", transition(res, ""))
}

func (h *Handler) webhookFailed(name, intentID string, err error) {
	h.Logger.Warn("webhook rejected",
		zap.String("webhook", name),
		zap.String("intent_id", intentID),
		zap.Int("status", statusFor(err)),
		zap.Error(err),
	)
}

func transition(res *services.TransitionResult, failure string) transitionResponse {
	return transitionResponse{
		IntentID:  res.IntentID,
		Status:    res.Status,
		Duplicate: res.Duplicate,
		Error:     failure,
	}
}
