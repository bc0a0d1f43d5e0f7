package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/orizonpaybr/gateway-api-sub000/internal/models"
	"github.com/orizonpaybr/gateway-api-sub000/internal/services"
)

// PixHandler wires gateway-originated charges and PSP callbacks to the
// transaction core.
type PixHandler struct {
	transactions  *services.TransactionService
	pix           *services.PixService
	chargeExpiry  time.Duration
	webhookSecret []byte
}

func NewPixHandler(transactions *services.TransactionService, pix *services.PixService, chargeExpiry time.Duration, webhookSecret string) *PixHandler {
	return &PixHandler{
		transactions:  transactions,
		pix:           pix,
		chargeExpiry:  chargeExpiry,
		webhookSecret: []byte(webhookSecret),
	}
}

// CreateCharge opens a pending deposit and returns its BR Code
// @Summary Create a PIX charge
// @Description Open a gateway deposit awaiting PSP confirmation; returns the BR Code payload and QR image
// @Tags pix
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param charge body models.PixChargeRequest true "Charge data"
// @Success 201 {object} object{transaction=models.Transaction,charge=services.PixCharge}
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /pix/charges [post]
func (h *PixHandler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req models.PixChargeRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	t, err := h.transactions.OpenPixCharge(r.Context(), &req)
	if err != nil {
		services.WriteTransactionError(w, "pix charge", err)
		return
	}

	charge, err := h.pix.CreateCharge(r.Context(), t.TransactionID, t.GrossAmount, h.chargeExpiry)
	if err != nil {
		log.Printf("[PIX] Failed to build charge artifact for %s: %v", t.TransactionID, err)
		services.SendErrorResponse(w, "Failed to build charge", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{
		"transaction": t,
		"charge":      charge,
	})
}

// Webhook applies a PSP confirmation callback
// @Summary PSP webhook
// @Description Confirm or fail a pending gateway transaction; authenticated by HMAC signature over the raw body
// @Tags pix
// @Accept json
// @Produce json
// @Param event body models.WebhookEvent true "Webhook event"
// @Success 200 {object} object{success=bool,transaction=models.Transaction}
// @Failure 401 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /pix/webhook [post]
func (h *PixHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Webhook-Signature")) {
		log.Printf("[PIX] Webhook signature mismatch from %s", r.RemoteAddr)
		services.SendErrorResponse(w, "Invalid signature", http.StatusUnauthorized, nil)
		return
	}

	var ev models.WebhookEvent
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ev); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	t, err := h.transactions.ConfirmGatewayTransaction(r.Context(), &ev)
	if err != nil {
		services.WriteTransactionError(w, "webhook", err)
		return
	}

	h.pix.CloseCharge(r.Context(), t.TransactionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":     true,
		"transaction": t,
	})
}

// verifySignature checks the hex HMAC-SHA256 of the raw body against the
// shared PSP secret.
func (h *PixHandler) verifySignature(body []byte, signature string) bool {
	if len(h.webhookSecret) == 0 || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, h.webhookSecret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
