package api

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Blackie360/Persona-Studio/middleware"
	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/services"
	"github.com/Blackie360/Persona-Studio/utils"
)

type PaymentHandler struct {
	reconciliation *services.ReconciliationService
}

func CreatePaymentHandler(reconciliation *services.ReconciliationService) *PaymentHandler {
	return &PaymentHandler{
		reconciliation: reconciliation,
	}
}

func (h *PaymentHandler) HandleInitiate(w http.ResponseWriter, r *http.Request) {
	var req models.InitiatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}

	identity := middleware.IdentityFrom(r.Context())

	resp, err := h.reconciliation.InitiateCheckout(r.Context(), identity, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleWebhook receives processor confirmations. The signature covers the
// raw body, so it is read before any parsing.
func (h *PaymentHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read webhook payload", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("x-paystack-signature")

	if err := h.reconciliation.HandleWebhook(r.Context(), payload, signature); err != nil {
		switch err {
		case utils.ErrInvalidSignature:
			http.Error(w, "Invalid webhook signature", http.StatusUnauthorized)
		case utils.ErrInvalidRequest:
			http.Error(w, "Invalid webhook payload", http.StatusBadRequest)
		case utils.ErrPaymentNotFound:
			// Not our reference; no state was touched.
			http.Error(w, "Unknown payment reference", http.StatusNotFound)
		default:
			// Transient failure; a non-2xx makes the processor redeliver
			// and the handling is idempotent.
			http.Error(w, "Webhook processing failed", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"received":  true,
		"timestamp": time.Now(),
	})
}

// HandleCallback is the browser return leg after checkout. It verifies with
// the processor directly rather than trusting the query string.
func (h *PaymentHandler) HandleCallback(w http.ResponseWriter, r *http.Request) {
	reference := r.URL.Query().Get("reference")
	if reference == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Missing reference"})
		return
	}

	status, signupRequired, err := h.reconciliation.VerifyCallback(r.Context(), reference)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reference":       reference,
		"status":          status,
		"signup_required": signupRequired,
	})
}

// HandleLinkCredits attaches unowned successful payments matching the
// account email and grants their credits. Requires authentication.
func (h *PaymentHandler) HandleLinkCredits(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())
	if !identity.Authenticated() {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Authentication required"})
		return
	}

	resp, err := h.reconciliation.LinkCredits(r.Context(), identity.UserID, identity.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
