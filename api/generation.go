package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Blackie360/Persona-Studio/middleware"
	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/services"
)

type GenerationHandler struct {
	generationService *services.GenerationService
	usageService      *services.UsageService
	blocklistService  *services.BlocklistService
}

func CreateGenerationHandler(generationService *services.GenerationService, usageService *services.UsageService, blocklistService *services.BlocklistService) *GenerationHandler {
	return &GenerationHandler{
		generationService: generationService,
		usageService:      usageService,
		blocklistService:  blocklistService,
	}
}

func (h *GenerationHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req models.GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Prompt == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Prompt is required"})
		return
	}
	if req.CostClass != "" && req.CostClass != models.CostClassFull && req.CostClass != models.CostClassHalf {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid regeneration type"})
		return
	}

	identity := middleware.IdentityFrom(r.Context())

	resp, err := h.generationService.Generate(r.Context(), identity, &req)
	if !identity.Authenticated() {
		// The admission changed the anonymous count either way; drop the
		// cached hint so the next status read recomputes it.
		h.usageService.InvalidateAnonymous(context.WithoutCancel(r.Context()), identity.IPAddress)
	}
	if err != nil {
		var denied *services.AdmissionDeniedError
		if errors.As(err, &denied) {
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:     deniedMessage(denied.Decision.Reason, identity.Authenticated()),
				Remaining: denied.Decision.Remaining,
			})
			return
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *GenerationHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())

	resp, err := h.usageService.RemainingFor(r.Context(), identity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// HandleBlockStatus lets the frontend surface a moderation banner. A
// storage error reports unblocked; generation admission rechecks anyway.
func (h *GenerationHandler) HandleBlockStatus(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFrom(r.Context())

	writeJSON(w, http.StatusOK, map[string]bool{
		"blocked": h.blocklistService.IsBlocked(r.Context(), identity),
	})
}

func deniedMessage(reason string, authenticated bool) string {
	switch reason {
	case services.ReasonPaidRequired:
		return "Paid credits required. Purchase a plan to continue."
	case services.ReasonLedgerError:
		return "Unable to verify your usage right now. Please try again."
	default:
		if authenticated {
			return "You have used your free generations for this week."
		}
		return "Free limit reached. Sign in or purchase a plan to continue."
	}
}
