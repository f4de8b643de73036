package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/Blackie360/Persona-Studio/middleware"
	"github.com/Blackie360/Persona-Studio/models"
	"github.com/Blackie360/Persona-Studio/security"
	"github.com/Blackie360/Persona-Studio/services"
)

const adminTokenDuration = 12 * time.Hour

type AdminHandler struct {
	adminService *services.AdminService
	jwtManager   *security.JWTManager
}

func CreateAdminHandler(adminService *services.AdminService, jwtManager *security.JWTManager) *AdminHandler {
	return &AdminHandler{
		adminService: adminService,
		jwtManager:   jwtManager,
	}
}

func (h *AdminHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req models.AdminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Invalid request body"})
		return
	}
	if req.Username == "" || req.Password == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Username and password are required"})
		return
	}

	admin, err := h.adminService.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		// Same answer for unknown username and wrong password.
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "Invalid credentials"})
		return
	}

	expiresAt := time.Now().Add(adminTokenDuration)
	token, err := h.jwtManager.GenerateToken(admin.ID, admin.Username, "admin", adminTokenDuration)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, models.AdminLoginResponse{
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

func (h *AdminHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.adminService.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AdminHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	users, err := h.adminService.ListUsers(r.Context(), clampLimit(limit), offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

func (h *AdminHandler) HandleGenerations(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	generations, err := h.adminService.RecentGenerations(r.Context(), clampLimit(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generations)
}

func (h *AdminHandler) HandlePayments(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	payments, err := h.adminService.ListPayments(r.Context(), clampLimit(limit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payments)
}

func (h *AdminHandler) HandleBlock(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Missing user id"})
		return
	}

	var req models.BlockRequest
	if r.Body != nil {
		// Reason and extra identifiers are optional.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	adminID := ""
	if claims := middleware.AdminClaimsFrom(r.Context()); claims != nil {
		adminID = claims.AdminID
	}

	entry, err := h.adminService.BlockUser(r.Context(), adminID, userID, &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *AdminHandler) HandleUnblock(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	if userID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Missing user id"})
		return
	}

	deactivated, err := h.adminService.UnblockUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"unblocked": deactivated > 0,
	})
}
