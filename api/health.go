package api

import (
	"net/http"
	"time"

	"github.com/Blackie360/Persona-Studio/monitoring"
)

type HealthHandler struct {
	checker *monitoring.HealthChecker
}

type HealthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Uptime    string                   `json:"uptime"`
	Checks    []monitoring.HealthCheck `json:"checks,omitempty"`
}

var startTime = time.Now()

func CreateHealthHandler(checker *monitoring.HealthChecker) *HealthHandler {
	return &HealthHandler{checker: checker}
}

func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks, healthy := h.checker.RunAll(r.Context())

	response := HealthResponse{
		Status:    string(monitoring.Healthy),
		Timestamp: time.Now(),
		Uptime:    time.Since(startTime).String(),
		Checks:    checks,
	}

	status := http.StatusOK
	if !healthy {
		response.Status = string(monitoring.Unhealthy)
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}
