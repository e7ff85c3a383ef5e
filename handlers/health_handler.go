package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/upb/oci-onboarding/repositories"
	"github.com/upb/oci-onboarding/utils"
	"go.uber.org/zap"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	auditDB repositories.HealthChecker
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. auditDB is nil when the
// audit trail is disabled.
func NewHealthHandler(auditDB repositories.HealthChecker, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		auditDB: auditDB,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. It always returns 200 while the process runs.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	status := "ready"
	httpStatus := http.StatusOK

	if h.auditDB == nil {
		checks["database"] = "disabled"
	} else if err := h.auditDB.HealthCheck(ctx); err != nil {
		h.logger.Warn("audit database health check failed", zap.Error(err))
		checks["database"] = "unhealthy"
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["database"] = "healthy"
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
