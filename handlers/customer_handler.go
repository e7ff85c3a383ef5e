package handlers

import (
	"net/http"

	"github.com/upb/oci-onboarding/middleware"
	"github.com/upb/oci-onboarding/services"
	"github.com/upb/oci-onboarding/utils"
	"go.uber.org/zap"
)

// CurrentCustomerResponse is the response body for GET /customer/me
type CurrentCustomerResponse struct {
	Username string `json:"username"`
}

// CustomerHandler serves the authenticated customer's identity
type CustomerHandler struct {
	logger *zap.Logger
}

// NewCustomerHandler creates a new CustomerHandler
func NewCustomerHandler(logger *zap.Logger) *CustomerHandler {
	return &CustomerHandler{logger: logger}
}

// HandleMe handles GET /customer/me. It must run behind RequireAuth.
func (h *CustomerHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	claims := middleware.GetClaimsFromContext(r.Context())
	if claims == nil {
		HandleServiceError(w, services.ErrMissingToken, h.logger)
		return
	}

	if err := utils.WriteOK(w, CurrentCustomerResponse{Username: claims.Subject}); err != nil {
		h.logger.Error("failed to write customer response", zap.Error(err))
	}
}
