package handlers

import (
	"context"
	"net"
	"net/http"

	"github.com/upb/oci-onboarding/middleware"
	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/services/onboarding"
	"github.com/upb/oci-onboarding/utils"
	"go.uber.org/zap"
)

// onboardFailurePrefix prefixes every onboarding failure detail
const onboardFailurePrefix = "Failed to onboard customer: "

// Onboarder runs the onboarding sequence for a customer
type Onboarder interface {
	Onboard(ctx context.Context, customer *models.Customer, meta onboarding.RequestMeta) (*models.OnboardingResult, error)
}

// OnboardingHandler handles customer onboarding HTTP requests
type OnboardingHandler struct {
	service Onboarder
	logger  *zap.Logger
}

// NewOnboardingHandler creates a new OnboardingHandler
func NewOnboardingHandler(service Onboarder, logger *zap.Logger) *OnboardingHandler {
	return &OnboardingHandler{
		service: service,
		logger:  logger,
	}
}

// HandleOnboard handles POST /onboard
func (h *OnboardingHandler) HandleOnboard(w http.ResponseWriter, r *http.Request) {
	var customer models.Customer
	if err := utils.DecodeJSON(w, r, &customer); err != nil {
		HandleServiceError(w, utils.NewFieldError("body", err.Error()), h.logger)
		return
	}
	if err := utils.ValidateStruct(customer); err != nil {
		HandleServiceError(w, err, h.logger)
		return
	}

	result, err := h.service.Onboard(r.Context(), &customer, requestMeta(r))
	if err != nil {
		// Every provisioning or signing failure surfaces as 400 with the cause.
		if writeErr := utils.WriteBadRequest(w, onboardFailurePrefix+err.Error()); writeErr != nil {
			h.logger.Error("failed to write onboarding error", zap.Error(writeErr))
		}
		return
	}

	if err := utils.WriteOK(w, result.Token); err != nil {
		h.logger.Error("failed to write onboarding response", zap.Error(err))
	}
}

func requestMeta(r *http.Request) onboarding.RequestMeta {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return onboarding.RequestMeta{
		RequestID: middleware.GetRequestIDFromContext(r.Context()),
		IPAddress: ip,
		UserAgent: r.UserAgent(),
	}
}
