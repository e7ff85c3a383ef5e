package handlers

import (
	"errors"
	"net/http"

	"github.com/upb/oci-onboarding/middleware"
	"github.com/upb/oci-onboarding/services"
	"github.com/upb/oci-onboarding/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	var writeErr error
	switch {
	case utils.IsValidationError(err):
		writeErr = utils.WriteValidationError(w, utils.GetValidationFields(err))

	case services.IsUnauthorizedError(err):
		detail := middleware.InvalidCredentialsDetail
		if errors.Is(err, services.ErrMissingToken) {
			detail = services.ErrMissingToken.Message
		}
		writeErr = utils.WriteUnauthorized(w, detail)

	case services.IsProviderError(err):
		logger.Warn("identity service error",
			zap.Error(err),
			zap.Any("details", services.GetErrorDetails(err)))
		writeErr = utils.WriteDetail(w, http.StatusBadGateway, err.Error())

	case services.IsInternalError(err):
		logger.Error("internal server error", zap.Error(err))
		writeErr = utils.WriteInternalServerError(w)

	default:
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(services.GetErrorType(err))))
		writeErr = utils.WriteInternalServerError(w)
	}

	if writeErr != nil {
		logger.Error("failed to write error response", zap.Error(writeErr))
	}
}
