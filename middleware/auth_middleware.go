package middleware

import (
	"net/http"
	"strings"

	"github.com/upb/oci-onboarding/services"
	"github.com/upb/oci-onboarding/services/token"
	"github.com/upb/oci-onboarding/utils"
	"go.uber.org/zap"
)

// InvalidCredentialsDetail is returned when a presented token fails verification
const InvalidCredentialsDetail = "Invalid authentication credentials"

// TokenVerifier validates a bearer token and returns its claims
type TokenVerifier interface {
	VerifyClaims(token string) (*token.Claims, error)
}

// VerificationRecorder counts token verification results
type VerificationRecorder interface {
	ObserveTokenVerification(success bool)
}

// AuthMiddleware provides authentication middleware functionality
type AuthMiddleware struct {
	verifier TokenVerifier
	metrics  VerificationRecorder
	logger   *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware. metrics may be nil.
func NewAuthMiddleware(verifier TokenVerifier, metrics VerificationRecorder, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// RequireAuth rejects requests without a valid bearer token and stores the
// verified claims in the request context.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		requestID := GetRequestIDFromContext(ctx)

		raw := extractBearerToken(r)
		if raw == "" {
			m.logger.Debug("missing bearer token", zap.String("request_id", requestID))
			_ = utils.WriteUnauthorized(w, services.ErrMissingToken.Message)
			return
		}

		claims, err := m.verifier.VerifyClaims(raw)
		m.observe(err == nil)
		if err != nil {
			m.logger.Warn("token verification failed",
				zap.String("request_id", requestID),
				zap.Error(err))
			_ = utils.WriteUnauthorized(w, InvalidCredentialsDetail)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("sub", claims.Subject))

		next.ServeHTTP(w, r.WithContext(WithClaims(ctx, claims)))
	})
}

func (m *AuthMiddleware) observe(success bool) {
	if m.metrics != nil {
		m.metrics.ObserveTokenVerification(success)
	}
}

// extractBearerToken extracts the Bearer token from the Authorization header
func extractBearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
