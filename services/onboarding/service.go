package onboarding

import (
	"context"
	"time"

	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/services"
	"github.com/upb/oci-onboarding/services/token"
	"go.uber.org/zap"
)

// Provisioner creates the cloud resources for a company
type Provisioner interface {
	Provision(ctx context.Context, companyName string) (*models.Provisioned, error)
}

// TokenIssuer signs bearer tokens
type TokenIssuer interface {
	Issue(claims map[string]interface{}) (string, error)
}

// Auditor queues audit logs without blocking
type Auditor interface {
	LogEvent(log *models.AuditLog) error
}

// Recorder counts onboarding outcomes
type Recorder interface {
	ObserveOnboarding(stage models.Stage, success bool)
}

// RequestMeta carries the caller details recorded in the audit trail
type RequestMeta struct {
	RequestID string
	IPAddress string
	UserAgent string
}

// Service runs the onboarding sequence: provision, then issue a token
type Service struct {
	provisioner Provisioner
	tokens      TokenIssuer
	auditor     Auditor
	metrics     Recorder
	logger      *zap.Logger
}

// NewService creates an onboarding service. auditor and metrics may be nil.
func NewService(provisioner Provisioner, tokens TokenIssuer, auditor Auditor, metrics Recorder, logger *zap.Logger) *Service {
	return &Service{
		provisioner: provisioner,
		tokens:      tokens,
		auditor:     auditor,
		metrics:     metrics,
		logger:      logger,
	}
}

// Onboard provisions the customer's compartment, group and policy and returns
// a bearer token whose subject is the username. Resources created before a
// failure are left in place.
func (s *Service) Onboard(ctx context.Context, customer *models.Customer, meta RequestMeta) (*models.OnboardingResult, error) {
	start := time.Now()
	logger := s.logger.With(
		zap.String("username", customer.Username),
		zap.String("company", customer.CompanyName),
		zap.String("request_id", meta.RequestID))

	provisioned, err := s.provisioner.Provision(ctx, customer.CompanyName)
	if err != nil {
		stage, ok := services.GetStage(err)
		if !ok {
			stage = models.StageCompartment
		}
		logger.Warn("onboarding failed", zap.String("stage", string(stage)), zap.Error(err))
		s.record(customer, meta, provisioned, stage, err, time.Since(start))
		return nil, err
	}

	signed, err := s.tokens.Issue(map[string]interface{}{
		token.ClaimSubject:     customer.Username,
		token.ClaimCompartment: provisioned.Compartment.ID,
	})
	if err != nil {
		logger.Error("token issuance failed", zap.Error(err))
		s.record(customer, meta, provisioned, models.StageToken, err, time.Since(start))
		return nil, err
	}

	logger.Info("customer onboarded",
		zap.String("compartment_id", provisioned.Compartment.ID),
		zap.String("group_id", provisioned.Group.ID),
		zap.String("policy_id", provisioned.Policy.ID),
		zap.Duration("latency", time.Since(start)))
	s.record(customer, meta, provisioned, models.StageCompleted, nil, time.Since(start))

	return &models.OnboardingResult{
		Provisioned: *provisioned,
		Token:       models.NewBearerToken(signed),
	}, nil
}

// record emits the audit log and outcome metric. Failures here never
// affect the onboarding result.
func (s *Service) record(customer *models.Customer, meta RequestMeta, provisioned *models.Provisioned, stage models.Stage, cause error, latency time.Duration) {
	success := cause == nil

	if s.metrics != nil {
		s.metrics.ObserveOnboarding(stage, success)
	}
	if s.auditor == nil {
		return
	}

	log := models.NewAuditLog(customer).
		WithRequest(meta.RequestID, meta.IPAddress, meta.UserAgent).
		WithResources(provisioned)
	if success {
		log.Succeeded(latency)
	} else {
		if details := services.GetErrorDetails(cause); len(details) > 0 {
			log.WithDetails(details)
		}
		log.Failed(stage, cause.Error(), latency)
	}

	if err := s.auditor.LogEvent(log); err != nil {
		s.logger.Warn("audit log dropped", zap.Error(err), zap.String("request_id", meta.RequestID))
	}
}
