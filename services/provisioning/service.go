package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/services"
	"github.com/upb/oci-onboarding/services/identity"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config holds configuration for the Service
type Config struct {
	// CallTimeout bounds each identity call. Zero inherits the caller's context.
	CallTimeout time.Duration
	// Parallel creates the compartment and group concurrently
	Parallel bool
}

// Service creates the compartment, group and policy for a new customer.
// Nothing it creates is ever rolled back.
type Service struct {
	client  identity.Client
	logger  *zap.Logger
	metrics Recorder
	config  Config
}

// Recorder observes identity call latency and outcome
type Recorder interface {
	ObserveProvisioningCall(stage models.Stage, success bool, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveProvisioningCall(models.Stage, bool, time.Duration) {}

// NewService creates a provisioning service. metrics may be nil.
func NewService(client identity.Client, logger *zap.Logger, metrics Recorder, config Config) *Service {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Service{
		client:  client,
		logger:  logger,
		metrics: metrics,
		config:  config,
	}
}

// CompartmentName returns the compartment name for a company
func CompartmentName(companyName string) string {
	return "customer_" + companyName
}

// GroupName returns the group name for a company
func GroupName(companyName string) string {
	return "group_" + companyName
}

// PolicyName returns the policy name for a company
func PolicyName(companyName string) string {
	return "policy_" + companyName
}

// PolicyStatement grants the company's group full control of its compartment.
// Both resources are referenced by name.
func PolicyStatement(companyName string) string {
	return fmt.Sprintf("Allow group %s to manage all-resources in compartment %s",
		GroupName(companyName), CompartmentName(companyName))
}

// CreateCompartment creates customer_<companyName> under the tenancy
func (s *Service) CreateCompartment(ctx context.Context, companyName string) (*models.Compartment, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	compartment, err := s.client.CreateCompartment(ctx, &identity.CreateCompartmentRequest{
		ParentID:    s.client.TenancyID(),
		Name:        CompartmentName(companyName),
		Description: "Compartment for " + companyName,
	})
	s.metrics.ObserveProvisioningCall(models.StageCompartment, err == nil, time.Since(start))
	if err != nil {
		return nil, providerError(models.StageCompartment, err)
	}

	s.logger.Info("compartment created",
		zap.String("company", companyName),
		zap.String("compartment_id", compartment.ID))
	return compartment, nil
}

// CreateGroup creates group_<companyName> under the tenancy
func (s *Service) CreateGroup(ctx context.Context, companyName string) (*models.Group, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	group, err := s.client.CreateGroup(ctx, &identity.CreateGroupRequest{
		ParentID:    s.client.TenancyID(),
		Name:        GroupName(companyName),
		Description: "Group for " + companyName,
	})
	s.metrics.ObserveProvisioningCall(models.StageGroup, err == nil, time.Since(start))
	if err != nil {
		return nil, providerError(models.StageGroup, err)
	}

	s.logger.Info("group created",
		zap.String("company", companyName),
		zap.String("group_id", group.ID))
	return group, nil
}

// CreatePolicy creates policy_<companyName> inside the compartment.
// groupID is not part of the statement; the statement names the group.
func (s *Service) CreatePolicy(ctx context.Context, compartmentID, groupID, companyName string) (*models.Policy, error) {
	ctx, cancel := s.callContext(ctx)
	defer cancel()

	start := time.Now()
	policy, err := s.client.CreatePolicy(ctx, &identity.CreatePolicyRequest{
		ParentID:    compartmentID,
		Name:        PolicyName(companyName),
		Description: "Policy for " + companyName,
		Statements:  []string{PolicyStatement(companyName)},
	})
	s.metrics.ObserveProvisioningCall(models.StagePolicy, err == nil, time.Since(start))
	if err != nil {
		return nil, providerError(models.StagePolicy, err).
			WithDetail(services.DetailCompartmentID, compartmentID).
			WithDetail(services.DetailGroupID, groupID)
	}

	s.logger.Info("policy created",
		zap.String("company", companyName),
		zap.String("policy_id", policy.ID),
		zap.String("compartment_id", compartmentID),
		zap.String("group_id", groupID))
	return policy, nil
}

// Provision runs compartment, group, then policy creation. It stops at the
// first failure and returns what was created so far alongside the error.
func (s *Service) Provision(ctx context.Context, companyName string) (*models.Provisioned, error) {
	result := &models.Provisioned{}

	if s.config.Parallel {
		if err := s.createCompartmentAndGroup(ctx, companyName, result); err != nil {
			return result, err
		}
	} else {
		compartment, err := s.CreateCompartment(ctx, companyName)
		if err != nil {
			return result, err
		}
		result.Compartment = compartment

		group, err := s.CreateGroup(ctx, companyName)
		if err != nil {
			return result, withCreated(err, result)
		}
		result.Group = group
	}

	policy, err := s.CreatePolicy(ctx, result.Compartment.ID, result.Group.ID, companyName)
	if err != nil {
		return result, err
	}
	result.Policy = policy

	return result, nil
}

// createCompartmentAndGroup issues both creates concurrently. Neither call is
// cancelled when the other fails: both are already in flight and irreversible.
func (s *Service) createCompartmentAndGroup(ctx context.Context, companyName string, result *models.Provisioned) error {
	var g errgroup.Group
	var compartmentErr, groupErr error

	g.Go(func() error {
		result.Compartment, compartmentErr = s.CreateCompartment(ctx, companyName)
		return compartmentErr
	})
	g.Go(func() error {
		result.Group, groupErr = s.CreateGroup(ctx, companyName)
		return groupErr
	})
	_ = g.Wait()

	// Report the compartment failure first to match sequential ordering.
	if compartmentErr != nil {
		return withCreated(compartmentErr, result)
	}
	if groupErr != nil {
		return withCreated(groupErr, result)
	}
	return nil
}

func (s *Service) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.CallTimeout > 0 {
		return context.WithTimeout(ctx, s.config.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// providerError tags an identity failure with its stage and any service metadata
func providerError(stage models.Stage, err error) *services.DomainError {
	domainErr := services.NewProviderError(stage, err)
	if svcErr, ok := identity.AsServiceError(err); ok {
		if svcErr.StatusCode != 0 {
			domainErr.WithDetail(services.DetailStatusCode, svcErr.StatusCode)
		}
		if svcErr.Code != "" {
			domainErr.WithDetail(services.DetailServiceCode, svcErr.Code)
		}
		if svcErr.RequestID != "" {
			domainErr.WithDetail(services.DetailOpcRequestID, svcErr.RequestID)
		}
	}
	return domainErr
}

// withCreated records already-created resource ids on a provider error
func withCreated(err error, result *models.Provisioned) error {
	domainErr, ok := err.(*services.DomainError)
	if !ok {
		return err
	}
	if result.Compartment != nil {
		domainErr.WithDetail(services.DetailCompartmentID, result.Compartment.ID)
	}
	if result.Group != nil {
		domainErr.WithDetail(services.DetailGroupID, result.Group.ID)
	}
	return domainErr
}
