package oci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oracle/oci-go-sdk/v65/common"
	ociidentity "github.com/oracle/oci-go-sdk/v65/identity"
	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/services/identity"
	"go.uber.org/zap"
)

const (
	providerName   = "oci"
	defaultProfile = "DEFAULT"
)

// identityAPI is the part of the OCI Identity client the adapter calls.
// ociidentity.IdentityClient satisfies it.
type identityAPI interface {
	CreateCompartment(ctx context.Context, request ociidentity.CreateCompartmentRequest) (ociidentity.CreateCompartmentResponse, error)
	CreateGroup(ctx context.Context, request ociidentity.CreateGroupRequest) (ociidentity.CreateGroupResponse, error)
	CreatePolicy(ctx context.Context, request ociidentity.CreatePolicyRequest) (ociidentity.CreatePolicyResponse, error)
}

// Config selects the OCI SDK configuration source
type Config struct {
	// ConfigFile is an OCI CLI style config file. Empty uses the SDK default chain.
	ConfigFile           string
	Profile              string
	PrivateKeyPassphrase string
}

// Adapter implements identity.Client on top of the OCI Go SDK
type Adapter struct {
	api       identityAPI
	tenancyID string
	logger    *zap.Logger
}

// NewAdapter loads the OCI configuration once and builds an identity client
func NewAdapter(cfg Config, logger *zap.Logger) (*Adapter, error) {
	provider, err := configurationProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load OCI configuration: %w", err)
	}

	tenancyID, err := provider.TenancyOCID()
	if err != nil {
		return nil, fmt.Errorf("failed to read tenancy OCID: %w", err)
	}

	client, err := ociidentity.NewIdentityClientWithConfigurationProvider(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCI identity client: %w", err)
	}

	return newAdapter(client, tenancyID, logger), nil
}

func newAdapter(api identityAPI, tenancyID string, logger *zap.Logger) *Adapter {
	return &Adapter{
		api:       api,
		tenancyID: tenancyID,
		logger:    logger,
	}
}

func configurationProvider(cfg Config) (common.ConfigurationProvider, error) {
	profile := cfg.Profile
	if profile == "" {
		profile = defaultProfile
	}
	if cfg.ConfigFile == "" && profile == defaultProfile && cfg.PrivateKeyPassphrase == "" {
		return common.DefaultConfigProvider(), nil
	}

	path := cfg.ConfigFile
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(home, ".oci", "config")
	}
	return common.ConfigurationProviderFromFileWithProfile(path, profile, cfg.PrivateKeyPassphrase)
}

// Name returns the provider name
func (a *Adapter) Name() string {
	return providerName
}

// TenancyID returns the tenancy OCID from the loaded configuration
func (a *Adapter) TenancyID() string {
	return a.tenancyID
}

// CreateCompartment creates a compartment under req.ParentID
func (a *Adapter) CreateCompartment(ctx context.Context, req *identity.CreateCompartmentRequest) (*models.Compartment, error) {
	resp, err := a.api.CreateCompartment(ctx, ociidentity.CreateCompartmentRequest{
		CreateCompartmentDetails: ociidentity.CreateCompartmentDetails{
			CompartmentId: common.String(req.ParentID),
			Name:          common.String(req.Name),
			Description:   common.String(req.Description),
		},
		RequestMetadata: noRetry(),
	})
	if err != nil {
		return nil, a.translateError("CreateCompartment", err)
	}

	c := resp.Compartment
	a.logger.Debug("oci compartment created",
		zap.String("compartment_id", deref(c.Id)),
		zap.String("opc_request_id", deref(resp.OpcRequestId)))

	return &models.Compartment{
		ID:             deref(c.Id),
		Name:           deref(c.Name),
		Description:    deref(c.Description),
		ParentID:       deref(c.CompartmentId),
		LifecycleState: string(c.LifecycleState),
		TimeCreated:    sdkTime(c.TimeCreated),
	}, nil
}

// CreateGroup creates a group under req.ParentID
func (a *Adapter) CreateGroup(ctx context.Context, req *identity.CreateGroupRequest) (*models.Group, error) {
	resp, err := a.api.CreateGroup(ctx, ociidentity.CreateGroupRequest{
		CreateGroupDetails: ociidentity.CreateGroupDetails{
			CompartmentId: common.String(req.ParentID),
			Name:          common.String(req.Name),
			Description:   common.String(req.Description),
		},
		RequestMetadata: noRetry(),
	})
	if err != nil {
		return nil, a.translateError("CreateGroup", err)
	}

	g := resp.Group
	a.logger.Debug("oci group created",
		zap.String("group_id", deref(g.Id)),
		zap.String("opc_request_id", deref(resp.OpcRequestId)))

	return &models.Group{
		ID:             deref(g.Id),
		Name:           deref(g.Name),
		Description:    deref(g.Description),
		ParentID:       deref(g.CompartmentId),
		LifecycleState: string(g.LifecycleState),
		TimeCreated:    sdkTime(g.TimeCreated),
	}, nil
}

// CreatePolicy creates a policy under req.ParentID
func (a *Adapter) CreatePolicy(ctx context.Context, req *identity.CreatePolicyRequest) (*models.Policy, error) {
	resp, err := a.api.CreatePolicy(ctx, ociidentity.CreatePolicyRequest{
		CreatePolicyDetails: ociidentity.CreatePolicyDetails{
			CompartmentId: common.String(req.ParentID),
			Name:          common.String(req.Name),
			Description:   common.String(req.Description),
			Statements:    req.Statements,
		},
		RequestMetadata: noRetry(),
	})
	if err != nil {
		return nil, a.translateError("CreatePolicy", err)
	}

	p := resp.Policy
	a.logger.Debug("oci policy created",
		zap.String("policy_id", deref(p.Id)),
		zap.String("opc_request_id", deref(resp.OpcRequestId)))

	return &models.Policy{
		ID:             deref(p.Id),
		Name:           deref(p.Name),
		Description:    deref(p.Description),
		ParentID:       deref(p.CompartmentId),
		Statements:     p.Statements,
		LifecycleState: string(p.LifecycleState),
		TimeCreated:    sdkTime(p.TimeCreated),
	}, nil
}

// translateError converts SDK failures into identity.ServiceError
func (a *Adapter) translateError(operation string, err error) error {
	var svcErr common.ServiceError
	if errors.As(err, &svcErr) {
		a.logger.Warn("oci identity call failed",
			zap.String("operation", operation),
			zap.Int("status_code", svcErr.GetHTTPStatusCode()),
			zap.String("code", svcErr.GetCode()),
			zap.String("opc_request_id", svcErr.GetOpcRequestID()))
		return identity.NewServiceError(providerName, svcErr.GetCode(), svcErr.GetMessage(),
			svcErr.GetHTTPStatusCode(), svcErr.GetOpcRequestID(), err)
	}

	a.logger.Warn("oci identity call failed",
		zap.String("operation", operation),
		zap.Error(err))
	return identity.NewServiceError(providerName, "", "", 0, "", fmt.Errorf("%s: %w", operation, err))
}

// noRetry disables the SDK's default retry policy for a single request
func noRetry() common.RequestMetadata {
	policy := common.NoRetryPolicy()
	return common.RequestMetadata{RetryPolicy: &policy}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sdkTime(t *common.SDKTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}
