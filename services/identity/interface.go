package identity

import (
	"context"
	"errors"

	"github.com/upb/oci-onboarding/models"
)

// Client is the subset of a cloud identity service the onboarding flow needs.
// Every Create call performs one non-idempotent remote creation; implementations
// must not retry.
type Client interface {
	// Name returns the provider name (e.g., "oci")
	Name() string

	// TenancyID returns the root container all new compartments and groups are created under
	TenancyID() string

	// CreateCompartment creates a compartment under req.ParentID
	CreateCompartment(ctx context.Context, req *CreateCompartmentRequest) (*models.Compartment, error)

	// CreateGroup creates a group under req.ParentID
	CreateGroup(ctx context.Context, req *CreateGroupRequest) (*models.Group, error)

	// CreatePolicy creates a policy under req.ParentID
	CreatePolicy(ctx context.Context, req *CreatePolicyRequest) (*models.Policy, error)
}

// CreateCompartmentRequest describes a compartment to create
type CreateCompartmentRequest struct {
	ParentID    string
	Name        string
	Description string
}

// CreateGroupRequest describes a group to create
type CreateGroupRequest struct {
	ParentID    string
	Name        string
	Description string
}

// CreatePolicyRequest describes a policy to create.
// Statements are free-form text interpreted by the identity service.
type CreatePolicyRequest struct {
	ParentID    string
	Name        string
	Description string
	Statements  []string
}

// ServiceError represents a failure reported by the identity service
type ServiceError struct {
	// Provider that generated the error
	Provider string

	// Code is the service error code (e.g., "NotAuthorizedOrNotFound")
	Code string

	// Message is the error message
	Message string

	// StatusCode is the HTTP status code, zero for transport failures
	StatusCode int

	// RequestID is the provider's request id, useful for support tickets
	RequestID string

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ServiceError) Error() string {
	if e.Cause != nil && e.Message == "" {
		return e.Cause.Error()
	}
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap implements error unwrapping
func (e *ServiceError) Unwrap() error {
	return e.Cause
}

// NewServiceError creates a new service error
func NewServiceError(provider, code, message string, statusCode int, requestID string, cause error) *ServiceError {
	return &ServiceError{
		Provider:   provider,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		RequestID:  requestID,
		Cause:      cause,
	}
}

// AsServiceError extracts a ServiceError from an error chain
func AsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	if errors.As(err, &svcErr) {
		return svcErr, true
	}
	return nil, false
}
