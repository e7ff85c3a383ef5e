package services

import (
	"errors"
	"fmt"

	"github.com/upb/oci-onboarding/models"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeUnauthorized ErrorType = "unauthorized"
	ErrorTypeInternal     ErrorType = "internal"
	ErrorTypeProvider     ErrorType = "provider"
)

// Detail keys attached to provider errors
const (
	DetailStage         = "stage"
	DetailStatusCode    = "status_code"
	DetailServiceCode   = "service_code"
	DetailOpcRequestID  = "opc_request_id"
	DetailCompartmentID = "compartment_id"
	DetailGroupID       = "group_id"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type && (t.Message == "" || e.Message == t.Message)
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

// NewProviderError wraps an identity-service failure at stage
func NewProviderError(stage models.Stage, err error) *DomainError {
	return NewDomainError(ErrorTypeProvider, fmt.Sprintf("failed to create %s", stage), err).
		WithDetail(DetailStage, string(stage))
}

// NewAuthError wraps a token verification failure
func NewAuthError(message string, err error) *DomainError {
	return NewDomainError(ErrorTypeUnauthorized, message, err)
}

// Sentinel domain errors, matched with errors.Is by type and message

var (
	ErrMissingToken   = NewDomainError(ErrorTypeUnauthorized, "Not authenticated", nil)
	ErrInvalidToken   = NewDomainError(ErrorTypeUnauthorized, "invalid authentication token", nil)
	ErrTokenExpired   = NewDomainError(ErrorTypeUnauthorized, "authentication token expired", nil)
	ErrMissingSubject = NewDomainError(ErrorTypeUnauthorized, "token has no subject", nil)

	ErrTokenSigning = NewDomainError(ErrorTypeInternal, "failed to sign token", nil)
)

// Error type checking helper functions

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsUnauthorizedError checks if an error is an AuthError
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsProviderError checks if an error is a ProviderError
func IsProviderError(err error) bool {
	return hasType(err, ErrorTypeProvider)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// GetStage returns the provisioning stage recorded on a provider error
func GetStage(err error) (models.Stage, bool) {
	stage, ok := GetErrorDetails(err)[DetailStage].(string)
	if !ok {
		return "", false
	}
	return models.Stage(stage), true
}
