package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditOutcome records whether an onboarding attempt completed
type AuditOutcome string

const (
	AuditOutcomeSucceeded AuditOutcome = "succeeded"
	AuditOutcomeFailed    AuditOutcome = "failed"
)

// AuditLog is one onboarding attempt. Stage is the last stage reached:
// StageCompleted on success, the failing stage otherwise.
type AuditLog struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	RequestID     string          `json:"request_id" db:"request_id"`
	Username      string          `json:"username" db:"username"`
	CompanyName   string          `json:"company_name" db:"company_name"`
	Stage         Stage           `json:"stage" db:"stage"`
	Outcome       AuditOutcome    `json:"outcome" db:"outcome"`
	CompartmentID *string         `json:"compartment_id,omitempty" db:"compartment_id"`
	GroupID       *string         `json:"group_id,omitempty" db:"group_id"`
	PolicyID      *string         `json:"policy_id,omitempty" db:"policy_id"`
	ErrorMessage  *string         `json:"error_message,omitempty" db:"error_message"`
	Details       json.RawMessage `json:"details" db:"details"` // JSONB for provider error metadata
	IPAddress     string          `json:"ip_address" db:"ip_address"`
	UserAgent     string          `json:"user_agent" db:"user_agent"`
	LatencyMs     int             `json:"latency_ms" db:"latency_ms"`
	Timestamp     time.Time       `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the AuditLog model
func (AuditLog) TableName() string {
	return "onboarding_audit_logs"
}

// NewAuditLog creates a new AuditLog for a customer
func NewAuditLog(customer *Customer) *AuditLog {
	return &AuditLog{
		ID:          uuid.New(),
		Username:    customer.Username,
		CompanyName: customer.CompanyName,
		Details:     json.RawMessage("{}"),
		Timestamp:   time.Now().UTC(),
	}
}

// WithRequest sets request metadata
func (a *AuditLog) WithRequest(requestID, ipAddress, userAgent string) *AuditLog {
	a.RequestID = requestID
	a.IPAddress = ipAddress
	a.UserAgent = userAgent
	return a
}

// WithResources records the ids of whatever was created
func (a *AuditLog) WithResources(p *Provisioned) *AuditLog {
	if p == nil {
		return a
	}
	if p.Compartment != nil {
		id := p.Compartment.ID
		a.CompartmentID = &id
	}
	if p.Group != nil {
		id := p.Group.ID
		a.GroupID = &id
	}
	if p.Policy != nil {
		id := p.Policy.ID
		a.PolicyID = &id
	}
	return a
}

// WithDetails sets the details
func (a *AuditLog) WithDetails(details interface{}) *AuditLog {
	if data, err := json.Marshal(details); err == nil {
		a.Details = data
	}
	return a
}

// Succeeded marks the attempt as completed
func (a *AuditLog) Succeeded(latency time.Duration) *AuditLog {
	a.Stage = StageCompleted
	a.Outcome = AuditOutcomeSucceeded
	a.LatencyMs = int(latency.Milliseconds())
	return a
}

// Failed marks the attempt as failed at stage
func (a *AuditLog) Failed(stage Stage, errorMessage string, latency time.Duration) *AuditLog {
	a.Stage = stage
	a.Outcome = AuditOutcomeFailed
	a.ErrorMessage = &errorMessage
	a.LatencyMs = int(latency.Milliseconds())
	return a
}
