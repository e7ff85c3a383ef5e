package repositories

import (
	"context"

	"github.com/upb/oci-onboarding/models"
)

// AuditRepository persists onboarding attempts. It is write-only: nothing in
// the onboarding path reads it back.
type AuditRepository interface {
	// Insert inserts a new audit log entry
	Insert(ctx context.Context, log *models.AuditLog) error
}

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Repositories holds all repository instances
type Repositories struct {
	AuditLogs AuditRepository
}
