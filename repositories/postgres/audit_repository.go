package postgres

import (
	"context"
	"fmt"

	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/repositories"
	"go.uber.org/zap"
)

// AuditRepository implements the repositories.AuditRepository interface
type AuditRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *DB, logger *zap.Logger) repositories.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

const insertAuditLog = `
	INSERT INTO onboarding_audit_logs (
		id, request_id, username, company_name, stage, outcome,
		compartment_id, group_id, policy_id, error_message, details,
		ip_address, user_agent, latency_ms, timestamp
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
	)
`

// Insert inserts a new audit log entry
func (r *AuditRepository) Insert(ctx context.Context, log *models.AuditLog) error {
	details := []byte(log.Details)
	if len(details) == 0 {
		details = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx, insertAuditLog,
		log.ID,
		log.RequestID,
		log.Username,
		log.CompanyName,
		string(log.Stage),
		string(log.Outcome),
		log.CompartmentID,
		log.GroupID,
		log.PolicyID,
		log.ErrorMessage,
		details,
		log.IPAddress,
		log.UserAgent,
		log.LatencyMs,
		log.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	r.logger.Debug("audit log inserted",
		zap.String("id", log.ID.String()),
		zap.String("stage", string(log.Stage)),
		zap.String("outcome", string(log.Outcome)))
	return nil
}
