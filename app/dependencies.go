package app

import (
	"context"
	"fmt"
	"time"

	"github.com/upb/oci-onboarding/config"
	"github.com/upb/oci-onboarding/internal/observability"
	"github.com/upb/oci-onboarding/middleware"
	"github.com/upb/oci-onboarding/repositories"
	"github.com/upb/oci-onboarding/repositories/postgres"
	"github.com/upb/oci-onboarding/services/audit"
	"github.com/upb/oci-onboarding/services/identity"
	"github.com/upb/oci-onboarding/services/identity/oci"
	"github.com/upb/oci-onboarding/services/onboarding"
	"github.com/upb/oci-onboarding/services/provisioning"
	"github.com/upb/oci-onboarding/services/token"
	"go.uber.org/zap"
)

// auditStopTimeout bounds how long Close waits for queued audit logs
const auditStopTimeout = 5 * time.Second

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics // nil when metrics are disabled

	// Audit trail, nil when no database is configured
	RepoFactory  *postgres.RepositoryFactory
	DB           *postgres.DB
	AuditLogs    repositories.AuditRepository
	AuditService *audit.AuditService

	// Services
	Identity     identity.Client
	Provisioning *provisioning.Service
	Tokens       *token.Service
	Onboarding   *onboarding.Service

	// Middleware
	AuthMiddleware *middleware.AuthMiddleware
	RateLimiter    *middleware.IPRateLimiter
}

// NewDependencies creates and wires up all application dependencies.
// The OCI configuration is loaded once here and reused for every request.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	client, err := oci.NewAdapter(oci.Config{
		ConfigFile:           cfg.OCI.ConfigFile,
		Profile:              cfg.OCI.Profile,
		PrivateKeyPassphrase: cfg.OCI.PrivateKeyPassphrase,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize identity client: %w", err)
	}

	return NewDependenciesWithClient(ctx, cfg, client, logger)
}

// NewDependenciesWithClient wires the application around an existing identity client
func NewDependenciesWithClient(ctx context.Context, cfg *config.Config, client identity.Client, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:   cfg,
		Logger:   logger,
		Identity: client,
	}

	if cfg.Observability.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	// Initialize the optional audit database
	if err := deps.initAudit(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := deps.initServices(cfg); err != nil {
		_ = deps.closeAudit()
		return nil, err
	}

	logger.Info("all dependencies initialized successfully",
		zap.String("identity_provider", client.Name()),
		zap.Bool("audit_enabled", deps.AuditService != nil),
		zap.Bool("metrics_enabled", deps.Metrics != nil))
	return deps, nil
}

// initAudit connects to PostgreSQL and starts the audit writers
func (d *Dependencies) initAudit(ctx context.Context, cfg *config.Config) error {
	if !cfg.AuditEnabled() {
		d.Logger.Info("no audit database configured, audit trail disabled")
		return nil
	}

	factory, err := postgres.NewRepositoryFactory(ctx, *cfg.Database, d.Logger)
	if err != nil {
		return fmt.Errorf("failed to create repository factory: %w", err)
	}
	return d.startAudit(factory, cfg.Audit)
}

// startAudit wires the audit repository and worker pool onto factory
func (d *Dependencies) startAudit(factory *postgres.RepositoryFactory, cfg config.AuditConfig) error {
	d.RepoFactory = factory
	d.DB = factory.GetDB()
	d.AuditLogs = factory.NewRepositories().AuditLogs

	d.AuditService = audit.NewAuditService(d.AuditLogs, d.Logger, audit.Config{
		BufferSize:  cfg.BufferSize,
		WorkerCount: cfg.WorkerCount,
	})
	if err := d.AuditService.Start(); err != nil {
		_ = factory.Close()
		return fmt.Errorf("failed to start audit service: %w", err)
	}

	d.Logger.Info("audit trail enabled",
		zap.String("connection", d.Config.Database.LogString()))
	return nil
}

// initServices builds the onboarding pipeline and request middleware
func (d *Dependencies) initServices(cfg *config.Config) error {
	tokens, err := token.NewService(token.Config{
		Secret: cfg.Token.Secret,
		TTL:    cfg.Token.TTL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize token service: %w", err)
	}
	d.Tokens = tokens

	// Interfaces below stay nil rather than wrapping a nil pointer.
	var (
		provisioningMetrics provisioning.Recorder
		onboardingMetrics   onboarding.Recorder
		authMetrics         middleware.VerificationRecorder
		auditor             onboarding.Auditor
	)
	if d.Metrics != nil {
		provisioningMetrics = d.Metrics
		onboardingMetrics = d.Metrics
		authMetrics = d.Metrics
	}
	if d.AuditService != nil {
		auditor = d.AuditService
	}

	d.Provisioning = provisioning.NewService(d.Identity, d.Logger, provisioningMetrics, provisioning.Config{
		CallTimeout: cfg.OCI.RequestTimeout,
		Parallel:    cfg.OCI.ParallelCreate,
	})
	d.Onboarding = onboarding.NewService(d.Provisioning, d.Tokens, auditor, onboardingMetrics, d.Logger)
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Tokens, authMetrics, d.Logger)
	d.RateLimiter = middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerMinute, cfg.RateLimit.Burst, d.Logger)
	d.RateLimiter.StartSweeper(cfg.RateLimit.SweepInterval)

	return nil
}

// AuditHealth returns the audit database health checker, or nil when auditing is disabled
func (d *Dependencies) AuditHealth() repositories.HealthChecker {
	if d.DB == nil {
		return nil
	}
	return d.DB
}

func (d *Dependencies) closeAudit() error {
	var errs []error

	if d.AuditService != nil {
		if err := d.AuditService.Stop(auditStopTimeout); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop audit service: %w", err))
		}
	}

	if d.RepoFactory != nil {
		if err := d.RepoFactory.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close database: %w", err))
		} else {
			d.Logger.Info("database connection closed")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}
	return nil
}

// Close gracefully shuts down all dependencies. Queued audit logs are
// flushed before the database connection is closed.
func (d *Dependencies) Close(ctx context.Context) error {
	d.Logger.Info("shutting down dependencies")

	if d.RateLimiter != nil {
		d.RateLimiter.Stop()
	}

	err := d.closeAudit()

	// Sync logger
	if d.Logger != nil {
		_ = d.Logger.Sync()
	}

	return err
}
