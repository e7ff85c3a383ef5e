package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DevelopmentTokenSecret is the signing secret used when TOKEN_SECRET is unset.
// It is rejected in production.
const DevelopmentTokenSecret = "development-only-token-secret-change-me"

// minTokenSecretLength is the minimum HS256 key size accepted in production.
const minTokenSecretLength = 32

// IdentityCallsPerOnboarding is the number of sequential identity service
// calls one onboarding request makes.
const IdentityCallsPerOnboarding = 3

const (
	// defaultRequestTimeout bounds a request when identity calls have no timeout of their own
	defaultRequestTimeout = 5 * time.Minute
	// timeoutMargin separates the identity budget, the request deadline and the write deadline
	timeoutMargin = 30 * time.Second
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	OCI           OCIConfig
	Token         TokenConfig
	Database      *DatabaseConfig // Optional: audit trail storage. When nil, auditing is disabled.
	Audit         AuditConfig
	RateLimit     RateLimitConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	// RequestTimeout cancels a request's context. It must cover every
	// identity call of an onboarding, and WriteTimeout must exceed it.
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	TLS             struct {
		Enabled  bool
		CertFile string
		KeyFile  string
	}
}

// OCIConfig holds the identity service client configuration.
// An empty ConfigFile means the SDK default (~/.oci/config, OCI_CLI_* env vars).
type OCIConfig struct {
	ConfigFile           string
	Profile              string
	PrivateKeyPassphrase string
	// RequestTimeout bounds each identity call. Zero inherits the request context.
	RequestTimeout time.Duration
	// ParallelCreate creates the compartment and group concurrently.
	ParallelCreate bool
}

// TokenConfig holds bearer token signing configuration
type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string // From DATABASE_URL when set
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AuditConfig sizes the asynchronous audit writer
type AuditConfig struct {
	BufferSize  int
	WorkerCount int
}

// RateLimitConfig limits onboarding requests per client IP.
// A zero RequestsPerMinute disables the limiter.
type RateLimitConfig struct {
	RequestsPerMinute float64
	Burst             int
	// SweepInterval is how often refilled per-IP buckets are evicted. Zero disables eviction.
	SweepInterval time.Duration
}

// ObservabilityConfig holds monitoring and logging configuration
type ObservabilityConfig struct {
	LogLevel       string
	LogFormat      string // json or console
	MetricsEnabled bool
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 0),
			RequestTimeout:  getEnvAsDuration("SERVER_REQUEST_TIMEOUT", 0),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://*"}),
			TLS: struct {
				Enabled  bool
				CertFile string
				KeyFile  string
			}{
				Enabled:  getEnvAsBool("TLS_ENABLED", false),
				CertFile: getEnv("TLS_CERT_FILE", "certs/cert.pem"),
				KeyFile:  getEnv("TLS_KEY_FILE", "certs/key.pem"),
			},
		},
		OCI: OCIConfig{
			ConfigFile:           getEnv("OCI_CONFIG_FILE", ""),
			Profile:              getEnv("OCI_PROFILE", "DEFAULT"),
			PrivateKeyPassphrase: getEnv("OCI_PRIVATE_KEY_PASSPHRASE", ""),
			RequestTimeout:       getEnvAsDuration("OCI_REQUEST_TIMEOUT", 60*time.Second),
			ParallelCreate:       getEnvAsBool("OCI_PARALLEL_CREATE", false),
		},
		Token: TokenConfig{
			Secret: getEnv("TOKEN_SECRET", DevelopmentTokenSecret),
			TTL:    getEnvAsDuration("TOKEN_TTL", 30*time.Minute),
		},
		Database: loadDatabaseConfig(),
		Audit: AuditConfig{
			BufferSize:  getEnvAsInt("AUDIT_BUFFER_SIZE", 1000),
			WorkerCount: getEnvAsInt("AUDIT_WORKERS", 2),
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: getEnvAsFloat("ONBOARD_RATE_LIMIT_PER_MINUTE", 5),
			Burst:             getEnvAsInt("ONBOARD_RATE_BURST", 5),
			SweepInterval:     getEnvAsDuration("ONBOARD_RATE_SWEEP_INTERVAL", time.Minute),
		},
		Observability: ObservabilityConfig{
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
		},
	}

	cfg.ResolveTimeouts()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Token.Secret == "" {
		return fmt.Errorf("token secret is required")
	}
	if c.IsProduction() {
		if c.Token.Secret == DevelopmentTokenSecret {
			return fmt.Errorf("TOKEN_SECRET must be set in production")
		}
		if len(c.Token.Secret) < minTokenSecretLength {
			return fmt.Errorf("token secret must be at least %d bytes in production", minTokenSecretLength)
		}
	}

	if c.OCI.RequestTimeout < 0 {
		return fmt.Errorf("OCI request timeout must not be negative")
	}
	if c.Server.RequestTimeout <= 0 {
		return fmt.Errorf("server request timeout must be positive")
	}
	if budget := c.OnboardingBudget(); c.Server.RequestTimeout < budget {
		return fmt.Errorf("server request timeout %s is shorter than %d identity calls of %s",
			c.Server.RequestTimeout, IdentityCallsPerOnboarding, c.OCI.RequestTimeout)
	}
	if c.Server.WriteTimeout > 0 && c.Server.WriteTimeout <= c.Server.RequestTimeout {
		return fmt.Errorf("server write timeout %s must exceed request timeout %s",
			c.Server.WriteTimeout, c.Server.RequestTimeout)
	}

	if c.Database != nil && c.Database.ConnectionString == "" {
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	}

	if c.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// OnboardingBudget is the longest the identity calls of one onboarding may
// take. Zero when the calls inherit the request deadline.
func (c *Config) OnboardingBudget() time.Duration {
	return IdentityCallsPerOnboarding * c.OCI.RequestTimeout
}

// ResolveTimeouts derives unset server deadlines from the identity call
// budget so a response is always written after the last call returns.
func (c *Config) ResolveTimeouts() {
	if c.Server.RequestTimeout == 0 {
		if budget := c.OnboardingBudget(); budget > 0 {
			c.Server.RequestTimeout = budget + timeoutMargin
		} else {
			c.Server.RequestTimeout = defaultRequestTimeout
		}
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = c.Server.RequestTimeout + timeoutMargin
	}
}

// AuditEnabled reports whether an audit database is configured
func (c *Config) AuditEnabled() bool {
	return c.Database != nil
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

// loadDatabaseConfig loads the audit database from DATABASE_URL or DB_* env vars.
// Returns nil when neither DATABASE_URL nor DB_HOST is set.
func loadDatabaseConfig() *DatabaseConfig {
	if dbURL := getEnv("DATABASE_URL", ""); dbURL != "" {
		return &DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	host := getEnv("DB_HOST", "")
	if host == "" {
		return nil
	}
	return &DatabaseConfig{
		Host:            host,
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", ""),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "onboarding"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
