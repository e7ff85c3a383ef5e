// Package observability builds the service logger and the Prometheus
// collectors for onboarding, provisioning and token verification.
package observability
