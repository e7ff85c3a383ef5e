package routes

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/oci-onboarding/app"
	"github.com/upb/oci-onboarding/config"
	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/services/identity"
	"go.uber.org/zap"
)

// fakeIdentity creates resources in memory and can fail one stage
type fakeIdentity struct {
	failGroup bool
}

func (f *fakeIdentity) Name() string      { return "fake" }
func (f *fakeIdentity) TenancyID() string { return "ocid1.tenancy.oc1..fake" }

func (f *fakeIdentity) CreateCompartment(_ context.Context, req *identity.CreateCompartmentRequest) (*models.Compartment, error) {
	return &models.Compartment{ID: "ocid1.compartment.oc1..fake", Name: req.Name, ParentID: req.ParentID}, nil
}

func (f *fakeIdentity) CreateGroup(_ context.Context, req *identity.CreateGroupRequest) (*models.Group, error) {
	if f.failGroup {
		return nil, identity.NewServiceError("fake", "GroupAlreadyExists", "group exists", 409, "opc-9", errors.New("conflict"))
	}
	return &models.Group{ID: "ocid1.group.oc1..fake", Name: req.Name, ParentID: req.ParentID}, nil
}

func (f *fakeIdentity) CreatePolicy(_ context.Context, req *identity.CreatePolicyRequest) (*models.Policy, error) {
	return &models.Policy{ID: "ocid1.policy.oc1..fake", Name: req.Name, ParentID: req.ParentID, Statements: req.Statements}, nil
}

func newTestRouter(t *testing.T, client identity.Client, burst int) http.Handler {
	t.Helper()
	cfg := &config.Config{
		Environment: "test",
		Server: config.ServerConfig{
			RequestTimeout: 30 * time.Second,
			WriteTimeout:   time.Minute,
			AllowedOrigins: []string{"https://*"},
		},
		Token: config.TokenConfig{
			Secret: "test-secret-that-is-long-enough-for-hs256",
			TTL:    30 * time.Minute,
		},
		RateLimit:     config.RateLimitConfig{RequestsPerMinute: 1, Burst: burst},
		Observability: config.ObservabilityConfig{LogLevel: "info", MetricsEnabled: true},
	}
	deps, err := app.NewDependenciesWithClient(context.Background(), cfg, client, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = deps.Close(context.Background()) })
	return SetupRoutes(deps)
}

func do(router http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const onboardBody = `{"username":"alice","email":"alice@acme.io","company_name":"acme"}`

func TestOnboardThenMe(t *testing.T) {
	router := newTestRouter(t, &fakeIdentity{}, 10)

	w := do(router, http.MethodPost, "/onboard", onboardBody, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("Content-Type"))

	var tok models.Token
	require.NoError(t, json.NewDecoder(w.Body).Decode(&tok))
	assert.Equal(t, "bearer", tok.TokenType)
	require.NotEmpty(t, tok.AccessToken)

	w = do(router, http.MethodGet, "/customer/me", "", map[string]string{"Authorization": "Bearer " + tok.AccessToken})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"username":"alice"}`, w.Body.String())
}

func TestCustomerMe_Unauthenticated(t *testing.T) {
	router := newTestRouter(t, &fakeIdentity{}, 10)

	tests := []struct {
		name   string
		header map[string]string
		detail string
	}{
		{"no header", nil, "Not authenticated"},
		{"wrong scheme", map[string]string{"Authorization": "Basic abc"}, "Not authenticated"},
		{"garbage token", map[string]string{"Authorization": "Bearer not-a-jwt"}, "Invalid authentication credentials"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(router, http.MethodGet, "/customer/me", "", tt.header)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
			assert.JSONEq(t, `{"detail":"`+tt.detail+`"}`, w.Body.String())
		})
	}
}

func TestOnboard_ProviderFailure(t *testing.T) {
	router := newTestRouter(t, &fakeIdentity{failGroup: true}, 10)

	w := do(router, http.MethodPost, "/onboard", onboardBody, nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t,
		`{"detail":"Failed to onboard customer: failed to create group: GroupAlreadyExists: group exists"}`,
		w.Body.String())
}

func TestOnboard_ValidationAndRateLimit(t *testing.T) {
	router := newTestRouter(t, &fakeIdentity{}, 2)

	w := do(router, http.MethodPost, "/onboard", `{"username":"alice"}`, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = do(router, http.MethodPost, "/onboard", onboardBody, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(router, http.MethodPost, "/onboard", onboardBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.JSONEq(t, `{"detail":"Rate limit exceeded"}`, w.Body.String())
}

func TestRouting(t *testing.T) {
	router := newTestRouter(t, &fakeIdentity{}, 10)

	t.Run("health", func(t *testing.T) {
		w := do(router, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("readiness without database", func(t *testing.T) {
		w := do(router, http.MethodGet, "/readyz", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unknown path", func(t *testing.T) {
		w := do(router, http.MethodGet, "/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"detail":"Not Found"}`, w.Body.String())
	})

	t.Run("wrong method", func(t *testing.T) {
		w := do(router, http.MethodGet, "/onboard", "", nil)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.JSONEq(t, `{"detail":"Method Not Allowed"}`, w.Body.String())
	})

	t.Run("metrics exposition", func(t *testing.T) {
		do(router, http.MethodGet, "/healthz", "", nil)

		w := do(router, http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `onboarding_http_requests_total{method="GET",route="/healthz",status="200"}`)
	})
}
