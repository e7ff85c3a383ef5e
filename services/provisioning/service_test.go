package provisioning

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/oci-onboarding/models"
	"github.com/upb/oci-onboarding/services"
	"github.com/upb/oci-onboarding/services/identity"
	"go.uber.org/zap"
)

const tenancyID = "ocid1.tenancy.oc1..test"

// MockIdentityClient is a mock implementation of identity.Client that records call order
type MockIdentityClient struct {
	mock.Mock
	mu    sync.Mutex
	calls []string
}

func (m *MockIdentityClient) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
}

func (m *MockIdentityClient) Name() string      { return "mock" }
func (m *MockIdentityClient) TenancyID() string { return tenancyID }

func (m *MockIdentityClient) CreateCompartment(ctx context.Context, req *identity.CreateCompartmentRequest) (*models.Compartment, error) {
	m.record("compartment")
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Compartment), args.Error(1)
}

func (m *MockIdentityClient) CreateGroup(ctx context.Context, req *identity.CreateGroupRequest) (*models.Group, error) {
	m.record("group")
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Group), args.Error(1)
}

func (m *MockIdentityClient) CreatePolicy(ctx context.Context, req *identity.CreatePolicyRequest) (*models.Policy, error) {
	m.record("policy")
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Policy), args.Error(1)
}

func compartment() *models.Compartment {
	return &models.Compartment{ID: "cmp-1", Name: "customer_acme", ParentID: tenancyID}
}

func group() *models.Group {
	return &models.Group{ID: "grp-1", Name: "group_acme", ParentID: tenancyID}
}

func policy() *models.Policy {
	return &models.Policy{ID: "pol-1", Name: "policy_acme", ParentID: "cmp-1"}
}

func TestNaming(t *testing.T) {
	assert.Equal(t, "customer_acme", CompartmentName("acme"))
	assert.Equal(t, "group_acme", GroupName("acme"))
	assert.Equal(t, "policy_acme", PolicyName("acme"))
	assert.Equal(t,
		"Allow group group_acme to manage all-resources in compartment customer_acme",
		PolicyStatement("acme"))
}

func TestCreateCompartment(t *testing.T) {
	client := new(MockIdentityClient)
	svc := NewService(client, zap.NewNop(), nil, Config{})

	client.On("CreateCompartment", mock.Anything, &identity.CreateCompartmentRequest{
		ParentID:    tenancyID,
		Name:        "customer_acme",
		Description: "Compartment for acme",
	}).Return(compartment(), nil)

	c, err := svc.CreateCompartment(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "cmp-1", c.ID)
	client.AssertExpectations(t)
}

func TestCreateGroup_ScopedToTenancy(t *testing.T) {
	client := new(MockIdentityClient)
	svc := NewService(client, zap.NewNop(), nil, Config{})

	client.On("CreateGroup", mock.Anything, &identity.CreateGroupRequest{
		ParentID:    tenancyID,
		Name:        "group_acme",
		Description: "Group for acme",
	}).Return(group(), nil)

	g, err := svc.CreateGroup(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "grp-1", g.ID)
	client.AssertExpectations(t)
}

func TestCreatePolicy_UsesCompartmentAsScopeAndNamesInStatement(t *testing.T) {
	client := new(MockIdentityClient)
	svc := NewService(client, zap.NewNop(), nil, Config{})

	client.On("CreatePolicy", mock.Anything, &identity.CreatePolicyRequest{
		ParentID:    "cmp-1",
		Name:        "policy_acme",
		Description: "Policy for acme",
		Statements:  []string{"Allow group group_acme to manage all-resources in compartment customer_acme"},
	}).Return(policy(), nil)

	p, err := svc.CreatePolicy(context.Background(), "cmp-1", "grp-unused", "acme")
	require.NoError(t, err)
	assert.Equal(t, "pol-1", p.ID)
	client.AssertExpectations(t)
}

func TestCreate_ProviderErrorCarriesServiceMetadata(t *testing.T) {
	client := new(MockIdentityClient)
	svc := NewService(client, zap.NewNop(), nil, Config{})

	client.On("CreateGroup", mock.Anything, mock.Anything).Return(nil,
		identity.NewServiceError("oci", "InvalidParameter", "name already in use", 409, "opc-9", nil))

	_, err := svc.CreateGroup(context.Background(), "acme")
	require.Error(t, err)
	assert.True(t, services.IsProviderError(err))
	assert.Equal(t, "failed to create group: InvalidParameter: name already in use", err.Error())

	details := services.GetErrorDetails(err)
	assert.Equal(t, "group", details[services.DetailStage])
	assert.Equal(t, 409, details[services.DetailStatusCode])
	assert.Equal(t, "InvalidParameter", details[services.DetailServiceCode])
	assert.Equal(t, "opc-9", details[services.DetailOpcRequestID])
}

func TestProvision_Sequential(t *testing.T) {
	t.Run("creates compartment, group, policy in order", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{})

		client.On("CreateCompartment", mock.Anything, mock.Anything).Return(compartment(), nil)
		client.On("CreateGroup", mock.Anything, mock.Anything).Return(group(), nil)
		client.On("CreatePolicy", mock.Anything, mock.MatchedBy(func(req *identity.CreatePolicyRequest) bool {
			return req.ParentID == "cmp-1"
		})).Return(policy(), nil)

		result, err := svc.Provision(context.Background(), "acme")
		require.NoError(t, err)
		assert.Equal(t, []string{"compartment", "group", "policy"}, client.calls)
		assert.Equal(t, "cmp-1", result.Compartment.ID)
		assert.Equal(t, "grp-1", result.Group.ID)
		assert.Equal(t, "pol-1", result.Policy.ID)
		client.AssertExpectations(t)
	})

	t.Run("compartment failure stops the sequence", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{})

		client.On("CreateCompartment", mock.Anything, mock.Anything).Return(nil, errors.New("NotAuthenticated"))

		result, err := svc.Provision(context.Background(), "acme")
		require.Error(t, err)
		stage, ok := services.GetStage(err)
		require.True(t, ok)
		assert.Equal(t, models.StageCompartment, stage)
		assert.Nil(t, result.Compartment)
		assert.Equal(t, []string{"compartment"}, client.calls)
		client.AssertNotCalled(t, "CreateGroup", mock.Anything, mock.Anything)
		client.AssertNotCalled(t, "CreatePolicy", mock.Anything, mock.Anything)
	})

	t.Run("group failure keeps the compartment and skips policy", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{})

		client.On("CreateCompartment", mock.Anything, mock.Anything).Return(compartment(), nil)
		client.On("CreateGroup", mock.Anything, mock.Anything).Return(nil, errors.New("LimitExceeded"))

		result, err := svc.Provision(context.Background(), "acme")
		require.Error(t, err)
		stage, _ := services.GetStage(err)
		assert.Equal(t, models.StageGroup, stage)
		assert.Equal(t, "cmp-1", services.GetErrorDetails(err)[services.DetailCompartmentID])
		require.NotNil(t, result.Compartment)
		assert.Equal(t, "cmp-1", result.Compartment.ID)
		assert.Equal(t, []string{"compartment", "group"}, client.calls)
		client.AssertNotCalled(t, "CreatePolicy", mock.Anything, mock.Anything)
	})

	t.Run("policy failure keeps compartment and group", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{})

		client.On("CreateCompartment", mock.Anything, mock.Anything).Return(compartment(), nil)
		client.On("CreateGroup", mock.Anything, mock.Anything).Return(group(), nil)
		client.On("CreatePolicy", mock.Anything, mock.Anything).Return(nil, errors.New("InvalidParameter"))

		result, err := svc.Provision(context.Background(), "acme")
		require.Error(t, err)
		stage, _ := services.GetStage(err)
		assert.Equal(t, models.StagePolicy, stage)
		assert.NotNil(t, result.Compartment)
		assert.NotNil(t, result.Group)
		assert.Nil(t, result.Policy)
		details := services.GetErrorDetails(err)
		assert.Equal(t, "cmp-1", details[services.DetailCompartmentID])
		assert.Equal(t, "grp-1", details[services.DetailGroupID])
	})
}

func TestProvision_Parallel(t *testing.T) {
	t.Run("policy waits for compartment", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{Parallel: true})

		client.On("CreateCompartment", mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { time.Sleep(20 * time.Millisecond) }).
			Return(compartment(), nil)
		client.On("CreateGroup", mock.Anything, mock.Anything).Return(group(), nil)
		client.On("CreatePolicy", mock.Anything, mock.MatchedBy(func(req *identity.CreatePolicyRequest) bool {
			return req.ParentID == "cmp-1"
		})).Return(policy(), nil)

		result, err := svc.Provision(context.Background(), "acme")
		require.NoError(t, err)
		require.Len(t, client.calls, 3)
		assert.Equal(t, "policy", client.calls[2])
		assert.ElementsMatch(t, []string{"compartment", "group"}, client.calls[:2])
		assert.Equal(t, "pol-1", result.Policy.ID)
	})

	t.Run("group failure prevents policy", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{Parallel: true})

		client.On("CreateCompartment", mock.Anything, mock.Anything).Return(compartment(), nil)
		client.On("CreateGroup", mock.Anything, mock.Anything).Return(nil, errors.New("Conflict"))

		result, err := svc.Provision(context.Background(), "acme")
		require.Error(t, err)
		stage, _ := services.GetStage(err)
		assert.Equal(t, models.StageGroup, stage)
		assert.NotNil(t, result.Compartment)
		client.AssertNotCalled(t, "CreatePolicy", mock.Anything, mock.Anything)
	})

	t.Run("compartment failure is reported even when group succeeds", func(t *testing.T) {
		client := new(MockIdentityClient)
		svc := NewService(client, zap.NewNop(), nil, Config{Parallel: true})

		client.On("CreateCompartment", mock.Anything, mock.Anything).Return(nil, errors.New("Conflict"))
		client.On("CreateGroup", mock.Anything, mock.Anything).Return(group(), nil)

		result, err := svc.Provision(context.Background(), "acme")
		require.Error(t, err)
		stage, _ := services.GetStage(err)
		assert.Equal(t, models.StageCompartment, stage)
		assert.Equal(t, "grp-1", services.GetErrorDetails(err)[services.DetailGroupID])
		assert.NotNil(t, result.Group)
		client.AssertNotCalled(t, "CreatePolicy", mock.Anything, mock.Anything)
	})
}

func TestCallTimeout(t *testing.T) {
	client := new(MockIdentityClient)
	svc := NewService(client, zap.NewNop(), nil, Config{CallTimeout: 50 * time.Millisecond})

	client.On("CreateCompartment", mock.MatchedBy(func(ctx context.Context) bool {
		deadline, ok := ctx.Deadline()
		return ok && time.Until(deadline) <= 50*time.Millisecond
	}), mock.Anything).Return(compartment(), nil)

	_, err := svc.CreateCompartment(context.Background(), "acme")
	require.NoError(t, err)
	client.AssertExpectations(t)
}

// recordingMetrics captures provisioning observations
type recordingMetrics struct {
	mu     sync.Mutex
	stages []models.Stage
	ok     []bool
}

func (r *recordingMetrics) ObserveProvisioningCall(stage models.Stage, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
	r.ok = append(r.ok, success)
}

func TestMetricsRecorded(t *testing.T) {
	client := new(MockIdentityClient)
	metrics := &recordingMetrics{}
	svc := NewService(client, zap.NewNop(), metrics, Config{})

	client.On("CreateCompartment", mock.Anything, mock.Anything).Return(compartment(), nil)
	client.On("CreateGroup", mock.Anything, mock.Anything).Return(nil, errors.New("boom"))

	_, err := svc.Provision(context.Background(), "acme")
	require.Error(t, err)
	assert.Equal(t, []models.Stage{models.StageCompartment, models.StageGroup}, metrics.stages)
	assert.Equal(t, []bool{true, false}, metrics.ok)
}
