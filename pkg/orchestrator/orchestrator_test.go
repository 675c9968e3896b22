package orchestrator

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
	"github.com/platinummonkey/grantor/pkg/retry"
	"github.com/platinummonkey/grantor/pkg/rollback"
)

const (
	testAppID      = "app-00000000"
	testDevAccount = "111111111111"
	testQAAccount  = "222222222222"
)

// fakeResolver serves canned template specs.
type fakeResolver struct {
	templates map[string]platform.PermissionSetSpec
}

func (r *fakeResolver) Resolve(name string, overrides *grant.CustomPermissionSpec) (platform.PermissionSetSpec, error) {
	spec, ok := r.templates[name]
	if !ok {
		return platform.PermissionSetSpec{}, fmt.Errorf("permission template not found: %s", name)
	}
	if overrides != nil {
		if len(overrides.ManagedPolicyARNs) > 0 {
			spec.ManagedPolicyARNs = overrides.ManagedPolicyARNs
		}
		if overrides.InlinePolicyDocument != "" {
			spec.InlinePolicyDocument = overrides.InlinePolicyDocument
		}
		if overrides.SessionDuration != "" {
			spec.SessionDuration = overrides.SessionDuration
		}
	}
	return spec, nil
}

type testEnv struct {
	orch     *Orchestrator
	identity *identity.Fake
	platform *platform.Fake
	history  *history.MemoryStore
	states   *MemoryStateStore
	metrics  *observability.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.SyncedByDefault = true
	historyStore := history.NewMemoryStore()
	states := NewMemoryStateStore()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	resolver := &fakeResolver{templates: map[string]platform.PermissionSetSpec{
		"readonly": {
			Description:       "Read-only access",
			ManagedPolicyARNs: []string{"arn:aws:iam::aws:policy/ReadOnlyAccess"},
			SessionDuration:   "PT4H",
		},
	}}

	orch := New(Deps{
		Identity:  identityFake,
		Platform:  platformFake,
		Templates: resolver,
		History:   historyStore,
		States:    states,
		Logger:    logger,
		Metrics:   metrics,
	}, Config{
		EnterpriseAppID: testAppID,
		EnvironmentAccounts: map[grant.Environment]string{
			grant.EnvironmentDev: testDevAccount,
			grant.EnvironmentQA:  testQAAccount,
		},
		ProvisioningTimeout:      100 * time.Millisecond,
		ProvisioningPollInterval: time.Millisecond,
		SyncPollInterval:         time.Millisecond,
	})
	orch.SetRetryConfig(retry.Config{MaxAttempts: 1})
	orch.SetRollbackConfig(rollback.Config{
		DeletionPollAttempts: 3,
		DeletionPollInterval: time.Millisecond,
	})
	orch.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }

	return &testEnv{
		orch:     orch,
		identity: identityFake,
		platform: platformFake,
		history:  historyStore,
		states:   states,
		metrics:  metrics,
	}
}

func validGrantRequest() grant.AccessGrantRequest {
	return grant.AccessGrantRequest{
		Environment:        grant.EnvironmentDev,
		TicketID:           "AG-0042",
		Owners:             []string{"a@x.com"},
		Members:            []string{"b@x.com"},
		PermissionTemplate: "readonly",
	}
}

// seedSyncedGroup creates a group directly and marks it synchronized.
func (e *testEnv) seedSyncedGroup(t *testing.T, name string) string {
	t.Helper()
	result, err := e.identity.CreateGroup(context.Background(), name, "")
	require.NoError(t, err)
	_, err = e.identity.AddOwner(context.Background(), result.GroupID, "owner@x.com")
	require.NoError(t, err)
	e.platform.SetSynced(result.GroupID, true)
	e.identity.Calls = nil
	return result.GroupID
}

// seedPermissionSet creates a permission set directly.
func (e *testEnv) seedPermissionSet(t *testing.T, name string) string {
	t.Helper()
	ps, err := e.platform.CreatePermissionSet(context.Background(), platform.PermissionSetSpec{Name: name})
	require.NoError(t, err)
	e.platform.Calls = nil
	return ps.Ref
}

func countCalls(calls []string, label string) int {
	var n int
	for _, c := range calls {
		if c == label {
			n++
		}
	}
	return n
}
