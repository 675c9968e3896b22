package orchestrator

import (
	"context"
	"io"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
)

func TestRollbackOperationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.orch.CreateAccessGrant(ctx, validGrantRequest())
	require.NoError(t, err)
	opID := result.Operation.ID
	require.Equal(t, 1, env.platform.AssignmentCount())

	require.NoError(t, env.orch.RollbackOperation(ctx, opID))

	// Everything the grant built is gone.
	assert.Equal(t, 0, env.platform.AssignmentCount())
	assert.Equal(t, 0, env.identity.GroupCount())
	sets, err := env.platform.ListPermissionSets(ctx)
	require.NoError(t, err)
	assert.Empty(t, sets)

	stored, err := env.orch.GetOperationStatus(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, grant.OperationRolledBack, stored.Status)

	// State is released, so a second rollback is rejected.
	_, ok := env.orch.GetWorkflowState(opID)
	assert.False(t, ok)
	err = env.orch.RollbackOperation(ctx, opID)
	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeOperationNotRollbackable, opErr.Code)
}

func TestAssignmentsActiveGaugeTracksLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.AssignmentsActive))

	result, err := env.orch.CreateAccessGrant(ctx, validGrantRequest())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.AssignmentsActive))

	require.NoError(t, env.orch.RollbackOperation(ctx, result.Operation.ID))
	assert.Equal(t, 0.0, testutil.ToFloat64(env.metrics.AssignmentsActive))
}

func TestRollbackOperationUnknownID(t *testing.T) {
	env := newTestEnv(t)

	err := env.orch.RollbackOperation(context.Background(), "does-not-exist")
	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeOperationNotFound, opErr.Code)
}

func TestRollbackOperationRejectsFailed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := validGrantRequest()
	req.TicketID = "AG-1"
	_, err := env.orch.CreateAccessGrant(ctx, req)
	require.Error(t, err)

	ops, err := env.orch.ListOperations(ctx, history.ListFilter{})
	require.NoError(t, err)
	require.Len(t, ops, 1)

	err = env.orch.RollbackOperation(ctx, ops[0].ID)
	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeOperationNotRollbackable, opErr.Code)
}

func TestListOperationsFilters(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.orch.CreateAccessGrant(ctx, validGrantRequest())
	require.NoError(t, err)

	bad := validGrantRequest()
	bad.TicketID = "AG-1"
	_, err = env.orch.CreateAccessGrant(ctx, bad)
	require.Error(t, err)

	all, err := env.orch.ListOperations(ctx, history.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := env.orch.ListOperations(ctx, history.ListFilter{Status: grant.OperationCompleted})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, grant.OperationCompleted, completed[0].Status)

	failed, err := env.orch.ListOperations(ctx, history.ListFilter{Status: grant.OperationFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, grant.OperationFailed, failed[0].Status)
}

func TestListAccessGrants(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedSyncedGroup(t, "CE-AWS-Dev-AG-0100")
	env.seedSyncedGroup(t, "CE-AWS-QA-AG-0200")
	// Matching prefix but not a valid grant name.
	env.seedSyncedGroup(t, "CE-AWS-Dev-Operators")
	// Unrelated group.
	env.seedSyncedGroup(t, "Engineering-All")

	all, err := env.orch.ListAccessGrants(ctx, GrantFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)

	names := []string{all[0].GroupName, all[1].GroupName}
	assert.Contains(t, names, "CE-AWS-Dev-AG-0100")
	assert.Contains(t, names, "CE-AWS-QA-AG-0200")

	devOnly, err := env.orch.ListAccessGrants(ctx, GrantFilter{Environment: grant.EnvironmentDev})
	require.NoError(t, err)
	require.Len(t, devOnly, 1)
	assert.Equal(t, "CE-AWS-Dev-AG-0100", devOnly[0].GroupName)
	assert.Equal(t, grant.EnvironmentDev, devOnly[0].Environment)
	assert.Equal(t, "AG-0100", devOnly[0].TicketID)

	_, err = env.orch.ListAccessGrants(ctx, GrantFilter{Environment: "Sandbox"})
	require.Error(t, err)
}

func TestValidateAccessGrantHealthy(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.orch.CreateAccessGrant(ctx, validGrantRequest())
	require.NoError(t, err)

	report, err := env.orch.ValidateAccessGrant(ctx, result.GroupName)
	require.NoError(t, err)

	assert.True(t, report.GroupValid)
	assert.True(t, report.GroupSynced)
	assert.True(t, report.PermissionSetOK)
	assert.True(t, report.AssignmentActive)
	assert.True(t, report.Healthy())
	assert.Equal(t, grant.EnvironmentDev, report.Environment)
	assert.Equal(t, "AG-0042", report.TicketID)
}

func TestValidateAccessGrantSyncFlagFlips(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.orch.CreateAccessGrant(ctx, validGrantRequest())
	require.NoError(t, err)
	groupID := result.Operation.Assignments[0].GroupID

	env.platform.SetSynced(groupID, false)

	report, err := env.orch.ValidateAccessGrant(ctx, result.GroupName)
	require.NoError(t, err)

	// Only the synchronization flag degrades; the rest stays intact.
	assert.True(t, report.GroupValid)
	assert.False(t, report.GroupSynced)
	assert.True(t, report.PermissionSetOK)
	assert.True(t, report.AssignmentActive)
	assert.False(t, report.Healthy())
}

func TestValidateAccessGrantReadsSyncThroughValidationClient(t *testing.T) {
	ctx := context.Background()

	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.SyncedByDefault = true
	cachedFake := platform.NewFake()

	orch := New(Deps{
		Identity:   identityFake,
		Platform:   platformFake,
		Templates:  &fakeResolver{},
		History:    history.NewMemoryStore(),
		Logger:     observability.NewLogger(observability.ErrorLevel, io.Discard),
		Validation: cachedFake,
	}, Config{
		EnterpriseAppID: testAppID,
		EnvironmentAccounts: map[grant.Environment]string{
			grant.EnvironmentDev: testDevAccount,
		},
	})

	identityFake.SeedGroup(identity.Group{ID: "g1", DisplayName: "CE-AWS-Dev-AG-0100"})
	_, err := platformFake.CreatePermissionSet(ctx, platform.PermissionSetSpec{Name: "CE-AWS-Dev-AG-0100"})
	require.NoError(t, err)

	// The live client reports the group synced; the validation client does
	// not. The report follows the validation client.
	report, err := orch.ValidateAccessGrant(ctx, "CE-AWS-Dev-AG-0100")
	require.NoError(t, err)
	assert.False(t, report.GroupSynced)

	cachedFake.SetSynced("g1", true)
	report, err = orch.ValidateAccessGrant(ctx, "CE-AWS-Dev-AG-0100")
	require.NoError(t, err)
	assert.True(t, report.GroupSynced)
}

func TestValidateAccessGrantThroughSyncStatusCache(t *testing.T) {
	ctx := context.Background()

	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.SetSynced("g1", true)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cache, err := platform.NewSyncStatusCache(platform.DefaultCacheConfig("redis://"+mr.Addr()), platformFake)
	require.NoError(t, err)
	t.Cleanup(func() { cache.Close() })

	orch := New(Deps{
		Identity:   identityFake,
		Platform:   platformFake,
		Templates:  &fakeResolver{},
		History:    history.NewMemoryStore(),
		Logger:     observability.NewLogger(observability.ErrorLevel, io.Discard),
		Validation: cache,
	}, Config{
		EnterpriseAppID: testAppID,
		EnvironmentAccounts: map[grant.Environment]string{
			grant.EnvironmentDev: testDevAccount,
		},
	})

	identityFake.SeedGroup(identity.Group{ID: "g1", DisplayName: "CE-AWS-Dev-AG-0100"})
	_, err = platformFake.CreatePermissionSet(ctx, platform.PermissionSetSpec{Name: "CE-AWS-Dev-AG-0100"})
	require.NoError(t, err)

	// First read goes live and populates the cache.
	report, err := orch.ValidateAccessGrant(ctx, "CE-AWS-Dev-AG-0100")
	require.NoError(t, err)
	assert.True(t, report.GroupSynced)

	// The platform flips, but the cached status is still served.
	platformFake.SetSynced("g1", false)
	report, err = orch.ValidateAccessGrant(ctx, "CE-AWS-Dev-AG-0100")
	require.NoError(t, err)
	assert.True(t, report.GroupSynced)

	// Invalidation forces the next read through to the platform.
	require.NoError(t, cache.Invalidate(ctx, "g1"))
	report, err = orch.ValidateAccessGrant(ctx, "CE-AWS-Dev-AG-0100")
	require.NoError(t, err)
	assert.False(t, report.GroupSynced)
}

func TestValidateAccessGrantMissingGroup(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.orch.ValidateAccessGrant(context.Background(), "CE-AWS-Dev-AG-0999")
	require.NoError(t, err)

	assert.False(t, report.GroupValid)
	assert.False(t, report.Healthy())
	assert.Equal(t, "not found", report.Details["group"])
}

func TestValidateAccessGrantMalformedName(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.ValidateAccessGrant(context.Background(), "CE-AWS-Dev-Operators")
	require.Error(t, err)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeRequestValidationFailed, opErr.Code)
}

func TestValidateAccessGrantMissingPermissionSet(t *testing.T) {
	env := newTestEnv(t)
	env.seedSyncedGroup(t, "CE-AWS-Dev-AG-0100")

	report, err := env.orch.ValidateAccessGrant(context.Background(), "CE-AWS-Dev-AG-0100")
	require.NoError(t, err)

	assert.True(t, report.GroupValid)
	assert.True(t, report.GroupSynced)
	assert.False(t, report.PermissionSetOK)
	assert.False(t, report.Healthy())
	assert.Equal(t, "not found", report.Details["permission_set"])
}

func TestGetOperationStatusUnknownID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orch.GetOperationStatus(context.Background(), "does-not-exist")
	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeOperationNotFound, opErr.Code)
}
