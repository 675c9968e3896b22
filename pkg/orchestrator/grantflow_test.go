package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
)

func TestCreateAccessGrantSuccess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	result, err := env.orch.CreateAccessGrant(ctx, validGrantRequest())
	require.NoError(t, err)
	require.NotNil(t, result)

	assert.Equal(t, "CE-AWS-Dev-AG-0042", result.GroupName)
	assert.True(t, result.ValidationResults.GroupSynced)
	assert.True(t, result.ValidationResults.PermissionSetCreated)
	assert.True(t, result.ValidationResults.AssignmentActive)
	assert.True(t, result.ValidationResults.UsersCanAccess)

	op := result.Operation
	assert.Equal(t, grant.OperationCompleted, op.Status)
	assert.Empty(t, op.Errors)
	require.NotNil(t, op.CompletedAt)
	require.Len(t, op.Assignments, 1)
	assert.Equal(t, grant.AssignmentStatusActive, op.Assignments[0].Status)
	assert.Equal(t, testDevAccount, op.Assignments[0].AccountID)
	assert.Equal(t, "CE-AWS-Dev-AG-0042", op.Assignments[0].GroupName)

	// The permission set is named after the grant group.
	sets, err := env.platform.ListPermissionSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, "CE-AWS-Dev-AG-0042", sets[0].Name)
	assert.Equal(t, "PT4H", sets[0].SessionDuration)

	// The record is readable back from history.
	stored, err := env.orch.GetOperationStatus(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, grant.OperationCompleted, stored.Status)

	// Workflow state is retained for explicit rollback, one compensation
	// per mutating phase.
	state, ok := env.orch.GetWorkflowState(op.ID)
	require.True(t, ok)
	assert.Len(t, state.RollbackActions, 4)
	assert.Empty(t, state.Errors)
}

func TestCreateAccessGrantCustomPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	req := validGrantRequest()
	req.PermissionTemplate = ""
	req.CustomPermissions = &grant.CustomPermissionSpec{
		ManagedPolicyARNs: []string{"arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"},
	}

	result, err := env.orch.CreateAccessGrant(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, grant.OperationCompleted, result.Operation.Status)

	sets, err := env.platform.ListPermissionSets(ctx)
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"arn:aws:iam::aws:policy/AmazonS3ReadOnlyAccess"}, sets[0].ManagedPolicyARNs)
	assert.Equal(t, "PT1H", sets[0].SessionDuration)
}

func TestCreateAccessGrantValidationRejections(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*grant.AccessGrantRequest)
		wantCode grant.ErrorCode
	}{
		{
			name:     "malformed ticket",
			mutate:   func(r *grant.AccessGrantRequest) { r.TicketID = "AG-12" },
			wantCode: grant.ErrCodeRequestValidationFailed,
		},
		{
			name:     "unknown environment",
			mutate:   func(r *grant.AccessGrantRequest) { r.Environment = "Sandbox" },
			wantCode: grant.ErrCodeRequestValidationFailed,
		},
		{
			name:     "no owners",
			mutate:   func(r *grant.AccessGrantRequest) { r.Owners = nil },
			wantCode: grant.ErrCodeRequestValidationFailed,
		},
		{
			name: "no permission source",
			mutate: func(r *grant.AccessGrantRequest) {
				r.PermissionTemplate = ""
				r.CustomPermissions = nil
			},
			wantCode: grant.ErrCodeRequestValidationFailed,
		},
		{
			name: "invalid session duration",
			mutate: func(r *grant.AccessGrantRequest) {
				r.CustomPermissions = &grant.CustomPermissionSpec{SessionDuration: "4h"}
			},
			wantCode: grant.ErrCodeRequestValidationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := validGrantRequest()
			tt.mutate(&req)

			result, err := env.orch.CreateAccessGrant(context.Background(), req)
			require.Error(t, err)
			assert.Nil(t, result)

			var opErr grant.OperationError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.wantCode, opErr.Code)

			// Rejected before any remote mutation.
			assert.Equal(t, 0, env.identity.GroupCount())
			assert.NotContains(t, env.identity.Calls, "CreateGroup")

			ops, listErr := env.orch.ListOperations(context.Background(), history.ListFilter{})
			require.NoError(t, listErr)
			require.Len(t, ops, 1)
			assert.Equal(t, grant.OperationFailed, ops[0].Status)
			assert.Empty(t, ops[0].Assignments)

			state, ok := env.orch.GetWorkflowState(ops[0].ID)
			require.True(t, ok)
			assert.Empty(t, state.RollbackActions)
		})
	}
}

func TestCreateAccessGrantNameAlreadyInUse(t *testing.T) {
	env := newTestEnv(t)
	env.seedSyncedGroup(t, "CE-AWS-Dev-AG-0042")

	result, err := env.orch.CreateAccessGrant(context.Background(), validGrantRequest())
	require.Error(t, err)
	assert.Nil(t, result)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeGroupValidationFailed, opErr.Code)
	assert.Contains(t, opErr.Message, "already in use")

	// The pre-existing group is untouched.
	assert.Equal(t, 1, env.identity.GroupCount())
	assert.NotContains(t, env.identity.Calls, "DeleteGroup")
}

func TestCreateAccessGrantMemberFailureRollsBack(t *testing.T) {
	env := newTestEnv(t)
	env.identity.FailOn["AddMember"] = errors.New("directory throttled")

	result, err := env.orch.CreateAccessGrant(context.Background(), validGrantRequest())
	require.Error(t, err)
	assert.Nil(t, result)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeAzureGroupMembersFailed, opErr.Code)

	// The created group was compensated away.
	assert.Equal(t, 0, env.identity.GroupCount())
	assert.Contains(t, env.identity.Calls, "DeleteGroup")
}

func TestCreateAccessGrantAssignmentFailureRollsBackInReverse(t *testing.T) {
	env := newTestEnv(t)
	env.platform.FailOn["AssignGroupToAccount"] = errors.New("access denied")

	result, err := env.orch.CreateAccessGrant(context.Background(), validGrantRequest())
	require.Error(t, err)
	assert.Nil(t, result)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeAwsAccountAssignmentFailed, opErr.Code)

	// Everything built before the failure is gone again.
	sets, listErr := env.platform.ListPermissionSets(context.Background())
	require.NoError(t, listErr)
	assert.Empty(t, sets)
	assert.Equal(t, 0, env.identity.GroupCount())

	// Compensations run in reverse registration order: the enterprise app
	// binding is removed before the group is deleted.
	assert.Contains(t, env.platform.Calls, "DeletePermissionSet")
	removeIdx := indexOf(env.identity.Calls, "RemoveAppRoleAssignment")
	deleteIdx := indexOf(env.identity.Calls, "DeleteGroup")
	require.GreaterOrEqual(t, removeIdx, 0)
	require.GreaterOrEqual(t, deleteIdx, 0)
	assert.Less(t, removeIdx, deleteIdx)
}

func TestCreateAccessGrantProvisioningTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.identity.ProvisioningPolls = 1 << 20
	env.orch.config.ProvisioningTimeout = -time.Millisecond

	_, err := env.orch.CreateAccessGrant(context.Background(), validGrantRequest())
	require.Error(t, err)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeProvisioningTimeout, opErr.Code)
	assert.Equal(t, 0, env.identity.GroupCount())
}

func TestCreateAccessGrantSyncTimeout(t *testing.T) {
	env := newTestEnv(t)
	env.platform.SyncedByDefault = false
	env.orch.config.SyncPollAttempts = 3

	_, err := env.orch.CreateAccessGrant(context.Background(), validGrantRequest())
	require.Error(t, err)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeAwsSyncTimeout, opErr.Code)
	assert.Equal(t, 3, countCalls(env.platform.Calls, "CheckGroupSynchronizationStatus"))
	assert.Equal(t, 0, env.identity.GroupCount())
}

func TestCreateAccessGrantRollbackFailureDoesNotMask(t *testing.T) {
	env := newTestEnv(t)
	env.platform.FailOn["AssignGroupToAccount"] = errors.New("access denied")
	env.identity.FailOn["DeleteGroup"] = errors.New("directory unavailable")

	_, err := env.orch.CreateAccessGrant(context.Background(), validGrantRequest())
	require.Error(t, err)

	// The triggering phase error is what comes back.
	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeAwsAccountAssignmentFailed, opErr.Code)

	// The partial rollback is still on the record.
	ops, listErr := env.orch.ListOperations(context.Background(), history.ListFilter{})
	require.NoError(t, listErr)
	require.Len(t, ops, 1)
	var codes []grant.ErrorCode
	for _, e := range ops[0].Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, grant.ErrCodeAwsAccountAssignmentFailed)
	assert.Contains(t, codes, grant.ErrCodeRollbackPartialFailure)
}

func TestCreateAccessGrantUnknownTemplate(t *testing.T) {
	env := newTestEnv(t)
	req := validGrantRequest()
	req.PermissionTemplate = "nonexistent"

	_, err := env.orch.CreateAccessGrant(context.Background(), req)
	require.Error(t, err)

	var opErr grant.OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, grant.ErrCodeAwsPermissionSetCreateFailed, opErr.Code)

	// Template resolution fails after the group exists, so the group is
	// rolled back.
	assert.Equal(t, 0, env.identity.GroupCount())
}

func indexOf(calls []string, label string) int {
	for i, c := range calls {
		if c == label {
			return i
		}
	}
	return -1
}
