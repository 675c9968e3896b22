package rollback

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
)

func newTestEngine(identityFake *identity.Fake, platformFake *platform.Fake) *Engine {
	e := NewEngine(identityFake, platformFake, Config{
		DeletionPollAttempts: 3,
		DeletionPollInterval: time.Millisecond,
	}, observability.NewLogger(observability.ErrorLevel, io.Discard))
	e.sleep = func(ctx context.Context, d time.Duration) error { return ctx.Err() }
	return e
}

func seedGroup(t *testing.T, f *identity.Fake, name string) string {
	t.Helper()
	res, err := f.CreateGroup(context.Background(), name, "")
	require.NoError(t, err)
	f.Calls = nil
	return res.GroupID
}

func TestRollbackReverseOrder(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	groupID := seedGroup(t, identityFake, "CE-AWS-Dev-AG-100")

	ps, err := platformFake.CreatePermissionSet(context.Background(), platform.PermissionSetSpec{Name: "readonly"})
	require.NoError(t, err)
	platformFake.Calls = nil

	engine := newTestEngine(identityFake, platformFake)

	// Registration order mirrors the forward workflow: group first, then
	// permission set. The engine must undo the permission set first.
	actions := []Action{
		DeleteIdentityGroup{GroupID: groupID},
		DeletePermissionSet{Ref: ps.Ref},
	}

	result := engine.Rollback(context.Background(), actions)
	assert.False(t, result.Partial())
	assert.Equal(t, 2, result.Executed)
	assert.Equal(t, []string{"DeletePermissionSet"}, platformFake.Calls)
	assert.Equal(t, []string{"DeleteGroup"}, identityFake.Calls)
	assert.Zero(t, identityFake.GroupCount())
}

func TestRollbackAlreadyAbsentIsSuccess(t *testing.T) {
	engine := newTestEngine(identity.NewFake(), platform.NewFake())

	result := engine.Rollback(context.Background(), []Action{
		DeleteIdentityGroup{GroupID: "gone"},
		DeletePermissionSet{Ref: "ps-gone"},
	})

	assert.False(t, result.Partial())
	assert.Empty(t, result.Warnings)
	assert.Equal(t, 2, result.Executed)
}

func TestRollbackStillReferencedIsWarning(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	groupID := seedGroup(t, identityFake, "CE-AWS-QA-AG-200")

	ps, err := platformFake.CreatePermissionSet(context.Background(), platform.PermissionSetSpec{Name: "admin"})
	require.NoError(t, err)
	platformFake.SeedAssignment(platform.Assignment{
		GroupID:          groupID,
		AccountID:        "111111111111",
		PermissionSetRef: ps.Ref,
		State:            platform.AssignmentProvisioned,
	})

	engine := newTestEngine(identityFake, platformFake)

	result := engine.Rollback(context.Background(), []Action{DeletePermissionSet{Ref: ps.Ref}})
	assert.False(t, result.Partial())
	require.Len(t, result.Warnings, 1)
	assert.Contains(t, result.Warnings[0], string(KindDeletePermissionSet))
}

func TestRollbackCollectsFailuresAndContinues(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	groupID := seedGroup(t, identityFake, "CE-AWS-Prod-AG-300")
	identityFake.FailOn["DeleteGroup"] = errors.New("directory unavailable")

	ps, err := platformFake.CreatePermissionSet(context.Background(), platform.PermissionSetSpec{Name: "readonly"})
	require.NoError(t, err)

	engine := newTestEngine(identityFake, platformFake)

	result := engine.Rollback(context.Background(), []Action{
		DeletePermissionSet{Ref: ps.Ref},
		DeleteIdentityGroup{GroupID: groupID},
	})

	assert.True(t, result.Partial())
	require.Len(t, result.Failures, 1)
	assert.Equal(t, KindDeleteIdentityGroup, result.Failures[0].Kind)
	assert.Contains(t, result.Failures[0].Message, "directory unavailable")
	// The earlier-registered permission set deletion still ran.
	assert.Contains(t, platformFake.Calls, "DeletePermissionSet")
}

func TestRollbackDeleteAssignmentPollsToCompletion(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.DeletionPolls = 2
	platformFake.SeedAssignment(platform.Assignment{
		GroupID:          "g1",
		AccountID:        "111111111111",
		PermissionSetRef: "ps-1",
	})

	engine := newTestEngine(identityFake, platformFake)

	result := engine.Rollback(context.Background(), []Action{
		DeleteAssignment{GroupID: "g1", AccountID: "111111111111", PermissionSetRef: "ps-1"},
	})

	assert.False(t, result.Partial())
	assert.Zero(t, platformFake.AssignmentCount())

	var polls int
	for _, call := range platformFake.Calls {
		if call == "GetAssignmentDeletionStatus" {
			polls++
		}
	}
	assert.Equal(t, 3, polls)
}

func TestRollbackDeleteAssignmentTimesOut(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.DeletionPolls = 10 // never completes within 3 polls
	platformFake.SeedAssignment(platform.Assignment{
		GroupID:          "g1",
		AccountID:        "111111111111",
		PermissionSetRef: "ps-1",
	})

	engine := newTestEngine(identityFake, platformFake)

	result := engine.Rollback(context.Background(), []Action{
		DeleteAssignment{GroupID: "g1", AccountID: "111111111111", PermissionSetRef: "ps-1"},
	})

	assert.True(t, result.Partial())
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Message, "still in progress")
}

func TestRollbackDeleteAssignmentFailedStatus(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.DeletionPolls = 10
	platformFake.SeedAssignment(platform.Assignment{
		GroupID:          "g1",
		AccountID:        "111111111111",
		PermissionSetRef: "ps-1",
	})

	engine := newTestEngine(identityFake, platformFake)
	engine.sleep = func(ctx context.Context, d time.Duration) error {
		// Flip the pending deletion to FAILED before the next poll.
		for _, id := range platformFake.PendingDeletions() {
			platformFake.FailDeletion(id, "conflicting provisioning operation")
		}
		return nil
	}

	result := engine.Rollback(context.Background(), []Action{
		DeleteAssignment{GroupID: "g1", AccountID: "111111111111", PermissionSetRef: "ps-1"},
	})

	assert.True(t, result.Partial())
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Message, "conflicting provisioning operation")
}

func TestRollbackRestoreAssignmentIdempotent(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()
	platformFake.SeedAssignment(platform.Assignment{
		GroupID:          "g1",
		AccountID:        "111111111111",
		PermissionSetRef: "ps-1",
	})

	engine := newTestEngine(identityFake, platformFake)

	result := engine.Rollback(context.Background(), []Action{
		RestoreAssignment{GroupID: "g1", AccountID: "111111111111", PermissionSetRef: "ps-1"},
	})

	assert.False(t, result.Partial())
	assert.Equal(t, 1, platformFake.AssignmentCount())
}

func TestRollbackCanceledContextRecordsRemaining(t *testing.T) {
	identityFake := identity.NewFake()
	platformFake := platform.NewFake()

	engine := newTestEngine(identityFake, platformFake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := engine.Rollback(ctx, []Action{
		DeleteIdentityGroup{GroupID: "g1"},
		DeletePermissionSet{Ref: "ps-1"},
	})

	assert.True(t, result.Partial())
	assert.Len(t, result.Failures, 2)
	assert.Zero(t, result.Executed)
	assert.Empty(t, identityFake.Calls)
	assert.Empty(t, platformFake.Calls)
}
