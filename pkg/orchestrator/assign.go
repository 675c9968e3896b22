package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/grantor/pkg/conflict"
	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
	"github.com/platinummonkey/grantor/pkg/rollback"
)

// AssignmentRequest attaches an existing identity group to an existing
// permission set on one account.
type AssignmentRequest struct {
	GroupID          string `json:"group_id"`
	AccountID        string `json:"account_id"`
	PermissionSetRef string `json:"permission_set_ref"`
}

func (r AssignmentRequest) validate() error {
	if r.GroupID == "" {
		return fmt.Errorf("group id is required")
	}
	if r.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if r.PermissionSetRef == "" {
		return fmt.Errorf("permission set reference is required")
	}
	return nil
}

// CreateAssignment runs the lightweight attach flow: validate the group,
// detect conflicts over the singleton batch, create the assignment and
// verify it. Any step failure rolls back whatever was registered and marks
// the assignment FAILED. The operation record is returned alongside the
// error so callers can surface the complete error list.
func (o *Orchestrator) CreateAssignment(ctx context.Context, req AssignmentRequest) (*grant.AssignmentOperation, error) {
	start := time.Now()
	op, state, err := o.newOperation(ctx, grant.OperationCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation: %w", err)
	}
	ctx = observability.WithOperationID(ctx, op.ID)

	fail := func(opErr grant.OperationError) (*grant.AssignmentOperation, error) {
		for i := range op.Assignments {
			op.Assignments[i].Status = grant.AssignmentStatusFailed
		}
		o.finalize(ctx, op, state, grant.OperationFailed, start)
		return op, opErr
	}

	// VALIDATION
	if err := req.validate(); err != nil {
		state.recordError(grant.NewOperationError(grant.ErrCodeRequestValidationFailed,
			string(PhaseValidation), err.Error()))
		return fail(state.Errors[len(state.Errors)-1])
	}
	state.complete()

	// AZURE_VALIDATION
	state.enter(PhaseAzureValidation)
	groupName, opErr := o.validateGroup(ctx, req.GroupID)
	if opErr != nil {
		state.recordError(*opErr)
		return fail(*opErr)
	}
	state.complete()

	// CONFLICT_CHECK: nothing has been mutated yet, so failure needs no
	// rollback.
	state.enter(PhaseConflictCheck)
	if opErr := o.checkConflicts(ctx, []conflict.Proposed{{
		GroupID:          req.GroupID,
		AccountID:        req.AccountID,
		PermissionSetRef: req.PermissionSetRef,
	}}); opErr != nil {
		state.recordError(*opErr)
		return fail(*opErr)
	}
	state.complete()

	op.Assignments = append(op.Assignments, grant.GroupAssignment{
		GroupID:          req.GroupID,
		GroupName:        groupName,
		AccountID:        req.AccountID,
		PermissionSetRef: req.PermissionSetRef,
		Status:           grant.AssignmentStatusPending,
		CreatedAt:        time.Now().UTC(),
	})

	// AWS_ASSIGNMENT
	state.enter(PhaseAwsAssignment)
	err = o.retry.Execute(ctx, "create account assignment", func(ctx context.Context) error {
		_, err := o.platform.AssignGroupToAccount(ctx, req.GroupID, req.AccountID, req.PermissionSetRef)
		return err
	})
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsAccountAssignmentFailed,
			string(PhaseAwsAssignment), err.Error()).
			WithContext("account_id", req.AccountID))
		return fail(opErr)
	}
	state.registerRollback(rollback.DeleteAssignment{
		GroupID:          req.GroupID,
		AccountID:        req.AccountID,
		PermissionSetRef: req.PermissionSetRef,
	})
	state.complete()

	// VERIFICATION
	state.enter(PhaseVerification)
	if opErr := o.verifyAssignment(ctx, req); opErr != nil {
		failed := o.failPhase(ctx, state, *opErr)
		return fail(failed)
	}
	state.complete()

	op.Assignments[0].Status = grant.AssignmentStatusActive
	o.finalize(ctx, op, state, grant.OperationCompleted, start)
	return op, nil
}

// validateGroup checks group existence and shape, returning its display
// name.
func (o *Orchestrator) validateGroup(ctx context.Context, groupID string) (string, *grant.OperationError) {
	validation, err := o.identity.ValidateGroupDetailed(ctx, groupID)
	if err != nil {
		opErr := grant.NewOperationError(grant.ErrCodeGroupValidationFailed,
			string(PhaseAzureValidation), fmt.Sprintf("group validation failed: %v", err)).
			WithContext("group_id", groupID)
		return "", &opErr
	}
	if !validation.Exists {
		opErr := grant.NewOperationError(grant.ErrCodeGroupValidationFailed,
			string(PhaseAzureValidation), fmt.Sprintf("group %s does not exist", groupID)).
			WithContext("group_id", groupID)
		return "", &opErr
	}
	return validation.DisplayName, nil
}

// checkConflicts runs the detector and converts its outcome into operation
// errors. Conflicts abort before any mutation.
func (o *Orchestrator) checkConflicts(ctx context.Context, proposed []conflict.Proposed) *grant.OperationError {
	result, err := o.detector.Detect(ctx, proposed)
	if err != nil {
		opErr := grant.NewOperationError(grant.ErrCodeConflictDetectionFailed,
			string(PhaseConflictCheck), err.Error())
		return &opErr
	}
	if !result.HasConflicts {
		return nil
	}

	if o.metrics != nil {
		for _, c := range result.Conflicts {
			o.metrics.ConflictsDetectedTotal.WithLabelValues(string(c.Kind)).Inc()
		}
	}

	messages := make([]string, len(result.Conflicts))
	for i, c := range result.Conflicts {
		messages[i] = fmt.Sprintf("%s: %s", c.Kind, c.Message)
	}
	opErr := grant.NewOperationError(grant.ErrCodeConflictsDetected, string(PhaseConflictCheck),
		strings.Join(messages, "; ")).
		WithContext("conflict_count", fmt.Sprintf("%d", len(result.Conflicts)))
	return &opErr
}

// verifyAssignment re-reads synchronization and assignment state after the
// platform call.
func (o *Orchestrator) verifyAssignment(ctx context.Context, req AssignmentRequest) *grant.OperationError {
	syncStatus, err := o.platform.CheckGroupSynchronizationStatus(ctx, req.GroupID)
	if err != nil {
		opErr := grant.NewOperationError(grant.ErrCodeAwsSyncVerificationFailed,
			string(PhaseVerification), fmt.Sprintf("synchronization check failed: %v", err))
		return &opErr
	}
	if !syncStatus.IsSynced {
		opErr := grant.NewOperationError(grant.ErrCodeAwsSyncVerificationFailed,
			string(PhaseVerification), fmt.Sprintf("group %s is not synchronized", req.GroupID))
		return &opErr
	}

	assignment, err := o.platform.GetAssignment(ctx, req.GroupID, req.AccountID, req.PermissionSetRef)
	if err != nil {
		opErr := grant.NewOperationError(grant.ErrCodeAwsAccountAssignmentFailed,
			string(PhaseVerification), fmt.Sprintf("assignment re-read failed: %v", err))
		return &opErr
	}
	if assignment.State != platform.AssignmentProvisioned && assignment.State != platform.AssignmentSucceeded {
		opErr := grant.NewOperationError(grant.ErrCodeAwsAccountAssignmentFailed,
			string(PhaseVerification), fmt.Sprintf("assignment in unexpected state %s", assignment.State))
		return &opErr
	}
	return nil
}

// BulkAssign validates all groups and detects conflicts over the whole
// batch up front, then executes items through a bounded worker pool.
// Per-item failures are recorded, not fatal: the operation is COMPLETED
// when at least one item succeeded. Successful items still register
// compensations, but no automatic rollback happens on partial failure.
func (o *Orchestrator) BulkAssign(ctx context.Context, reqs []AssignmentRequest) (*grant.AssignmentOperation, error) {
	start := time.Now()
	op, state, err := o.newOperation(ctx, grant.OperationCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation: %w", err)
	}
	ctx = observability.WithOperationID(ctx, op.ID)
	log := o.logger.WithField("operation_id", op.ID)

	failBatch := func(opErr grant.OperationError) (*grant.AssignmentOperation, error) {
		state.recordError(opErr)
		for i := range op.Assignments {
			op.Assignments[i].Status = grant.AssignmentStatusFailed
		}
		o.finalize(ctx, op, state, grant.OperationFailed, start)
		return op, opErr
	}

	// VALIDATION: the whole batch is checked before anything executes; a
	// batch-level failure carries BULK_ASSIGNMENT_FAILED.
	if len(reqs) == 0 {
		return failBatch(grant.NewOperationError(grant.ErrCodeBulkAssignmentFailed,
			string(PhaseValidation), "empty assignment batch"))
	}
	for i, req := range reqs {
		if err := req.validate(); err != nil {
			return failBatch(grant.NewOperationError(grant.ErrCodeBulkAssignmentFailed,
				string(PhaseValidation), fmt.Sprintf("item %d: %v", i, err)))
		}
	}
	state.complete()

	// AZURE_VALIDATION: all groups up front.
	state.enter(PhaseAzureValidation)
	groupNames := make(map[string]string)
	for _, req := range reqs {
		if _, ok := groupNames[req.GroupID]; ok {
			continue
		}
		name, opErr := o.validateGroup(ctx, req.GroupID)
		if opErr != nil {
			state.recordError(*opErr)
			return failBatch(grant.NewOperationError(grant.ErrCodeBulkAssignmentFailed,
				string(PhaseAzureValidation), fmt.Sprintf("group validation failed for %s", req.GroupID)))
		}
		groupNames[req.GroupID] = name
	}
	state.complete()

	// CONFLICT_CHECK over the entire batch, cross-batch duplicates
	// included.
	state.enter(PhaseConflictCheck)
	proposed := make([]conflict.Proposed, len(reqs))
	for i, req := range reqs {
		proposed[i] = conflict.Proposed{
			GroupID:          req.GroupID,
			AccountID:        req.AccountID,
			PermissionSetRef: req.PermissionSetRef,
		}
	}
	if opErr := o.checkConflicts(ctx, proposed); opErr != nil {
		state.recordError(*opErr)
		return failBatch(grant.NewOperationError(grant.ErrCodeBulkAssignmentFailed,
			string(PhaseConflictCheck), "batch aborted before execution"))
	}
	state.complete()

	for _, req := range reqs {
		op.Assignments = append(op.Assignments, grant.GroupAssignment{
			GroupID:          req.GroupID,
			GroupName:        groupNames[req.GroupID],
			AccountID:        req.AccountID,
			PermissionSetRef: req.PermissionSetRef,
			Status:           grant.AssignmentStatusPending,
			CreatedAt:        time.Now().UTC(),
		})
	}

	// AWS_ASSIGNMENT: bounded pool, results slotted by input index so the
	// aggregate record stays deterministic regardless of scheduling.
	state.enter(PhaseAwsAssignment)
	itemErrs := make([]error, len(reqs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.config.BulkWorkers)
	for i, req := range reqs {
		i, req := i, req
		group.Go(func() error {
			itemErrs[i] = o.retry.Execute(groupCtx, fmt.Sprintf("assign item %d", i), func(ctx context.Context) error {
				_, err := o.platform.AssignGroupToAccount(ctx, req.GroupID, req.AccountID, req.PermissionSetRef)
				return err
			})
			return nil
		})
	}
	// Workers never return errors; failures live in itemErrs.
	_ = group.Wait()

	var succeeded int
	for i, req := range reqs {
		if itemErrs[i] != nil {
			op.Assignments[i].Status = grant.AssignmentStatusFailed
			state.recordError(grant.NewOperationError(grant.ErrCodeAssignmentFailed,
				string(PhaseAwsAssignment), itemErrs[i].Error()).
				WithContext("item", fmt.Sprintf("%d", i)).
				WithContext("group_id", req.GroupID))
			continue
		}
		op.Assignments[i].Status = grant.AssignmentStatusActive
		state.registerRollback(rollback.DeleteAssignment{
			GroupID:          req.GroupID,
			AccountID:        req.AccountID,
			PermissionSetRef: req.PermissionSetRef,
		})
		succeeded++
	}
	state.complete()

	if succeeded == 0 {
		log.Warnf("Bulk assignment produced no successes out of %d items", len(reqs))
		o.finalize(ctx, op, state, grant.OperationFailed, start)
		return op, fmt.Errorf("all %d assignments failed", len(reqs))
	}

	log.Infof("Bulk assignment completed: %d/%d items succeeded", succeeded, len(reqs))
	o.finalize(ctx, op, state, grant.OperationCompleted, start)
	return op, nil
}
