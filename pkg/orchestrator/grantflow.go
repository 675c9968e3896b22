package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
	"github.com/platinummonkey/grantor/pkg/rollback"
)

// CreateAccessGrant drives the full grant creation machine: derive and
// reserve the group name, create the identity group with owners and
// members, bind and provision it through the enterprise application, wait
// for platform synchronization, materialize the permission set, create the
// account assignment, and validate end to end. Any phase failure rolls back
// every registered compensation and re-raises the phase error.
func (o *Orchestrator) CreateAccessGrant(ctx context.Context, req grant.AccessGrantRequest) (*grant.AccessGrantResult, error) {
	start := time.Now()
	op, state, err := o.newOperation(ctx, grant.OperationCreate)
	if err != nil {
		return nil, fmt.Errorf("failed to open operation: %w", err)
	}
	ctx = observability.WithOperationID(ctx, op.ID)
	log := o.logger.WithField("operation_id", op.ID)

	groupName := req.GroupName()

	// VALIDATION: everything here is rejected before any remote mutation,
	// so a failed request never registers a rollback action.
	done := o.phaseTimer(PhaseValidation)
	source, accountID, opErr := o.validateGrantRequest(ctx, req, groupName)
	done()
	if opErr != nil {
		state.recordError(*opErr)
		o.finalize(ctx, op, state, grant.OperationFailed, start)
		return nil, *opErr
	}
	state.complete()

	log.WithField("group_name", groupName).Info("Starting access grant workflow")

	groupID, opErr := o.createGroupPhase(ctx, state, req, groupName)
	if opErr == nil {
		opErr = o.membersPhase(ctx, state, groupID, req)
	}
	if opErr == nil {
		opErr = o.enterpriseAppPhase(ctx, state, groupID)
	}
	if opErr == nil {
		opErr = o.provisioningPhase(ctx, state, groupID)
	}
	if opErr == nil {
		opErr = o.syncVerificationPhase(ctx, state, groupID)
	}
	var permissionSet *platform.PermissionSet
	if opErr == nil {
		permissionSet, opErr = o.permissionSetPhase(ctx, state, req, source, groupName)
	}
	if opErr == nil {
		opErr = o.assignmentPhase(ctx, state, op, groupID, groupName, accountID, permissionSet.Ref)
	}
	var results grant.ValidationResults
	if opErr == nil {
		results, opErr = o.endToEndValidationPhase(ctx, state, groupID, accountID, permissionSet.Ref)
	}

	if opErr != nil {
		for i := range op.Assignments {
			op.Assignments[i].Status = grant.AssignmentStatusFailed
		}
		o.finalize(ctx, op, state, grant.OperationFailed, start)
		return nil, *opErr
	}

	for i := range op.Assignments {
		op.Assignments[i].Status = grant.AssignmentStatusActive
	}
	o.finalize(ctx, op, state, grant.OperationCompleted, start)
	log.WithField("group_name", groupName).Info("Access grant workflow completed")

	return &grant.AccessGrantResult{
		GroupName:         groupName,
		Operation:         op,
		ValidationResults: results,
	}, nil
}

// validateGrantRequest performs all pre-flight checks, including that the
// derived group name is not already in use.
func (o *Orchestrator) validateGrantRequest(ctx context.Context, req grant.AccessGrantRequest, groupName string) (grant.PermissionSetSource, string, *grant.OperationError) {
	fail := func(err grant.OperationError) (grant.PermissionSetSource, string, *grant.OperationError) {
		return nil, "", &err
	}

	if !req.Environment.Valid() {
		return fail(grant.NewOperationError(grant.ErrCodeRequestValidationFailed, string(PhaseValidation),
			fmt.Sprintf("unknown environment %q", req.Environment)))
	}
	if !grant.TicketIDPattern.MatchString(req.TicketID) {
		return fail(grant.NewOperationError(grant.ErrCodeRequestValidationFailed, string(PhaseValidation),
			fmt.Sprintf("ticket id %q does not match AG-<3..4 digits>", req.TicketID)).
			WithContext("ticket_id", req.TicketID))
	}
	if len(req.Owners) == 0 {
		return fail(grant.NewOperationError(grant.ErrCodeRequestValidationFailed, string(PhaseValidation),
			"at least one owner is required"))
	}

	source, err := grant.ResolvePermissionSetSource(req)
	if err != nil {
		return fail(grant.NewOperationError(grant.ErrCodeRequestValidationFailed, string(PhaseValidation), err.Error()))
	}

	accountID, ok := o.config.EnvironmentAccounts[req.Environment]
	if !ok {
		return fail(grant.NewOperationError(grant.ErrCodeRequestValidationFailed, string(PhaseValidation),
			fmt.Sprintf("no account configured for environment %s", req.Environment)))
	}

	_, err = o.identity.GetGroupByName(ctx, groupName)
	switch {
	case err == nil:
		return fail(grant.NewOperationError(grant.ErrCodeGroupValidationFailed, string(PhaseValidation),
			fmt.Sprintf("group name %s is already in use", groupName)).
			WithContext("group_name", groupName))
	case errors.Is(err, identity.ErrGroupNotFound):
		// Name is free.
	default:
		return fail(grant.NewOperationError(grant.ErrCodeGroupValidationFailed, string(PhaseValidation),
			fmt.Sprintf("failed to check group name availability: %v", err)))
	}

	return source, accountID, nil
}

func (o *Orchestrator) createGroupPhase(ctx context.Context, state *WorkflowState, req grant.AccessGrantRequest, groupName string) (string, *grant.OperationError) {
	state.enter(PhaseAzureGroupCreation)
	defer o.phaseTimer(PhaseAzureGroupCreation)()

	description := req.Description
	if description == "" {
		description = fmt.Sprintf("Access grant %s for %s", req.TicketID, req.Environment)
	}

	var groupID string
	err := o.retry.Execute(ctx, "create group", func(ctx context.Context) error {
		result, err := o.identity.CreateGroup(ctx, groupName, description)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("group creation rejected: %s", strings.Join(result.Errors, "; "))
		}
		groupID = result.GroupID
		return nil
	})
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAzureGroupCreationFailed,
			string(PhaseAzureGroupCreation), err.Error()).WithContext("group_name", groupName))
		return "", &opErr
	}

	state.registerRollback(rollback.DeleteIdentityGroup{GroupID: groupID})
	state.complete()
	return groupID, nil
}

// membersPhase adds all owners, then all members. The first failed
// principal aborts the phase.
func (o *Orchestrator) membersPhase(ctx context.Context, state *WorkflowState, groupID string, req grant.AccessGrantRequest) *grant.OperationError {
	state.enter(PhaseAzureGroupMembers)
	defer o.phaseTimer(PhaseAzureGroupMembers)()

	addPrincipal := func(role, principal string, call func(ctx context.Context, groupID, principal string) (identity.MembershipResult, error)) error {
		return o.retry.Execute(ctx, fmt.Sprintf("add %s %s", role, principal), func(ctx context.Context) error {
			result, err := call(ctx, groupID, principal)
			if err != nil {
				return err
			}
			if !result.Success {
				return fmt.Errorf("%s %s rejected: %s", role, principal, strings.Join(result.Errors, "; "))
			}
			return nil
		})
	}

	for _, owner := range req.Owners {
		if err := addPrincipal("owner", owner, o.identity.AddOwner); err != nil {
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAzureGroupMembersFailed,
				string(PhaseAzureGroupMembers), err.Error()).WithContext("principal", owner))
			return &opErr
		}
	}
	for _, member := range req.Members {
		if err := addPrincipal("member", member, o.identity.AddMember); err != nil {
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAzureGroupMembersFailed,
				string(PhaseAzureGroupMembers), err.Error()).WithContext("principal", member))
			return &opErr
		}
	}

	state.complete()
	return nil
}

func (o *Orchestrator) enterpriseAppPhase(ctx context.Context, state *WorkflowState, groupID string) *grant.OperationError {
	state.enter(PhaseEnterpriseAppConfig)
	defer o.phaseTimer(PhaseEnterpriseAppConfig)()

	var assignmentID string
	err := o.retry.Execute(ctx, "bind enterprise app", func(ctx context.Context) error {
		result, err := o.identity.BindEnterpriseApp(ctx, groupID, o.config.EnterpriseAppID)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("enterprise app binding rejected: %s", strings.Join(result.Errors, "; "))
		}
		assignmentID = result.AssignmentID
		return nil
	})
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeEnterpriseAppConfigFailed,
			string(PhaseEnterpriseAppConfig), err.Error()))
		return &opErr
	}

	// The binding id makes rollback remove exactly this assignment.
	state.registerRollback(rollback.RemoveEnterpriseAppAssignment{
		GroupID:      groupID,
		AssignmentID: assignmentID,
		AppID:        o.config.EnterpriseAppID,
	})
	state.complete()
	return nil
}

// provisioningPhase triggers provisioning and polls within a wall-clock
// budget. A Failed provisioning state is PROVISIONING_FAILED; exhausting
// the budget is PROVISIONING_TIMEOUT.
func (o *Orchestrator) provisioningPhase(ctx context.Context, state *WorkflowState, groupID string) *grant.OperationError {
	state.enter(PhaseProvisioning)
	defer o.phaseTimer(PhaseProvisioning)()

	appID := o.config.EnterpriseAppID
	err := o.retry.Execute(ctx, "trigger provisioning", func(ctx context.Context) error {
		result, err := o.identity.TriggerProvisioning(ctx, groupID, appID)
		if err != nil {
			return err
		}
		if !result.Success {
			return fmt.Errorf("provisioning trigger rejected: %s", strings.Join(result.Errors, "; "))
		}
		return nil
	})
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeProvisioningFailed,
			string(PhaseProvisioning), err.Error()))
		return &opErr
	}

	deadline := time.Now().Add(o.config.ProvisioningTimeout)
	for {
		status, err := o.identity.GetProvisioningStatus(ctx, groupID, appID)
		if err != nil {
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeProvisioningFailed,
				string(PhaseProvisioning), fmt.Sprintf("provisioning status poll failed: %v", err)))
			return &opErr
		}
		switch status.State {
		case identity.ProvisioningProvisioned:
			state.complete()
			return nil
		case identity.ProvisioningFailed:
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeProvisioningFailed,
				string(PhaseProvisioning), fmt.Sprintf("provisioning failed: %s", strings.Join(status.Errors, "; "))))
			return &opErr
		}

		if time.Now().After(deadline) {
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeProvisioningTimeout,
				string(PhaseProvisioning), fmt.Sprintf("group not provisioned within %s", o.config.ProvisioningTimeout)))
			return &opErr
		}
		if err := o.sleep(ctx, o.config.ProvisioningPollInterval); err != nil {
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeProvisioningFailed,
				string(PhaseProvisioning), fmt.Sprintf("provisioning polling canceled: %v", err)))
			return &opErr
		}
	}
}

// syncVerificationPhase polls the platform's view of the group a bounded
// number of times.
func (o *Orchestrator) syncVerificationPhase(ctx context.Context, state *WorkflowState, groupID string) *grant.OperationError {
	state.enter(PhaseAwsSyncVerification)
	defer o.phaseTimer(PhaseAwsSyncVerification)()

	for attempt := 1; attempt <= o.config.SyncPollAttempts; attempt++ {
		status, err := o.platform.CheckGroupSynchronizationStatus(ctx, groupID)
		if err != nil {
			opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsSyncVerificationFailed,
				string(PhaseAwsSyncVerification), fmt.Sprintf("synchronization check failed: %v", err)))
			return &opErr
		}
		if status.IsSynced {
			state.complete()
			return nil
		}
		if attempt < o.config.SyncPollAttempts {
			if err := o.sleep(ctx, o.config.SyncPollInterval); err != nil {
				opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsSyncVerificationFailed,
					string(PhaseAwsSyncVerification), fmt.Sprintf("synchronization polling canceled: %v", err)))
				return &opErr
			}
		}
	}

	opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsSyncTimeout,
		string(PhaseAwsSyncVerification),
		fmt.Sprintf("group not synchronized after %d polls", o.config.SyncPollAttempts)).
		WithContext("group_id", groupID))
	return &opErr
}

// permissionSetPhase materializes the permission set from the resolved
// source. The set is named after the grant's group so each grant owns its
// own set.
func (o *Orchestrator) permissionSetPhase(ctx context.Context, state *WorkflowState, req grant.AccessGrantRequest, source grant.PermissionSetSource, groupName string) (*platform.PermissionSet, *grant.OperationError) {
	state.enter(PhaseAwsPermissionSetCreation)
	defer o.phaseTimer(PhaseAwsPermissionSetCreation)()

	spec, err := o.resolveSpec(source)
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsPermissionSetCreateFailed,
			string(PhaseAwsPermissionSetCreation), err.Error()))
		return nil, &opErr
	}
	spec.Name = groupName
	if spec.Description == "" {
		spec.Description = req.Description
	}

	var permissionSet *platform.PermissionSet
	err = o.retry.Execute(ctx, "create permission set", func(ctx context.Context) error {
		ps, err := o.platform.CreatePermissionSet(ctx, spec)
		if err != nil {
			return err
		}
		permissionSet = ps
		return nil
	})
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsPermissionSetCreateFailed,
			string(PhaseAwsPermissionSetCreation), err.Error()).WithContext("permission_set", spec.Name))
		return nil, &opErr
	}

	state.registerRollback(rollback.DeletePermissionSet{Ref: permissionSet.Ref})
	state.complete()
	return permissionSet, nil
}

// resolveSpec turns the tagged permission source into a concrete spec.
func (o *Orchestrator) resolveSpec(source grant.PermissionSetSource) (platform.PermissionSetSpec, error) {
	switch s := source.(type) {
	case grant.FromTemplate:
		return o.templates.Resolve(s.Name, s.Overrides)
	case grant.Custom:
		spec := platform.PermissionSetSpec{
			ManagedPolicyARNs:    s.Spec.ManagedPolicyARNs,
			InlinePolicyDocument: s.Spec.InlinePolicyDocument,
			SessionDuration:      s.Spec.SessionDuration,
		}
		if spec.SessionDuration == "" {
			spec.SessionDuration = "PT1H"
		}
		return spec, nil
	default:
		return platform.PermissionSetSpec{}, fmt.Errorf("unknown permission set source %T", source)
	}
}

func (o *Orchestrator) assignmentPhase(ctx context.Context, state *WorkflowState, op *grant.AssignmentOperation, groupID, groupName, accountID, permissionSetRef string) *grant.OperationError {
	state.enter(PhaseAwsAccountAssignment)
	defer o.phaseTimer(PhaseAwsAccountAssignment)()

	err := o.retry.Execute(ctx, "create account assignment", func(ctx context.Context) error {
		_, err := o.platform.AssignGroupToAccount(ctx, groupID, accountID, permissionSetRef)
		if errors.Is(err, platform.ErrAssignmentExists) {
			// A retried create may observe its own earlier success.
			return nil
		}
		return err
	})
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeAwsAccountAssignmentFailed,
			string(PhaseAwsAccountAssignment), err.Error()).
			WithContext("account_id", accountID).
			WithContext("permission_set_ref", permissionSetRef))
		return &opErr
	}

	op.Assignments = append(op.Assignments, grant.GroupAssignment{
		GroupID:          groupID,
		GroupName:        groupName,
		AccountID:        accountID,
		PermissionSetRef: permissionSetRef,
		Status:           grant.AssignmentStatusPending,
		CreatedAt:        time.Now().UTC(),
	})
	state.registerRollback(rollback.DeleteAssignment{
		GroupID:          groupID,
		AccountID:        accountID,
		PermissionSetRef: permissionSetRef,
	})
	state.complete()
	return nil
}

// endToEndValidationPhase re-reads synchronization, permission set and
// assignment state. UsersCanAccess is the AND of the other three flags; a
// false result fails the phase.
func (o *Orchestrator) endToEndValidationPhase(ctx context.Context, state *WorkflowState, groupID, accountID, permissionSetRef string) (grant.ValidationResults, *grant.OperationError) {
	state.enter(PhaseEndToEndValidation)
	defer o.phaseTimer(PhaseEndToEndValidation)()

	results, err := o.validateLive(ctx, groupID, accountID, permissionSetRef)
	if err != nil {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeEndToEndValidationFailed,
			string(PhaseEndToEndValidation), err.Error()))
		return grant.ValidationResults{}, &opErr
	}
	if !results.UsersCanAccess {
		opErr := o.failPhase(ctx, state, grant.NewOperationError(grant.ErrCodeEndToEndValidationFailed,
			string(PhaseEndToEndValidation),
			fmt.Sprintf("validation flags: synced=%t permission_set=%t assignment=%t",
				results.GroupSynced, results.PermissionSetCreated, results.AssignmentActive)))
		return results, &opErr
	}

	state.complete()
	return results, nil
}

// validateLive computes the four validation flags from live reads.
func (o *Orchestrator) validateLive(ctx context.Context, groupID, accountID, permissionSetRef string) (grant.ValidationResults, error) {
	var results grant.ValidationResults

	syncStatus, err := o.platform.CheckGroupSynchronizationStatus(ctx, groupID)
	if err != nil {
		return results, fmt.Errorf("synchronization re-check failed: %w", err)
	}
	results.GroupSynced = syncStatus.IsSynced

	_, err = o.platform.GetPermissionSet(ctx, permissionSetRef)
	switch {
	case err == nil:
		results.PermissionSetCreated = true
	case errors.Is(err, platform.ErrPermissionSetNotFound):
		// Flag stays false.
	default:
		return results, fmt.Errorf("permission set re-check failed: %w", err)
	}

	assignment, err := o.platform.GetAssignment(ctx, groupID, accountID, permissionSetRef)
	switch {
	case err == nil:
		results.AssignmentActive = assignment.State == platform.AssignmentProvisioned ||
			assignment.State == platform.AssignmentSucceeded
	case errors.Is(err, platform.ErrAssignmentNotFound):
		// Flag stays false.
	default:
		return results, fmt.Errorf("assignment re-check failed: %w", err)
	}

	results.UsersCanAccess = results.GroupSynced && results.PermissionSetCreated && results.AssignmentActive
	return results, nil
}
