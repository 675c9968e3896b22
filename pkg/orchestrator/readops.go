package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/platform"
)

// RollbackOperation replays the retained workflow state's compensations for
// a COMPLETED operation and transitions the stored record to ROLLED_BACK.
// Operations still in progress, already failed, or already rolled back are
// rejected.
func (o *Orchestrator) RollbackOperation(ctx context.Context, operationID string) error {
	op, err := o.history.GetOperation(ctx, operationID)
	if err != nil {
		if errors.Is(err, history.ErrOperationNotFound) {
			return grant.NewOperationError(grant.ErrCodeOperationNotFound, "",
				fmt.Sprintf("operation %s not found", operationID))
		}
		return fmt.Errorf("failed to load operation %s: %w", operationID, err)
	}
	if op.Status != grant.OperationCompleted {
		return grant.NewOperationError(grant.ErrCodeOperationNotRollbackable, "",
			fmt.Sprintf("operation %s has status %s, only COMPLETED operations can be rolled back", operationID, op.Status))
	}

	state, ok := o.states.Get(operationID)
	if !ok {
		return grant.NewOperationError(grant.ErrCodeOperationNotRollbackable, "",
			fmt.Sprintf("workflow state for operation %s is no longer retained", operationID))
	}

	o.logger.WithField("operation_id", operationID).
		Infof("Rolling back %d registered actions", len(state.RollbackActions))
	o.runRollback(ctx, state)

	now := time.Now().UTC()
	op.Status = grant.OperationRolledBack
	op.CompletedAt = &now
	op.Errors = state.Errors
	if err := o.history.UpdateOperation(ctx, op); err != nil {
		return fmt.Errorf("failed to persist rolled back operation %s: %w", operationID, err)
	}
	if o.metrics != nil {
		o.metrics.AssignmentsActive.Sub(float64(activeAssignments(op)))
	}
	o.states.Delete(operationID)
	return nil
}

// ListOperations returns operation records from the history store, most
// recent first.
func (o *Orchestrator) ListOperations(ctx context.Context, filter history.ListFilter) ([]*grant.AssignmentOperation, error) {
	return o.history.ListOperations(ctx, filter)
}

// GetOperationStatus returns one operation record.
func (o *Orchestrator) GetOperationStatus(ctx context.Context, operationID string) (*grant.AssignmentOperation, error) {
	op, err := o.history.GetOperation(ctx, operationID)
	if err != nil {
		if errors.Is(err, history.ErrOperationNotFound) {
			return nil, grant.NewOperationError(grant.ErrCodeOperationNotFound, "",
				fmt.Sprintf("operation %s not found", operationID))
		}
		return nil, err
	}
	return op, nil
}

// GrantFilter narrows ListAccessGrants results.
type GrantFilter struct {
	// Environment restricts results to one environment when set.
	Environment grant.Environment
}

// AccessGrantSummary is one listed grant group.
type AccessGrantSummary struct {
	GroupName   string            `json:"group_name"`
	GroupID     string            `json:"group_id"`
	Environment grant.Environment `json:"environment"`
	TicketID    string            `json:"ticket_id"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ListAccessGrants lists directory groups carrying the derived grant name
// pattern. Groups whose names do not parse are skipped.
func (o *Orchestrator) ListAccessGrants(ctx context.Context, filter GrantFilter) ([]AccessGrantSummary, error) {
	prefix := grant.GroupNamePrefix + "-"
	if filter.Environment != "" {
		if !filter.Environment.Valid() {
			return nil, fmt.Errorf("unknown environment %q", filter.Environment)
		}
		prefix += string(filter.Environment) + "-"
	}

	groups, err := o.identity.ListGroups(ctx, identity.GroupFilter{NamePrefix: prefix})
	if err != nil {
		return nil, fmt.Errorf("failed to list grant groups: %w", err)
	}

	out := make([]AccessGrantSummary, 0, len(groups))
	for _, g := range groups {
		env, ticket, err := grant.ParseGroupName(g.DisplayName)
		if err != nil {
			continue
		}
		out = append(out, AccessGrantSummary{
			GroupName:   g.DisplayName,
			GroupID:     g.ID,
			Environment: env,
			TicketID:    ticket,
			CreatedAt:   g.CreatedAt,
		})
	}
	if o.metrics != nil && filter.Environment == "" {
		o.metrics.GrantsActive.Set(float64(len(out)))
	}
	return out, nil
}

// ValidateAccessGrant re-derives environment and ticket from a grant group
// name and cross-checks the group, its synchronization, the permission set
// and the account assignment in one combined report. A missing upstream
// fact flips its flag; only a malformed name or a read failure is an error.
func (o *Orchestrator) ValidateAccessGrant(ctx context.Context, groupName string) (*grant.GrantValidationReport, error) {
	env, ticket, err := grant.ParseGroupName(groupName)
	if err != nil {
		return nil, grant.NewOperationError(grant.ErrCodeRequestValidationFailed, "", err.Error())
	}

	report := &grant.GrantValidationReport{
		GroupName:   groupName,
		Environment: env,
		TicketID:    ticket,
		Details:     make(map[string]string),
	}

	group, err := o.identity.GetGroupByName(ctx, groupName)
	if errors.Is(err, identity.ErrGroupNotFound) {
		report.Details["group"] = "not found"
		return report, nil
	} else if err != nil {
		return nil, fmt.Errorf("failed to look up group %s: %w", groupName, err)
	}

	validation, err := o.identity.ValidateGroupDetailed(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to validate group %s: %w", group.ID, err)
	}
	report.GroupValid = validation.Exists
	if len(validation.Problems) > 0 {
		report.Details["group_problems"] = strings.Join(validation.Problems, "; ")
	}

	syncStatus, err := o.validation.CheckGroupSynchronizationStatus(ctx, group.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to check synchronization for %s: %w", group.ID, err)
	}
	report.GroupSynced = syncStatus.IsSynced

	permissionSetRef, err := o.findPermissionSetByName(ctx, groupName)
	if err != nil {
		return nil, err
	}
	report.PermissionSetOK = permissionSetRef != ""
	if permissionSetRef == "" {
		report.Details["permission_set"] = "not found"
		return report, nil
	}

	accountID, ok := o.config.EnvironmentAccounts[env]
	if !ok {
		report.Details["account"] = fmt.Sprintf("no account configured for environment %s", env)
		return report, nil
	}

	assignment, err := o.platform.GetAssignment(ctx, group.ID, accountID, permissionSetRef)
	switch {
	case errors.Is(err, platform.ErrAssignmentNotFound):
		report.Details["assignment"] = "not found"
	case err != nil:
		return nil, fmt.Errorf("failed to read assignment for %s: %w", groupName, err)
	default:
		report.AssignmentActive = assignment.State == platform.AssignmentProvisioned ||
			assignment.State == platform.AssignmentSucceeded
		if !report.AssignmentActive {
			report.Details["assignment_state"] = string(assignment.State)
		}
	}

	return report, nil
}

// findPermissionSetByName resolves a grant's permission set ref; sets are
// named after their grant group.
func (o *Orchestrator) findPermissionSetByName(ctx context.Context, name string) (string, error) {
	sets, err := o.platform.ListPermissionSets(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list permission sets: %w", err)
	}
	for _, ps := range sets {
		if ps.Name == name {
			return ps.Ref, nil
		}
	}
	return "", nil
}
