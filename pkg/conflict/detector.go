package conflict

import (
	"context"
	"fmt"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/platform"
)

// Proposed is one assignment candidate submitted for detection.
type Proposed struct {
	GroupID          string
	AccountID        string
	PermissionSetRef string
}

// Result is the outcome of a detection pass.
type Result struct {
	HasConflicts bool
	Conflicts    []grant.Conflict
}

// Detector checks proposed assignments against live platform state.
type Detector struct {
	platform platform.Client
}

// NewDetector creates a detector reading through the given platform client.
// The client must serve live reads; cached sync status would mask
// GROUP_NOT_SYNCED conflicts.
func NewDetector(platformClient platform.Client) *Detector {
	return &Detector{platform: platformClient}
}

// Detect runs all conflict rules over the proposed batch. Batch order is
// preserved in the conflict list; for duplicate triples within the batch
// the first occurrence wins and later occurrences are flagged. Any error
// from the platform reads aborts detection entirely.
func (d *Detector) Detect(ctx context.Context, proposed []Proposed) (Result, error) {
	existing, err := d.platform.ListAccountAssignments(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to list existing account assignments: %w", err)
	}

	existingKeys := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		existingKeys[key(a.GroupID, a.AccountID, a.PermissionSetRef)] = struct{}{}
	}

	var conflicts []grant.Conflict

	// Sync status is checked once per distinct group, in first-seen order.
	syncChecked := make(map[string]bool)
	seen := make(map[string]struct{}, len(proposed))

	for _, p := range proposed {
		if _, ok := existingKeys[key(p.GroupID, p.AccountID, p.PermissionSetRef)]; ok {
			conflicts = append(conflicts, grant.Conflict{
				Kind:             grant.ConflictDuplicateAssignment,
				GroupID:          p.GroupID,
				AccountID:        p.AccountID,
				PermissionSetRef: p.PermissionSetRef,
				Message:          fmt.Sprintf("assignment already exists for group %s on account %s", p.GroupID, p.AccountID),
			})
		}

		synced, checked := syncChecked[p.GroupID]
		if !checked {
			status, err := d.platform.CheckGroupSynchronizationStatus(ctx, p.GroupID)
			if err != nil {
				return Result{}, fmt.Errorf("failed to check synchronization status for group %s: %w", p.GroupID, err)
			}
			synced = status.IsSynced
			syncChecked[p.GroupID] = synced
		}
		if !synced {
			conflicts = append(conflicts, grant.Conflict{
				Kind:             grant.ConflictGroupNotSynced,
				GroupID:          p.GroupID,
				AccountID:        p.AccountID,
				PermissionSetRef: p.PermissionSetRef,
				Message:          fmt.Sprintf("group %s has not synchronized into the platform identity store", p.GroupID),
			})
		}

		k := key(p.GroupID, p.AccountID, p.PermissionSetRef)
		if _, dup := seen[k]; dup {
			conflicts = append(conflicts, grant.Conflict{
				Kind:             grant.ConflictDuplicateAssignment,
				GroupID:          p.GroupID,
				AccountID:        p.AccountID,
				PermissionSetRef: p.PermissionSetRef,
				Message:          fmt.Sprintf("duplicate in batch: group %s on account %s", p.GroupID, p.AccountID),
			})
			continue
		}
		seen[k] = struct{}{}
	}

	return Result{HasConflicts: len(conflicts) > 0, Conflicts: conflicts}, nil
}

func key(groupID, accountID, permissionSetRef string) string {
	return groupID + "|" + accountID + "|" + permissionSetRef
}
