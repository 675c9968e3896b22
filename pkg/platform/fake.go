package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is an in-memory Client for tests and local mode. Failures can be
// scripted per call label via FailOn; sync status is controlled per group
// id via SetSynced.
type Fake struct {
	mu sync.Mutex

	permissionSets map[string]*PermissionSet
	assignments    map[string]*Assignment // keyed by triple
	deletions      map[string]*DeletionStatus
	synced         map[string]SyncStatus

	// FailOn maps a call label to the error that call should return.
	FailOn map[string]error

	// FailAssignFor fails AssignGroupToAccount for specific triples only,
	// keyed by group|account|permissionSet.
	FailAssignFor map[string]error

	// SyncedByDefault reports groups without an explicit SetSynced entry
	// as synchronized.
	SyncedByDefault bool

	// DeletionPolls is the number of GetAssignmentDeletionStatus calls
	// that report IN_PROGRESS before a deletion completes.
	DeletionPolls int

	deletionCalls map[string]int

	// Calls records call labels in invocation order.
	Calls []string
}

// NewFake creates an empty fake platform client.
func NewFake() *Fake {
	return &Fake{
		permissionSets: make(map[string]*PermissionSet),
		assignments:    make(map[string]*Assignment),
		deletions:      make(map[string]*DeletionStatus),
		synced:         make(map[string]SyncStatus),
		FailOn:         make(map[string]error),
		FailAssignFor:  make(map[string]error),
		deletionCalls:  make(map[string]int),
	}
}

// FailAssignment scripts a failure for one assignment triple.
func (f *Fake) FailAssignment(groupID, accountID, permissionSetRef string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FailAssignFor[tripleKey(groupID, accountID, permissionSetRef)] = err
}

func tripleKey(groupID, accountID, permissionSetRef string) string {
	return groupID + "|" + accountID + "|" + permissionSetRef
}

// SetSynced marks a group's synchronization status.
func (f *Fake) SetSynced(groupID string, synced bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	f.synced[groupID] = SyncStatus{IsSynced: synced, RemoteGroupID: "rg-" + groupID, LastSyncTime: &now}
}

// SeedAssignment inserts an assignment directly.
func (f *Fake) SeedAssignment(a Assignment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := a
	f.assignments[tripleKey(a.GroupID, a.AccountID, a.PermissionSetRef)] = &cp
}

// AssignmentCount returns the number of assignments currently held.
func (f *Fake) AssignmentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.assignments)
}

func (f *Fake) record(label string) error {
	f.Calls = append(f.Calls, label)
	if err := f.FailOn[label]; err != nil {
		return err
	}
	return nil
}

// CreatePermissionSet implements Client.
func (f *Fake) CreatePermissionSet(ctx context.Context, spec PermissionSetSpec) (*PermissionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreatePermissionSet"); err != nil {
		return nil, err
	}
	ps := &PermissionSet{
		Ref:                  "ps-" + uuid.New().String(),
		Name:                 spec.Name,
		Description:          spec.Description,
		ManagedPolicyARNs:    spec.ManagedPolicyARNs,
		InlinePolicyDocument: spec.InlinePolicyDocument,
		SessionDuration:      spec.SessionDuration,
		CreatedAt:            time.Now().UTC(),
	}
	f.permissionSets[ps.Ref] = ps
	return ps, nil
}

// DeletePermissionSet implements Client.
func (f *Fake) DeletePermissionSet(ctx context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeletePermissionSet"); err != nil {
		return err
	}
	if _, ok := f.permissionSets[ref]; !ok {
		return ErrPermissionSetNotFound
	}
	for _, a := range f.assignments {
		if a.PermissionSetRef == ref {
			return fmt.Errorf("%w: %s", ErrPermissionSetInUse, ref)
		}
	}
	delete(f.permissionSets, ref)
	return nil
}

// GetPermissionSet implements Client.
func (f *Fake) GetPermissionSet(ctx context.Context, ref string) (*PermissionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetPermissionSet"); err != nil {
		return nil, err
	}
	ps, ok := f.permissionSets[ref]
	if !ok {
		return nil, ErrPermissionSetNotFound
	}
	cp := *ps
	return &cp, nil
}

// ListPermissionSets implements Client.
func (f *Fake) ListPermissionSets(ctx context.Context) ([]PermissionSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListPermissionSets"); err != nil {
		return nil, err
	}
	out := make([]PermissionSet, 0, len(f.permissionSets))
	for _, ps := range f.permissionSets {
		out = append(out, *ps)
	}
	return out, nil
}

// AssignGroupToAccount implements Client.
func (f *Fake) AssignGroupToAccount(ctx context.Context, groupID, accountID, permissionSetRef string) (*Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AssignGroupToAccount"); err != nil {
		return nil, err
	}
	key := tripleKey(groupID, accountID, permissionSetRef)
	if err := f.FailAssignFor[key]; err != nil {
		return nil, err
	}
	if _, ok := f.assignments[key]; ok {
		return nil, ErrAssignmentExists
	}
	a := &Assignment{
		GroupID:          groupID,
		AccountID:        accountID,
		PermissionSetRef: permissionSetRef,
		State:            AssignmentProvisioned,
		CreatedAt:        time.Now().UTC(),
	}
	f.assignments[key] = a
	cp := *a
	return &cp, nil
}

// GetAssignment implements Client.
func (f *Fake) GetAssignment(ctx context.Context, groupID, accountID, permissionSetRef string) (*Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetAssignment"); err != nil {
		return nil, err
	}
	a, ok := f.assignments[tripleKey(groupID, accountID, permissionSetRef)]
	if !ok {
		return nil, ErrAssignmentNotFound
	}
	cp := *a
	return &cp, nil
}

// DeleteAccountAssignment implements Client.
func (f *Fake) DeleteAccountAssignment(ctx context.Context, groupID, accountID, permissionSetRef string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteAccountAssignment"); err != nil {
		return "", err
	}
	key := tripleKey(groupID, accountID, permissionSetRef)
	if _, ok := f.assignments[key]; !ok {
		return "", ErrAssignmentNotFound
	}
	delete(f.assignments, key)
	requestID := "del-" + uuid.New().String()
	f.deletions[requestID] = &DeletionStatus{State: AssignmentInProgress}
	return requestID, nil
}

// GetAssignmentDeletionStatus implements Client. The state advances from
// IN_PROGRESS to SUCCEEDED after DeletionPolls calls.
func (f *Fake) GetAssignmentDeletionStatus(ctx context.Context, requestID string) (DeletionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetAssignmentDeletionStatus"); err != nil {
		return DeletionStatus{}, err
	}
	d, ok := f.deletions[requestID]
	if !ok {
		return DeletionStatus{}, ErrDeletionRequestNotFound
	}
	if d.State == AssignmentInProgress {
		f.deletionCalls[requestID]++
		if f.deletionCalls[requestID] > f.DeletionPolls {
			d.State = AssignmentSucceeded
		}
	}
	return *d, nil
}

// PendingDeletions returns the request ids of deletions still in progress.
func (f *Fake) PendingDeletions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for id, d := range f.deletions {
		if d.State == AssignmentInProgress {
			out = append(out, id)
		}
	}
	return out
}

// FailDeletion marks a deletion request as failed with the given reason.
func (f *Fake) FailDeletion(requestID, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if d, ok := f.deletions[requestID]; ok {
		d.State = AssignmentFailed
		d.FailureReason = reason
	}
}

// CheckGroupSynchronizationStatus implements Client.
func (f *Fake) CheckGroupSynchronizationStatus(ctx context.Context, groupID string) (SyncStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CheckGroupSynchronizationStatus"); err != nil {
		return SyncStatus{}, err
	}
	if st, ok := f.synced[groupID]; ok {
		return st, nil
	}
	if f.SyncedByDefault {
		now := time.Now().UTC()
		return SyncStatus{IsSynced: true, RemoteGroupID: "rg-" + groupID, LastSyncTime: &now}, nil
	}
	return SyncStatus{IsSynced: false}, nil
}

// ListAccountAssignments implements Client.
func (f *Fake) ListAccountAssignments(ctx context.Context) ([]Assignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListAccountAssignments"); err != nil {
		return nil, err
	}
	out := make([]Assignment, 0, len(f.assignments))
	for _, a := range f.assignments {
		out = append(out, *a)
	}
	return out, nil
}

var _ Client = (*Fake)(nil)
