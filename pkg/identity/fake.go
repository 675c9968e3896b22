package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Fake is an in-memory Client for tests and local mode. Failures can be
// scripted per call label via FailOn, and every mutating call is recorded
// in Calls for assertion.
type Fake struct {
	mu sync.Mutex

	groups      map[string]*Group // by id
	bindings    map[string]string // assignment id -> group id
	provisioned map[string]ProvisioningState

	// FailOn maps a call label (e.g. "CreateGroup", "AddMember") to the
	// error that call should return.
	FailOn map[string]error

	// ProvisioningPolls is the number of GetProvisioningStatus calls that
	// report Provisioning before Provisioned is reached.
	ProvisioningPolls int

	provisionCalls map[string]int

	// Calls records call labels in invocation order.
	Calls []string
}

// NewFake creates an empty fake identity client.
func NewFake() *Fake {
	return &Fake{
		groups:         make(map[string]*Group),
		bindings:       make(map[string]string),
		provisioned:    make(map[string]ProvisioningState),
		FailOn:         make(map[string]error),
		provisionCalls: make(map[string]int),
	}
}

// SeedGroup inserts a group directly, bypassing CreateGroup.
func (f *Fake) SeedGroup(g Group) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := g
	f.groups[g.ID] = &cp
}

// GroupCount returns the number of groups currently held.
func (f *Fake) GroupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups)
}

func (f *Fake) record(label string) error {
	f.Calls = append(f.Calls, label)
	if err := f.FailOn[label]; err != nil {
		return err
	}
	return nil
}

// CreateGroup implements Client.
func (f *Fake) CreateGroup(ctx context.Context, name, description string) (CreateGroupResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateGroup"); err != nil {
		return CreateGroupResult{Success: false, Errors: []string{err.Error()}}, err
	}
	for _, g := range f.groups {
		if g.DisplayName == name {
			return CreateGroupResult{Success: false, Errors: []string{ErrGroupExists.Error()}}, ErrGroupExists
		}
	}
	id := uuid.New().String()
	f.groups[id] = &Group{
		ID:          id,
		DisplayName: name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	return CreateGroupResult{Success: true, GroupID: id}, nil
}

// AddOwner implements Client.
func (f *Fake) AddOwner(ctx context.Context, groupID, principal string) (MembershipResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddOwner"); err != nil {
		return MembershipResult{Success: false, Errors: []string{err.Error()}}, err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return MembershipResult{Success: false}, ErrGroupNotFound
	}
	g.Owners = append(g.Owners, principal)
	return MembershipResult{Success: true}, nil
}

// AddMember implements Client.
func (f *Fake) AddMember(ctx context.Context, groupID, principal string) (MembershipResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AddMember"); err != nil {
		return MembershipResult{Success: false, Errors: []string{err.Error()}}, err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return MembershipResult{Success: false}, ErrGroupNotFound
	}
	g.Members = append(g.Members, principal)
	return MembershipResult{Success: true}, nil
}

// BindEnterpriseApp implements Client.
func (f *Fake) BindEnterpriseApp(ctx context.Context, groupID, appID string) (BindAppResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("BindEnterpriseApp"); err != nil {
		return BindAppResult{Success: false, Errors: []string{err.Error()}}, err
	}
	if _, ok := f.groups[groupID]; !ok {
		return BindAppResult{Success: false}, ErrGroupNotFound
	}
	assignmentID := uuid.New().String()
	f.bindings[assignmentID] = groupID
	return BindAppResult{Success: true, AssignmentID: assignmentID}, nil
}

// TriggerProvisioning implements Client.
func (f *Fake) TriggerProvisioning(ctx context.Context, groupID, appID string) (MembershipResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("TriggerProvisioning"); err != nil {
		return MembershipResult{Success: false, Errors: []string{err.Error()}}, err
	}
	if _, ok := f.groups[groupID]; !ok {
		return MembershipResult{Success: false}, ErrGroupNotFound
	}
	f.provisioned[groupID] = ProvisioningInProgress
	return MembershipResult{Success: true}, nil
}

// GetProvisioningStatus implements Client. The state advances from
// Provisioning to Provisioned after ProvisioningPolls calls.
func (f *Fake) GetProvisioningStatus(ctx context.Context, groupID, appID string) (ProvisioningStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetProvisioningStatus"); err != nil {
		return ProvisioningStatus{State: ProvisioningFailed, Errors: []string{err.Error()}}, err
	}
	state, ok := f.provisioned[groupID]
	if !ok {
		return ProvisioningStatus{State: ProvisioningNotProvisioned}, nil
	}
	if state == ProvisioningInProgress {
		f.provisionCalls[groupID]++
		if f.provisionCalls[groupID] > f.ProvisioningPolls {
			f.provisioned[groupID] = ProvisioningProvisioned
			state = ProvisioningProvisioned
		}
	}
	return ProvisioningStatus{State: state}, nil
}

// DeleteGroup implements Client.
func (f *Fake) DeleteGroup(ctx context.Context, groupID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteGroup"); err != nil {
		return err
	}
	if _, ok := f.groups[groupID]; !ok {
		return ErrGroupNotFound
	}
	delete(f.groups, groupID)
	delete(f.provisioned, groupID)
	return nil
}

// RemoveAppRoleAssignment implements Client.
func (f *Fake) RemoveAppRoleAssignment(ctx context.Context, groupID, assignmentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveAppRoleAssignment"); err != nil {
		return err
	}
	if _, ok := f.bindings[assignmentID]; !ok {
		return ErrAssignmentNotFound
	}
	delete(f.bindings, assignmentID)
	return nil
}

// RemoveEnterpriseAppBinding implements Client.
func (f *Fake) RemoveEnterpriseAppBinding(ctx context.Context, groupID, appID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("RemoveEnterpriseAppBinding"); err != nil {
		return err
	}
	for id, gid := range f.bindings {
		if gid == groupID {
			delete(f.bindings, id)
		}
	}
	return nil
}

// ListGroups implements Client.
func (f *Fake) ListGroups(ctx context.Context, filter GroupFilter) ([]Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListGroups"); err != nil {
		return nil, err
	}
	var out []Group
	for _, g := range f.groups {
		if filter.NamePrefix == "" || strings.HasPrefix(g.DisplayName, filter.NamePrefix) {
			out = append(out, *g)
		}
	}
	return out, nil
}

// GetGroupByName implements Client.
func (f *Fake) GetGroupByName(ctx context.Context, name string) (*Group, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("GetGroupByName"); err != nil {
		return nil, err
	}
	for _, g := range f.groups {
		if g.DisplayName == name {
			cp := *g
			return &cp, nil
		}
	}
	return nil, ErrGroupNotFound
}

// ValidateGroupDetailed implements Client.
func (f *Fake) ValidateGroupDetailed(ctx context.Context, groupID string) (GroupValidation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ValidateGroupDetailed"); err != nil {
		return GroupValidation{}, err
	}
	g, ok := f.groups[groupID]
	if !ok {
		return GroupValidation{Exists: false, Problems: []string{fmt.Sprintf("group %s not found", groupID)}}, nil
	}
	v := GroupValidation{
		Exists:      true,
		DisplayName: g.DisplayName,
		OwnerCount:  len(g.Owners),
		MemberCount: len(g.Members),
	}
	if len(g.Owners) == 0 {
		v.Problems = append(v.Problems, "group has no owners")
	}
	return v, nil
}

var _ Client = (*Fake)(nil)
