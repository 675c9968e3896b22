package orchestrator

import (
	"sync"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/rollback"
)

// WorkflowState is the ephemeral per-operation state of one workflow
// instance. It is written only by the owning instance and read by
// RollbackOperation and GetWorkflowState.
type WorkflowState struct {
	OperationID     string
	Phase           Phase
	CompletedPhases []Phase
	Errors          []grant.OperationError
	RollbackActions []rollback.Action
}

// enter moves the workflow into a phase.
func (s *WorkflowState) enter(phase Phase) {
	s.Phase = phase
}

// complete records the current phase as done.
func (s *WorkflowState) complete() {
	s.CompletedPhases = append(s.CompletedPhases, s.Phase)
}

// recordError appends to the ordered error list.
func (s *WorkflowState) recordError(err grant.OperationError) {
	s.Errors = append(s.Errors, err)
}

// registerRollback appends a compensation for the effect the current phase
// just produced. Actions are consumed in reverse order.
func (s *WorkflowState) registerRollback(action rollback.Action) {
	s.RollbackActions = append(s.RollbackActions, action)
}

// StateStore holds workflow states keyed by operation id. The orchestrator
// takes the store by injection so tests can inspect and substitute it.
type StateStore interface {
	Put(state *WorkflowState)
	Get(operationID string) (*WorkflowState, bool)
	Delete(operationID string)
}

// MemoryStateStore is the default mutex-guarded StateStore.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[string]*WorkflowState
}

// NewMemoryStateStore creates an empty state store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]*WorkflowState)}
}

// Put implements StateStore.
func (s *MemoryStateStore) Put(state *WorkflowState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[state.OperationID] = state
}

// Get implements StateStore.
func (s *MemoryStateStore) Get(operationID string) (*WorkflowState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[operationID]
	return state, ok
}

// Delete implements StateStore.
func (s *MemoryStateStore) Delete(operationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, operationID)
}

var _ StateStore = (*MemoryStateStore)(nil)
