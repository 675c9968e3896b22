package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/grantor/pkg/grant"
)

// MemoryStore is a mutex-guarded in-memory Store.
type MemoryStore struct {
	mu  sync.RWMutex
	ops map[string]*grant.AssignmentOperation
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{ops: make(map[string]*grant.AssignmentOperation)}
}

// clone deep-copies an operation through JSON so callers cannot mutate
// stored state.
func clone(op *grant.AssignmentOperation) *grant.AssignmentOperation {
	data, err := json.Marshal(op)
	if err != nil {
		cp := *op
		return &cp
	}
	var out grant.AssignmentOperation
	if err := json.Unmarshal(data, &out); err != nil {
		cp := *op
		return &cp
	}
	return &out
}

// AddOperation implements Store.
func (s *MemoryStore) AddOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; ok {
		return fmt.Errorf("operation %s already exists", op.ID)
	}
	s.ops[op.ID] = clone(op)
	return nil
}

// GetOperation implements Store.
func (s *MemoryStore) GetOperation(ctx context.Context, id string) (*grant.AssignmentOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.ops[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOperationNotFound, id)
	}
	return clone(op), nil
}

// UpdateOperation implements Store.
func (s *MemoryStore) UpdateOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ops[op.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrOperationNotFound, op.ID)
	}
	s.ops[op.ID] = clone(op)
	return nil
}

// ListOperations implements Store.
func (s *MemoryStore) ListOperations(ctx context.Context, filter ListFilter) ([]*grant.AssignmentOperation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*grant.AssignmentOperation, 0, len(s.ops))
	for _, op := range s.ops {
		if filter.matches(op) {
			out = append(out, clone(op))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Cleanup implements Store.
func (s *MemoryStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for id, op := range s.ops {
		if terminal(op.Status) && op.StartedAt.Before(olderThan) {
			delete(s.ops, id)
			removed++
		}
	}
	return removed, nil
}

var _ Store = (*MemoryStore)(nil)
