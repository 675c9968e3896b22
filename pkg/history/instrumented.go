package history

import (
	"context"
	"time"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/observability"
)

// InstrumentedStore wraps a Store, counting calls and timing them per
// method.
type InstrumentedStore struct {
	store   Store
	metrics *observability.Metrics
}

// NewInstrumentedStore wraps store with the given metrics.
func NewInstrumentedStore(store Store, metrics *observability.Metrics) *InstrumentedStore {
	return &InstrumentedStore{store: store, metrics: metrics}
}

func (s *InstrumentedStore) observe(method string, start time.Time, err error) error {
	result := "ok"
	if err != nil {
		result = "error"
	}
	s.metrics.HistoryOperationsTotal.WithLabelValues(method, result).Inc()
	s.metrics.HistoryOperationDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	return err
}

func (s *InstrumentedStore) AddOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	start := time.Now()
	return s.observe("add", start, s.store.AddOperation(ctx, op))
}

func (s *InstrumentedStore) GetOperation(ctx context.Context, id string) (*grant.AssignmentOperation, error) {
	start := time.Now()
	op, err := s.store.GetOperation(ctx, id)
	return op, s.observe("get", start, err)
}

func (s *InstrumentedStore) UpdateOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	start := time.Now()
	return s.observe("update", start, s.store.UpdateOperation(ctx, op))
}

func (s *InstrumentedStore) ListOperations(ctx context.Context, filter ListFilter) ([]*grant.AssignmentOperation, error) {
	start := time.Now()
	ops, err := s.store.ListOperations(ctx, filter)
	return ops, s.observe("list", start, err)
}

func (s *InstrumentedStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	start := time.Now()
	removed, err := s.store.Cleanup(ctx, olderThan)
	return removed, s.observe("cleanup", start, err)
}

var _ Store = (*InstrumentedStore)(nil)
