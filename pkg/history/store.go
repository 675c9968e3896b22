package history

import (
	"context"
	"errors"
	"time"

	"github.com/platinummonkey/grantor/pkg/grant"
)

// ErrOperationNotFound is returned when no operation exists for an id.
var ErrOperationNotFound = errors.New("operation not found")

// ListFilter narrows ListOperations results. Zero values mean no filtering;
// a zero Limit returns everything.
type ListFilter struct {
	Status grant.OperationStatus
	Kind   grant.OperationKind
	Limit  int
}

// Store persists assignment operations. Implementations must offer
// read-your-writes: a Get or List after Add or Update observes the change.
type Store interface {
	// AddOperation inserts a new operation record.
	AddOperation(ctx context.Context, op *grant.AssignmentOperation) error

	// GetOperation returns the operation with the given id, or
	// ErrOperationNotFound.
	GetOperation(ctx context.Context, id string) (*grant.AssignmentOperation, error)

	// UpdateOperation replaces the stored record for op.ID, or returns
	// ErrOperationNotFound.
	UpdateOperation(ctx context.Context, op *grant.AssignmentOperation) error

	// ListOperations returns matching operations, most recently started
	// first.
	ListOperations(ctx context.Context, filter ListFilter) ([]*grant.AssignmentOperation, error)

	// Cleanup removes terminal operations started before the cutoff and
	// reports how many were removed.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
}

// terminal reports whether a status is final.
func terminal(status grant.OperationStatus) bool {
	return status == grant.OperationCompleted ||
		status == grant.OperationFailed ||
		status == grant.OperationRolledBack
}

// matches applies the filter to one operation.
func (f ListFilter) matches(op *grant.AssignmentOperation) bool {
	if f.Status != "" && op.Status != f.Status {
		return false
	}
	if f.Kind != "" && op.Kind != f.Kind {
		return false
	}
	return true
}
