package history

import (
	"context"

	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/observability"
)

// Archiver exports a terminal operation record to long-term storage.
type Archiver interface {
	Archive(ctx context.Context, op *grant.AssignmentOperation) error
}

var _ Archiver = (*S3Archiver)(nil)

// ArchivingStore decorates a Store with best-effort archival: whenever an
// update lands a record in a terminal status, the record is exported. An
// archive failure is logged and never surfaces to the caller.
type ArchivingStore struct {
	Store
	archiver Archiver
	logger   *observability.Logger
}

// NewArchivingStore wraps store so terminal updates are archived.
func NewArchivingStore(store Store, archiver Archiver, logger *observability.Logger) *ArchivingStore {
	return &ArchivingStore{
		Store:    store,
		archiver: archiver,
		logger:   logger,
	}
}

// UpdateOperation implements Store.
func (s *ArchivingStore) UpdateOperation(ctx context.Context, op *grant.AssignmentOperation) error {
	if err := s.Store.UpdateOperation(ctx, op); err != nil {
		return err
	}
	if terminal(op.Status) {
		if err := s.archiver.Archive(ctx, op); err != nil {
			s.logger.WithError(err).WithField("operation_id", op.ID).
				Warn("Failed to archive operation record")
		}
	}
	return nil
}
