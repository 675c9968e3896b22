package revalidate

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/grantor/pkg/async"
	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/orchestrator"
	"github.com/platinummonkey/grantor/pkg/platform"
)

// GrantValidator is the orchestrator surface the revalidator needs.
type GrantValidator interface {
	ListAccessGrants(ctx context.Context, filter orchestrator.GrantFilter) ([]orchestrator.AccessGrantSummary, error)
	ValidateAccessGrant(ctx context.Context, groupName string) (*grant.GrantValidationReport, error)
}

// Invalidator drops a cached sync status. Satisfied by
// platform.SyncStatusCache; nil disables invalidation.
type Invalidator interface {
	Invalidate(ctx context.Context, groupID string) error
}

// History is the store surface used to stamp validation times onto
// operation records. Satisfied by any history.Store; nil disables stamping.
type History interface {
	ListOperations(ctx context.Context, filter history.ListFilter) ([]*grant.AssignmentOperation, error)
	UpdateOperation(ctx context.Context, op *grant.AssignmentOperation) error
}

// Config bounds the sweep schedule and duration.
type Config struct {
	// Schedule is a cron expression for periodic sweeps.
	Schedule string

	// SweepTimeout bounds one whole sweep.
	SweepTimeout time.Duration
}

// DefaultConfig returns a six-hourly schedule with a ten minute sweep
// budget.
func DefaultConfig() Config {
	return Config{
		Schedule:     "0 */6 * * *",
		SweepTimeout: 10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Schedule == "" {
		c.Schedule = def.Schedule
	}
	if c.SweepTimeout <= 0 {
		c.SweepTimeout = def.SweepTimeout
	}
	return c
}

// SweepResult summarizes one revalidation pass.
type SweepResult struct {
	Checked  int      `json:"checked"`
	Healthy  int      `json:"healthy"`
	Degraded []string `json:"degraded,omitempty"`
}

// Revalidator sweeps all access grants on a cron schedule.
type Revalidator struct {
	validator GrantValidator
	cache     Invalidator
	history   History
	logger    *observability.Logger
	metrics   *observability.Metrics
	config    Config
	cron      *cron.Cron
	now       func() time.Time
}

// New creates a revalidator. cache and metrics may be nil.
func New(validator GrantValidator, cache Invalidator, logger *observability.Logger, metrics *observability.Metrics, config Config) *Revalidator {
	return &Revalidator{
		validator: validator,
		cache:     cache,
		logger:    logger,
		metrics:   metrics,
		config:    config.withDefaults(),
		cron:      cron.New(),
		now:       time.Now,
	}
}

// WithHistory enables LastValidatedAt stamping through the given store and
// returns the revalidator for chaining.
func (r *Revalidator) WithHistory(store History) *Revalidator {
	r.history = store
	return r
}

// Start schedules periodic sweeps. Each sweep runs detached with panic
// recovery so a bad pass never takes the scheduler down.
func (r *Revalidator) Start() error {
	_, err := r.cron.AddFunc(r.config.Schedule, func() {
		async.SafeGo(context.Background(), r.config.SweepTimeout, "grant revalidation sweep", r.logger,
			func(ctx context.Context) error {
				_, err := r.RunOnce(ctx)
				return err
			})
	})
	if err != nil {
		return fmt.Errorf("failed to schedule revalidation: %w", err)
	}
	r.cron.Start()
	r.logger.WithField("schedule", r.config.Schedule).Info("Grant revalidation scheduled")
	return nil
}

// Stop halts the scheduler. Sweeps already running finish on their own
// timeout.
func (r *Revalidator) Stop() {
	r.cron.Stop()
}

// RunOnce sweeps every known grant once and reports the outcome. Grants
// that fail to validate are counted degraded, their cached sync status is
// invalidated, and the sweep continues.
func (r *Revalidator) RunOnce(ctx context.Context) (SweepResult, error) {
	grants, err := r.validator.ListAccessGrants(ctx, orchestrator.GrantFilter{})
	if err != nil {
		return SweepResult{}, fmt.Errorf("failed to list grants for revalidation: %w", err)
	}

	result := SweepResult{Checked: len(grants)}
	for _, g := range grants {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("revalidation sweep canceled: %w", err)
		}

		report, err := r.validator.ValidateAccessGrant(ctx, g.GroupName)
		if err != nil {
			result.Degraded = append(result.Degraded, g.GroupName)
			r.logger.WithField("group_name", g.GroupName).WithError(err).Warn("Grant revalidation errored")
			continue
		}
		if report.Healthy() {
			result.Healthy++
			r.stampValidated(ctx, g.GroupName)
			continue
		}

		result.Degraded = append(result.Degraded, g.GroupName)
		r.logger.WithFields(map[string]interface{}{
			"group_name": g.GroupName,
			"details":    report.Details,
		}).Warn("Grant failed revalidation")

		if r.cache != nil {
			if err := r.cache.Invalidate(ctx, g.GroupID); err != nil {
				r.logger.WithField("group_id", g.GroupID).WithError(err).Warn("Failed to invalidate cached sync status")
			}
		}
	}

	if r.metrics != nil {
		r.metrics.GrantsActive.Set(float64(result.Checked))
	}
	r.logger.WithFields(map[string]interface{}{
		"checked":  result.Checked,
		"healthy":  result.Healthy,
		"degraded": len(result.Degraded),
	}).Info("Grant revalidation sweep finished")
	return result, nil
}

// stampValidated records the sweep time on every stored assignment for the
// group. Best effort: stamping failures are logged and never fail the sweep.
func (r *Revalidator) stampValidated(ctx context.Context, groupName string) {
	if r.history == nil {
		return
	}

	ops, err := r.history.ListOperations(ctx, history.ListFilter{Status: grant.OperationCompleted})
	if err != nil {
		r.logger.WithField("group_name", groupName).WithError(err).Warn("Failed to list operations for validation stamping")
		return
	}

	validated := r.now().UTC()
	for _, op := range ops {
		touched := false
		for i := range op.Assignments {
			if op.Assignments[i].GroupName != groupName {
				continue
			}
			stamp := validated
			op.Assignments[i].LastValidatedAt = &stamp
			touched = true
		}
		if !touched {
			continue
		}
		if err := r.history.UpdateOperation(ctx, op); err != nil {
			r.logger.WithFields(map[string]interface{}{
				"group_name":   groupName,
				"operation_id": op.ID,
			}).WithError(err).Warn("Failed to stamp validation time")
		}
	}
}

var _ Invalidator = (*platform.SyncStatusCache)(nil)
var _ History = (history.Store)(nil)
