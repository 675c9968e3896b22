package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/platinummonkey/grantor/pkg/conflict"
	"github.com/platinummonkey/grantor/pkg/grant"
	"github.com/platinummonkey/grantor/pkg/history"
	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
	"github.com/platinummonkey/grantor/pkg/retry"
	"github.com/platinummonkey/grantor/pkg/rollback"
)

// TemplateResolver materializes a named permission template with optional
// request-level overrides merged in.
type TemplateResolver interface {
	Resolve(name string, overrides *grant.CustomPermissionSpec) (platform.PermissionSetSpec, error)
}

// Config bounds the orchestrator's polling loops and maps environments to
// their target accounts.
type Config struct {
	// EnterpriseAppID is the enterprise application that provisions
	// identity groups into the platform.
	EnterpriseAppID string

	// EnvironmentAccounts maps each environment to its account id.
	EnvironmentAccounts map[grant.Environment]string

	// ProvisioningTimeout is the wall-clock budget for provisioning polls.
	ProvisioningTimeout time.Duration

	// ProvisioningPollInterval is the sleep between provisioning polls.
	ProvisioningPollInterval time.Duration

	// SyncPollAttempts bounds the platform synchronization poll loop.
	SyncPollAttempts int

	// SyncPollInterval is the sleep between synchronization polls.
	SyncPollInterval time.Duration

	// BulkWorkers bounds concurrent item execution in BulkAssign.
	BulkWorkers int
}

// DefaultConfig returns the default polling budgets: provisioning 5m at
// 10s, synchronization 12 polls at 10s, 5 bulk workers.
func DefaultConfig() Config {
	return Config{
		ProvisioningTimeout:      5 * time.Minute,
		ProvisioningPollInterval: 10 * time.Second,
		SyncPollAttempts:         12,
		SyncPollInterval:         10 * time.Second,
		BulkWorkers:              5,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ProvisioningTimeout <= 0 {
		c.ProvisioningTimeout = def.ProvisioningTimeout
	}
	if c.ProvisioningPollInterval <= 0 {
		c.ProvisioningPollInterval = def.ProvisioningPollInterval
	}
	if c.SyncPollAttempts <= 0 {
		c.SyncPollAttempts = def.SyncPollAttempts
	}
	if c.SyncPollInterval <= 0 {
		c.SyncPollInterval = def.SyncPollInterval
	}
	if c.BulkWorkers <= 0 {
		c.BulkWorkers = def.BulkWorkers
	}
	return c
}

// Deps are the orchestrator's collaborators. States and Metrics may be nil;
// a memory state store and an unexported registry are substituted.
type Deps struct {
	Identity  identity.Client
	Platform  platform.Client
	Templates TemplateResolver
	History   history.Store
	States    StateStore
	Logger    *observability.Logger
	Metrics   *observability.Metrics

	// Validation optionally substitutes a cached reader for
	// ValidateAccessGrant's synchronization read. Workflow phases and
	// conflict detection always use Platform directly; those must observe
	// live state. Defaults to Platform.
	Validation platform.SyncChecker
}

// Orchestrator sequences grant workflows across the identity and platform
// clients, producing immutable operation records.
type Orchestrator struct {
	identity   identity.Client
	platform   platform.Client
	validation platform.SyncChecker
	templates  TemplateResolver
	history    history.Store
	states     StateStore
	detector   *conflict.Detector
	rollback   *rollback.Engine
	retry      *retry.Executor
	logger     *observability.Logger
	metrics    *observability.Metrics
	config     Config

	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an orchestrator. The conflict detector reads through the live
// platform client, never a cache.
func New(deps Deps, config Config) *Orchestrator {
	config = config.withDefaults()
	states := deps.States
	if states == nil {
		states = NewMemoryStateStore()
	}
	validation := deps.Validation
	if validation == nil {
		validation = deps.Platform
	}
	return &Orchestrator{
		identity:   deps.Identity,
		platform:   deps.Platform,
		validation: validation,
		templates:  deps.Templates,
		history:    deps.History,
		states:     states,
		detector:   conflict.NewDetector(deps.Platform),
		rollback:   rollback.NewEngine(deps.Identity, deps.Platform, rollback.DefaultConfig(), deps.Logger),
		retry:      retry.NewExecutor(retry.DefaultConfig()),
		logger:     deps.Logger,
		metrics:    deps.Metrics,
		config:     config,
		sleep:      sleepContext,
	}
}

// SetRetryConfig replaces the retry policy applied to remote calls.
func (o *Orchestrator) SetRetryConfig(cfg retry.Config) {
	o.retry = retry.NewExecutor(cfg)
}

// SetRollbackConfig replaces the rollback engine's polling bounds.
func (o *Orchestrator) SetRollbackConfig(cfg rollback.Config) {
	o.rollback = rollback.NewEngine(o.identity, o.platform, cfg, o.logger)
}

// GetWorkflowState returns the retained workflow state for an operation.
func (o *Orchestrator) GetWorkflowState(operationID string) (*WorkflowState, bool) {
	return o.states.Get(operationID)
}

// newOperation opens a workflow instance: operation record, workflow state,
// and the IN_PROGRESS history entry.
func (o *Orchestrator) newOperation(ctx context.Context, kind grant.OperationKind) (*grant.AssignmentOperation, *WorkflowState, error) {
	op := &grant.AssignmentOperation{
		ID:        uuid.New().String(),
		Kind:      kind,
		Status:    grant.OperationInProgress,
		StartedAt: time.Now().UTC(),
	}
	state := &WorkflowState{OperationID: op.ID, Phase: PhaseValidation}
	o.states.Put(state)
	if err := o.history.AddOperation(ctx, op); err != nil {
		o.states.Delete(op.ID)
		return nil, nil, err
	}
	return op, state, nil
}

// finalize stamps the terminal status and persists the record. Workflow
// state is retained so a COMPLETED operation can still be rolled back
// explicitly.
func (o *Orchestrator) finalize(ctx context.Context, op *grant.AssignmentOperation, state *WorkflowState, status grant.OperationStatus, start time.Time) {
	now := time.Now().UTC()
	op.Status = status
	op.CompletedAt = &now
	op.Errors = state.Errors

	if status == grant.OperationCompleted {
		state.enter(PhaseCompleted)
	} else if status == grant.OperationFailed {
		state.enter(PhaseFailed)
	}

	if err := o.history.UpdateOperation(ctx, op); err != nil {
		o.logger.WithField("operation_id", op.ID).WithError(err).Error("Failed to persist terminal operation record")
	}
	if o.metrics != nil {
		o.metrics.ObserveOperation(string(op.Kind), string(status), start)
		if status == grant.OperationCompleted {
			o.metrics.AssignmentsActive.Add(float64(activeAssignments(op)))
		}
	}
}

// activeAssignments counts the ACTIVE assignments recorded on an
// operation.
func activeAssignments(op *grant.AssignmentOperation) int {
	n := 0
	for _, a := range op.Assignments {
		if a.Status == grant.AssignmentStatusActive {
			n++
		}
	}
	return n
}

// failPhase records the phase error, rolls back everything registered so
// far, and returns the original error. Rollback failures are recorded as
// ROLLBACK_PARTIAL_FAILURE but never mask the trigger.
func (o *Orchestrator) failPhase(ctx context.Context, state *WorkflowState, opErr grant.OperationError) grant.OperationError {
	state.recordError(opErr)
	if o.metrics != nil {
		o.metrics.PhaseFailuresTotal.WithLabelValues(opErr.Phase, string(opErr.Code)).Inc()
	}

	log := o.logger.WithFields(map[string]interface{}{
		"operation_id": state.OperationID,
		"phase":        opErr.Phase,
	})
	log.WithError(opErr).Error("Phase failed, rolling back")

	o.runRollback(ctx, state)
	return opErr
}

// runRollback replays the state's registered compensations and folds the
// outcome into the state's error list and metrics.
func (o *Orchestrator) runRollback(ctx context.Context, state *WorkflowState) rollback.Result {
	if len(state.RollbackActions) == 0 {
		return rollback.Result{}
	}

	// Use a detached context so a canceled workflow still compensates.
	rollbackCtx := ctx
	if ctx.Err() != nil {
		rollbackCtx = context.WithoutCancel(ctx)
	}

	result := o.rollback.Rollback(rollbackCtx, state.RollbackActions)
	if o.metrics != nil {
		failedByKind := make(map[rollback.Kind]int)
		for _, failure := range result.Failures {
			failedByKind[failure.Kind]++
			o.metrics.RollbackActionsTotal.WithLabelValues(string(failure.Kind), "failed").Inc()
		}
		for _, action := range state.RollbackActions {
			if failedByKind[action.Kind()] > 0 {
				failedByKind[action.Kind()]--
				continue
			}
			o.metrics.RollbackActionsTotal.WithLabelValues(string(action.Kind()), "executed").Inc()
		}
	}
	if result.Partial() {
		if o.metrics != nil {
			o.metrics.RollbackPartialsTotal.Inc()
		}
		partialErr := grant.NewOperationError(grant.ErrCodeRollbackPartialFailure, string(state.Phase),
			"one or more compensating actions failed; manual cleanup may be required")
		for i, failure := range result.Failures {
			partialErr = partialErr.WithContext(fmt.Sprintf("%d:%s", i, failure.Kind), failure.Message)
		}
		state.recordError(partialErr)
	}
	return result
}

// phaseTimer observes phase duration when metrics are wired.
func (o *Orchestrator) phaseTimer(phase Phase) func() {
	if o.metrics == nil {
		return func() {}
	}
	start := time.Now()
	return func() { o.metrics.ObservePhase(string(phase), start) }
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
