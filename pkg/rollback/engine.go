package rollback

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/grantor/pkg/identity"
	"github.com/platinummonkey/grantor/pkg/observability"
	"github.com/platinummonkey/grantor/pkg/platform"
)

// ActionFailure records one compensation that could not be completed.
type ActionFailure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// Result summarizes a rollback pass. A non-empty Failures list means the
// rollback was partial; Warnings list compensations left for manual
// follow-up (resource still referenced).
type Result struct {
	Executed int             `json:"executed"`
	Failures []ActionFailure `json:"failures,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// Partial reports whether any compensation failed.
func (r Result) Partial() bool { return len(r.Failures) > 0 }

// Config bounds the deletion status polling loop.
type Config struct {
	// DeletionPollAttempts is the maximum number of deletion status polls.
	DeletionPollAttempts int

	// DeletionPollInterval is the sleep between deletion status polls.
	DeletionPollInterval time.Duration
}

// DefaultConfig returns the default polling bounds: 30 polls at 10s.
func DefaultConfig() Config {
	return Config{
		DeletionPollAttempts: 30,
		DeletionPollInterval: 10 * time.Second,
	}
}

// Engine replays compensation actions against the identity and platform
// clients.
type Engine struct {
	identity identity.Client
	platform platform.Client
	config   Config
	logger   *observability.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewEngine creates a rollback engine.
func NewEngine(identityClient identity.Client, platformClient platform.Client, config Config, logger *observability.Logger) *Engine {
	def := DefaultConfig()
	if config.DeletionPollAttempts <= 0 {
		config.DeletionPollAttempts = def.DeletionPollAttempts
	}
	if config.DeletionPollInterval <= 0 {
		config.DeletionPollInterval = def.DeletionPollInterval
	}
	return &Engine{
		identity: identityClient,
		platform: platformClient,
		config:   config,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Rollback replays actions in reverse registration order, undoing the most
// recent effect first. It never returns an error: individual failures are
// collected into the result and remaining compensations still run. A
// compensation whose target is already absent counts as success.
func (e *Engine) Rollback(ctx context.Context, actions []Action) Result {
	var result Result

	for i := len(actions) - 1; i >= 0; i-- {
		action := actions[i]
		log := e.logger.WithField("rollback_action", string(action.Kind()))

		if err := ctx.Err(); err != nil {
			result.Failures = append(result.Failures, ActionFailure{
				Kind:    action.Kind(),
				Message: fmt.Sprintf("not attempted: %v", err),
			})
			continue
		}

		err := e.execute(ctx, action)
		result.Executed++
		switch {
		case err == nil:
			log.Debug("compensation applied")
		case isAlreadyAbsent(err):
			// Idempotent rollback: the target was already gone.
			log.Debug("compensation target already absent")
		case isStillReferenced(err):
			log.WithError(err).Warn("compensation skipped: resource still referenced, manual follow-up required")
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", action.Kind(), err))
		default:
			log.WithError(err).Error("compensation failed")
			result.Failures = append(result.Failures, ActionFailure{
				Kind:    action.Kind(),
				Message: err.Error(),
			})
		}
	}

	return result
}

// execute dispatches one compensation by action type.
func (e *Engine) execute(ctx context.Context, action Action) error {
	switch a := action.(type) {
	case DeleteAssignment:
		return e.deleteAssignment(ctx, a)
	case DeletePermissionSet:
		return e.platform.DeletePermissionSet(ctx, a.Ref)
	case RestoreAssignment:
		_, err := e.platform.AssignGroupToAccount(ctx, a.GroupID, a.AccountID, a.PermissionSetRef)
		if errors.Is(err, platform.ErrAssignmentExists) {
			return nil
		}
		return err
	case DeleteIdentityGroup:
		return e.identity.DeleteGroup(ctx, a.GroupID)
	case RemoveEnterpriseAppAssignment:
		return e.identity.RemoveAppRoleAssignment(ctx, a.GroupID, a.AssignmentID)
	default:
		return fmt.Errorf("unknown rollback action kind %q", action.Kind())
	}
}

// deleteAssignment issues the asynchronous deletion and polls it to
// completion within the configured bounds. A FAILED deletion status is a
// hard rollback error; IN_PROGRESS keeps polling.
func (e *Engine) deleteAssignment(ctx context.Context, a DeleteAssignment) error {
	requestID, err := e.platform.DeleteAccountAssignment(ctx, a.GroupID, a.AccountID, a.PermissionSetRef)
	if err != nil {
		return err
	}

	for attempt := 1; attempt <= e.config.DeletionPollAttempts; attempt++ {
		status, err := e.platform.GetAssignmentDeletionStatus(ctx, requestID)
		if err != nil {
			return fmt.Errorf("deletion status poll failed: %w", err)
		}
		switch status.State {
		case platform.AssignmentFailed:
			return fmt.Errorf("assignment deletion failed: %s", status.FailureReason)
		case platform.AssignmentInProgress:
			if attempt < e.config.DeletionPollAttempts {
				if err := e.sleep(ctx, e.config.DeletionPollInterval); err != nil {
					return fmt.Errorf("deletion polling canceled: %w", err)
				}
			}
		default:
			return nil
		}
	}
	return fmt.Errorf("assignment deletion still in progress after %d polls", e.config.DeletionPollAttempts)
}

// isAlreadyAbsent reports whether the error indicates the compensation
// target no longer exists.
func isAlreadyAbsent(err error) bool {
	return errors.Is(err, identity.ErrGroupNotFound) ||
		errors.Is(err, identity.ErrAssignmentNotFound) ||
		errors.Is(err, platform.ErrPermissionSetNotFound) ||
		errors.Is(err, platform.ErrAssignmentNotFound)
}

// isStillReferenced reports whether the error indicates the target cannot
// be removed because it is still in use.
func isStillReferenced(err error) bool {
	return errors.Is(err, identity.ErrGroupInUse) ||
		errors.Is(err, platform.ErrPermissionSetInUse)
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
