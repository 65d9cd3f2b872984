package engine

import (
	"context"
	"fmt"
	"time"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"go.uber.org/zap"
)

// ExecuteNow runs an execution unit for the user's active schedule regardless
// of its next execution time. Outcome-level failures are reported in the
// result; the error is reserved for conditions the caller must map (no
// schedule, concurrent execution, unreconciled state, store failure).
func (e *Engine) ExecuteNow(ctx context.Context, userId string) (*models.ExecutionResult, error) {
	ctx, ec := ensureExecutionContext(ctx, "execute-now")

	s, err := e.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if s == nil || !s.IsActive {
		return nil, fmt.Errorf("%w: no active schedule for user %s", store.ErrScheduleNotFound, userId)
	}

	lease, ok, err := e.locker.TryAcquire(ctx, WalletLockKey(s.WalletId))
	if err != nil {
		return nil, fmt.Errorf("unable to lock schedule: %w", err)
	}
	if !ok {
		return nil, ErrExecutionInProgress
	}
	defer e.release(ctx, lease, s.WalletId)

	ctx = context.WithoutCancel(ctx)

	current, err := e.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.IsActive || !current.SameInstance(s) {
		return nil, fmt.Errorf("%w: schedule for user %s changed", store.ErrScheduleNotFound, userId)
	}

	zap.L().Info("Manual execution requested",
		zap.String("run_id", ec.RunId),
		zap.String("user_id", userId),
		zap.String("wallet_id", current.WalletId))

	res := e.runLocked(ctx, current)
	if res.RequiresReconciliation && res.TransactionHash == "" {
		return &res, ErrUnreconciled
	}
	return &res, nil
}

// Resolution tells Reconcile what happened to an in-flight swap.
type Resolution string

const (
	ResolutionExecuted Resolution = "executed"
	ResolutionFailed   Resolution = "failed"
	ResolutionAuto     Resolution = "auto"
)

// ParseResolution validates a resolution name.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionExecuted, ResolutionFailed, ResolutionAuto:
		return r, nil
	}
	return "", fmt.Errorf("invalid resolution %q (expected executed, failed or auto)", s)
}

// Reconcile resolves a schedule left with an in-flight marker. "executed"
// advances the schedule by exactly one period, "failed" only clears the
// marker, and "auto" consults the execution journal.
func (e *Engine) Reconcile(ctx context.Context, userId string, resolution Resolution) (*models.ExecutionResult, error) {
	s, err := e.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("%w: user %s", store.ErrScheduleNotFound, userId)
	}

	lease, ok, err := e.locker.TryAcquire(ctx, WalletLockKey(s.WalletId))
	if err != nil {
		return nil, fmt.Errorf("unable to lock schedule: %w", err)
	}
	if !ok {
		return nil, ErrExecutionInProgress
	}
	defer e.release(ctx, lease, s.WalletId)

	current, err := e.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if current == nil || !current.SameInstance(s) {
		return nil, fmt.Errorf("%w: schedule for user %s changed", store.ErrScheduleNotFound, userId)
	}
	if !current.HasInFlightExecution() {
		return nil, ErrNoInFlightExecution
	}

	reference := current.ExecutionReference()
	executedAt := time.UnixMilli(*current.ExecutionInFlightSince)
	txHash := ""

	if resolution == ResolutionAuto {
		record, err := e.journal.FindExecution(ctx, reference)
		if err != nil {
			return nil, fmt.Errorf("unable to read execution journal: %w", err)
		}
		if record == nil {
			return nil, fmt.Errorf("%w: no journal record for %s, resolve explicitly", ErrUnreconciled, reference)
		}
		resolution = ResolutionExecuted
		executedAt = record.ExecutedAt
		txHash = record.TxHash
	}

	logger := zap.L().With(
		zap.String("user_id", userId),
		zap.String("wallet_id", current.WalletId),
		zap.String("reference", reference),
		zap.String("resolution", string(resolution)))

	switch resolution {
	case ResolutionExecuted:
		committed, err := e.commitSuccess(ctx, current, executedAt)
		if err != nil {
			return nil, fmt.Errorf("unable to commit reconciled execution: %w", err)
		}
		logger.Info("In-flight execution reconciled as executed")
		res := result(committed, models.OutcomeExecuted, "reconciled as executed")
		res.TransactionHash = txHash
		return &res, nil

	case ResolutionFailed:
		if err := e.clearInFlight(ctx, current); err != nil {
			return nil, fmt.Errorf("unable to clear in-flight marker: %w", err)
		}
		logger.Info("In-flight execution reconciled as failed")
		cleared := *current
		clearMarker(&cleared)
		res := result(&cleared, models.OutcomeSkipped, "reconciled as failed")
		return &res, nil
	}

	return nil, fmt.Errorf("invalid resolution %q", resolution)
}
