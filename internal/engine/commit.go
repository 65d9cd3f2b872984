package engine

import (
	"context"
	"errors"
	"time"

	"dca-engine-go/internal/models"
)

var (
	// errScheduleGone means the schedule instance a unit was working on has
	// been cancelled or replaced by a new plan.
	errScheduleGone = errors.New("schedule replaced or cancelled")

	// errPeriodClaimed means another unit already executed, or is executing,
	// the period this unit was about to submit.
	errPeriodClaimed = errors.New("period already claimed by another execution")
)

// mutate merges a single schedule's change into the latest collection.
// fn receives the stored instance matching s; an error from fn aborts the
// write.
func (e *Engine) mutate(ctx context.Context, s *models.Schedule, fn func(stored *models.Schedule) error) (*models.Schedule, error) {
	var updated models.Schedule
	_, err := e.repo.Update(ctx, func(schedules []models.Schedule) ([]models.Schedule, error) {
		for i := range schedules {
			if schedules[i].SameInstance(s) {
				if err := fn(&schedules[i]); err != nil {
					return nil, err
				}
				updated = schedules[i]
				return schedules, nil
			}
		}
		return nil, errScheduleGone
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// markInFlight persists the write-ahead marker before a swap is submitted.
// It is the claim on the period: a stored counter that moved past s, or a
// marker left by another unit, means the period belongs to someone else even
// if both units believed they held the wallet lock.
func (e *Engine) markInFlight(ctx context.Context, s *models.Schedule, runId string) error {
	since := e.now().UnixMilli()
	_, err := e.mutate(ctx, s, func(stored *models.Schedule) error {
		if stored.ExecutedPeriods != s.ExecutedPeriods || stored.HasInFlightExecution() {
			return errPeriodClaimed
		}
		stored.ExecutionInFlightSince = &since
		stored.ExecutionInFlightId = runId
		return nil
	})
	return err
}

// clearInFlight drops the marker without advancing the schedule.
func (e *Engine) clearInFlight(ctx context.Context, s *models.Schedule) error {
	_, err := e.mutate(ctx, s, func(stored *models.Schedule) error {
		clearMarker(stored)
		return nil
	})
	return err
}

// commitSuccess advances the schedule by one period and clears the marker.
// A stored counter that has already moved past s is left alone so the same
// execution is never counted twice.
func (e *Engine) commitSuccess(ctx context.Context, s *models.Schedule, executedAt time.Time) (*models.Schedule, error) {
	executedMs := executedAt.UnixMilli()
	next := executedAt.Add(e.opts.PeriodLength).UnixMilli()
	return e.mutate(ctx, s, func(stored *models.Schedule) error {
		clearMarker(stored)
		if stored.ExecutedPeriods != s.ExecutedPeriods || stored.IsComplete() {
			return nil
		}
		stored.ExecutedPeriods++
		stored.LastExecutionTime = &executedMs
		stored.NextExecutionTime = next
		return nil
	})
}

func (e *Engine) markCompleted(ctx context.Context, s *models.Schedule) error {
	_, err := e.mutate(ctx, s, func(stored *models.Schedule) error {
		stored.IsActive = false
		return nil
	})
	return err
}

func clearMarker(stored *models.Schedule) {
	stored.ExecutionInFlightSince = nil
	stored.ExecutionInFlightId = ""
}
