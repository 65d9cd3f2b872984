package store

import (
	"context"
	"errors"
	"fmt"

	"dca-engine-go/internal/lock"
	"dca-engine-go/internal/models"

	"go.uber.org/zap"
)

const collectionLockKey = "collection"

// Repository implements whole-collection read-modify-write on top of a
// ScheduleStore. Every write is a compare-and-swap against the version that
// was read, retried with the latest collection on conflict, so concurrent
// writers touching different schedules never lose each other's updates.
type Repository struct {
	backend    ScheduleStore
	locker     lock.Locker
	maxRetries int
}

// NewRepository wraps backend. locker may be nil; when set, writes are also
// serialized through a collection-wide lease, which backends without an
// atomic compare-and-swap rely on.
func NewRepository(backend ScheduleStore, locker lock.Locker, maxRetries int) *Repository {
	if maxRetries <= 0 {
		maxRetries = 5
	}
	return &Repository{backend: backend, locker: locker, maxRetries: maxRetries}
}

// ReadAll returns the whole collection.
func (r *Repository) ReadAll(ctx context.Context) ([]models.Schedule, error) {
	snap, err := r.backend.Load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Schedules, nil
}

// WriteAll replaces the collection unconditionally.
func (r *Repository) WriteAll(ctx context.Context, schedules []models.Schedule) error {
	_, err := r.Update(ctx, func([]models.Schedule) ([]models.Schedule, error) {
		return schedules, nil
	})
	return err
}

// FindByUser returns the user's schedule, or nil when there is none.
func (r *Repository) FindByUser(ctx context.Context, userId string) (*models.Schedule, error) {
	schedules, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range schedules {
		if schedules[i].UserId == userId {
			return &schedules[i], nil
		}
	}
	return nil, nil
}

// FindByWallet returns the schedule bound to walletId, or nil when there is none.
func (r *Repository) FindByWallet(ctx context.Context, walletId string) (*models.Schedule, error) {
	schedules, err := r.ReadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range schedules {
		if schedules[i].WalletId == walletId {
			return &schedules[i], nil
		}
	}
	return nil, nil
}

// Update reads the latest collection, applies fn and writes the result back
// with a version check. On conflict fn is re-applied to the fresh collection.
// fn must be safe to call more than once.
func (r *Repository) Update(ctx context.Context, fn func([]models.Schedule) ([]models.Schedule, error)) ([]models.Schedule, error) {
	if r.locker != nil {
		lease, err := r.locker.Acquire(ctx, collectionLockKey)
		if err != nil {
			return nil, fmt.Errorf("failed to lock schedule collection: %w", err)
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				zap.L().Warn("Failed to release collection lock", zap.Error(err))
			}
		}()
	}

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		snap, err := r.backend.Load(ctx)
		if err != nil {
			return nil, err
		}

		working := make([]models.Schedule, len(snap.Schedules))
		copy(working, snap.Schedules)

		updated, err := fn(working)
		if err != nil {
			return nil, err
		}

		_, err = r.backend.Save(ctx, updated, snap.Version)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, ErrConcurrentModification) {
			return nil, err
		}

		lastErr = err
		zap.L().Debug("Schedule collection changed during update, retrying",
			zap.Int("attempt", attempt),
			zap.Int64("read_version", snap.Version))
	}

	return nil, fmt.Errorf("schedule update gave up after %d attempts: %w", r.maxRetries, lastErr)
}

// Close releases the backend.
func (r *Repository) Close() {
	r.backend.Close()
}
