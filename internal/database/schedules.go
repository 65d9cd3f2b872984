package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"go.uber.org/zap"
)

// Load reads the schedule document. A missing row is an empty collection at
// version 0.
func (s *Service) Load(ctx context.Context) (*store.Snapshot, error) {
	var (
		value   string
		version int64
	)
	err := s.db.QueryRowContext(ctx, querySelectDocument, s.schedulesKey).Scan(&value, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return &store.Snapshot{Schedules: []models.Schedule{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}

	var schedules []models.Schedule
	if err := json.Unmarshal([]byte(value), &schedules); err != nil {
		return nil, fmt.Errorf("%w: corrupt schedule document %s: %v", store.ErrStoreUnavailable, s.schedulesKey, err)
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}

	return &store.Snapshot{Schedules: schedules, Version: version}, nil
}

// Save replaces the schedule document when its version still equals
// expectedVersion (0 meaning "not yet written").
func (s *Service) Save(ctx context.Context, schedules []models.Schedule, expectedVersion int64) (int64, error) {
	if schedules == nil {
		schedules = []models.Schedule{}
	}
	value, err := json.Marshal(schedules)
	if err != nil {
		return 0, fmt.Errorf("failed to encode schedules: %w", err)
	}

	var result sql.Result
	if expectedVersion == 0 {
		result, err = s.db.ExecContext(ctx, queryInsertDocument, s.schedulesKey, string(value))
	} else {
		result, err = s.db.ExecContext(ctx, queryUpdateDocument, string(value), s.schedulesKey, expectedVersion)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write schedule document: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		zap.L().Debug("Schedule document version mismatch",
			zap.String("key", s.schedulesKey),
			zap.Int64("expected_version", expectedVersion))
		return 0, fmt.Errorf("%w: schedule document %s moved past version %d",
			store.ErrConcurrentModification, s.schedulesKey, expectedVersion)
	}

	return expectedVersion + 1, nil
}
