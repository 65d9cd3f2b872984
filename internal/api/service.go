/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dca-engine-go/internal/store"
)

var (
	// ErrInvalidRequest wraps input validation failures.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrWalletInUse is returned when a wallet is already bound to another user's schedule.
	ErrWalletInUse = errors.New("wallet already has a schedule")
)

// ScheduleService provides the schedule lifecycle API
type ScheduleService struct {
	repo         *store.Repository
	journal      store.ExecutionJournal
	totalPeriods int
	now          func() time.Time
}

func NewScheduleService(repo *store.Repository, journal store.ExecutionJournal, totalPeriods int) *ScheduleService {
	if totalPeriods <= 0 {
		totalPeriods = 52
	}
	return &ScheduleService{
		repo:         repo,
		journal:      journal,
		totalPeriods: totalPeriods,
		now:          time.Now,
	}
}

func (s *ScheduleService) HealthCheck(ctx context.Context) error {
	if _, err := s.repo.ReadAll(ctx); err != nil {
		return fmt.Errorf("schedule store health check failed: %w", err)
	}
	return nil
}
