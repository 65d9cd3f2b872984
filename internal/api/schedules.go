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
	"fmt"

	"dca-engine-go/internal/chain"
	"dca-engine-go/internal/models"

	"go.uber.org/zap"
)

// CreateSchedule starts a fresh plan for userId, replacing any previous plan
// of that user. The first period is due immediately.
func (s *ScheduleService) CreateSchedule(ctx context.Context, userId, walletId, walletAddress string) (*models.Schedule, error) {
	if userId == "" || walletId == "" || walletAddress == "" {
		return nil, fmt.Errorf("%w: userId, walletId and walletAddress are required", ErrInvalidRequest)
	}
	if err := chain.ValidateAddress(walletAddress); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var created models.Schedule
	_, err := s.repo.Update(ctx, func(schedules []models.Schedule) ([]models.Schedule, error) {
		now := s.now().UnixMilli()
		created = models.Schedule{
			UserId:            userId,
			WalletId:          walletId,
			WalletAddress:     walletAddress,
			ExecutedPeriods:   0,
			TotalPeriods:      s.totalPeriods,
			NextExecutionTime: now,
			IsActive:          true,
			CreatedAt:         now,
		}

		out := make([]models.Schedule, 0, len(schedules)+1)
		replaced := false
		for _, existing := range schedules {
			if existing.WalletId == walletId && existing.UserId != userId {
				return nil, fmt.Errorf("%w: wallet %s belongs to another user", ErrWalletInUse, walletId)
			}
			if existing.UserId != userId {
				out = append(out, existing)
				continue
			}
			// A replacement must be distinguishable from the plan it replaces.
			if existing.CreatedAt >= created.CreatedAt {
				created.CreatedAt = existing.CreatedAt + 1
			}
			if !replaced {
				out = append(out, created)
				replaced = true
			}
		}
		if !replaced {
			out = append(out, created)
		}
		return out, nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("Schedule created",
		zap.String("user_id", userId),
		zap.String("wallet_id", walletId),
		zap.String("wallet_address", walletAddress),
		zap.Int("total_periods", created.TotalPeriods))
	return &created, nil
}

// CancelSchedule removes the user's plan. Cancelling a missing plan succeeds.
func (s *ScheduleService) CancelSchedule(ctx context.Context, userId string) error {
	if userId == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	removed := 0
	_, err := s.repo.Update(ctx, func(schedules []models.Schedule) ([]models.Schedule, error) {
		removed = 0
		out := make([]models.Schedule, 0, len(schedules))
		for _, existing := range schedules {
			if existing.UserId == userId {
				removed++
				continue
			}
			out = append(out, existing)
		}
		return out, nil
	})
	if err != nil {
		return err
	}

	zap.L().Info("Schedule cancelled", zap.String("user_id", userId), zap.Int("removed", removed))
	return nil
}

// GetSchedule returns the user's plan, or nil when there is none.
func (s *ScheduleService) GetSchedule(ctx context.Context, userId string) (*models.Schedule, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	return s.repo.FindByUser(ctx, userId)
}

// ListSchedules returns every plan in the collection.
func (s *ScheduleService) ListSchedules(ctx context.Context) ([]models.Schedule, error) {
	return s.repo.ReadAll(ctx)
}
