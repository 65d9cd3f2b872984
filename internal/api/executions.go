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

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"go.uber.org/zap"
)

// GetExecutionHistory returns paginated journal records for the user's wallet
func (s *ScheduleService) GetExecutionHistory(ctx context.Context, userId string, limit, offset int) ([]models.ExecutionRecord, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	history, ok := s.journal.(store.ExecutionHistory)
	if !ok {
		return nil, fmt.Errorf("execution history is not available for this journal backend")
	}

	schedule, err := s.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: user %s", store.ErrScheduleNotFound, userId)
	}

	records, err := history.GetWalletExecutions(ctx, schedule.WalletId, limit, offset)
	if err != nil {
		zap.L().Error("Failed to get execution history",
			zap.String("user_id", userId),
			zap.String("wallet_id", schedule.WalletId),
			zap.Error(err))
		return nil, fmt.Errorf("failed to retrieve execution history")
	}

	return records, nil
}
