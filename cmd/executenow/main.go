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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/engine"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/trigger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id whose schedule to execute (required)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Maximum duration of the execution")
	flag.Parse()

	if *userFlag == "" {
		zap.L().Fatal("--user is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	ctx = models.WithExecutionContext(ctx, &models.ExecutionContext{
		RunId:   uuid.New().String(),
		Trigger: "cli",
	})

	res, err := services.Engine.ExecuteNow(ctx, *userFlag)
	switch {
	case errors.Is(err, engine.ErrExecutionInProgress):
		zap.L().Fatal("An execution is already in progress for this schedule", zap.String("user_id", *userFlag))
	case errors.Is(err, engine.ErrUnreconciled):
		if res != nil {
			fmt.Println(trigger.FormatResult(*res))
		}
		zap.L().Fatal("Schedule has an unreconciled execution, run reconcile first",
			zap.String("user_id", *userFlag), zap.Error(err))
	case err != nil:
		zap.L().Fatal("Manual execution failed", zap.String("user_id", *userFlag), zap.Error(err))
	}

	common.PrintHeader(fmt.Sprintf("MANUAL EXECUTION FOR %s", *userFlag), common.DefaultWidth)
	fmt.Println(trigger.FormatResult(*res))
	if res.Outcome == models.OutcomeExecuted {
		fmt.Printf("\nPeriod %d of %d, sold %s\n", res.ExecutedPeriods, res.TotalPeriods, res.SellAmountHuman)
		fmt.Printf("Transaction: %s\n", res.TransactionHash)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}
