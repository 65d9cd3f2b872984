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
	"flag"
	"os"
	"time"

	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/trigger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runonce performs a single engine pass, for use from an external scheduler.
func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	timeout := flag.Duration("timeout", 10*time.Minute, "Maximum duration of the pass")
	flag.Parse()

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

	report, err := services.Engine.RunOnce(ctx)
	if err != nil {
		zap.L().Fatal("Engine pass failed", zap.Error(err))
	}

	trigger.PrintPassReport(os.Stdout, report)

	if n := report.Count(models.OutcomeError); n > 0 {
		zap.L().Warn("Engine pass finished with errors", zap.Int("errors", n))
	}
}
