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

	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/engine"
	"dca-engine-go/internal/trigger"

	"go.uber.org/zap"
)

// reconcile resolves a schedule left with an in-flight marker after a swap
// whose outcome was never committed.
func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id of the stuck schedule (required)")
	resolutionFlag := flag.String("resolution", "auto", "What happened to the swap: executed, failed or auto (consult the journal)")
	flag.Parse()

	if *userFlag == "" {
		zap.L().Fatal("--user is required")
	}
	resolution, err := engine.ParseResolution(*resolutionFlag)
	if err != nil {
		zap.L().Fatal("Invalid resolution", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()

	services, err := common.InitializeStoreOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	res, err := services.Engine.Reconcile(ctx, *userFlag, resolution)
	if err != nil {
		if errors.Is(err, engine.ErrNoInFlightExecution) {
			fmt.Printf("Schedule for %s has no in-flight execution, nothing to do\n", *userFlag)
			return
		}
		zap.L().Fatal("Reconciliation failed",
			zap.String("user_id", *userFlag),
			zap.String("resolution", string(resolution)),
			zap.Error(err))
	}

	fmt.Println(trigger.FormatResult(*res))
}
