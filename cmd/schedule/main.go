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
	"fmt"

	"dca-engine-go/internal/api"
	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/models"

	"go.uber.org/zap"
)

type scheduleRequest struct {
	action        string
	userId        string
	walletId      string
	walletAddress string
	history       int
}

func parseAndValidateFlags() (*scheduleRequest, error) {
	actionFlag := flag.String("action", "list", "Action to perform: create, cancel, status or list")
	userFlag := flag.String("user", "", "User id (required for create, cancel and status)")
	walletFlag := flag.String("wallet", "", "Custody wallet id (required for create)")
	addressFlag := flag.String("address", "", "Custody wallet address (required for create)")
	historyFlag := flag.Int("history", 10, "Number of journal records to show with status")
	flag.Parse()

	req := &scheduleRequest{
		action:        *actionFlag,
		userId:        *userFlag,
		walletId:      *walletFlag,
		walletAddress: *addressFlag,
		history:       *historyFlag,
	}

	switch req.action {
	case "list":
	case "cancel", "status":
		if req.userId == "" {
			return nil, fmt.Errorf("--user is required for %s", req.action)
		}
	case "create":
		if req.userId == "" || req.walletId == "" || req.walletAddress == "" {
			return nil, fmt.Errorf("--user, --wallet and --address are required for create")
		}
	default:
		return nil, fmt.Errorf("unknown action %q (expected create, cancel, status or list)", req.action)
	}
	return req, nil
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid arguments", zap.Error(err))
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

	schedules := api.NewScheduleService(services.Repository, services.Journal, cfg.Engine.TotalPeriods)

	switch req.action {
	case "create":
		s, err := schedules.CreateSchedule(ctx, req.userId, req.walletId, req.walletAddress)
		if err != nil {
			zap.L().Fatal("Failed to create schedule", zap.String("user_id", req.userId), zap.Error(err))
		}
		common.PrintHeader("SCHEDULE CREATED", common.DefaultWidth)
		printSchedule(*s, true)
		common.PrintFooter(fmt.Sprintf("First execution due %s", common.FormatTimestamp(s.NextExecutionTime)), common.DefaultWidth)

	case "cancel":
		if err := schedules.CancelSchedule(ctx, req.userId); err != nil {
			zap.L().Fatal("Failed to cancel schedule", zap.String("user_id", req.userId), zap.Error(err))
		}
		fmt.Printf("Schedule for %s cancelled\n", req.userId)

	case "status":
		s, err := schedules.GetSchedule(ctx, req.userId)
		if err != nil {
			zap.L().Fatal("Failed to get schedule", zap.String("user_id", req.userId), zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("SCHEDULE FOR %s", req.userId), common.DefaultWidth)
		printSchedule(*s, true)
		printBalances(ctx, services, cfg.Chain.RPCURL, req.userId)
		printHistory(ctx, schedules, req.userId, req.history)
		common.PrintSeparator("=", common.DefaultWidth)

	case "list":
		list, err := schedules.ListSchedules(ctx)
		if err != nil {
			zap.L().Fatal("Failed to list schedules", zap.Error(err))
		}
		common.PrintHeader(fmt.Sprintf("SCHEDULES (%d)", len(list)), common.WideWidth)
		for i, s := range list {
			printSchedule(s, i == len(list)-1)
		}
		common.PrintFooter(summarize(list), common.WideWidth)
	}
}

func printSchedule(s models.Schedule, isLast bool) {
	state := "active"
	switch {
	case s.HasInFlightExecution():
		state = "in flight since " + common.FormatTimestamp(*s.ExecutionInFlightSince)
	case s.IsComplete():
		state = "completed"
	case !s.IsActive:
		state = "inactive"
	}

	prefix := common.BoxPrefix(isLast)
	detail := common.BoxDetailPrefix(isLast)
	fmt.Printf("%s%s  %s  [%s]\n", prefix, s.UserId, s.WalletAddress, state)
	fmt.Printf("%s   wallet:   %s\n", detail, s.WalletId)
	fmt.Printf("%s   progress: %d/%d\n", detail, s.ExecutedPeriods, s.TotalPeriods)
	fmt.Printf("%s   next:     %s\n", detail, common.FormatTimestamp(s.NextExecutionTime))
	if s.LastExecutionTime != nil {
		fmt.Printf("%s   last:     %s\n", detail, common.FormatTimestamp(*s.LastExecutionTime))
	}
}

func printBalances(ctx context.Context, services *common.Services, rpcURL, userId string) {
	if err := services.ConnectChain(ctx, rpcURL); err != nil {
		zap.L().Warn("Wallet balances unavailable", zap.Error(err))
		return
	}
	wallets := api.NewWalletService(services.Repository, services.Locker, services.Chain, nil,
		services.Assets.Stable.Token(), services.Assets.Volatile.Token())
	balances, err := wallets.GetBalances(ctx, userId)
	if err != nil {
		zap.L().Warn("Wallet balances unavailable", zap.String("user_id", userId), zap.Error(err))
		return
	}
	common.PrintBoxSeparator(common.DefaultWidth - 1)
	for i, b := range balances.Balances {
		fmt.Printf("%s%s\n", common.BoxPrefix(i == len(balances.Balances)-1), b.Display)
	}
}

func printHistory(ctx context.Context, schedules *api.ScheduleService, userId string, limit int) {
	if limit <= 0 {
		return
	}
	records, err := schedules.GetExecutionHistory(ctx, userId, limit, 0)
	if err != nil {
		zap.L().Warn("Execution history unavailable", zap.String("user_id", userId), zap.Error(err))
		return
	}
	common.PrintBoxSeparator(common.DefaultWidth - 1)
	if len(records) == 0 {
		fmt.Println("└  No executions recorded")
		return
	}
	for i, r := range records {
		fmt.Printf("%speriod %d  %s  %s  %s\n",
			common.BoxPrefix(i == len(records)-1),
			r.Period,
			r.ExecutedAt.Format("2006-01-02 15:04"),
			r.SellAmount,
			r.TxHash)
	}
}

func summarize(list []models.Schedule) string {
	var active, completed, inFlight int
	for _, s := range list {
		if s.HasInFlightExecution() {
			inFlight++
		}
		switch {
		case s.IsComplete():
			completed++
		case s.IsActive:
			active++
		}
	}
	return fmt.Sprintf("%d active, %d completed, %d awaiting reconciliation", active, completed, inFlight)
}
