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
	"strings"

	"dca-engine-go/internal/api"
	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/prime"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// fund tops up a schedule's custody wallet with the stable token from a
// Coinbase Prime trading wallet.

type fundRequest struct {
	userId        string
	amount        decimal.Decimal
	primeWalletId string
}

func parseAndValidateFlags() (*fundRequest, error) {
	userFlag := flag.String("user", "", "User id whose schedule wallet to fund (required)")
	amountFlag := flag.String("amount", "", "Amount of the stable token to send, e.g. 100.50 (required)")
	walletFlag := flag.String("wallet", "", "Prime wallet id to withdraw from (default: the portfolio's trading wallet for the stable token)")
	flag.Parse()

	if *userFlag == "" || *amountFlag == "" {
		return nil, fmt.Errorf("--user and --amount are required")
	}

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be greater than zero")
	}

	return &fundRequest{
		userId:        *userFlag,
		amount:        amount,
		primeWalletId: *walletFlag,
	}, nil
}

func generateIdempotencyKey(userId string) string {
	userSegment := strings.SplitN(userId, "-", 2)[0]
	uuidSegments := strings.Split(uuid.New().String(), "-")
	return userSegment + "-" + strings.Join(uuidSegments[1:], "-")
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
	schedule, err := schedules.GetSchedule(ctx, req.userId)
	if err != nil {
		zap.L().Fatal("Failed to find schedule", zap.String("user_id", req.userId), zap.Error(err))
	}

	primeService, portfolio, err := common.InitializePrime(ctx)
	if err != nil {
		zap.L().Fatal("Failed to connect to Prime", zap.Error(err))
	}

	stable := services.Assets.Stable
	sourceWalletId := req.primeWalletId
	if sourceWalletId == "" {
		wallet, err := primeService.FindWallet(ctx, portfolio.Id, "TRADING", stable.Symbol)
		if err != nil {
			zap.L().Fatal("Failed to find Prime source wallet", zap.String("symbol", stable.Symbol), zap.Error(err))
		}
		sourceWalletId = wallet.Id
		zap.L().Info("Using Prime trading wallet",
			zap.String("wallet_id", wallet.Id),
			zap.String("wallet_name", wallet.Name))
	}

	idempotencyKey := generateIdempotencyKey(req.userId)

	common.PrintHeader("FUND SCHEDULE WALLET", common.DefaultWidth)
	common.PrintField("User", schedule.UserId)
	common.PrintField("Destination", schedule.WalletAddress)
	common.PrintField("Amount", fmt.Sprintf("%s %s", req.amount.String(), stable.Symbol))
	common.PrintField("Asset", stable.PrimeAsset())

	withdrawal, err := primeService.CreateWithdrawal(ctx, prime.CreateWithdrawalParams{
		PortfolioId:        portfolio.Id,
		WalletId:           sourceWalletId,
		DestinationAddress: schedule.WalletAddress,
		Amount:             req.amount.String(),
		Asset:              stable.PrimeAsset(),
		IdempotencyKey:     idempotencyKey,
	})
	if err != nil {
		zap.L().Fatal("Failed to create Prime withdrawal",
			zap.String("user_id", req.userId),
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err))
	}

	common.PrintField("Activity", withdrawal.ActivityId)
	common.PrintField("Idempotency", withdrawal.IdempotencyKey)
	common.PrintFooter("Withdrawal submitted, funds arrive once Prime broadcasts it", common.DefaultWidth)
}
