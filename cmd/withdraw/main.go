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
	"math/big"
	"time"

	"dca-engine-go/internal/api"
	"dca-engine-go/internal/common"
	"dca-engine-go/internal/config"
	"dca-engine-go/internal/engine"

	"go.uber.org/zap"
)

// withdraw sends the stable token left in a user's custody wallet to an
// external address.
func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id whose wallet to withdraw from (required)")
	toFlag := flag.String("to", "", "Destination address (required)")
	amountFlag := flag.String("amount", "", "Amount to send, e.g. 25.00 (default: the whole balance)")
	timeout := flag.Duration("timeout", 2*time.Minute, "Maximum duration of the withdrawal")
	flag.Parse()

	if *userFlag == "" || *toFlag == "" {
		zap.L().Fatal("--user and --to are required")
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

	stable := services.Assets.Stable.Token()

	var amount *big.Int
	if *amountFlag != "" {
		amount, err = engine.ParseAmount(*amountFlag, stable)
		if err != nil {
			zap.L().Fatal("Invalid amount", zap.Error(err))
		}
	}

	wallets := api.NewWalletService(services.Repository, services.Locker, services.Chain, services.Custody, stable, services.Assets.Volatile.Token())
	result, err := wallets.Withdraw(ctx, *userFlag, *toFlag, amount)
	if err != nil {
		if errors.Is(err, engine.ErrExecutionInProgress) {
			zap.L().Fatal("A swap is running against this wallet, retry later", zap.String("user_id", *userFlag))
		}
		zap.L().Fatal("Withdrawal failed", zap.String("user_id", *userFlag), zap.Error(err))
	}

	common.PrintHeader("WITHDRAWAL", common.DefaultWidth)
	common.PrintField("User", result.UserId)
	common.PrintField("Wallet", result.WalletId)
	common.PrintField("Destination", result.Destination)
	if !result.Success {
		common.PrintField("Status", fmt.Sprintf("FAILED (%s)", result.Error))
		common.PrintSeparator("=", common.DefaultWidth)
		return
	}
	common.PrintField("Amount", result.AmountDisplay)
	common.PrintField("Transaction", result.TransactionHash)
	common.PrintFooter("Withdrawal submitted", common.DefaultWidth)
}
