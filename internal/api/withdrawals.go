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
	"math/big"

	"dca-engine-go/internal/chain"
	"dca-engine-go/internal/engine"
	"dca-engine-go/internal/lock"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"go.uber.org/zap"
)

// WalletService reads a user's custody wallet and moves the stable balance
// out of it.
type WalletService struct {
	repo      *store.Repository
	locker    lock.Locker
	oracle    engine.BalanceOracle
	submitter engine.TransactionSubmitter
	stable    models.Token
	volatile  models.Token
}

func NewWalletService(repo *store.Repository, locker lock.Locker, oracle engine.BalanceOracle, submitter engine.TransactionSubmitter, stable, volatile models.Token) *WalletService {
	return &WalletService{
		repo:      repo,
		locker:    locker,
		oracle:    oracle,
		submitter: submitter,
		stable:    stable,
		volatile:  volatile,
	}
}

// GetBalances reads the stable and volatile balances of the user's wallet.
func (s *WalletService) GetBalances(ctx context.Context, userId string) (*models.WalletBalances, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}

	schedule, err := s.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: user %s", store.ErrScheduleNotFound, userId)
	}

	balances := &models.WalletBalances{
		UserId:        userId,
		WalletId:      schedule.WalletId,
		WalletAddress: schedule.WalletAddress,
	}
	for _, token := range []models.Token{s.stable, s.volatile} {
		amount, err := s.oracle.BalanceOf(ctx, token.Address, schedule.WalletAddress)
		if err != nil {
			return nil, fmt.Errorf("unable to read %s balance: %w", token.Symbol, err)
		}
		balances.Balances = append(balances.Balances, models.TokenBalance{
			Symbol:  token.Symbol,
			Address: token.Address,
			Amount:  amount.String(),
			Display: engine.FormatAmount(amount, token),
		})
	}
	return balances, nil
}

// Withdraw transfers amount of the stable token from the user's wallet to
// destination. A nil amount withdraws the whole balance. The wallet's
// schedule lock is held so a swap cannot run against the same balance.
func (s *WalletService) Withdraw(ctx context.Context, userId, destination string, amount *big.Int) (*models.WithdrawalResult, error) {
	if userId == "" {
		return nil, fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	if err := chain.ValidateAddress(destination); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if chain.IsZeroAddress(destination) {
		return nil, fmt.Errorf("%w: destination cannot be the zero address", ErrInvalidRequest)
	}
	if amount != nil && amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrInvalidRequest)
	}

	schedule, err := s.repo.FindByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	if schedule == nil {
		return nil, fmt.Errorf("%w: user %s", store.ErrScheduleNotFound, userId)
	}

	lease, ok, err := s.locker.TryAcquire(ctx, engine.WalletLockKey(schedule.WalletId))
	if err != nil {
		return nil, fmt.Errorf("unable to lock wallet: %w", err)
	}
	if !ok {
		return nil, engine.ErrExecutionInProgress
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			zap.L().Warn("Failed to release wallet lock", zap.String("wallet_id", schedule.WalletId), zap.Error(err))
		}
	}()

	balance, err := s.oracle.BalanceOf(ctx, s.stable.Address, schedule.WalletAddress)
	if err != nil {
		return nil, fmt.Errorf("balance read failed: %w", err)
	}

	result := &models.WithdrawalResult{
		UserId:      userId,
		WalletId:    schedule.WalletId,
		Destination: destination,
	}

	if amount == nil {
		amount = balance
	}
	if amount.Sign() == 0 {
		result.Error = "no balance to withdraw"
		return result, nil
	}
	if amount.Cmp(balance) > 0 {
		result.Error = fmt.Sprintf("insufficient balance: have %s, requested %s",
			engine.FormatAmount(balance, s.stable), engine.FormatAmount(amount, s.stable))
		return result, nil
	}

	result.Amount = amount.String()
	result.AmountDisplay = engine.FormatAmount(amount, s.stable)

	tx, err := chain.TransferTransaction(s.stable.Address, destination, amount)
	if err != nil {
		return nil, err
	}

	zap.L().Info("Submitting withdrawal",
		zap.String("user_id", userId),
		zap.String("wallet_id", schedule.WalletId),
		zap.String("destination", destination),
		zap.String("amount", result.AmountDisplay))

	submitted, err := s.submitter.SendTransaction(ctx, schedule.WalletId, tx)
	if err != nil {
		zap.L().Error("Withdrawal failed",
			zap.String("user_id", userId),
			zap.String("wallet_id", schedule.WalletId),
			zap.Error(err))
		result.Error = err.Error()
		return result, nil
	}

	result.Success = true
	result.TransactionHash = submitted.Hash
	zap.L().Info("Withdrawal submitted",
		zap.String("user_id", userId),
		zap.String("tx_hash", submitted.Hash))
	return result, nil
}
