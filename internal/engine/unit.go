package engine

import (
	"context"
	"errors"
	"math/big"

	"dca-engine-go/internal/chain"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/quote"
	"dca-engine-go/internal/store"

	"go.uber.org/zap"
)

// executeUnit converts one period's allocation. The caller holds the
// schedule's lock and s is its latest persisted state.
func (e *Engine) executeUnit(ctx context.Context, s *models.Schedule) models.ExecutionResult {
	logger := zap.L().With(
		zap.String("user_id", s.UserId),
		zap.String("wallet_id", s.WalletId),
		zap.Int("period", s.ExecutedPeriods+1),
		zap.Int("total_periods", s.TotalPeriods))

	balance, err := e.oracle.BalanceOf(ctx, e.opts.StableToken.Address, s.WalletAddress)
	if err != nil {
		logger.Warn("Balance read failed", zap.Error(err))
		return failed(s, "balance read failed: "+err.Error())
	}
	if balance.Sign() == 0 {
		logger.Info("No balance to convert")
		return skipped(s, "no balance")
	}

	sellAmount := Allocate(balance, s.RemainingPeriods())
	if sellAmount.Sign() == 0 {
		logger.Info("Balance below one unit per remaining period", zap.String("balance", balance.String()))
		return skipped(s, "balance too small to allocate")
	}
	display := FormatAmount(sellAmount, e.opts.StableToken)
	logger.Info("Executing DCA period",
		zap.String("balance", balance.String()),
		zap.String("sell_amount", sellAmount.String()),
		zap.String("sell_amount_display", display))

	q, err := e.quotes.GetQuote(ctx, quote.Request{
		SellToken:  e.opts.StableToken.Address,
		BuyToken:   e.opts.VolatileToken.Address,
		SellAmount: sellAmount,
		Taker:      s.WalletAddress,
	})
	if err != nil {
		logger.Warn("Quote failed", zap.Error(err))
		return failed(s, "quote failed: "+err.Error())
	}

	res := result(s, models.OutcomeExecuted, "")
	res.SellAmount = sellAmount.String()
	res.SellAmountHuman = display

	if needsApproval(q.AllowanceTarget, s.WalletAddress) {
		approveAmount := new(big.Int).Mul(sellAmount, big.NewInt(e.opts.ApprovalMultiplier))
		approveTx, err := chain.ApproveTransaction(e.opts.StableToken.Address, q.AllowanceTarget, approveAmount)
		if err != nil {
			return withDetail(res, models.OutcomeError, "approval encoding failed: "+err.Error())
		}

		approval, err := e.submitter.SendTransaction(ctx, s.WalletId, approveTx)
		if err != nil {
			logger.Warn("Approval failed", zap.String("spender", q.AllowanceTarget), zap.Error(err))
			return withDetail(res, models.OutcomeError, "approval failed: "+err.Error())
		}
		res.ApprovalHash = approval.Hash
		logger.Info("Allowance approved",
			zap.String("spender", q.AllowanceTarget),
			zap.String("amount", approveAmount.String()),
			zap.String("tx_hash", approval.Hash))

		if err := e.sleep(ctx, e.opts.SettleDelay); err != nil {
			return withDetail(res, models.OutcomeError, "interrupted while waiting for approval: "+err.Error())
		}
	}

	runId := ""
	if ec := models.GetExecutionContext(ctx); ec != nil {
		runId = ec.RunId
	}
	if err := e.markInFlight(ctx, s, runId); err != nil {
		if errors.Is(err, errScheduleGone) {
			logger.Info("Schedule cancelled before swap submission")
			return withDetail(res, models.OutcomeSkipped, "schedule replaced or cancelled")
		}
		if errors.Is(err, errPeriodClaimed) {
			logger.Warn("Period claimed by another execution, swap not submitted")
			return withDetail(res, models.OutcomeSkipped, "period already claimed by another execution")
		}
		logger.Error("Unable to persist in-flight marker, swap not submitted", zap.Error(err))
		return withDetail(res, models.OutcomeError, "unable to record in-flight execution: "+err.Error())
	}

	swapTx := q.Transaction
	swapTx.IdempotencyKey = s.ExecutionReference()
	swap, err := e.submitter.SendTransaction(ctx, s.WalletId, swapTx)
	if err != nil {
		logger.Warn("Swap failed", zap.Error(err))
		if clearErr := e.clearInFlight(ctx, s); clearErr != nil && !errors.Is(clearErr, errScheduleGone) {
			logger.Error("Unable to clear in-flight marker after failed swap", zap.Error(clearErr))
		}
		return withDetail(res, models.OutcomeError, "swap failed: "+err.Error())
	}
	res.TransactionHash = swap.Hash

	executedAt := e.now()
	if err := e.journal.RecordExecution(ctx, store.RecordExecutionParams{
		Reference:    s.ExecutionReference(),
		UserId:       s.UserId,
		WalletId:     s.WalletId,
		Period:       s.ExecutedPeriods + 1,
		SellAmount:   sellAmount.String(),
		TxHash:       swap.Hash,
		ApprovalHash: res.ApprovalHash,
		ExecutedAt:   executedAt,
	}); err != nil {
		logger.Error("Unable to journal execution", zap.String("tx_hash", swap.Hash), zap.Error(err))
	}

	committed, err := e.commitSuccess(ctx, s, executedAt)
	switch {
	case errors.Is(err, errScheduleGone):
		logger.Warn("Swap executed but schedule was replaced or cancelled meanwhile",
			zap.String("tx_hash", swap.Hash))
		res.Detail = "schedule replaced or cancelled after swap"
		return res
	case err != nil:
		logger.Error("Swap executed but schedule update failed; reconciliation required",
			zap.String("tx_hash", swap.Hash),
			zap.String("reference", s.ExecutionReference()),
			zap.Error(err))
		res.RequiresReconciliation = true
		return withDetail(res, models.OutcomeError, "swap submitted but schedule update failed: "+err.Error())
	}

	res.ExecutedPeriods = committed.ExecutedPeriods
	res.TotalPeriods = committed.TotalPeriods
	logger.Info("DCA period executed",
		zap.String("tx_hash", swap.Hash),
		zap.Int("executed_periods", committed.ExecutedPeriods))
	return res
}

// needsApproval reports whether the quote's allowance target must be approved
// to spend the wallet's stable balance.
func needsApproval(allowanceTarget, walletAddress string) bool {
	if allowanceTarget == "" {
		return false
	}
	if chain.SameAddress(allowanceTarget, walletAddress) || chain.IsZeroAddress(allowanceTarget) {
		return false
	}
	return true
}

func withDetail(res models.ExecutionResult, outcome models.Outcome, detail string) models.ExecutionResult {
	res.Outcome = outcome
	res.Detail = detail
	return res
}
