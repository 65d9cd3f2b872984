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
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dca-engine-go/internal/engine"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"go.uber.org/zap"
)

// Executor runs engine passes and manual executions.
type Executor interface {
	RunOnce(ctx context.Context) (*models.PassReport, error)
	ExecuteNow(ctx context.Context, userId string) (*models.ExecutionResult, error)
}

// HandlerConfig holds the HTTP layer settings.
type HandlerConfig struct {
	CronSecret   string
	PeriodLength time.Duration
}

// Handler holds the services the HTTP handlers use. wallets may be nil, in
// which case withdrawals are unavailable.
type Handler struct {
	schedules    *ScheduleService
	executor     Executor
	wallets      *WalletService
	cronSecret   string
	periodLength time.Duration
}

func NewHandler(schedules *ScheduleService, executor Executor, wallets *WalletService, cfg HandlerConfig) *Handler {
	if cfg.PeriodLength <= 0 {
		cfg.PeriodLength = 7 * 24 * time.Hour
	}
	return &Handler{
		schedules:    schedules,
		executor:     executor,
		wallets:      wallets,
		cronSecret:   cfg.CronSecret,
		periodLength: cfg.PeriodLength,
	}
}

type createScheduleRequest struct {
	UserId        string `json:"userId"`
	WalletId      string `json:"walletId"`
	WalletAddress string `json:"walletAddress"`
}

type userRequest struct {
	UserId string `json:"userId"`
}

type withdrawRequest struct {
	UserId      string `json:"userId"`
	Destination string `json:"destination"`
	Amount      string `json:"amount,omitempty"` // smallest units; empty withdraws everything
}

type cronResponse struct {
	Success       bool                     `json:"success"`
	RunId         string                   `json:"runId"`
	ExecutedCount int                      `json:"executedCount"`
	Results       []models.ExecutionResult `json:"results"`
}

type executeNowResponse struct {
	Success         bool                    `json:"success"`
	Status          models.Outcome          `json:"status"`
	TransactionHash string                  `json:"transactionHash,omitempty"`
	Week            int                     `json:"week"`
	TotalWeeks      int                     `json:"totalWeeks"`
	WeeklyAmount    string                  `json:"weeklyAmount,omitempty"`
	NextSwapIn      string                  `json:"nextSwapIn,omitempty"`
	Error           string                  `json:"error,omitempty"`
	Result          *models.ExecutionResult `json:"result"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.schedules.HealthCheck(r.Context()); err != nil {
		zap.L().Warn("Health check failed", zap.Error(err))
		respondWithJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetSchedule returns the user's schedule (or null), or every schedule
// when no userId is given.
func (h *Handler) handleGetSchedule(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("userId")
	if userId == "" {
		schedules, err := h.schedules.ListSchedules(r.Context())
		if err != nil {
			h.respondWithServiceError(w, err, "Failed to fetch schedules")
			return
		}
		respondWithJSON(w, http.StatusOK, schedules)
		return
	}

	schedule, err := h.schedules.GetSchedule(r.Context(), userId)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to fetch schedule")
		return
	}
	respondWithJSON(w, http.StatusOK, schedule)
}

func (h *Handler) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.UserId == "" || req.WalletId == "" || req.WalletAddress == "" {
		respondWithError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	schedule, err := h.schedules.CreateSchedule(r.Context(), req.UserId, req.WalletId, req.WalletAddress)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to create schedule")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"success": true, "schedule": schedule})
}

func (h *Handler) handleCancelSchedule(w http.ResponseWriter, r *http.Request) {
	userId := r.URL.Query().Get("userId")
	if userId == "" {
		respondWithError(w, http.StatusBadRequest, "User ID required")
		return
	}
	if err := h.schedules.CancelSchedule(r.Context(), userId); err != nil {
		h.respondWithServiceError(w, err, "Failed to cancel schedule")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (h *Handler) handleGetExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userId := q.Get("userId")
	if userId == "" {
		respondWithError(w, http.StatusBadRequest, "User ID required")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid offset")
		return
	}

	records, err := h.schedules.GetExecutionHistory(r.Context(), userId, limit, offset)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to fetch executions")
		return
	}
	respondWithJSON(w, http.StatusOK, records)
}

func (h *Handler) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	if h.wallets == nil {
		respondWithError(w, http.StatusNotImplemented, "Wallet balances are not configured")
		return
	}
	userId := r.URL.Query().Get("userId")
	if userId == "" {
		respondWithError(w, http.StatusBadRequest, "User ID required")
		return
	}

	balances, err := h.wallets.GetBalances(r.Context(), userId)
	if err != nil {
		h.respondWithServiceError(w, err, "Failed to read wallet balances")
		return
	}
	respondWithJSON(w, http.StatusOK, balances)
}

func (h *Handler) handleCron(w http.ResponseWriter, r *http.Request) {
	ctx := models.WithExecutionContext(r.Context(), &models.ExecutionContext{Trigger: "http"})

	report, err := h.executor.RunOnce(ctx)
	if err != nil {
		zap.L().Error("Cron pass failed", zap.Error(err))
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   "DCA pass failed",
			"details": err.Error(),
		})
		return
	}

	respondWithJSON(w, http.StatusOK, cronResponse{
		Success:       true,
		RunId:         report.RunId,
		ExecutedCount: report.Count(models.OutcomeExecuted),
		Results:       report.Results,
	})
}

func (h *Handler) handleExecuteNow(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserId == "" {
		respondWithError(w, http.StatusBadRequest, "User ID required")
		return
	}

	ctx := models.WithExecutionContext(r.Context(), &models.ExecutionContext{Trigger: "execute-now"})
	res, err := h.executor.ExecuteNow(ctx, req.UserId)
	switch {
	case errors.Is(err, store.ErrScheduleNotFound):
		respondWithError(w, http.StatusNotFound, "No active schedule found")
		return
	case errors.Is(err, engine.ErrExecutionInProgress):
		respondWithError(w, http.StatusConflict, "Execution already in progress")
		return
	case errors.Is(err, engine.ErrUnreconciled):
		respondWithJSON(w, http.StatusConflict, executeNowResponse{
			Status: models.OutcomeError,
			Error:  "Previous execution requires reconciliation",
			Result: res,
		})
		return
	case err != nil:
		h.respondWithServiceError(w, err, "Failed to execute swap")
		return
	}

	resp := executeNowResponse{
		Success:         res.Outcome == models.OutcomeExecuted,
		Status:          res.Outcome,
		TransactionHash: res.TransactionHash,
		Week:            res.ExecutedPeriods,
		TotalWeeks:      res.TotalPeriods,
		WeeklyAmount:    displayNumber(res.SellAmountHuman),
		Result:          res,
	}

	switch res.Outcome {
	case models.OutcomeExecuted:
		resp.NextSwapIn = formatPeriod(h.periodLength)
		respondWithJSON(w, http.StatusOK, resp)
	case models.OutcomeSkipped, models.OutcomeCompleted:
		resp.Error = res.Detail
		respondWithJSON(w, http.StatusOK, resp)
	default:
		resp.Error = res.Detail
		status := http.StatusInternalServerError
		if res.RequiresReconciliation {
			status = http.StatusConflict
		}
		respondWithJSON(w, status, resp)
	}
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if h.wallets == nil {
		respondWithError(w, http.StatusNotImplemented, "Withdrawals are not configured")
		return
	}

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var amount *big.Int
	if req.Amount != "" {
		parsed, ok := new(big.Int).SetString(req.Amount, 10)
		if !ok {
			respondWithError(w, http.StatusBadRequest, "Invalid amount")
			return
		}
		amount = parsed
	}

	result, err := h.wallets.Withdraw(r.Context(), req.UserId, req.Destination, amount)
	switch {
	case errors.Is(err, engine.ErrExecutionInProgress):
		respondWithError(w, http.StatusConflict, "Execution in progress for this wallet")
		return
	case err != nil:
		h.respondWithServiceError(w, err, "Failed to withdraw")
		return
	}

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadRequest
	}
	respondWithJSON(w, status, result)
}

// respondWithServiceError maps service sentinels to HTTP statuses; anything
// else is a 500 with fallback as the message.
func (h *Handler) respondWithServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrWalletInUse):
		respondWithError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrScheduleNotFound):
		respondWithError(w, http.StatusNotFound, err.Error())
	default:
		zap.L().Error(fallback, zap.Error(err))
		respondWithJSON(w, http.StatusInternalServerError, map[string]string{
			"error":   fallback,
			"details": err.Error(),
		})
	}
}

// queryInt parses an optional numeric query parameter; empty is zero.
func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

// displayNumber drops the token symbol from "2.50 USDC".
func displayNumber(display string) string {
	if i := strings.IndexByte(display, ' '); i >= 0 {
		return display[:i]
	}
	return display
}

// formatPeriod renders a period length as "1 week", "2 days" or a duration.
func formatPeriod(d time.Duration) string {
	units := []struct {
		size time.Duration
		name string
	}{
		{7 * 24 * time.Hour, "week"},
		{24 * time.Hour, "day"},
		{time.Hour, "hour"},
		{time.Minute, "minute"},
	}
	for _, u := range units {
		if d >= u.size && d%u.size == 0 {
			n := int64(d / u.size)
			if n == 1 {
				return "1 " + u.name
			}
			return fmt.Sprintf("%d %ss", n, u.name)
		}
	}
	return d.String()
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}
