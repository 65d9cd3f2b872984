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

package models

import "time"

// Outcome is the per-schedule result of an engine pass or manual execution.
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCompleted Outcome = "completed"
	OutcomeExecuted  Outcome = "executed"
	OutcomeError     Outcome = "error"
)

// ExecutionResult reports what happened to one schedule
type ExecutionResult struct {
	UserId   string  `json:"userId"`
	WalletId string  `json:"walletId"`
	Outcome  Outcome `json:"outcome"`
	Detail   string  `json:"detail,omitempty"`

	TransactionHash string `json:"transactionHash,omitempty"`
	ApprovalHash    string `json:"approvalHash,omitempty"`
	SellAmount      string `json:"sellAmount,omitempty"`        // smallest units
	SellAmountHuman string `json:"sellAmountDisplay,omitempty"` // e.g. "2.50 USDC"

	ExecutedPeriods int `json:"executedPeriods"`
	TotalPeriods    int `json:"totalPeriods"`

	// RequiresReconciliation is set when a swap was submitted but its outcome
	// could not be persisted.
	RequiresReconciliation bool `json:"requiresReconciliation,omitempty"`
}

// PassReport is the result of one engine pass over the schedule collection
type PassReport struct {
	RunId      string            `json:"runId"`
	StartedAt  time.Time         `json:"startedAt"`
	FinishedAt time.Time         `json:"finishedAt"`
	Results    []ExecutionResult `json:"results"`
}

// Count returns how many results have the given outcome.
func (r *PassReport) Count(outcome Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

// WithdrawalResult reports a stable-token transfer out of a custody wallet
type WithdrawalResult struct {
	Success         bool   `json:"success"`
	UserId          string `json:"userId"`
	WalletId        string `json:"walletId"`
	Destination     string `json:"destination"`
	Amount          string `json:"amount,omitempty"`
	AmountDisplay   string `json:"amountDisplay,omitempty"`
	TransactionHash string `json:"transactionHash,omitempty"`
	Error           string `json:"error,omitempty"`
}

// TokenBalance is one token held by a schedule wallet
type TokenBalance struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"`
	Amount  string `json:"amount"`  // smallest units
	Display string `json:"display"` // e.g. "12.50 USDC"
}

// WalletBalances lists the stable and volatile balances of a schedule wallet
type WalletBalances struct {
	UserId        string         `json:"userId"`
	WalletId      string         `json:"walletId"`
	WalletAddress string         `json:"walletAddress"`
	Balances      []TokenBalance `json:"balances"`
}
