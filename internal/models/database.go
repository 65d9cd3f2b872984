package models

import "time"

// Schedule is a user's recurring conversion plan. Timestamps are epoch
// milliseconds so the persisted JSON document stays layout-compatible.
type Schedule struct {
	UserId        string `json:"userId"`
	WalletId      string `json:"walletId"`
	WalletAddress string `json:"walletAddress"`

	ExecutedPeriods int `json:"executedPeriods"`
	TotalPeriods    int `json:"totalPeriods"`

	NextExecutionTime int64  `json:"nextExecutionTime"`
	LastExecutionTime *int64 `json:"lastExecutionTime,omitempty"`

	IsActive  bool  `json:"isActive"`
	CreatedAt int64 `json:"createdAt"`

	// Write-ahead marker, set before a swap is submitted and cleared by the
	// commit that records its outcome.
	ExecutionInFlightSince *int64 `json:"executionInFlightSince,omitempty"`
	ExecutionInFlightId    string `json:"executionInFlightId,omitempty"`
}

// RemainingPeriods returns how many periods are still to be executed.
func (s *Schedule) RemainingPeriods() int {
	return s.TotalPeriods - s.ExecutedPeriods
}

// IsComplete reports whether every period has been executed.
func (s *Schedule) IsComplete() bool {
	return s.ExecutedPeriods >= s.TotalPeriods
}

// IsDue reports whether the schedule should be attempted at now.
func (s *Schedule) IsDue(now time.Time) bool {
	return s.IsActive && s.NextExecutionTime <= now.UnixMilli()
}

// HasInFlightExecution reports whether a previous unit submitted a swap whose
// outcome was never committed.
func (s *Schedule) HasInFlightExecution() bool {
	return s.ExecutionInFlightSince != nil
}

// SameInstance reports whether other is the same plan instance. Creating a new
// plan for a user replaces the record, so walletId alone is not enough.
func (s *Schedule) SameInstance(other *Schedule) bool {
	return s.WalletId == other.WalletId && s.UserId == other.UserId && s.CreatedAt == other.CreatedAt
}

// ExecutionReference identifies the period that would be executed next. It is
// used as the idempotency key in the execution journal.
func (s *Schedule) ExecutionReference() string {
	return ExecutionReference(s.WalletId, s.CreatedAt, s.ExecutedPeriods+1)
}

// ExecutionRecord is a journal entry for one executed period.
type ExecutionRecord struct {
	Id           string    `db:"id" json:"id"`
	Reference    string    `db:"reference" json:"reference"`
	UserId       string    `db:"user_id" json:"userId"`
	WalletId     string    `db:"wallet_id" json:"walletId"`
	Period       int       `db:"period" json:"period"`
	SellAmount   string    `db:"sell_amount" json:"sellAmount"`
	TxHash       string    `db:"tx_hash" json:"txHash"`
	ApprovalHash string    `db:"approval_hash" json:"approvalHash,omitempty"`
	RunId        string    `db:"run_id" json:"runId,omitempty"`
	ExecutedAt   time.Time `db:"executed_at" json:"executedAt"`
}
