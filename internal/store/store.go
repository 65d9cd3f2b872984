package store

import (
	"context"
	"errors"
	"time"

	"dca-engine-go/internal/models"
)

// Sentinel errors shared across all backend implementations.
var (
	ErrDuplicateTransaction   = errors.New("duplicate transaction")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrScheduleNotFound       = errors.New("schedule not found")
	ErrStoreUnavailable       = errors.New("schedule store unavailable")
)

// Snapshot is the schedule collection as read from a backend. Version is 0
// when the collection has never been written.
type Snapshot struct {
	Schedules []models.Schedule
	Version   int64
}

// ScheduleStore is the document backend holding the schedule collection
// under one logical key. There is no per-record update primitive: callers
// replace the whole collection.
type ScheduleStore interface {
	// Load returns the collection. A missing document is an empty snapshot;
	// any other failure is returned wrapped in ErrStoreUnavailable.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the collection if the stored version still equals
	// expectedVersion and returns the new version. A mismatch returns
	// ErrConcurrentModification.
	Save(ctx context.Context, schedules []models.Schedule, expectedVersion int64) (int64, error)

	Close()
}

// RecordExecutionParams describes one executed period for the journal.
type RecordExecutionParams struct {
	Reference    string
	UserId       string
	WalletId     string
	Period       int
	SellAmount   string
	TxHash       string
	ApprovalHash string
	ExecutedAt   time.Time
}

// ExecutionJournal keeps an append-only record of submitted swaps so a
// schedule whose commit failed can be reconciled.
type ExecutionJournal interface {
	// RecordExecution is idempotent on Reference.
	RecordExecution(ctx context.Context, params RecordExecutionParams) error

	// FindExecution returns nil, nil when no record exists.
	FindExecution(ctx context.Context, reference string) (*models.ExecutionRecord, error)
}

// ExecutionHistory is implemented by journals that can list a wallet's
// executions.
type ExecutionHistory interface {
	GetWalletExecutions(ctx context.Context, walletId string, limit, offset int) ([]models.ExecutionRecord, error)
}

// NopJournal is used when JOURNAL_BACKEND=none.
type NopJournal struct{}

func (NopJournal) RecordExecution(context.Context, RecordExecutionParams) error { return nil }

func (NopJournal) FindExecution(context.Context, string) (*models.ExecutionRecord, error) {
	return nil, nil
}
