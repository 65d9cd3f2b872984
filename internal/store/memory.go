package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"dca-engine-go/internal/models"
)

// MemoryStore is an in-process ScheduleStore. It round-trips through JSON so
// callers never share memory with the stored document.
type MemoryStore struct {
	mu      sync.Mutex
	doc     []byte
	version int64

	// LoadErr and SaveErr, when set, are returned by the next calls.
	LoadErr error
	SaveErr error
}

var _ ScheduleStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load(_ context.Context) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.LoadErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, m.LoadErr)
	}
	if m.doc == nil {
		return &Snapshot{Schedules: []models.Schedule{}}, nil
	}

	var schedules []models.Schedule
	if err := json.Unmarshal(m.doc, &schedules); err != nil {
		return nil, fmt.Errorf("%w: corrupt document: %v", ErrStoreUnavailable, err)
	}
	return &Snapshot{Schedules: schedules, Version: m.version}, nil
}

func (m *MemoryStore) Save(_ context.Context, schedules []models.Schedule, expectedVersion int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.SaveErr != nil {
		return 0, m.SaveErr
	}
	if m.version != expectedVersion {
		return 0, fmt.Errorf("%w: expected version %d, found %d", ErrConcurrentModification, expectedVersion, m.version)
	}

	if schedules == nil {
		schedules = []models.Schedule{}
	}
	doc, err := json.Marshal(schedules)
	if err != nil {
		return 0, fmt.Errorf("failed to encode schedules: %w", err)
	}
	m.doc = doc
	m.version++
	return m.version, nil
}

func (m *MemoryStore) Close() {}

// Version returns the current document version.
func (m *MemoryStore) Version() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.version
}
