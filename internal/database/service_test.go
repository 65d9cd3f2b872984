package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"dca-engine-go/internal/lock"
	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
)

func setupTestDb(t *testing.T) (*Service, func()) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	service := newService(db, "dca:schedules")

	// Use the actual schema initialization
	if err := service.InitSchema(); err != nil {
		t.Fatalf("Failed to create test schema: %v", err)
	}

	cleanup := func() {
		db.Close()
	}

	return service, cleanup
}

func TestLoad_MissingDocumentIsEmpty(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	snap, err := service.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Version != 0 {
		t.Errorf("Expected version 0, got %d", snap.Version)
	}
	if snap.Schedules == nil || len(snap.Schedules) != 0 {
		t.Errorf("Expected empty non-nil collection, got %v", snap.Schedules)
	}
}

func TestSave_RoundTripAndVersioning(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	last := int64(1700000000000)
	schedules := []models.Schedule{{
		UserId:            "user1",
		WalletId:          "wallet1",
		WalletAddress:     "0xabc",
		ExecutedPeriods:   3,
		TotalPeriods:      52,
		NextExecutionTime: last + 1000,
		LastExecutionTime: &last,
		IsActive:          true,
		CreatedAt:         1690000000000,
	}}

	version, err := service.Save(ctx, schedules, 0)
	if err != nil {
		t.Fatalf("Initial save failed: %v", err)
	}
	if version != 1 {
		t.Errorf("Expected version 1, got %d", version)
	}

	snap, err := service.Load(ctx)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if snap.Version != 1 || len(snap.Schedules) != 1 {
		t.Fatalf("Unexpected snapshot %+v", snap)
	}
	got := snap.Schedules[0]
	if got.WalletId != "wallet1" || got.ExecutedPeriods != 3 || got.LastExecutionTime == nil || *got.LastExecutionTime != last {
		t.Errorf("Schedule did not round-trip: %+v", got)
	}

	snap.Schedules[0].ExecutedPeriods = 4
	version, err = service.Save(ctx, snap.Schedules, snap.Version)
	if err != nil {
		t.Fatalf("Second save failed: %v", err)
	}
	if version != 2 {
		t.Errorf("Expected version 2, got %d", version)
	}
}

func TestSave_StaleVersionRejected(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.Save(ctx, []models.Schedule{{UserId: "u1"}}, 0); err != nil {
		t.Fatalf("Initial save failed: %v", err)
	}

	tests := []struct {
		name     string
		expected int64
	}{
		{"insert over existing document", 0},
		{"stale update", 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.Save(ctx, []models.Schedule{{UserId: "u2"}}, tt.expected)
			if !errors.Is(err, store.ErrConcurrentModification) {
				t.Errorf("Expected ErrConcurrentModification, got %v", err)
			}
		})
	}

	snap, _ := service.Load(ctx)
	if snap.Schedules[0].UserId != "u1" {
		t.Errorf("Rejected save must not change the document, got %+v", snap.Schedules)
	}
}

func TestLoad_CorruptDocumentIsUnavailable(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	if _, err := service.db.Exec(`INSERT INTO kv_documents (key, value) VALUES (?, ?)`, "dca:schedules", "{not json"); err != nil {
		t.Fatalf("Failed to seed corrupt document: %v", err)
	}

	_, err := service.Load(context.Background())
	if !errors.Is(err, store.ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable, got %v", err)
	}
}

func TestRepository_OverSQLite(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := context.Background()
	repo := store.NewRepository(service, lock.NewLocal(), 5)

	if err := repo.WriteAll(ctx, []models.Schedule{
		{UserId: "u1", WalletId: "w1", TotalPeriods: 52, IsActive: true},
		{UserId: "u2", WalletId: "w2", TotalPeriods: 52, IsActive: true},
	}); err != nil {
		t.Fatalf("WriteAll failed: %v", err)
	}

	if _, err := repo.Update(ctx, func(schedules []models.Schedule) ([]models.Schedule, error) {
		for i := range schedules {
			if schedules[i].WalletId == "w2" {
				schedules[i].ExecutedPeriods = 1
			}
		}
		return schedules, nil
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	s, err := repo.FindByWallet(ctx, "w2")
	if err != nil || s == nil {
		t.Fatalf("FindByWallet failed: %v", err)
	}
	if s.ExecutedPeriods != 1 {
		t.Errorf("Expected executedPeriods 1, got %d", s.ExecutedPeriods)
	}
}

func TestRecordExecution_Idempotent(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	ctx := models.WithExecutionContext(context.Background(), &models.ExecutionContext{RunId: "run-1", Trigger: "cron"})
	params := store.RecordExecutionParams{
		Reference:  models.ExecutionReference("wallet1", 1690000000000, 1),
		UserId:     "user1",
		WalletId:   "wallet1",
		Period:     1,
		SellAmount: "2500000",
		TxHash:     "0xhash1",
		ExecutedAt: time.Unix(1700000000, 0),
	}

	if err := service.RecordExecution(ctx, params); err != nil {
		t.Fatalf("RecordExecution failed: %v", err)
	}
	if err := service.RecordExecution(ctx, params); err != nil {
		t.Fatalf("Repeated RecordExecution should be a no-op, got %v", err)
	}

	conflicting := params
	conflicting.TxHash = "0xhash2"
	if err := service.RecordExecution(ctx, conflicting); !errors.Is(err, store.ErrDuplicateTransaction) {
		t.Errorf("Expected ErrDuplicateTransaction, got %v", err)
	}

	record, err := service.FindExecution(ctx, params.Reference)
	if err != nil {
		t.Fatalf("FindExecution failed: %v", err)
	}
	if record == nil {
		t.Fatal("Expected journal record")
	}
	if record.TxHash != "0xhash1" || record.RunId != "run-1" || record.Period != 1 {
		t.Errorf("Unexpected record %+v", record)
	}
	if !record.ExecutedAt.Equal(params.ExecutedAt) {
		t.Errorf("Expected executedAt %v, got %v", params.ExecutedAt, record.ExecutedAt)
	}

	records, err := service.GetWalletExecutions(ctx, "wallet1", 10, 0)
	if err != nil {
		t.Fatalf("GetWalletExecutions failed: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected 1 record, got %d", len(records))
	}
}

func TestFindExecution_Missing(t *testing.T) {
	service, cleanup := setupTestDb(t)
	defer cleanup()

	record, err := service.FindExecution(context.Background(), "dca:nope:0:1")
	if err != nil || record != nil {
		t.Errorf("Expected nil, nil, got %+v, %v", record, err)
	}
}
