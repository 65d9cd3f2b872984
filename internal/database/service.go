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

package database

import (
	"context"
	"database/sql"
	"fmt"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Compile-time checks: *Service backs both the schedule document and the journal.
var (
	_ store.ScheduleStore    = (*Service)(nil)
	_ store.ExecutionJournal = (*Service)(nil)
	_ store.ExecutionHistory = (*Service)(nil)
)

type Service struct {
	db           *sql.DB
	schedulesKey string
}

func NewService(ctx context.Context, cfg models.DatabaseConfig, schedulesKey string) (*Service, error) {
	// Validate configuration
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if cfg.MaxOpenConns <= 0 {
		return nil, fmt.Errorf("max open connections must be positive, got %d", cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns < 0 {
		return nil, fmt.Errorf("max idle connections cannot be negative, got %d", cfg.MaxIdleConns)
	}
	if cfg.PingTimeout <= 0 {
		return nil, fmt.Errorf("ping timeout must be positive, got %v", cfg.PingTimeout)
	}

	zap.L().Info("Opening SQLite database", zap.String("file", cfg.Path))
	db, err := sql.Open("sqlite3", cfg.Path+"?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=1000&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("unable to open database: %w", err)
	}

	// Set connection timeouts and limits
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Test connection with timeout
	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	service := newService(db, schedulesKey)
	if err := service.InitSchema(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, closeErr
		}
		return nil, fmt.Errorf("unable to initialize schema: %w", err)
	}

	zap.L().Info("Database service initialized successfully",
		zap.String("schedules_key", service.schedulesKey))
	return service, nil
}

func newService(db *sql.DB, schedulesKey string) *Service {
	if schedulesKey == "" {
		schedulesKey = "dca:schedules"
	}
	return &Service{db: db, schedulesKey: schedulesKey}
}

func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		zap.L().Warn("Failed to close database connection", zap.Error(err))
	}
}

func (s *Service) InitSchema() error {
	schema := `
	-- Versioned key/value documents (the schedule collection lives under one key)
	CREATE TABLE IF NOT EXISTS kv_documents (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	-- Execution journal (append only, one row per executed period)
	CREATE TABLE IF NOT EXISTS dca_executions (
		id TEXT PRIMARY KEY,
		reference TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		wallet_id TEXT NOT NULL,
		period INTEGER NOT NULL,
		sell_amount TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		approval_hash TEXT NOT NULL DEFAULT '',
		run_id TEXT NOT NULL DEFAULT '',
		executed_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_dca_executions_wallet ON dca_executions(wallet_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_dca_executions_user ON dca_executions(user_id);
	CREATE INDEX IF NOT EXISTS idx_dca_executions_tx_hash ON dca_executions(tx_hash);
	`

	_, err := s.db.Exec(schema)
	return err
}
