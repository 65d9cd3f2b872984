package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordExecution appends a journal row. Recording the same reference twice
// with the same transaction hash is a no-op; a different hash is reported as
// ErrDuplicateTransaction.
func (s *Service) RecordExecution(ctx context.Context, params store.RecordExecutionParams) error {
	if params.Reference == "" {
		return fmt.Errorf("execution reference cannot be empty")
	}

	runId := ""
	if ec := models.GetExecutionContext(ctx); ec != nil {
		runId = ec.RunId
	}

	result, err := s.db.ExecContext(ctx, queryInsertExecution,
		uuid.New().String(),
		params.Reference,
		params.UserId,
		params.WalletId,
		params.Period,
		params.SellAmount,
		params.TxHash,
		params.ApprovalHash,
		runId,
		params.ExecutedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows > 0 {
		zap.L().Debug("Execution journaled",
			zap.String("reference", params.Reference),
			zap.String("tx_hash", params.TxHash))
		return nil
	}

	existing, err := s.FindExecution(ctx, params.Reference)
	if err != nil {
		return err
	}
	if existing != nil && existing.TxHash != params.TxHash {
		return fmt.Errorf("%w: reference %s already recorded with tx %s",
			store.ErrDuplicateTransaction, params.Reference, existing.TxHash)
	}
	return nil
}

func (s *Service) FindExecution(ctx context.Context, reference string) (*models.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, queryGetExecutionByReference, reference)
	record, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query execution %s: %w", reference, err)
	}
	return record, nil
}

// GetWalletExecutions returns journal rows for a wallet, newest first.
func (s *Service) GetWalletExecutions(ctx context.Context, walletId string, limit, offset int) ([]models.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx, queryGetWalletExecutions, walletId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []models.ExecutionRecord
	for rows.Next() {
		record, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExecution(row rowScanner) (*models.ExecutionRecord, error) {
	var r models.ExecutionRecord
	err := row.Scan(
		&r.Id,
		&r.Reference,
		&r.UserId,
		&r.WalletId,
		&r.Period,
		&r.SellAmount,
		&r.TxHash,
		&r.ApprovalHash,
		&r.RunId,
		&r.ExecutedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
