package formance

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"go.uber.org/zap"
)

// numscriptExecution moves the sold amount out of the wallet's stable
// account. The transaction reference is the execution reference, so a
// repeated write is rejected by the ledger as a conflict.
const numscriptExecution = `vars {
  asset $asset
  number $amount
  account $wallet_id
  string $execution_ref
  string $user_id
  string $period
  string $tx_hash
  string $approval_hash
  string $run_id
  string $amount_human
}

send [$asset $amount] (
  source = @dca:wallets:$wallet_id:stable allowing unbounded overdraft
  destination = @dca:wallets:$wallet_id:swapped
)

set_tx_meta("event_type", "dca_execution")
set_tx_meta("execution_ref", $execution_ref)
set_tx_meta("user_id", $user_id)
set_tx_meta("period", $period)
set_tx_meta("tx_hash", $tx_hash)
set_tx_meta("approval_hash", $approval_hash)
set_tx_meta("run_id", $run_id)
set_tx_meta("amount_human", $amount_human)
`

const journalAsset = "USDC"

func (s *Service) RecordExecution(ctx context.Context, params store.RecordExecutionParams) error {
	if params.Reference == "" {
		return fmt.Errorf("execution reference cannot be empty")
	}
	amount, ok := new(big.Int).SetString(params.SellAmount, 10)
	if !ok {
		return fmt.Errorf("invalid sell amount %q", params.SellAmount)
	}

	runId := ""
	if ec := models.GetExecutionContext(ctx); ec != nil {
		runId = ec.RunId
	}

	executedAt := params.ExecutedAt.UTC()
	postTx := shared.V2PostTransaction{
		Reference: strPtr(params.Reference),
		Script: &shared.V2PostTransactionScript{
			Plain: numscriptExecution,
			Vars: map[string]string{
				"asset":         formanceAsset(journalAsset),
				"amount":        amount.String(),
				"wallet_id":     params.WalletId,
				"execution_ref": params.Reference,
				"user_id":       params.UserId,
				"period":        strconv.Itoa(params.Period),
				"tx_hash":       params.TxHash,
				"approval_hash": params.ApprovalHash,
				"run_id":        runId,
				"amount_human":  bigIntToDecimal(amount, journalAsset).String(),
			},
		},
		Timestamp: &executedAt,
	}

	_, err := s.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger:            s.ledger,
		V2PostTransaction: postTx,
	})
	if err != nil {
		if isConflictError(err) {
			existing, findErr := s.FindExecution(ctx, params.Reference)
			if findErr != nil {
				return findErr
			}
			if existing != nil && existing.TxHash != params.TxHash {
				return fmt.Errorf("%w: reference %s already recorded with tx %s",
					store.ErrDuplicateTransaction, params.Reference, existing.TxHash)
			}
			return nil // idempotent
		}
		return fmt.Errorf("error recording execution: %w", err)
	}

	zap.L().Info("Execution recorded in Formance",
		zap.String("reference", params.Reference),
		zap.String("wallet_id", params.WalletId),
		zap.String("tx_hash", params.TxHash))
	return nil
}

func (s *Service) FindExecution(ctx context.Context, reference string) (*models.ExecutionRecord, error) {
	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: ptrInt64(1),
		RequestBody: map[string]any{
			"$match": map[string]any{
				"metadata[execution_ref]": reference,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to look up execution %s: %w", reference, err)
	}

	data := resp.V2TransactionsCursorResponse.Cursor.Data
	if len(data) == 0 {
		return nil, nil
	}
	tx := data[0]
	if tx.Reverted {
		return nil, nil
	}

	id := ""
	if tx.ID != nil {
		id = tx.ID.String()
	}
	return executionFromTx(id, tx.Timestamp, tx.Postings, tx.Metadata), nil
}

// executionFromTx rebuilds a journal record from a ledger transaction.
func executionFromTx(id string, ts time.Time, postings []shared.V2Posting, meta map[string]string) *models.ExecutionRecord {
	record := &models.ExecutionRecord{
		Id:           id,
		Reference:    meta["execution_ref"],
		UserId:       meta["user_id"],
		TxHash:       meta["tx_hash"],
		ApprovalHash: meta["approval_hash"],
		RunId:        meta["run_id"],
		ExecutedAt:   ts,
	}
	if p, err := strconv.Atoi(meta["period"]); err == nil {
		record.Period = p
	}
	for _, posting := range postings {
		if assetSymbol(posting.Asset) != journalAsset || posting.Amount == nil {
			continue
		}
		record.SellAmount = posting.Amount.String()
		record.WalletId = walletFromAccount(posting.Source)
		break
	}
	return record
}

// walletFromAccount extracts the wallet id from "dca:wallets:<id>:stable".
func walletFromAccount(account string) string {
	const prefix = "dca:wallets:"
	if len(account) <= len(prefix) || account[:len(prefix)] != prefix {
		return ""
	}
	rest := account[len(prefix):]
	for i := len(rest) - 1; i >= 0; i-- {
		if rest[i] == ':' {
			return rest[:i]
		}
	}
	return rest
}

// GetWalletExecutions returns journal records for a wallet, newest first. The
// ledger pages by cursor, so offset is applied to the first page.
func (s *Service) GetWalletExecutions(ctx context.Context, walletId string, limit, offset int) ([]models.ExecutionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	pageSize := int64(limit + offset)
	if pageSize > 1000 {
		pageSize = 1000
	}

	resp, err := s.client.Ledger.V2.ListTransactions(ctx, operations.V2ListTransactionsRequest{
		Ledger:   s.ledger,
		PageSize: ptrInt64(pageSize),
		RequestBody: map[string]any{
			"$and": []map[string]any{
				{"$match": map[string]any{"source": fmt.Sprintf("dca:wallets:%s:stable", walletId)}},
				{"$match": map[string]any{"metadata[event_type]": "dca_execution"}},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions for wallet %s: %w", walletId, err)
	}

	var records []models.ExecutionRecord
	for _, tx := range resp.V2TransactionsCursorResponse.Cursor.Data {
		if tx.Reverted {
			continue
		}
		id := ""
		if tx.ID != nil {
			id = tx.ID.String()
		}
		records = append(records, *executionFromTx(id, tx.Timestamp, tx.Postings, tx.Metadata))
	}

	if offset >= len(records) {
		return []models.ExecutionRecord{}, nil
	}
	records = records[offset:]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}
