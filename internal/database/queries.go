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

const (
	// Schedule document queries
	querySelectDocument = `
		SELECT value, version
		FROM kv_documents
		WHERE key = ?`

	queryInsertDocument = `
		INSERT INTO kv_documents (key, value, version, updated_at)
		VALUES (?, ?, 1, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO NOTHING`

	queryUpdateDocument = `
		UPDATE kv_documents
		SET value = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
		WHERE key = ? AND version = ?`

	// Execution journal queries
	queryInsertExecution = `
		INSERT INTO dca_executions (
			id, reference, user_id, wallet_id, period, sell_amount,
			tx_hash, approval_hash, run_id, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(reference) DO NOTHING`

	queryGetExecutionByReference = `
		SELECT id, reference, user_id, wallet_id, period, sell_amount,
		       tx_hash, approval_hash, run_id, executed_at
		FROM dca_executions
		WHERE reference = ?`

	queryGetWalletExecutions = `
		SELECT id, reference, user_id, wallet_id, period, sell_amount,
		       tx_hash, approval_hash, run_id, executed_at
		FROM dca_executions
		WHERE wallet_id = ?
		ORDER BY executed_at DESC
		LIMIT ? OFFSET ?`
)
