// ./internal/state/receipts_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/synthcore/internal/types"
)

// SaveOperationReceipt persists the outcome of a single engine operation.
// Failed operations are recorded too; the receipt trail is the audit log.
func SaveOperationReceipt(receipt types.OperationReceipt) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO operation_receipts (
			operation_id, operation_timestamp, operation_type,
			user_address, counterparty, asset,
			amount_requested, amount_executed,
			success, message
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING receipt_id;
	`

	var receiptID int64
	err := DB.QueryRow(
		query,
		receipt.OperationID, receipt.Timestamp, string(receipt.Type),
		receipt.User, receipt.Counterparty, receipt.Asset,
		receipt.AmountRequested, receipt.AmountExecuted,
		receipt.Success, receipt.Message,
	).Scan(&receiptID)

	if err != nil {
		return 0, fmt.Errorf("failed to save operation receipt: %w", err)
	}

	log.Debug().
		Int64("receipt_id", receiptID).
		Str("operation_type", string(receipt.Type)).
		Str("user", receipt.User).
		Bool("success", receipt.Success).
		Msg("Operation receipt saved")
	return receiptID, nil
}

// GetRecentReceipts retrieves the latest operation receipts.
func GetRecentReceipts(limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT receipt_id, operation_id, operation_timestamp, operation_type,
		       user_address, counterparty, asset,
		       amount_requested, amount_executed, success, message
		FROM operation_receipts
		ORDER BY operation_timestamp DESC
		LIMIT $1;
	`
	return scanReceipts(query, limit)
}

// GetReceiptsForUser retrieves the latest receipts touching a user, either
// as the acting party or as the liquidated counterparty.
func GetReceiptsForUser(user string, limit int) ([]types.OperationReceipt, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	query := `
		SELECT receipt_id, operation_id, operation_timestamp, operation_type,
		       user_address, counterparty, asset,
		       amount_requested, amount_executed, success, message
		FROM operation_receipts
		WHERE user_address = $1 OR counterparty = $1
		ORDER BY operation_timestamp DESC
		LIMIT $2;
	`
	return scanReceipts(query, user, limit)
}

func scanReceipts(query string, args ...any) ([]types.OperationReceipt, error) {
	rows, err := DB.Query(query, args...)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query operation receipts")
		return nil, fmt.Errorf("failed to query operation receipts: %w", err)
	}
	defer rows.Close()

	var receipts []types.OperationReceipt
	for rows.Next() {
		var r types.OperationReceipt
		var opType string
		err := rows.Scan(
			&r.ReceiptID, &r.OperationID, &r.Timestamp, &opType,
			&r.User, &r.Counterparty, &r.Asset,
			&r.AmountRequested, &r.AmountExecuted, &r.Success, &r.Message,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan receipt row")
			continue // Skip this row and continue with others
		}
		r.Type = types.OperationType(opType)
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating receipt rows: %w", err)
	}
	return receipts, nil
}
