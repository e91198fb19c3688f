package state

import (
	"fmt"

	"github.com/rs/zerolog/log"
)

// ProtocolSummary represents high-level protocol statistics derived from the
// snapshot and receipt trails.
type ProtocolSummary struct {
	TotalCollateralUSD float64 `json:"total_collateral_usd"`
	TotalDebtUSD       float64 `json:"total_debt_usd"`
	PositionCount      int     `json:"position_count"`
	TotalOperations    int     `json:"total_operations"`
	LastUpdated        string  `json:"last_updated"`
}

// OperationMetrics represents aggregated outcome data over the receipt trail.
type OperationMetrics struct {
	TotalOperations      int     `json:"total_operations"`
	SuccessfulOperations int     `json:"successful_operations"`
	FailedOperations     int     `json:"failed_operations"`
	Liquidations         int     `json:"liquidations"`
	SuccessRate          float64 `json:"success_rate"`
}

// GetProtocolSummary aggregates the latest snapshot per user into a
// whole-protocol view.
func GetProtocolSummary() (*ProtocolSummary, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	// Latest snapshot per user, then sum. DISTINCT ON keeps the newest row
	// thanks to the ORDER BY.
	query := `
		WITH latest AS (
			SELECT DISTINCT ON (user_address)
				user_address, collateral_usd, debt_usd, snapshot_timestamp
			FROM position_snapshots
			ORDER BY user_address, snapshot_timestamp DESC
		)
		SELECT
			COALESCE(SUM(collateral_usd), 0),
			COALESCE(SUM(debt_usd), 0),
			COUNT(*),
			COALESCE(MAX(snapshot_timestamp)::TEXT, '')
		FROM latest
		WHERE collateral_usd > 0 OR debt_usd > 0;
	`

	summary := &ProtocolSummary{}
	err := DB.QueryRow(query).Scan(
		&summary.TotalCollateralUSD,
		&summary.TotalDebtUSD,
		&summary.PositionCount,
		&summary.LastUpdated,
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to aggregate protocol summary")
		return nil, fmt.Errorf("failed to aggregate protocol summary: %w", err)
	}

	var totalOps int
	if err := DB.QueryRow(`SELECT COUNT(*) FROM operation_receipts;`).Scan(&totalOps); err != nil {
		return nil, fmt.Errorf("failed to count operations: %w", err)
	}
	summary.TotalOperations = totalOps

	return summary, nil
}

// GetOperationMetrics aggregates success/failure counts over the receipt
// trail.
func GetOperationMetrics() (*OperationMetrics, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COUNT(*) FILTER (WHERE operation_type = 'LIQUIDATE' AND success)
		FROM operation_receipts;
	`

	metrics := &OperationMetrics{}
	err := DB.QueryRow(query).Scan(
		&metrics.TotalOperations,
		&metrics.SuccessfulOperations,
		&metrics.FailedOperations,
		&metrics.Liquidations,
	)
	if err != nil {
		log.Error().Err(err).Msg("Failed to aggregate operation metrics")
		return nil, fmt.Errorf("failed to aggregate operation metrics: %w", err)
	}

	if metrics.TotalOperations > 0 {
		metrics.SuccessRate = float64(metrics.SuccessfulOperations) / float64(metrics.TotalOperations) * 100
	}
	return metrics, nil
}

// UnhealthyPosition pairs a user with their last recorded health factor.
type UnhealthyPosition struct {
	User          string  `json:"user"`
	CollateralUSD float64 `json:"collateral_usd"`
	DebtUSD       float64 `json:"debt_usd"`
	HealthFactor  float64 `json:"health_factor"`
}

// GetUnhealthyPositions lists users whose latest snapshot sits below the
// given health factor. Snapshot data can lag prices; callers wanting a live
// answer must re-check through the engine.
func GetUnhealthyPositions(threshold float64, limit int) ([]UnhealthyPosition, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		WITH latest AS (
			SELECT DISTINCT ON (user_address)
				user_address, collateral_usd, debt_usd, health_factor
			FROM position_snapshots
			ORDER BY user_address, snapshot_timestamp DESC
		)
		SELECT user_address, collateral_usd, debt_usd, health_factor
		FROM latest
		WHERE health_factor >= 0 AND health_factor < $1 AND debt_usd > 0
		ORDER BY health_factor ASC
		LIMIT $2;
	`

	rows, err := DB.Query(query, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unhealthy positions: %w", err)
	}
	defer rows.Close()

	var positions []UnhealthyPosition
	for rows.Next() {
		var p UnhealthyPosition
		if err := rows.Scan(&p.User, &p.CollateralUSD, &p.DebtUSD, &p.HealthFactor); err != nil {
			log.Error().Err(err).Msg("Failed to scan unhealthy position row")
			continue
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating unhealthy position rows: %w", err)
	}
	return positions, nil
}
