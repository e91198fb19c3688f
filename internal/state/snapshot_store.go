// ./internal/state/snapshot_store.go
package state

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/synthcore/internal/types"
)

// SavePositionSnapshot records a user's risk position after a state change.
func SavePositionSnapshot(snapshot types.PositionSnapshot) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}

	query := `
		INSERT INTO position_snapshots (
			snapshot_timestamp, user_address,
			collateral_usd, debt_usd, health_factor
		) VALUES ($1, $2, $3, $4, $5)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err := DB.QueryRow(
		query,
		snapshot.Timestamp, snapshot.User,
		snapshot.CollateralUSD, snapshot.DebtUSD, snapshot.HealthFactor,
	).Scan(&snapshotID)

	if err != nil {
		return 0, fmt.Errorf("failed to save position snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Str("user", snapshot.User).
		Float64("health_factor", snapshot.HealthFactor).
		Msg("Position snapshot saved")
	return snapshotID, nil
}

// GetPositionHistory retrieves a user's recent position snapshots, newest
// first.
func GetPositionHistory(user string, limit int) ([]types.PositionSnapshot, error) {
	if DB == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	query := `
		SELECT snapshot_id, snapshot_timestamp, user_address,
		       collateral_usd, debt_usd, health_factor
		FROM position_snapshots
		WHERE user_address = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT $2;
	`

	rows, err := DB.Query(query, user, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query position history")
		return nil, fmt.Errorf("failed to query position history: %w", err)
	}
	defer rows.Close()

	var snapshots []types.PositionSnapshot
	for rows.Next() {
		var s types.PositionSnapshot
		err := rows.Scan(
			&s.SnapshotID, &s.Timestamp, &s.User,
			&s.CollateralUSD, &s.DebtUSD, &s.HealthFactor,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to scan position snapshot row")
			continue // Skip this row and continue with others
		}
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating position snapshot rows: %w", err)
	}
	return snapshots, nil
}

// GetLatestPosition returns the most recent snapshot for a user, or nil when
// none has been recorded.
func GetLatestPosition(user string) (*types.PositionSnapshot, error) {
	snapshots, err := GetPositionHistory(user, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil
	}
	return &snapshots[0], nil
}
