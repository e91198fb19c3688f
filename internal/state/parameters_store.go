// ./internal/state/parameters_store.go
package state

import (
	"database/sql"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/synthcore/internal/types"
)

// SaveRiskParameters saves a new version of the risk parameter set.
func SaveRiskParameters(params types.RiskParameters, configName string, version int, makeActive bool) (int64, error) {
	if DB == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	if err := params.Validate(); err != nil {
		return 0, fmt.Errorf("refusing to persist invalid parameters: %w", err)
	}

	tx, err := DB.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	if makeActive {
		stmtDeactivate := `UPDATE risk_parameters SET is_active = FALSE WHERE config_name = $1 AND is_active = TRUE;`
		_, err = tx.Exec(stmtDeactivate, configName)
		if err != nil {
			return 0, fmt.Errorf("failed to deactivate existing active parameters for %s: %w", configName, err)
		}
	}

	stmt := `
        INSERT INTO risk_parameters (
            version, config_name, is_active, activated_at, created_at,
            mint_ratio, liquidation_ratio, liquidation_threshold,
            liquidation_bonus, exchange_fee_rate
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8,
            $9, $10
        ) RETURNING params_id;`

	var paramsID int64
	currentTime := time.Now()
	err = tx.QueryRow(
		stmt,
		version, configName, makeActive, currentTime, currentTime,
		params.MintRatio.String(), params.LiquidationRatio.String(), params.LiquidationThreshold.String(),
		params.LiquidationBonus.String(), params.ExchangeFeeRate.String(),
	).Scan(&paramsID)

	if err != nil {
		return 0, fmt.Errorf("failed to insert risk parameters: %w", err)
	}

	err = tx.Commit()
	if err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Int("version", version).
		Str("config", configName).
		Int64("params_id", paramsID).
		Bool("active", makeActive).
		Msg("Saved risk parameters")
	return paramsID, nil
}

// LoadActiveRiskParameters loads the currently active risk parameter set for
// a config name. Returns sql.ErrNoRows when none has been activated yet.
func LoadActiveRiskParameters(configName string) (*types.RiskParameters, int64, error) {
	if DB == nil {
		return nil, 0, fmt.Errorf("database not initialized")
	}

	query := `
		SELECT params_id, mint_ratio, liquidation_ratio, liquidation_threshold,
		       liquidation_bonus, exchange_fee_rate
		FROM risk_parameters
		WHERE config_name = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		paramsID                                      int64
		mintRatio, liqRatio, liqThreshold, bonus, fee string
	)
	err := DB.QueryRow(query, configName).Scan(&paramsID, &mintRatio, &liqRatio, &liqThreshold, &bonus, &fee)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, 0, err
		}
		return nil, 0, fmt.Errorf("failed to load active risk parameters for %s: %w", configName, err)
	}

	params, err := parseRiskParameters(mintRatio, liqRatio, liqThreshold, bonus, fee)
	if err != nil {
		return nil, 0, fmt.Errorf("stored risk parameters for %s are corrupt: %w", configName, err)
	}

	log.Info().
		Str("config", configName).
		Int64("params_id", paramsID).
		Msg("Loaded active risk parameters")
	return params, paramsID, nil
}

func parseRiskParameters(mintRatio, liqRatio, liqThreshold, bonus, fee string) (*types.RiskParameters, error) {
	out := &types.RiskParameters{}
	fields := []struct {
		raw  string
		dest *sdkmath.LegacyDec
	}{
		{mintRatio, &out.MintRatio},
		{liqRatio, &out.LiquidationRatio},
		{liqThreshold, &out.LiquidationThreshold},
		{bonus, &out.LiquidationBonus},
		{fee, &out.ExchangeFeeRate},
	}
	for _, f := range fields {
		dec, err := sdkmath.LegacyNewDecFromStr(f.raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %q: %w", f.raw, err)
		}
		*f.dest = dec
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
