/*

This file contains the default risk parameters for the protocol.

These values gatekeep every mint, withdrawal and liquidation, so each one has
been chosen to keep the system solvent through sharp collateral drawdowns.
They are used if no active parameter set is found in the database during
initialization.

*/

package config

import (
	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/synthcore/internal/types"
)

const (
	// DefaultRiskConfigVersion is the version persisted for the built-in
	// defaults when the database holds no active set.
	DefaultRiskConfigVersion = 1
)

// DefaultRiskParameters provides the baseline risk configuration.
var DefaultRiskParameters = types.RiskParameters{
	MintRatio: sdkmath.LegacyNewDec(2), // Minting requires 200% collateralization.
	// Rationale: a 2x buffer absorbs the gap between the mint ratio and the
	// liquidation threshold, giving holders room to react before a position
	// becomes liquidatable.

	LiquidationRatio: sdkmath.LegacyNewDecWithPrec(18, 1), // Withdrawals must keep 180%.
	// Rationale: sits between the mint ratio and the liquidation threshold
	// so a withdrawal can never push a position straight into liquidation
	// territory. Liquidation repayment is also capped at the amount that
	// restores this line.

	LiquidationThreshold: sdkmath.LegacyNewDecWithPrec(15, 1), // Liquidatable below 150%.
	// Rationale: leaves a solvency margin above 100% large enough to cover
	// the liquidation bonus plus oracle lag during a crash.

	LiquidationBonus: sdkmath.LegacyNewDecWithPrec(5, 2), // 5% bonus on seized collateral.
	// Rationale: enough to make liquidation profitable after costs without
	// letting a single round strip a position of collateral it still needs.

	ExchangeFeeRate: sdkmath.LegacyNewDecWithPrec(5, 3), // 0.5% of USD notional per swap.
	// Rationale: the fee is the debt holders' compensation for carrying the
	// pooled price exposure that swaps reshape.
}
