/*

This file contains the risk parameters governing minting, withdrawal and
liquidation. Ratios are LegacyDec values where 1.0 means 100%.

*/

package types

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrRatioOrdering = errors.New("risk ratios must satisfy mint >= liquidation >= threshold > 1")
	ErrBonusTooLarge = errors.New("liquidation bonus must be below 100%")
	ErrFeeOutOfRange = errors.New("exchange fee rate must be in [0, 1)")
	ErrRatioNotSet   = errors.New("risk ratio is nil or zero")
)

// RiskParameters groups the protocol safety limits enforced by the collateral
// manager and the fee rate charged by the exchanger.
type RiskParameters struct {
	// MintRatio is the minimum collateral/debt ratio required after minting.
	MintRatio sdkmath.LegacyDec `json:"mint_ratio"`
	// LiquidationRatio is the floor enforced on withdrawals and the target
	// ratio liquidations restore a position to.
	LiquidationRatio sdkmath.LegacyDec `json:"liquidation_ratio"`
	// LiquidationThreshold is the health factor below which a position
	// becomes liquidatable.
	LiquidationThreshold sdkmath.LegacyDec `json:"liquidation_threshold"`
	// LiquidationBonus is the extra collateral share paid to liquidators on
	// top of the debt value they repay.
	LiquidationBonus sdkmath.LegacyDec `json:"liquidation_bonus"`
	// ExchangeFeeRate is the flat fee charged on the USD notional of swaps.
	ExchangeFeeRate sdkmath.LegacyDec `json:"exchange_fee_rate"`
}

// DefaultRiskParameters returns the production defaults: 200% mint ratio,
// 180% withdrawal/liquidation-target ratio, 150% liquidation threshold,
// 5% liquidation bonus and a 0.5% exchange fee.
func DefaultRiskParameters() RiskParameters {
	return RiskParameters{
		MintRatio:            sdkmath.LegacyNewDecWithPrec(20, 1), // 2.0
		LiquidationRatio:     sdkmath.LegacyNewDecWithPrec(18, 1), // 1.8
		LiquidationThreshold: sdkmath.LegacyNewDecWithPrec(15, 1), // 1.5
		LiquidationBonus:     sdkmath.LegacyNewDecWithPrec(5, 2),  // 0.05
		ExchangeFeeRate:      sdkmath.LegacyNewDecWithPrec(5, 3),  // 0.005
	}
}

// Validate checks internal consistency of the parameter set.
func (p RiskParameters) Validate() error {
	ratios := []sdkmath.LegacyDec{p.MintRatio, p.LiquidationRatio, p.LiquidationThreshold, p.LiquidationBonus, p.ExchangeFeeRate}
	for _, r := range ratios {
		if r.IsNil() {
			return ErrRatioNotSet
		}
	}
	one := sdkmath.LegacyOneDec()
	if p.MintRatio.LT(p.LiquidationRatio) || p.LiquidationRatio.LT(p.LiquidationThreshold) || !p.LiquidationThreshold.GT(one) {
		return fmt.Errorf("%w: mint=%s liquidation=%s threshold=%s",
			ErrRatioOrdering, p.MintRatio, p.LiquidationRatio, p.LiquidationThreshold)
	}
	if p.LiquidationBonus.IsNegative() || p.LiquidationBonus.GTE(one) {
		return fmt.Errorf("%w: %s", ErrBonusTooLarge, p.LiquidationBonus)
	}
	if p.ExchangeFeeRate.IsNegative() || p.ExchangeFeeRate.GTE(one) {
		return fmt.Errorf("%w: %s", ErrFeeOutOfRange, p.ExchangeFeeRate)
	}
	return nil
}
