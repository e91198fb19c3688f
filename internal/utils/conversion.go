/*
This file contains common utility functions for converting between different types,
particularly for SDK math operations and precision handling.

USD amounts flow through the system as sdkmath.Int values scaled to 18 decimals
("USD-wei"); prices and ratios are sdkmath.LegacyDec. Collateral assets keep
their native precision in storage and are normalized here, only at valuation time.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrPriceNotPositive = errors.New("price is zero or negative")
)

// oneE18 is the USD-wei scale factor.
var oneE18 = sdkmath.NewIntWithDecimal(1, 18)

// powerOfTen returns 10^precision as a LegacyDec.
func powerOfTen(precision int) sdkmath.LegacyDec {
	factor := sdkmath.LegacyNewDec(1)
	for i := 0; i < precision; i++ {
		factor = factor.Mul(sdkmath.LegacyNewDec(10))
	}
	return factor
}

// NormalizeToDec converts a native-unit amount with the given precision into a
// whole-unit LegacyDec (e.g., 150000000 sats at precision 8 -> 1.5).
func NormalizeToDec(amount sdkmath.Int, precision int) (sdkmath.LegacyDec, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return sdkmath.LegacyZeroDec(), ErrAmountNil
	}
	if amount.IsNegative() {
		return sdkmath.LegacyZeroDec(), ErrAmountNegative
	}
	return sdkmath.LegacyNewDecFromInt(amount).Quo(powerOfTen(precision)), nil
}

// USDValue values a native-unit amount at the given whole-unit USD price and
// returns the result as USD-wei (Int scaled to 18 decimals, truncated).
func USDValue(amount sdkmath.Int, precision int, price sdkmath.LegacyDec) (sdkmath.Int, error) {
	whole, err := NormalizeToDec(amount, precision)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.ZeroInt(), ErrPriceNotPositive
	}
	return whole.Mul(price).MulInt(oneE18).TruncateInt(), nil
}

// UnitsFromUSD converts a USD-wei amount back into native units of an asset at
// the given whole-unit price (truncated toward zero).
func UnitsFromUSD(usd sdkmath.Int, precision int, price sdkmath.LegacyDec) (sdkmath.Int, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if usd.IsNil() {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if usd.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if price.IsNil() || !price.IsPositive() {
		return sdkmath.ZeroInt(), ErrPriceNotPositive
	}
	wholeUSD := sdkmath.LegacyNewDecFromIntWithPrec(usd, 18)
	return wholeUSD.Quo(price).Mul(powerOfTen(precision)).TruncateInt(), nil
}

// DecFromUSDWei reinterprets a USD-wei Int as a whole-USD LegacyDec.
func DecFromUSDWei(usd sdkmath.Int) sdkmath.LegacyDec {
	return sdkmath.LegacyNewDecFromIntWithPrec(usd, 18)
}

// SDKIntToFloat64 converts an SDK Int to float64 with proper precision handling
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	decAmount := sdkmath.LegacyNewDecFromInt(amount)
	result := decAmount.Quo(powerOfTen(precision))
	resultFloat, err := result.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}

	if math.IsNaN(resultFloat) || math.IsInf(resultFloat, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, resultFloat)
	}

	return resultFloat, nil
}

// Float64ToSDKInt converts a float64 to SDK Int with proper precision handling
func Float64ToSDKInt(amount float64, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > 18 {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: amount is %f", ErrNotFinite, amount)
	}
	if amount < 0 {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	if amount == 0 {
		return sdkmath.ZeroInt(), nil
	}

	// Use string conversion to avoid floating point precision issues
	formatStr := fmt.Sprintf("%%.%df", precision)
	amountStr := fmt.Sprintf(formatStr, amount)

	decAmount, err := sdkmath.LegacyNewDecFromStr(amountStr)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: failed to create decimal from string: %w", ErrConversionFailed, err)
	}

	result := decAmount.Mul(powerOfTen(precision)).TruncateInt()
	if result.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	return result, nil
}
