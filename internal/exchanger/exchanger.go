/*

This file contains the synthetic-to-synthetic swap engine. Swaps settle at
the oracle mid price with a flat fee on the USD notional; there is no
liquidity curve, the bank simply burns the input instrument and mints the
output instrument. Every fee is pushed into the debt pool's reward index, so
debt holders collectively earn the exchange flow.

The two modes charge the fee on different bases and that difference is load
bearing: exact-input takes the fee out of the input's value, exact-output
adds it on top of the delivered value. The collateral manager's indirect
mint path prices its debt increase with the exact-output formula and would
drift if the bases were unified.

*/

package exchanger

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
	"github.com/elys-network/synthcore/internal/utils"
)

var (
	ErrZeroAmount       = errors.New("exchanger: amount must be positive")
	ErrUnsupportedAsset = errors.New("exchanger: synthetic not registered")
	ErrSameAsset        = errors.New("exchanger: from and to must differ")
	ErrInvalidFeeRate   = errors.New("exchanger: fee rate out of range")
)

// ModuleID is the caller identity the exchanger uses against the bank and
// the debt pool.
const ModuleID = "exchanger"

// Exchanger swaps registered synthetic instruments at oracle valuation.
type Exchanger struct {
	bank    *token.Bank
	pool    *debtpool.Pool
	oracle  oracle.PriceOracle
	feeRate sdkmath.LegacyDec
	logger  zerolog.Logger
}

// New creates an exchanger with the given flat fee rate on USD notional.
func New(bank *token.Bank, pool *debtpool.Pool, priceOracle oracle.PriceOracle, feeRate sdkmath.LegacyDec) (*Exchanger, error) {
	e := &Exchanger{
		bank:   bank,
		pool:   pool,
		oracle: priceOracle,
		logger: logger.GetForComponent("exchanger"),
	}
	if err := e.SetFeeRate(feeRate); err != nil {
		return nil, err
	}
	return e, nil
}

// SetFeeRate replaces the fee rate. Rates at or above 100% are rejected.
func (e *Exchanger) SetFeeRate(feeRate sdkmath.LegacyDec) error {
	if feeRate.IsNil() || feeRate.IsNegative() || feeRate.GTE(sdkmath.LegacyOneDec()) {
		return ErrInvalidFeeRate
	}
	e.feeRate = feeRate
	return nil
}

// FeeRate returns the current fee rate.
func (e *Exchanger) FeeRate() sdkmath.LegacyDec {
	return e.feeRate
}

// ExchangeExactInput burns amountIn of the from instrument held by trader and
// mints the fee-adjusted equivalent of the to instrument to recipient. The
// fee comes out of the input's USD value. Returns the minted amount and the
// fee in USD-wei.
func (e *Exchanger) ExchangeExactInput(trader string, from, to types.AssetID, amountIn sdkmath.Int, recipient string) (amountOut, feeUSD sdkmath.Int, err error) {
	if amountIn.IsNil() || !amountIn.IsPositive() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), ErrZeroAmount
	}
	fromAsset, toAsset, err := e.resolvePair(from, to)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	valueIn, err := e.usdValue(fromAsset, amountIn)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	feeUSD = e.feeRate.MulInt(valueIn).TruncateInt()
	netUSD := valueIn.Sub(feeUSD)

	amountOut, err = e.unitsFromUSD(toAsset, netUSD)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	if err = e.settle(trader, fromAsset, amountIn, recipient, toAsset, amountOut, feeUSD); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	e.logger.Info().
		Str("trader", trader).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Str("feeUSD", feeUSD.String()).
		Msg("Exact-input exchange settled")
	return amountOut, feeUSD, nil
}

// ExchangeExactOutput delivers exactly amountOut of the to instrument to
// recipient and burns the grossed-up input from trader. The fee is charged on
// top of the delivered USD value. Returns the burned input amount and the fee
// in USD-wei.
func (e *Exchanger) ExchangeExactOutput(trader string, from, to types.AssetID, amountOut sdkmath.Int, recipient string) (amountIn, feeUSD sdkmath.Int, err error) {
	amountIn, _, feeUSD, err = e.QuoteExactOutput(from, to, amountOut)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	fromAsset, toAsset, err := e.resolvePair(from, to)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	if err = e.settle(trader, fromAsset, amountIn, recipient, toAsset, amountOut, feeUSD); err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	e.logger.Info().
		Str("trader", trader).
		Str("from", from.String()).
		Str("to", to.String()).
		Str("amountIn", amountIn.String()).
		Str("amountOut", amountOut.String()).
		Str("feeUSD", feeUSD.String()).
		Msg("Exact-output exchange settled")
	return amountIn, feeUSD, nil
}

// QuoteExactOutput prices an exact-output swap without touching state.
// Returns the required input units, the gross USD cost (delivered value plus
// fee) and the fee itself.
func (e *Exchanger) QuoteExactOutput(from, to types.AssetID, amountOut sdkmath.Int) (amountIn, grossUSD, feeUSD sdkmath.Int, err error) {
	zero := sdkmath.ZeroInt()
	if amountOut.IsNil() || !amountOut.IsPositive() {
		return zero, zero, zero, ErrZeroAmount
	}
	fromAsset, toAsset, err := e.resolvePair(from, to)
	if err != nil {
		return zero, zero, zero, err
	}

	valueOut, err := e.usdValue(toAsset, amountOut)
	if err != nil {
		return zero, zero, zero, err
	}
	feeUSD = e.feeRate.MulInt(valueOut).TruncateInt()
	grossUSD = valueOut.Add(feeUSD)

	amountIn, err = e.unitsFromUSD(fromAsset, grossUSD)
	if err != nil {
		return zero, zero, zero, err
	}
	return amountIn, grossUSD, feeUSD, nil
}

// settle applies the burn, mint and fee distribution atomically.
func (e *Exchanger) settle(trader string, fromAsset types.SyntheticAsset, amountIn sdkmath.Int, recipient string, toAsset types.SyntheticAsset, amountOut sdkmath.Int, feeUSD sdkmath.Int) (err error) {
	bankSnap := e.bank.Snapshot()
	poolSnap := e.pool.Capture()
	defer func() {
		if err != nil {
			e.bank.Restore(bankSnap)
			e.pool.Rollback(poolSnap)
		}
	}()

	if err = e.bank.Burn(ModuleID, fromAsset.Denom, trader, amountIn); err != nil {
		return fmt.Errorf("exchanger: burning input: %w", err)
	}
	if amountOut.IsPositive() {
		if err = e.bank.Mint(ModuleID, toAsset.Denom, recipient, amountOut); err != nil {
			return fmt.Errorf("exchanger: minting output: %w", err)
		}
	}
	if feeUSD.IsPositive() {
		if err = e.pool.DistributeRewards(ModuleID, feeUSD); err != nil {
			return fmt.Errorf("exchanger: distributing fee: %w", err)
		}
	}
	return nil
}

func (e *Exchanger) resolvePair(from, to types.AssetID) (types.SyntheticAsset, types.SyntheticAsset, error) {
	var empty types.SyntheticAsset
	if from == to {
		return empty, empty, ErrSameAsset
	}
	fromAsset, ok := e.pool.Synthetic(from)
	if !ok {
		return empty, empty, fmt.Errorf("%w: %s", ErrUnsupportedAsset, from)
	}
	toAsset, ok := e.pool.Synthetic(to)
	if !ok {
		return empty, empty, fmt.Errorf("%w: %s", ErrUnsupportedAsset, to)
	}
	return fromAsset, toAsset, nil
}

func (e *Exchanger) usdValue(asset types.SyntheticAsset, amount sdkmath.Int) (sdkmath.Int, error) {
	price, err := e.oracle.Price(asset.AnchorDenom)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("exchanger: pricing %s: %w", asset.Denom, err)
	}
	return utils.USDValue(amount, types.SyntheticDecimals, price)
}

func (e *Exchanger) unitsFromUSD(asset types.SyntheticAsset, usd sdkmath.Int) (sdkmath.Int, error) {
	price, err := e.oracle.Price(asset.AnchorDenom)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("exchanger: pricing %s: %w", asset.Denom, err)
	}
	return utils.UnitsFromUSD(usd, types.SyntheticDecimals, price)
}
