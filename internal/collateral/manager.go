/*

This file contains the collateral manager, the risk engine and the entry
point for user actions. It owns the per-user per-asset collateral ledger,
gatekeeps minting and burning against collateralization ratios, and performs
proportional multi-asset liquidation.

The manager never stores USD debt. It always asks the debt pool for the
user's floating share-based debt and re-derives collateral value from raw
holdings at current prices, so every ratio check reflects the instant it
runs. Check-then-act sequences in here are safe because a mutex serializes
all mutating entry points; the explicit post-condition checks exist to catch
oracle manipulation, nonstandard tokens and aliasing bugs, and they fail the
whole operation rather than log and continue.

*/

package collateral

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/exchanger"
	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
	"github.com/elys-network/synthcore/internal/utils"
)

var (
	ErrZeroAmount             = errors.New("collateral: amount must be positive")
	ErrUnsupportedAsset       = errors.New("collateral: asset not supported")
	ErrAssetAlreadySupported  = errors.New("collateral: asset already supported")
	ErrUnsupportedSynthetic   = errors.New("collateral: synthetic not registered")
	ErrInsufficientCollateral = errors.New("collateral: position under mint ratio")
	ErrInsufficientBalance    = errors.New("collateral: recorded balance too low")
	ErrRiskyPosition          = errors.New("collateral: withdrawal would breach liquidation ratio")
	ErrHealthyPosition        = errors.New("collateral: position not liquidatable")
	ErrNoOutstandingDebt      = errors.New("collateral: user has no debt to burn against")
	ErrTransferFailed         = errors.New("collateral: received balance delta mismatch")
	ErrInvalidLiquidation     = errors.New("collateral: liquidation did not improve health")
	ErrProtocolInvariant      = errors.New("collateral: protocol invariant violated")
)

// ModuleID is the account and caller identity the manager uses against the
// bank, pool and exchanger. Deposited collateral sits on this account.
const ModuleID = "collateral"

// Drift bounds for multi-step operations: an indirect mint must realize at
// least 99% of the quoted debt (mintDebtFloor) while keeping 95% of the
// pre-operation collateral value (collateralFloor), and a synthetic burn's
// realized debt reduction may deviate from the repaid amount by at most 1%
// of the pre-swap debt (burnTolerance).
var (
	mintDebtFloor   = sdkmath.LegacyNewDecWithPrec(99, 2)
	collateralFloor = sdkmath.LegacyNewDecWithPrec(95, 2)
	burnTolerance   = sdkmath.LegacyNewDecWithPrec(1, 2)
)

// Manager is the risk engine over the collateral ledger.
type Manager struct {
	mu sync.Mutex

	bank      *token.Bank
	pool      *debtpool.Pool
	exchanger *exchanger.Exchanger
	oracle    oracle.PriceOracle
	params    types.RiskParameters
	logger    zerolog.Logger

	assets     []types.CollateralAsset
	assetIndex map[types.AssetID]int

	// deposits holds raw token units in the asset's native decimals,
	// normalized to 18 only at valuation time.
	deposits map[string]map[types.AssetID]sdkmath.Int
}

// NewManager wires the risk engine over the given ledgers. Risk parameters
// must already validate.
func NewManager(bank *token.Bank, pool *debtpool.Pool, ex *exchanger.Exchanger, priceOracle oracle.PriceOracle, params types.RiskParameters) (*Manager, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Manager{
		bank:       bank,
		pool:       pool,
		exchanger:  ex,
		oracle:     priceOracle,
		params:     params,
		logger:     logger.GetForComponent("collateral_manager"),
		assetIndex: make(map[types.AssetID]int),
		deposits:   make(map[string]map[types.AssetID]sdkmath.Int),
	}, nil
}

// SetRiskParameters swaps in a new validated parameter set.
func (m *Manager) SetRiskParameters(params types.RiskParameters) error {
	if err := params.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.params = params
	m.logger.Info().
		Str("mintRatio", params.MintRatio.String()).
		Str("liquidationRatio", params.LiquidationRatio.String()).
		Str("liquidationThreshold", params.LiquidationThreshold.String()).
		Msg("Risk parameters updated")
	return nil
}

// RiskParameters returns the active parameter set.
func (m *Manager) RiskParameters() types.RiskParameters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.params
}

// SupportAsset registers a collateral asset. Its denom must already exist in
// the bank with matching decimals.
func (m *Manager) SupportAsset(asset types.CollateralAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.assetIndex[asset.Denom]; exists {
		return fmt.Errorf("%w: %s", ErrAssetAlreadySupported, asset.Denom)
	}
	decimals, err := m.bank.Decimals(asset.Denom)
	if err != nil {
		return fmt.Errorf("collateral: supporting %s: %w", asset.Denom, err)
	}
	if decimals != asset.Decimals {
		return fmt.Errorf("collateral: supporting %s: decimals mismatch (bank %d, declared %d)", asset.Denom, decimals, asset.Decimals)
	}
	m.assetIndex[asset.Denom] = len(m.assets)
	m.assets = append(m.assets, asset)
	m.logger.Info().Str("denom", asset.Denom.String()).Int("decimals", asset.Decimals).Msg("Collateral asset supported")
	return nil
}

// SupportedAssets returns a copy of the registered collateral asset list.
func (m *Manager) SupportedAssets() []types.CollateralAsset {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.CollateralAsset, len(m.assets))
	copy(out, m.assets)
	return out
}

// Deposit pulls amount of the asset from the user into the manager's account
// and credits the collateral ledger. The received balance delta is verified
// against amount so fee-on-transfer tokens cannot inflate the ledger.
func (m *Manager) Deposit(user string, denom types.AssetID, amount sdkmath.Int) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.assetIndex[denom]; !exists {
		return fmt.Errorf("%w: %s", ErrUnsupportedAsset, denom)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}

	bankSnap := m.bank.Snapshot()
	depositSnap := m.copyDeposits()
	defer func() {
		if err != nil {
			m.bank.Restore(bankSnap)
			m.deposits = depositSnap
		}
	}()

	before := m.bank.BalanceOf(denom, ModuleID)
	if err = m.bank.Transfer(denom, user, ModuleID, amount); err != nil {
		return fmt.Errorf("collateral: pulling deposit: %w", err)
	}
	received := m.bank.BalanceOf(denom, ModuleID).Sub(before)
	if !received.Equal(amount) {
		return fmt.Errorf("%w: sent %s, received %s", ErrTransferFailed, amount, received)
	}

	m.credit(user, denom, amount)

	m.logger.Info().
		Str("user", user).
		Str("denom", denom.String()).
		Str("amount", amount.String()).
		Msg("Collateral deposited")
	return nil
}

// Withdraw pushes amount of the asset back to the user. With debt
// outstanding the position must stay at or above the liquidation ratio, and
// the user's debt must be provably unchanged by the call.
func (m *Manager) Withdraw(user string, denom types.AssetID, amount sdkmath.Int) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.assetIndex[denom]; !exists {
		return fmt.Errorf("%w: %s", ErrUnsupportedAsset, denom)
	}
	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	held := m.holding(user, denom)
	if amount.GT(held) {
		return fmt.Errorf("%w: want %s, recorded %s", ErrInsufficientBalance, amount, held)
	}

	debtBefore, err := m.pool.UserDebtUSD(user)
	if err != nil {
		return err
	}

	bankSnap := m.bank.Snapshot()
	depositSnap := m.copyDeposits()
	defer func() {
		if err != nil {
			m.bank.Restore(bankSnap)
			m.deposits = depositSnap
		}
	}()

	m.debit(user, denom, amount)
	if err = m.bank.Transfer(denom, ModuleID, user, amount); err != nil {
		return fmt.Errorf("collateral: pushing withdrawal: %w", err)
	}

	if debtBefore.IsPositive() {
		collUSD, cerr := m.userCollateralUSD(user)
		if cerr != nil {
			return cerr
		}
		health := healthFactor(collUSD, debtBefore)
		if health.LT(m.params.LiquidationRatio) {
			return fmt.Errorf("%w: health %s < %s", ErrRiskyPosition, health, m.params.LiquidationRatio)
		}
	}

	// A debt change here means a mint/burn hook re-entered the ledger.
	debtAfter, derr := m.pool.UserDebtUSD(user)
	if derr != nil {
		return derr
	}
	if !debtAfter.Equal(debtBefore) {
		return fmt.Errorf("%w: debt moved during withdrawal (%s -> %s)", ErrProtocolInvariant, debtBefore, debtAfter)
	}

	m.cleanup(user, debtAfter)

	m.logger.Info().
		Str("user", user).
		Str("denom", denom.String()).
		Str("amount", amount.String()).
		Msg("Collateral withdrawn")
	return nil
}

// Mint issues amount of the requested synthetic against the user's
// collateral. Stable requests mint directly; any other instrument is bought
// with internally minted stable through the exchanger, so the user's debt
// increase is the grossed-up stable cost including the exchange fee.
func (m *Manager) Mint(user string, synDenom types.AssetID, amount sdkmath.Int) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	if !m.pool.IsSynthetic(synDenom) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSynthetic, synDenom)
	}

	collBefore, err := m.userCollateralUSD(user)
	if err != nil {
		return err
	}
	debtBefore, err := m.pool.UserDebtUSD(user)
	if err != nil {
		return err
	}

	if synDenom == m.pool.StableDenom() {
		return m.mintStable(user, amount, collBefore, debtBefore)
	}
	return m.mintViaExchange(user, synDenom, amount, collBefore, debtBefore)
}

// mintStable adds amount USD of debt and mints the same amount of stable
// units to the user. Stable units are 18-decimal so the two are identical.
func (m *Manager) mintStable(user string, amount sdkmath.Int, collUSD, debtBefore sdkmath.Int) (err error) {
	newDebt := debtBefore.Add(amount)
	if healthFactor(collUSD, newDebt).LT(m.params.MintRatio) {
		return fmt.Errorf("%w: collateral %s cannot carry debt %s at ratio %s",
			ErrInsufficientCollateral, collUSD, newDebt, m.params.MintRatio)
	}

	bankSnap := m.bank.Snapshot()
	poolSnap := m.pool.Capture()
	defer func() {
		if err != nil {
			m.bank.Restore(bankSnap)
			m.pool.Rollback(poolSnap)
		}
	}()

	if err = m.pool.IncreaseDebt(ModuleID, user, amount); err != nil {
		return err
	}
	if err = m.bank.Mint(ModuleID, m.pool.StableDenom(), user, amount); err != nil {
		return fmt.Errorf("collateral: minting stable: %w", err)
	}

	m.logger.Info().
		Str("user", user).
		Str("amountUSD", amount.String()).
		Msg("Stable synthetic minted")
	return nil
}

// mintViaExchange prices the exact-output swap first and fails fast on the
// mint ratio before any state changes, then mints stable to itself and swaps
// it for the target instrument delivered to the user.
func (m *Manager) mintViaExchange(user string, synDenom types.AssetID, amount sdkmath.Int, collBefore, debtBefore sdkmath.Int) (err error) {
	stable := m.pool.StableDenom()
	_, grossUSD, _, err := m.exchanger.QuoteExactOutput(stable, synDenom, amount)
	if err != nil {
		return err
	}

	newDebt := debtBefore.Add(grossUSD)
	if healthFactor(collBefore, newDebt).LT(m.params.MintRatio) {
		return fmt.Errorf("%w: collateral %s cannot carry debt %s at ratio %s",
			ErrInsufficientCollateral, collBefore, newDebt, m.params.MintRatio)
	}

	bankSnap := m.bank.Snapshot()
	poolSnap := m.pool.Capture()
	defer func() {
		if err != nil {
			m.bank.Restore(bankSnap)
			m.pool.Rollback(poolSnap)
		}
	}()

	if err = m.pool.IncreaseDebt(ModuleID, user, grossUSD); err != nil {
		return err
	}
	if err = m.bank.Mint(ModuleID, stable, ModuleID, grossUSD); err != nil {
		return fmt.Errorf("collateral: minting stable principal: %w", err)
	}
	if _, _, err = m.exchanger.ExchangeExactOutput(ModuleID, stable, synDenom, amount, user); err != nil {
		return fmt.Errorf("collateral: routing mint through exchange: %w", err)
	}

	// Post-conditions tolerate price drift during the call but nothing
	// worse: the realized debt increase may lag the quote slightly, the
	// collateral value may dip slightly, and collateral must still cover
	// debt outright.
	debtAfter, derr := m.pool.UserDebtUSD(user)
	if derr != nil {
		return derr
	}
	collAfter, cerr := m.userCollateralUSD(user)
	if cerr != nil {
		return cerr
	}
	realized := sdkmath.LegacyNewDecFromInt(debtAfter.Sub(debtBefore))
	if realized.LT(mintDebtFloor.MulInt(grossUSD)) {
		return fmt.Errorf("%w: debt increase %s below predicted %s", ErrProtocolInvariant, realized, grossUSD)
	}
	if sdkmath.LegacyNewDecFromInt(collAfter).LT(collateralFloor.MulInt(collBefore)) {
		return fmt.Errorf("%w: collateral value dropped during mint (%s -> %s)", ErrProtocolInvariant, collBefore, collAfter)
	}
	if !collAfter.GT(debtAfter) {
		return fmt.Errorf("%w: collateral %s no longer exceeds debt %s", ErrProtocolInvariant, collAfter, debtAfter)
	}

	m.logger.Info().
		Str("user", user).
		Str("synthetic", synDenom.String()).
		Str("amount", amount.String()).
		Str("debtUSD", grossUSD.String()).
		Msg("Synthetic minted via exchange")
	return nil
}

// Burn retires debt with synthetic tokens. Stable burns reduce debt 1:1 and
// clamp to the outstanding amount instead of rejecting overshoot. Other
// instruments are swapped to stable first; value above the user's debt is
// refunded rather than destroyed.
func (m *Manager) Burn(user string, synDenom types.AssetID, amount sdkmath.Int) (err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if amount.IsNil() || !amount.IsPositive() {
		return ErrZeroAmount
	}
	if !m.pool.IsSynthetic(synDenom) {
		return fmt.Errorf("%w: %s", ErrUnsupportedSynthetic, synDenom)
	}

	debtBefore, err := m.pool.UserDebtUSD(user)
	if err != nil {
		return err
	}
	if debtBefore.IsZero() {
		return ErrNoOutstandingDebt
	}

	bankSnap := m.bank.Snapshot()
	poolSnap := m.pool.Capture()
	defer func() {
		if err != nil {
			m.bank.Restore(bankSnap)
			m.pool.Rollback(poolSnap)
		}
	}()

	stable := m.pool.StableDenom()
	if synDenom == stable {
		repay := sdkmath.MinInt(amount, debtBefore)
		if err = m.pool.DecreaseDebt(ModuleID, user, repay); err != nil {
			return err
		}
		if err = m.bank.Burn(ModuleID, stable, user, repay); err != nil {
			return fmt.Errorf("collateral: burning stable: %w", err)
		}
		m.cleanupIfDebtFree(user)
		m.logger.Info().
			Str("user", user).
			Str("repaidUSD", repay.String()).
			Msg("Stable synthetic burned")
		return nil
	}

	// Swap the instrument to stable held by the manager, repay with the
	// proceeds, refund any surplus.
	stableReceived, _, err := m.exchanger.ExchangeExactInput(user, synDenom, stable, amount, ModuleID)
	if err != nil {
		return fmt.Errorf("collateral: converting synthetic for burn: %w", err)
	}

	// Clamp against the debt as it stands after the swap. The swap moved
	// total debt, so the pre-swap figure can overstate the user's share
	// and convert to more shares than they hold.
	debtMid, derr := m.pool.UserDebtUSD(user)
	if derr != nil {
		return derr
	}
	repay := sdkmath.MinInt(stableReceived, debtMid)
	if repay.IsPositive() {
		if err = m.pool.DecreaseDebt(ModuleID, user, repay); err != nil {
			return err
		}
		if err = m.bank.Burn(ModuleID, stable, ModuleID, repay); err != nil {
			return fmt.Errorf("collateral: burning converted stable: %w", err)
		}
	}
	if surplus := stableReceived.Sub(repay); surplus.IsPositive() {
		if err = m.bank.Transfer(stable, ModuleID, user, surplus); err != nil {
			return fmt.Errorf("collateral: refunding surplus: %w", err)
		}
	}

	// The reduction can exceed the stable proceeds because burning the
	// instrument itself shrinks total debt, and part of the paid value
	// went to the reward pool instead of repayment. Allow 1% around the
	// repaid amount, with the slack sized against the pre-swap debt: the
	// fee distribution and the supply burn both re-price the user's whole
	// share, so the drift scales with the position, not with the repayment.
	debtAfter, derr := m.pool.UserDebtUSD(user)
	if derr != nil {
		return derr
	}
	reduction := sdkmath.LegacyNewDecFromInt(debtBefore.Sub(debtAfter))
	slack := burnTolerance.MulInt(debtBefore)
	expected := sdkmath.LegacyNewDecFromInt(repay)
	if reduction.Sub(expected).Abs().GT(slack) {
		return fmt.Errorf("%w: debt reduction %s deviates from repaid %s", ErrProtocolInvariant, reduction, repay)
	}

	m.cleanupIfDebtFree(user)
	m.logger.Info().
		Str("user", user).
		Str("synthetic", synDenom.String()).
		Str("amount", amount.String()).
		Str("repaidUSD", repay.String()).
		Msg("Synthetic burned via exchange")
	return nil
}

// Liquidate lets liquidator repay part of an unhealthy position's debt in
// exchange for a proportional slice of every collateral asset plus the
// liquidation bonus. The repayable amount is capped at what brings the
// position exactly back to the liquidation ratio.
func (m *Manager) Liquidate(liquidator, user string, amountUSD sdkmath.Int) (paidUSD sdkmath.Int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	zero := sdkmath.ZeroInt()
	if amountUSD.IsNil() || !amountUSD.IsPositive() {
		return zero, ErrZeroAmount
	}

	debtBefore, err := m.pool.UserDebtUSD(user)
	if err != nil {
		return zero, err
	}
	collBefore, err := m.userCollateralUSD(user)
	if err != nil {
		return zero, err
	}
	healthBefore := healthFactor(collBefore, debtBefore)
	if debtBefore.IsZero() || healthBefore.GTE(m.params.LiquidationThreshold) {
		return zero, fmt.Errorf("%w: health %s", ErrHealthyPosition, healthBefore)
	}

	// The ceiling is the repayment that restores the position exactly to
	// the liquidation ratio.
	maxLiq := sdkmath.LegacyNewDecFromInt(debtBefore).
		Sub(sdkmath.LegacyNewDecFromInt(collBefore).Quo(m.params.LiquidationRatio)).
		TruncateInt()
	toLiquidate := sdkmath.MinInt(amountUSD, maxLiq)
	if !toLiquidate.IsPositive() {
		return zero, fmt.Errorf("%w: nothing liquidatable", ErrHealthyPosition)
	}

	bankSnap := m.bank.Snapshot()
	poolSnap := m.pool.Capture()
	depositSnap := m.copyDeposits()
	defer func() {
		if err != nil {
			m.bank.Restore(bankSnap)
			m.pool.Rollback(poolSnap)
			m.deposits = depositSnap
		}
	}()

	stable := m.pool.StableDenom()
	bonusFactor := sdkmath.LegacyOneDec().Add(m.params.LiquidationBonus)
	paidUSD = zero

	// collBefore stays the slice denominator for the whole loop so slices
	// keep summing to the liquidated amount as holdings shrink.
	for _, asset := range m.assets {
		held := m.holding(user, asset.Denom)
		if held.IsZero() {
			continue
		}
		price, perr := m.oracle.Price(asset.Denom)
		if perr != nil {
			return zero, perr
		}
		assetUSD, verr := utils.USDValue(held, asset.Decimals, price)
		if verr != nil {
			return zero, verr
		}

		sliceUSD := toLiquidate.Mul(assetUSD).Quo(collBefore)
		if !sliceUSD.IsPositive() {
			continue
		}
		payoutUSD := bonusFactor.MulInt(sliceUSD).TruncateInt()
		payoutUnits, uerr := utils.UnitsFromUSD(payoutUSD, asset.Decimals, price)
		if uerr != nil {
			return zero, uerr
		}
		if payoutUnits.GT(held) {
			payoutUnits = held
		}

		m.debit(user, asset.Denom, payoutUnits)
		if err = m.bank.Transfer(asset.Denom, ModuleID, liquidator, payoutUnits); err != nil {
			return zero, fmt.Errorf("collateral: paying liquidator: %w", err)
		}
		if err = m.pool.DecreaseDebt(ModuleID, user, sliceUSD); err != nil {
			return zero, err
		}
		if err = m.bank.Burn(ModuleID, stable, liquidator, sliceUSD); err != nil {
			return zero, fmt.Errorf("collateral: burning liquidator stable: %w", err)
		}
		paidUSD = paidUSD.Add(sliceUSD)
	}

	debtAfter, derr := m.pool.UserDebtUSD(user)
	if derr != nil {
		return zero, derr
	}
	collAfter, cerr := m.userCollateralUSD(user)
	if cerr != nil {
		return zero, cerr
	}
	if !debtAfter.LT(debtBefore) || !collAfter.LT(collBefore) {
		return zero, fmt.Errorf("%w: liquidation did not shrink the position", ErrProtocolInvariant)
	}
	if healthFactor(collAfter, debtAfter).LTE(healthBefore) {
		return zero, fmt.Errorf("%w: health %s -> %s", ErrInvalidLiquidation, healthBefore, healthFactor(collAfter, debtAfter))
	}

	m.cleanup(user, debtAfter)

	m.logger.Info().
		Str("liquidator", liquidator).
		Str("user", user).
		Str("repaidUSD", paidUSD.String()).
		Str("healthBefore", healthBefore.String()).
		Msg("Position liquidated")
	return paidUSD, nil
}

// UserCollateralUSD values the user's holdings across all supported assets.
func (m *Manager) UserCollateralUSD(user string) (sdkmath.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userCollateralUSD(user)
}

// HealthFactor returns collateral value over debt value. Positions without
// debt report the maximum representable ratio rather than an error.
func (m *Manager) HealthFactor(user string) (sdkmath.LegacyDec, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	debt, err := m.pool.UserDebtUSD(user)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	coll, err := m.userCollateralUSD(user)
	if err != nil {
		return sdkmath.LegacyDec{}, err
	}
	return healthFactor(coll, debt), nil
}

// Holdings returns a copy of the user's raw collateral balances.
func (m *Manager) Holdings(user string) map[types.AssetID]sdkmath.Int {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[types.AssetID]sdkmath.Int, len(m.deposits[user]))
	for denom, amount := range m.deposits[user] {
		out[denom] = amount
	}
	return out
}

func (m *Manager) userCollateralUSD(user string) (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, asset := range m.assets {
		held := m.holding(user, asset.Denom)
		if held.IsZero() {
			continue
		}
		price, err := m.oracle.Price(asset.Denom)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		value, err := utils.USDValue(held, asset.Decimals, price)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(value)
	}
	return total, nil
}

func (m *Manager) holding(user string, denom types.AssetID) sdkmath.Int {
	held, ok := m.deposits[user][denom]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return held
}

func (m *Manager) credit(user string, denom types.AssetID, amount sdkmath.Int) {
	if m.deposits[user] == nil {
		m.deposits[user] = make(map[types.AssetID]sdkmath.Int)
	}
	m.deposits[user][denom] = m.holding(user, denom).Add(amount)
}

func (m *Manager) debit(user string, denom types.AssetID, amount sdkmath.Int) {
	m.deposits[user][denom] = m.holding(user, denom).Sub(amount)
}

// cleanup drops zero-balance entries once the user is debt free. Purely a
// storage optimization, never a semantic event.
func (m *Manager) cleanup(user string, debt sdkmath.Int) {
	if !debt.IsZero() {
		return
	}
	for denom, held := range m.deposits[user] {
		if held.IsZero() {
			delete(m.deposits[user], denom)
		}
	}
	if len(m.deposits[user]) == 0 {
		delete(m.deposits, user)
	}
}

func (m *Manager) cleanupIfDebtFree(user string) {
	debt, err := m.pool.UserDebtUSD(user)
	if err != nil {
		return
	}
	m.cleanup(user, debt)
}

func (m *Manager) copyDeposits() map[string]map[types.AssetID]sdkmath.Int {
	out := make(map[string]map[types.AssetID]sdkmath.Int, len(m.deposits))
	for user, perAsset := range m.deposits {
		inner := make(map[types.AssetID]sdkmath.Int, len(perAsset))
		for denom, amount := range perAsset {
			inner[denom] = amount
		}
		out[user] = inner
	}
	return out
}

// healthFactor is collateral over debt as a decimal ratio, with the maximum
// sortable value standing in for the debt-free case.
func healthFactor(collUSD, debtUSD sdkmath.Int) sdkmath.LegacyDec {
	if debtUSD.IsZero() {
		return sdkmath.LegacyMaxSortableDec
	}
	return sdkmath.LegacyNewDecFromInt(collUSD).Quo(sdkmath.LegacyNewDecFromInt(debtUSD))
}
