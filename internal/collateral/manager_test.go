package collateral

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/exchanger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
)

const (
	denomStable = types.AssetID("susd")
	denomSBTC   = types.AssetID("sbtc")
	denomWBTC   = types.AssetID("wbtc")
	anchorUSD   = types.AssetID("usd")
	anchorBTC   = types.AssetID("btc")

	wbtcDecimals = 8
)

func usdWei(whole int64) sdkmath.Int {
	return sdkmath.NewInt(whole).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

// sats expresses WBTC units in its native 8 decimals.
func sats(whole int64, frac int64) sdkmath.Int {
	return sdkmath.NewInt(whole).Mul(sdkmath.NewIntWithDecimal(1, wbtcDecimals)).Add(sdkmath.NewInt(frac))
}

type fixture struct {
	bank    *token.Bank
	oracle  *oracle.Store
	pool    *debtpool.Pool
	ex      *exchanger.Exchanger
	manager *Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	bank := token.NewBank()
	require.NoError(t, bank.Register(denomStable, types.SyntheticDecimals))
	require.NoError(t, bank.Register(denomSBTC, types.SyntheticDecimals))
	require.NoError(t, bank.Register(denomWBTC, wbtcDecimals))

	store := oracle.NewStore(anchorUSD)
	require.NoError(t, store.SetPrice(anchorBTC, sdkmath.LegacyNewDec(100_000)))
	require.NoError(t, store.SetPrice(denomWBTC, sdkmath.LegacyNewDec(100_000)))

	pool := debtpool.New(bank, store, denomStable)
	require.NoError(t, pool.RegisterSynthetic(types.SyntheticAsset{
		Denom: denomStable, Symbol: "sUSD", AnchorDenom: anchorUSD,
	}))
	require.NoError(t, pool.RegisterSynthetic(types.SyntheticAsset{
		Denom: denomSBTC, Symbol: "sBTC", AnchorDenom: anchorBTC,
	}))

	ex, err := exchanger.New(bank, pool, store, types.DefaultRiskParameters().ExchangeFeeRate)
	require.NoError(t, err)

	manager, err := NewManager(bank, pool, ex, store, types.DefaultRiskParameters())
	require.NoError(t, err)
	require.NoError(t, manager.SupportAsset(types.CollateralAsset{
		Denom: denomWBTC, Symbol: "WBTC", Decimals: wbtcDecimals,
	}))

	require.NoError(t, bank.GrantMintBurn(denomStable, ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomStable, exchanger.ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomSBTC, exchanger.ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomStable, debtpool.ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomWBTC, "faucet"))
	pool.AuthorizeDebtManager(ModuleID)
	pool.AuthorizeRewardDistributor(exchanger.ModuleID)

	return &fixture{bank: bank, oracle: store, pool: pool, ex: ex, manager: manager}
}

func (f *fixture) fund(t *testing.T, user string, amount sdkmath.Int) {
	t.Helper()
	require.NoError(t, f.bank.Mint("faucet", denomWBTC, user, amount))
}

func TestDepositAndWithdraw(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(2, 0))

	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(2, 0)))
	assert.Equal(t, sats(2, 0), f.manager.Holdings("alice")[denomWBTC])

	collUSD, err := f.manager.UserCollateralUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(200_000), collUSD)

	// Debt free, so any withdrawal passes the risk gate.
	require.NoError(t, f.manager.Withdraw("alice", denomWBTC, sats(2, 0)))
	assert.Equal(t, sats(2, 0), f.bank.BalanceOf(denomWBTC, "alice"))
	assert.Empty(t, f.manager.Holdings("alice"))
}

func TestDepositValidation(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))

	require.ErrorIs(t, f.manager.Deposit("alice", denomStable, usdWei(1)), ErrUnsupportedAsset)
	require.ErrorIs(t, f.manager.Deposit("alice", denomWBTC, sdkmath.ZeroInt()), ErrZeroAmount)

	err := f.manager.Deposit("alice", denomWBTC, sats(5, 0))
	require.Error(t, err)
	assert.Empty(t, f.manager.Holdings("alice"))
}

func TestDepositRejectsFeeOnTransferToken(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))

	// 1% skim on transfer means the manager receives less than the ledger
	// would record, which the balance-delta check must catch.
	require.NoError(t, f.bank.SetTransferFeeBps(denomWBTC, 100))

	err := f.manager.Deposit("alice", denomWBTC, sats(1, 0))
	require.ErrorIs(t, err, ErrTransferFailed)

	// Full rollback, including the token movement itself.
	assert.Equal(t, sats(1, 0), f.bank.BalanceOf(denomWBTC, "alice"))
	assert.Empty(t, f.manager.Holdings("alice"))
}

func TestMintStableAtExactRatio(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))

	// 100,000 collateral carries exactly 50,000 debt at the 200% ratio.
	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(50_000)))
	assert.Equal(t, usdWei(50_000), f.bank.BalanceOf(denomStable, "alice"))

	debt, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(50_000), debt)

	health, err := f.manager.HealthFactor("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDec(2), health)
}

func TestMintStableOverRatioFails(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))

	err := f.manager.Mint("alice", denomStable, usdWei(50_001))
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	debt, derr := f.pool.UserDebtUSD("alice")
	require.NoError(t, derr)
	assert.True(t, debt.IsZero())
	assert.True(t, f.bank.BalanceOf(denomStable, "alice").IsZero())
}

func TestMintBurnRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))

	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(10_000)))
	require.NoError(t, f.manager.Burn("alice", denomStable, usdWei(10_000)))

	debt, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.True(t, debt.IsZero())
	assert.True(t, f.bank.BalanceOf(denomStable, "alice").IsZero())
}

func TestBurnStableClampsToDebt(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	f.fund(t, "bob", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))
	require.NoError(t, f.manager.Deposit("bob", denomWBTC, sats(1, 0)))

	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(20_000)))
	require.NoError(t, f.manager.Mint("bob", denomStable, usdWei(10_000)))
	require.NoError(t, f.bank.Transfer(denomStable, "bob", "alice", usdWei(10_000)))

	// Alice holds 30,000 stable but owes 20,000; the overshoot is clamped,
	// not rejected, and the rest stays in her wallet.
	require.NoError(t, f.manager.Burn("alice", denomStable, usdWei(40_000)))

	debt, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.True(t, debt.IsZero())
	assert.Equal(t, usdWei(10_000), f.bank.BalanceOf(denomStable, "alice"))
}

func TestBurnWithoutDebt(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.manager.Burn("alice", denomStable, usdWei(1)), ErrNoOutstandingDebt)
}

func TestMintNonStableViaExchange(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(3, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(3, 0)))

	// 0.1 sBTC delivered is 10,000 USD; the debt increase is the grossed-up
	// 10,050 including the exchange fee.
	wantOut := sdkmath.NewIntWithDecimal(1, 17)
	require.NoError(t, f.manager.Mint("alice", denomSBTC, wantOut))

	assert.Equal(t, wantOut, f.bank.BalanceOf(denomSBTC, "alice"))
	// No stable leaks: the principal was minted to the manager and fully
	// consumed by the swap.
	assert.True(t, f.bank.BalanceOf(denomStable, ModuleID).IsZero())

	// Total debt settles at the value of the delivered instrument; the fee
	// portion of the gross went to the reward index, where alice, as sole
	// debt holder, accrues it right back.
	debt, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(10_000), debt)
	assert.Equal(t, usdWei(50), f.pool.PendingRewards("alice"))
}

func TestMintNonStableFailsFast(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(0, 20_000_000)) // 0.2 WBTC = 20,000 USD
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(0, 20_000_000)))

	// 0.1 sBTC needs 10,050 gross debt; 20,000 collateral only supports
	// 10,000 at the mint ratio. Nothing may move.
	wantOut := sdkmath.NewIntWithDecimal(1, 17)
	err := f.manager.Mint("alice", denomSBTC, wantOut)
	require.ErrorIs(t, err, ErrInsufficientCollateral)

	assert.True(t, f.bank.TotalSupply(denomSBTC).IsZero())
	assert.True(t, f.bank.TotalSupply(denomStable).IsZero())
	assert.True(t, f.pool.TotalShares().IsZero())
}

func TestBurnNonStableWithSurplusRefund(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	f.fund(t, "bob", sats(3, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))
	require.NoError(t, f.manager.Deposit("bob", denomWBTC, sats(3, 0)))

	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(5_000)))
	wantOut := sdkmath.NewIntWithDecimal(1, 17)
	require.NoError(t, f.manager.Mint("bob", denomSBTC, wantOut))
	require.NoError(t, f.bank.Transfer(denomSBTC, "bob", "alice", wantOut))

	// Alice burns 10,000 USD of sBTC against roughly 5,000 of debt. The
	// overshoot comes back to her as stable instead of being destroyed.
	require.NoError(t, f.manager.Burn("alice", denomSBTC, wantOut))

	debt, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.True(t, debt.LT(usdWei(10))) // dust at most

	refund := f.bank.BalanceOf(denomStable, "alice")
	assert.True(t, refund.GT(usdWei(4_900)), "refund %s", refund)
	assert.True(t, f.bank.BalanceOf(denomStable, ModuleID).IsZero())
}

func TestWithdrawBelowFloorReverts(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))
	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(50_000)))

	// Withdrawing 0.15 WBTC would leave 85,000 against 50,000 debt, a
	// 170% ratio under the 180% floor.
	err := f.manager.Withdraw("alice", denomWBTC, sats(0, 15_000_000))
	require.ErrorIs(t, err, ErrRiskyPosition)

	// No partial withdrawal.
	assert.Equal(t, sats(1, 0), f.manager.Holdings("alice")[denomWBTC])
	assert.True(t, f.bank.BalanceOf(denomWBTC, "alice").IsZero())
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))

	err := f.manager.Withdraw("alice", denomWBTC, sats(2, 0))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

// liquidationFixture puts alice at 208% collateralization, then drops BTC
// 40% so she lands at 125%, well under the 150% threshold. Bob holds stable
// to repay with.
func liquidationFixture(t *testing.T) *fixture {
	t.Helper()
	f := newFixture(t)
	f.fund(t, "alice", sats(1, 0))
	f.fund(t, "bob", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))
	require.NoError(t, f.manager.Deposit("bob", denomWBTC, sats(1, 0)))

	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(48_000)))
	require.NoError(t, f.manager.Mint("bob", denomStable, usdWei(20_000)))

	require.NoError(t, f.oracle.SetPrice(denomWBTC, sdkmath.LegacyNewDec(60_000)))
	return f
}

func TestLiquidateUnhealthyPosition(t *testing.T) {
	f := liquidationFixture(t)

	healthBefore, err := f.manager.HealthFactor("alice")
	require.NoError(t, err)
	assert.Equal(t, sdkmath.LegacyNewDecWithPrec(125, 2), healthBefore)

	paid, err := f.manager.Liquidate("bob", "alice", usdWei(10_000))
	require.NoError(t, err)
	assert.Equal(t, usdWei(10_000), paid)

	// Bob repaid 10,000 and receives that slice plus the 5% bonus in WBTC:
	// 10,500 / 60,000 = 0.175 WBTC.
	assert.Equal(t, sats(0, 17_500_000), f.bank.BalanceOf(denomWBTC, "bob"))
	assert.Equal(t, usdWei(10_000), f.bank.BalanceOf(denomStable, "bob"))

	debt, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(38_000), debt)

	healthAfter, err := f.manager.HealthFactor("alice")
	require.NoError(t, err)
	assert.True(t, healthAfter.GT(healthBefore))

	// Bob's own debt is untouched.
	bobDebt, err := f.pool.UserDebtUSD("bob")
	require.NoError(t, err)
	assert.Equal(t, usdWei(20_000), bobDebt)
}

func TestLiquidateClampsToCeiling(t *testing.T) {
	f := liquidationFixture(t)

	// The ceiling is debt - collateral/180%: 48,000 - 33,333.33 ≈ 14,666.
	// Asking for far more only liquidates up to the ceiling.
	paid, err := f.manager.Liquidate("bob", "alice", usdWei(48_000))
	require.NoError(t, err)
	assert.True(t, paid.LT(usdWei(14_667)), "paid %s", paid)
	assert.True(t, paid.GT(usdWei(14_666)), "paid %s", paid)

	// Debt lands on the 180% line relative to pre-liquidation collateral,
	// but the bonus payout shrank collateral too, so realized health is
	// (60,000 - 15,400) / 33,333 ≈ 134%. Strictly better than 125%.
	health, err := f.manager.HealthFactor("alice")
	require.NoError(t, err)
	assert.True(t, health.GT(sdkmath.LegacyNewDecWithPrec(133, 2)), "health %s", health)
	assert.True(t, health.LT(sdkmath.LegacyNewDecWithPrec(135, 2)), "health %s", health)
}

func TestLiquidateHealthyPositionReverts(t *testing.T) {
	f := liquidationFixture(t)

	// Bob sits at 300%.
	sharesBefore := f.pool.TotalShares()
	holdingsBefore := f.manager.Holdings("bob")[denomWBTC]

	_, err := f.manager.Liquidate("alice", "bob", usdWei(1_000))
	require.ErrorIs(t, err, ErrHealthyPosition)

	assert.Equal(t, sharesBefore, f.pool.TotalShares())
	assert.Equal(t, holdingsBefore, f.manager.Holdings("bob")[denomWBTC])
}

func TestLiquidateWithoutStableFullRollback(t *testing.T) {
	f := liquidationFixture(t)

	// Bob gives his stable away, so the burn leg must fail and undo the
	// collateral payout that already happened.
	require.NoError(t, f.bank.Transfer(denomStable, "bob", "carol", usdWei(20_000)))

	debtBefore, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)

	_, err = f.manager.Liquidate("bob", "alice", usdWei(10_000))
	require.Error(t, err)

	assert.True(t, f.bank.BalanceOf(denomWBTC, "bob").IsZero())
	assert.Equal(t, sats(1, 0), f.manager.Holdings("alice")[denomWBTC])
	debtAfter, err := f.pool.UserDebtUSD("alice")
	require.NoError(t, err)
	assert.Equal(t, debtBefore, debtAfter)
}

func TestRiskParameterUpdates(t *testing.T) {
	f := newFixture(t)

	bad := types.DefaultRiskParameters()
	bad.MintRatio = sdkmath.LegacyOneDec()
	require.Error(t, f.manager.SetRiskParameters(bad))

	loosened := types.DefaultRiskParameters()
	loosened.MintRatio = sdkmath.LegacyNewDecWithPrec(15, 1)
	loosened.LiquidationRatio = sdkmath.LegacyNewDecWithPrec(14, 1)
	loosened.LiquidationThreshold = sdkmath.LegacyNewDecWithPrec(13, 1)
	require.NoError(t, f.manager.SetRiskParameters(loosened))

	// 150% mint ratio lets 100,000 of collateral carry 66,666 of debt.
	f.fund(t, "alice", sats(1, 0))
	require.NoError(t, f.manager.Deposit("alice", denomWBTC, sats(1, 0)))
	require.NoError(t, f.manager.Mint("alice", denomStable, usdWei(66_000)))
}
