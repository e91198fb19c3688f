package exchanger

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
)

const (
	denomStable = types.AssetID("susd")
	denomSBTC   = types.AssetID("sbtc")
	anchorUSD   = types.AssetID("usd")
	anchorBTC   = types.AssetID("btc")
)

func usdWei(whole int64) sdkmath.Int {
	return sdkmath.NewInt(whole).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

type fixture struct {
	bank      *token.Bank
	oracle    *oracle.Store
	pool      *debtpool.Pool
	exchanger *Exchanger
}

// newFixture builds a ledger where alice carries the only debt, so every
// distributed fee accrues to her.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	bank := token.NewBank()
	require.NoError(t, bank.Register(denomStable, types.SyntheticDecimals))
	require.NoError(t, bank.Register(denomSBTC, types.SyntheticDecimals))

	store := oracle.NewStore(anchorUSD)
	require.NoError(t, store.SetPrice(anchorBTC, sdkmath.LegacyNewDec(100_000)))

	pool := debtpool.New(bank, store, denomStable)
	require.NoError(t, pool.RegisterSynthetic(types.SyntheticAsset{
		Denom: denomStable, Symbol: "sUSD", AnchorDenom: anchorUSD,
	}))
	require.NoError(t, pool.RegisterSynthetic(types.SyntheticAsset{
		Denom: denomSBTC, Symbol: "sBTC", AnchorDenom: anchorBTC,
	}))

	ex, err := New(bank, pool, store, sdkmath.LegacyNewDecWithPrec(5, 3))
	require.NoError(t, err)

	require.NoError(t, bank.GrantMintBurn(denomStable, ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomSBTC, ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomStable, "test"))
	pool.AuthorizeDebtManager("test")
	pool.AuthorizeRewardDistributor(ModuleID)

	require.NoError(t, pool.IncreaseDebt("test", "alice", usdWei(20_000)))
	require.NoError(t, bank.Mint("test", denomStable, "alice", usdWei(20_000)))

	return &fixture{bank: bank, oracle: store, pool: pool, exchanger: ex}
}

func TestExchangeExactInput(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bank.Mint("test", denomStable, "trader", usdWei(10_000)))

	amountOut, feeUSD, err := f.exchanger.ExchangeExactInput("trader", denomStable, denomSBTC, usdWei(10_000), "trader")
	require.NoError(t, err)

	// 10,000 USD in, 0.5% fee out of it, 9,950 USD delivered as sBTC at
	// 100k: 0.0995 sBTC.
	assert.Equal(t, usdWei(50), feeUSD)
	assert.Equal(t, sdkmath.NewInt(995).Mul(sdkmath.NewIntWithDecimal(1, 14)), amountOut)

	assert.True(t, f.bank.BalanceOf(denomStable, "trader").IsZero())
	assert.Equal(t, amountOut, f.bank.BalanceOf(denomSBTC, "trader"))

	// The fee landed on the sole debt holder.
	assert.Equal(t, usdWei(50), f.pool.PendingRewards("alice"))
}

func TestExchangeExactOutput(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bank.Mint("test", denomStable, "trader", usdWei(11_000)))

	// 0.1 sBTC delivered is 10,000 USD; fee is charged on top, so the
	// trader pays 10,050 sUSD.
	wantOut := sdkmath.NewIntWithDecimal(1, 17)
	amountIn, feeUSD, err := f.exchanger.ExchangeExactOutput("trader", denomStable, denomSBTC, wantOut, "trader")
	require.NoError(t, err)

	assert.Equal(t, usdWei(50), feeUSD)
	assert.Equal(t, usdWei(10_050), amountIn)
	assert.Equal(t, wantOut, f.bank.BalanceOf(denomSBTC, "trader"))
	assert.Equal(t, usdWei(950), f.bank.BalanceOf(denomStable, "trader"))
	assert.Equal(t, usdWei(50), f.pool.PendingRewards("alice"))
}

func TestQuoteExactOutputMatchesExecution(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bank.Mint("test", denomStable, "trader", usdWei(11_000)))

	wantOut := sdkmath.NewIntWithDecimal(1, 17)
	quotedIn, grossUSD, quotedFee, err := f.exchanger.QuoteExactOutput(denomStable, denomSBTC, wantOut)
	require.NoError(t, err)
	assert.Equal(t, usdWei(10_050), grossUSD)

	amountIn, feeUSD, err := f.exchanger.ExchangeExactOutput("trader", denomStable, denomSBTC, wantOut, "trader")
	require.NoError(t, err)
	assert.Equal(t, quotedIn, amountIn)
	assert.Equal(t, quotedFee, feeUSD)
}

func TestFeeBaseAsymmetry(t *testing.T) {
	f := newFixture(t)

	// Exact input on 10,000 USD charges fee out of the input; exact output
	// delivering the same 10,000 USD charges it on top. Same notional, a
	// different fee base, and the deliberate reason the exact-output gross
	// exceeds the exact-input value.
	half := sdkmath.NewIntWithDecimal(1, 17)
	_, grossUSD, feeOut, err := f.exchanger.QuoteExactOutput(denomStable, denomSBTC, half)
	require.NoError(t, err)
	assert.Equal(t, usdWei(10_050), grossUSD)
	assert.Equal(t, usdWei(50), feeOut)
}

func TestExchangeValidation(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.exchanger.ExchangeExactInput("trader", denomStable, denomSBTC, sdkmath.ZeroInt(), "trader")
	require.ErrorIs(t, err, ErrZeroAmount)

	_, _, err = f.exchanger.ExchangeExactInput("trader", denomStable, denomStable, usdWei(1), "trader")
	require.ErrorIs(t, err, ErrSameAsset)

	_, _, err = f.exchanger.ExchangeExactInput("trader", "sdoge", denomSBTC, usdWei(1), "trader")
	require.ErrorIs(t, err, ErrUnsupportedAsset)

	_, _, _, err = f.exchanger.QuoteExactOutput(denomStable, "sdoge", usdWei(1))
	require.ErrorIs(t, err, ErrUnsupportedAsset)
}

func TestInvalidFeeRate(t *testing.T) {
	f := newFixture(t)

	require.ErrorIs(t, f.exchanger.SetFeeRate(sdkmath.LegacyOneDec()), ErrInvalidFeeRate)
	require.ErrorIs(t, f.exchanger.SetFeeRate(sdkmath.LegacyNewDec(-1)), ErrInvalidFeeRate)

	_, err := New(f.bank, f.pool, f.oracle, sdkmath.LegacyNewDec(2))
	require.ErrorIs(t, err, ErrInvalidFeeRate)
}

func TestExchangeRollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bank.Mint("test", denomStable, "trader", usdWei(100)))

	indexBefore := f.pool.RewardIndex()
	supplyBefore := f.bank.TotalSupply(denomStable)

	// Trader cannot cover the input; the whole settlement must unwind.
	_, _, err := f.exchanger.ExchangeExactInput("trader", denomStable, denomSBTC, usdWei(10_000), "trader")
	require.Error(t, err)

	assert.Equal(t, usdWei(100), f.bank.BalanceOf(denomStable, "trader"))
	assert.Equal(t, supplyBefore, f.bank.TotalSupply(denomStable))
	assert.True(t, f.bank.TotalSupply(denomSBTC).IsZero())
	assert.Equal(t, indexBefore, f.pool.RewardIndex())
}

func TestFeeWithNoDebtorsRejected(t *testing.T) {
	bank := token.NewBank()
	require.NoError(t, bank.Register(denomStable, types.SyntheticDecimals))
	require.NoError(t, bank.Register(denomSBTC, types.SyntheticDecimals))

	store := oracle.NewStore(anchorUSD)
	require.NoError(t, store.SetPrice(anchorBTC, sdkmath.LegacyNewDec(100_000)))

	pool := debtpool.New(bank, store, denomStable)
	require.NoError(t, pool.RegisterSynthetic(types.SyntheticAsset{Denom: denomStable, AnchorDenom: anchorUSD}))
	require.NoError(t, pool.RegisterSynthetic(types.SyntheticAsset{Denom: denomSBTC, AnchorDenom: anchorBTC}))

	ex, err := New(bank, pool, store, sdkmath.LegacyNewDecWithPrec(5, 3))
	require.NoError(t, err)

	require.NoError(t, bank.GrantMintBurn(denomStable, ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomSBTC, ModuleID))
	require.NoError(t, bank.GrantMintBurn(denomStable, "test"))
	pool.AuthorizeRewardDistributor(ModuleID)

	// Stable exists but nobody holds debt shares, so the fee has no
	// receiver and the swap is refused outright.
	require.NoError(t, bank.Mint("test", denomStable, "trader", usdWei(1_000)))
	_, _, err = ex.ExchangeExactInput("trader", denomStable, denomSBTC, usdWei(1_000), "trader")
	require.ErrorIs(t, err, debtpool.ErrZeroTotalDebt)

	// And nothing moved.
	assert.Equal(t, usdWei(1_000), bank.BalanceOf(denomStable, "trader"))
	assert.True(t, bank.TotalSupply(denomSBTC).IsZero())
}
