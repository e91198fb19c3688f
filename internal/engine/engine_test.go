package engine

import (
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/synthcore/internal/collateral"
	"github.com/elys-network/synthcore/internal/types"
)

const (
	denomStable = types.AssetID("susd")
	denomSBTC   = types.AssetID("sbtc")
	denomWBTC   = types.AssetID("wbtc")
	anchorUSD   = types.AssetID("usd")
)

func usdWei(whole int64) sdkmath.Int {
	return sdkmath.NewInt(whole).Mul(sdkmath.NewIntWithDecimal(1, 18))
}

func newEngine(t *testing.T) *Engine {
	t.Helper()

	e, err := Bootstrap(LedgerSpec{
		StableSynthetic: types.SyntheticAsset{Denom: denomStable, Symbol: "sUSD", AnchorDenom: anchorUSD},
		Synthetics: []types.SyntheticAsset{
			{Denom: denomSBTC, Symbol: "sBTC", AnchorDenom: denomWBTC},
		},
		Collateral: []types.CollateralAsset{
			{Denom: denomWBTC, Symbol: "WBTC", Decimals: 8},
		},
		Params: types.DefaultRiskParameters(),
	})
	require.NoError(t, err)

	require.NoError(t, e.Oracle().SetPrice(denomWBTC, sdkmath.LegacyNewDec(100_000)))
	require.NoError(t, e.Bank().GrantMintBurn(denomWBTC, "gateway"))
	return e
}

func fund(t *testing.T, e *Engine, user string, amount sdkmath.Int) {
	t.Helper()
	require.NoError(t, e.Bank().Mint("gateway", denomWBTC, user, amount))
}

func TestBootstrapValidation(t *testing.T) {
	_, err := Bootstrap(LedgerSpec{Params: types.DefaultRiskParameters()})
	require.Error(t, err)

	bad := types.DefaultRiskParameters()
	bad.MintRatio = sdkmath.LegacyOneDec()
	_, err = Bootstrap(LedgerSpec{
		StableSynthetic: types.SyntheticAsset{Denom: denomStable, AnchorDenom: anchorUSD},
		Params:          bad,
	})
	require.ErrorIs(t, err, types.ErrRatioOrdering)
}

func TestDepositMintExchangeClaimFlow(t *testing.T) {
	e := newEngine(t)
	oneWBTC := sdkmath.NewIntWithDecimal(1, 8)
	fund(t, e, "alice", oneWBTC)

	require.NoError(t, e.Deposit("alice", denomWBTC, oneWBTC))
	require.NoError(t, e.Mint("alice", denomStable, usdWei(50_000)))

	pos, err := e.GetPosition("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(100_000), pos.CollateralUSD)
	assert.Equal(t, usdWei(50_000), pos.DebtUSD)
	assert.Equal(t, sdkmath.LegacyNewDec(2), pos.HealthFactor)

	// Swap 10,000 stable into sBTC; the 50 USD fee accrues back to alice
	// as the sole debt holder.
	amountOut, err := e.ExchangeExactInput("alice", denomStable, denomSBTC, usdWei(10_000), "alice")
	require.NoError(t, err)
	assert.True(t, amountOut.IsPositive())

	pos, err = e.GetPosition("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(50), pos.PendingRewards)

	claimed, err := e.ClaimRewards("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(50), claimed)
}

func TestLiquidationFlow(t *testing.T) {
	e := newEngine(t)
	oneWBTC := sdkmath.NewIntWithDecimal(1, 8)
	fund(t, e, "alice", oneWBTC)
	fund(t, e, "bob", oneWBTC)

	require.NoError(t, e.Deposit("alice", denomWBTC, oneWBTC))
	require.NoError(t, e.Deposit("bob", denomWBTC, oneWBTC))
	require.NoError(t, e.Mint("alice", denomStable, usdWei(48_000)))
	require.NoError(t, e.Mint("bob", denomStable, usdWei(20_000)))

	// Liquidating a healthy position must not change anything.
	_, err := e.Liquidate("bob", "alice", usdWei(1_000))
	require.ErrorIs(t, err, collateral.ErrHealthyPosition)

	require.NoError(t, e.Oracle().SetPrice(denomWBTC, sdkmath.LegacyNewDec(60_000)))

	healthBefore, err := e.GetPosition("alice")
	require.NoError(t, err)

	paid, err := e.Liquidate("bob", "alice", usdWei(10_000))
	require.NoError(t, err)
	assert.Equal(t, usdWei(10_000), paid)

	healthAfter, err := e.GetPosition("alice")
	require.NoError(t, err)
	assert.True(t, healthAfter.HealthFactor.GT(healthBefore.HealthFactor))
	assert.Equal(t, usdWei(38_000), healthAfter.DebtUSD)
}

func TestWithdrawGuardThroughEngine(t *testing.T) {
	e := newEngine(t)
	oneWBTC := sdkmath.NewIntWithDecimal(1, 8)
	fund(t, e, "alice", oneWBTC)

	require.NoError(t, e.Deposit("alice", denomWBTC, oneWBTC))
	require.NoError(t, e.Mint("alice", denomStable, usdWei(50_000)))

	err := e.Withdraw("alice", denomWBTC, sdkmath.NewInt(15_000_000))
	require.ErrorIs(t, err, collateral.ErrRiskyPosition)
}

func TestUpdateRiskParameters(t *testing.T) {
	e := newEngine(t)

	params := types.DefaultRiskParameters()
	params.ExchangeFeeRate = sdkmath.LegacyNewDecWithPrec(1, 2)
	require.NoError(t, e.UpdateRiskParameters(params, "default", 2))
	assert.Equal(t, params.ExchangeFeeRate, e.RiskParameters().ExchangeFeeRate)

	params.MintRatio = sdkmath.LegacyOneDec()
	require.Error(t, e.UpdateRiskParameters(params, "default", 3))
}

func TestConcurrentQueriesDuringMutations(t *testing.T) {
	e := newEngine(t)
	oneWBTC := sdkmath.NewIntWithDecimal(1, 8)
	fund(t, e, "alice", oneWBTC)

	require.NoError(t, e.Deposit("alice", denomWBTC, oneWBTC))
	require.NoError(t, e.Mint("alice", denomStable, usdWei(10_000)))

	// The web layer serves reads concurrently with mutating operations;
	// both sides must serialize through the engine.
	const iterations = 200
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < iterations; i++ {
			assert.NoError(t, e.Mint("alice", denomStable, usdWei(1_000)))
			assert.NoError(t, e.Burn("alice", denomStable, usdWei(1_000)))
		}
	}()

	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				pos, err := e.GetPosition("alice")
				if assert.NoError(t, err) {
					assert.True(t, pos.DebtUSD.GTE(usdWei(10_000)))
				}
				_, err = e.TotalDebtUSD()
				assert.NoError(t, err)
				e.Prices()
			}
		}()
	}

	wg.Wait()

	pos, err := e.GetPosition("alice")
	require.NoError(t, err)
	assert.Equal(t, usdWei(10_000), pos.DebtUSD)
}

func TestQueries(t *testing.T) {
	e := newEngine(t)

	assert.Len(t, e.Synthetics(), 2)
	assert.Len(t, e.SupportedCollateral(), 1)

	prices := e.Prices()
	assert.Equal(t, sdkmath.LegacyNewDec(100_000), prices[denomWBTC])

	total, err := e.TotalDebtUSD()
	require.NoError(t, err)
	assert.True(t, total.IsZero())
}
