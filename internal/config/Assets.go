/*

This file contains the static asset registry: which collateral assets the
manager accepts, which synthetic instruments the debt pool tracks, and how
local denoms map onto the oracle feed symbols published on chain.

If an asset doesnt have an entry in DenomToFeedSymbol the price feed will
fall back to the upper-cased symbol. Because odds are it will work.

But for best practices try to keep this up to date.

*/

package config

import (
	"github.com/elys-network/synthcore/internal/engine"
	"github.com/elys-network/synthcore/internal/types"
)

// StableSynthetic is the USD-pegged instrument debt and rewards settle in.
// Its anchor is the oracle's stable key, pegged to 1.0 and never fed.
var StableSynthetic = types.SyntheticAsset{
	Denom:       "susd",
	Symbol:      "sUSD",
	AnchorDenom: "usd",
}

// Synthetics are the non-stable instruments. Each is valued at its anchor's
// feed, never at a feed of its own.
var Synthetics = []types.SyntheticAsset{
	{Denom: "sbtc", Symbol: "sBTC", AnchorDenom: "wbtc"},
	{Denom: "seth", Symbol: "sETH", AnchorDenom: "weth"},
	{Denom: "satom", Symbol: "sATOM", AnchorDenom: "uatom"},
}

// SupportedCollateral are the deposit assets, with their native on-chain
// decimals. Valuation normalizes to 18; storage keeps these as-is.
var SupportedCollateral = []types.CollateralAsset{
	{Denom: "wbtc", Symbol: "WBTC", Decimals: 8},
	{Denom: "weth", Symbol: "WETH", Decimals: 18},
	{Denom: "uatom", Symbol: "ATOM", Decimals: 6},
	{Denom: "uusdc", Symbol: "USDC", Decimals: 6},
}

// DenomToFeedSymbol maps local denoms to the symbol the on-chain oracle
// publishes prices under.
var DenomToFeedSymbol = map[types.AssetID]string{
	"wbtc":  "WBTC",
	"weth":  "WETH",
	"uatom": "ATOM",
	"uusdc": "USDC",

	"WRAPPED BITCOIN": "WBTC", // This is for TESTNET compatibility
}

// DefaultLedgerSpec assembles the bootstrap ledger layout from the registry
// above and the default risk parameters.
func DefaultLedgerSpec() engine.LedgerSpec {
	return engine.LedgerSpec{
		StableSynthetic: StableSynthetic,
		Synthetics:      Synthetics,
		Collateral:      SupportedCollateral,
		Params:          DefaultRiskParameters,
	}
}
