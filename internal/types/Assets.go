/*

This file contains the custom types for collateral assets and synthetic
instruments tracked by the protocol registries.

*/

package types

// AssetID is the bank denom that uniquely identifies a fungible asset.
type AssetID string

func (a AssetID) String() string {
	return string(a)
}

// CollateralAsset describes a deposit asset accepted by the collateral manager.
type CollateralAsset struct {
	Denom    AssetID `json:"denom"`    // e.g., "wbtc"
	Symbol   string  `json:"symbol"`   // e.g., "BTC"
	Decimals int     `json:"decimals"` // native token precision, 0..18 (normalized only at valuation time)
}

// SyntheticAsset describes a debt-bearing synthetic instrument registered in
// the debt pool. The anchor denom is the price-feed key the instrument is
// valued against, which is distinct from the token's own denom (synthetic BTC
// is valued at the BTC feed, not at a feed for the synthetic token itself).
type SyntheticAsset struct {
	Denom       AssetID `json:"denom"`        // e.g., "sbtc"
	Symbol      string  `json:"symbol"`       // e.g., "sBTC"
	AnchorDenom AssetID `json:"anchor_denom"` // e.g., "wbtc"
}

// SyntheticDecimals is the fixed precision of every protocol-minted synthetic.
// The stable synthetic therefore shares the scale of USD amounts: one unit of
// stable equals one USD-wei.
const SyntheticDecimals = 18
