/*

This file contains the price oracle boundary. The core engines consume prices
through the PriceOracle interface only; the Store implementation is an
in-memory snapshot of the latest committed feed, refreshed by the pricefeed
client. The stable synthetic is treated as a hard 1.0 USD peg.

*/

package oracle

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/types"
	"github.com/elys-network/synthcore/internal/utils"
)

var (
	ErrUnknownAsset = errors.New("oracle: no price for asset")
	ErrInvalidPrice = errors.New("oracle: price is zero or negative")
)

// PriceOracle maps an asset identifier to its USD price per whole unit.
// Implementations must return ErrInvalidPrice rather than clamping a
// non-positive feed value.
type PriceOracle interface {
	Price(denom types.AssetID) (sdkmath.LegacyDec, error)
}

// Store is the in-memory PriceOracle implementation. Reads always reflect the
// latest committed SetPrice; there is no staleness window beyond what the
// upstream feed asserts.
type Store struct {
	mu          sync.RWMutex
	prices      map[types.AssetID]sdkmath.LegacyDec
	stableDenom types.AssetID
	logger      zerolog.Logger
}

// NewStore creates a price store with the given stable-synthetic denom pegged
// at exactly 1.0 USD.
func NewStore(stableDenom types.AssetID) *Store {
	return &Store{
		prices:      make(map[types.AssetID]sdkmath.LegacyDec),
		stableDenom: stableDenom,
		logger:      logger.GetForComponent("price_oracle"),
	}
}

// SetPrice commits a whole-unit USD price for a denom. Non-positive values are
// rejected, never stored.
func (s *Store) SetPrice(denom types.AssetID, price sdkmath.LegacyDec) error {
	if price.IsNil() || !price.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidPrice, denom)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[denom] = price
	s.logger.Debug().Str("denom", denom.String()).Str("price", price.String()).Msg("Price committed")
	return nil
}

// SetRawPrice normalizes a feed value of arbitrary decimals before committing
// it (e.g., a Chainlink-style 8-decimal feed).
func (s *Store) SetRawPrice(denom types.AssetID, raw sdkmath.Int, feedDecimals int) error {
	price, err := utils.NormalizeToDec(raw, feedDecimals)
	if err != nil {
		return fmt.Errorf("oracle: normalizing feed for %s: %w", denom, err)
	}
	return s.SetPrice(denom, price)
}

// Price returns the committed USD price for a denom. The stable synthetic is
// always 1.0 regardless of any committed value.
func (s *Store) Price(denom types.AssetID) (sdkmath.LegacyDec, error) {
	if denom == s.stableDenom {
		return sdkmath.LegacyOneDec(), nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	price, ok := s.prices[denom]
	if !ok {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrUnknownAsset, denom)
	}
	if !price.IsPositive() {
		return sdkmath.LegacyZeroDec(), fmt.Errorf("%w: %s", ErrInvalidPrice, denom)
	}
	return price, nil
}

// Prices returns a copy of every committed price, for reporting.
func (s *Store) Prices() map[types.AssetID]sdkmath.LegacyDec {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[types.AssetID]sdkmath.LegacyDec, len(s.prices))
	for denom, price := range s.prices {
		out[denom] = price
	}
	return out
}
