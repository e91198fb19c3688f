/*

This file contains the price feed: it pulls asset metadata from the chain's
assetprofile module and spot prices from the tier module over gRPC, maps
them onto the local denoms the oracle store tracks, and commits them on a
fixed interval. Assets the engines depend on never get a defaulted price; a
missing or invalid feed entry leaves the last committed price in place and
is logged loudly.

*/

package pricefeed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/cosmos/cosmos-sdk/types/query"
	assetprofiletypes "github.com/elys-network/elys/v6/x/assetprofile/types"
	tier "github.com/elys-network/elys/v6/x/tier/types"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/types"
)

var ErrNoPriceData = errors.New("pricefeed: no price data available")

// Feed refreshes the oracle store from on-chain price sources.
type Feed struct {
	grpcClient *grpc.ClientConn
	store      *oracle.Store
	// targets maps local denoms to the feed symbol the chain publishes
	// prices under.
	targets map[types.AssetID]string
	logger  zerolog.Logger
}

// New creates a feed for the given targets.
func New(grpcClient *grpc.ClientConn, store *oracle.Store, targets map[types.AssetID]string) (*Feed, error) {
	if grpcClient == nil {
		return nil, errors.New("pricefeed: gRPC client cannot be nil")
	}
	if store == nil {
		return nil, errors.New("pricefeed: oracle store cannot be nil")
	}
	if len(targets) == 0 {
		return nil, errors.New("pricefeed: no target assets configured")
	}
	return &Feed{
		grpcClient: grpcClient,
		store:      store,
		targets:    targets,
		logger:     logger.GetForComponent("price_feed"),
	}, nil
}

// Refresh fetches the current on-chain prices and commits every target that
// has a usable quote. Returns an error only when nothing could be committed.
func (f *Feed) Refresh(ctx context.Context) error {
	symbolPrices, err := f.fetchSymbolPrices(ctx)
	if err != nil {
		return err
	}

	committed := 0
	for denom, symbol := range f.targets {
		price, ok := symbolPrices[symbol]
		if !ok {
			f.logger.Warn().
				Str("denom", denom.String()).
				Str("symbol", symbol).
				Msg("No price data available for asset - keeping last committed price")
			continue
		}
		if err := f.store.SetPrice(denom, price); err != nil {
			f.logger.Error().
				Err(err).
				Str("denom", denom.String()).
				Str("price", price.String()).
				Msg("Rejected feed price")
			continue
		}
		committed++
	}

	if committed == 0 {
		return ErrNoPriceData
	}
	f.logger.Info().
		Int("committed", committed).
		Int("targets", len(f.targets)).
		Msg("Oracle prices refreshed")
	return nil
}

// RunLoop refreshes prices on the given interval until the context is done.
// The first refresh runs immediately.
func (f *Feed) RunLoop(ctx context.Context, interval time.Duration) {
	f.logger.Info().
		Dur("interval", interval).
		Msg("Starting price feed loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if err := f.Refresh(ctx); err != nil {
		f.logger.Error().Err(err).Msg("Initial price refresh failed")
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info().Msg("Price feed loop stopped due to context cancellation")
			return
		case <-ticker.C:
			if err := f.Refresh(ctx); err != nil {
				f.logger.Error().Err(err).Msg("Price refresh failed")
			}
		}
	}
}

// fetchSymbolPrices joins assetprofile metadata with tier prices and keys the
// result by upper-cased display symbol.
func (f *Feed) fetchSymbolPrices(ctx context.Context) (map[string]sdkmath.LegacyDec, error) {
	entries, err := f.fetchAllEntries(ctx)
	if err != nil {
		return nil, err
	}
	priceMap, err := f.fetchAllPrices(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]sdkmath.LegacyDec)
	for _, entry := range entries {
		price, ok := priceMap[entry.Denom]
		if !ok || price == nil {
			continue
		}
		// Prefer the oracle quote, fall back to the AMM spot.
		var quote sdkmath.LegacyDec
		switch {
		case !price.OraclePrice.IsNil() && price.OraclePrice.IsPositive():
			quote = price.OraclePrice
		case !price.AmmPrice.IsNil() && price.AmmPrice.IsPositive():
			quote = price.AmmPrice
		default:
			continue
		}
		out[strings.ToUpper(entry.DisplayName)] = quote
	}
	return out, nil
}

// fetchAllEntries pages through the assetprofile module's token registry.
func (f *Feed) fetchAllEntries(ctx context.Context) ([]assetprofiletypes.Entry, error) {
	assetProfileClient := assetprofiletypes.NewQueryClient(f.grpcClient)

	var allEntries []assetprofiletypes.Entry
	var nextKey []byte
	pageLimit := uint64(500) // Reasonable page size for token entries

	for {
		response, err := assetProfileClient.EntryAll(
			ctx,
			&assetprofiletypes.QueryAllEntryRequest{
				Pagination: &query.PageRequest{
					Key:        nextKey,
					Limit:      pageLimit,
					CountTotal: false,
				},
			},
		)
		if err != nil {
			f.logger.Error().Err(err).Msg("Failed to fetch token entries from assetprofile module")
			return nil, fmt.Errorf("assetprofile query failed: %w", err)
		}
		if response == nil {
			return nil, errors.New("nil response from assetprofile module")
		}

		allEntries = append(allEntries, response.Entry...)

		if response.Pagination == nil || len(response.Pagination.NextKey) == 0 {
			break
		}
		nextKey = response.Pagination.NextKey
	}
	return allEntries, nil
}

// fetchAllPrices pages through the tier module's price table, keyed by
// on-chain denom.
func (f *Feed) fetchAllPrices(ctx context.Context) (map[string]*tier.Price, error) {
	tierClient := tier.NewQueryClient(f.grpcClient)

	var allPrices []*tier.Price
	var nextKey []byte
	pageLimit := uint64(500) // Reasonable page size for price entries

	for {
		response, err := tierClient.GetAllPrices(
			ctx,
			&tier.QueryGetAllPricesRequest{
				Pagination: &query.PageRequest{
					Key:        nextKey,
					Limit:      pageLimit,
					CountTotal: false,
				},
			},
		)
		if err != nil {
			f.logger.Error().Err(err).Msg("Failed to fetch token prices from tier module")
			return nil, fmt.Errorf("tier module price query failed: %w", err)
		}
		if response == nil {
			return nil, errors.New("nil response from tier module")
		}

		allPrices = append(allPrices, response.Prices...)

		if response.Pagination == nil || len(response.Pagination.NextKey) == 0 {
			break
		}
		nextKey = response.Pagination.NextKey
	}

	priceMap := make(map[string]*tier.Price, len(allPrices))
	for _, price := range allPrices {
		if price == nil {
			continue
		}
		priceMap[price.Denom] = price
	}
	return priceMap, nil
}
