/*

This file contains the shared debt-pool ledger: proportional debt shares over
the aggregate USD value of every registered synthetic instrument, plus the
lazy reward-index accumulator that distributes exchange fees to debt holders
in O(1) per fee event.

A user's USD debt is userShares * totalDebtUSD / totalShares, where
totalDebtUSD is re-derived on every query by summing supply * anchor price
over the registered instruments. Shares have no intrinsic USD value; the
first debt increase bootstraps the share:USD rate at 1:1.

*/

package debtpool

import (
	"errors"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
	"github.com/elys-network/synthcore/internal/utils"
)

var (
	ErrZeroAmount       = errors.New("debtpool: amount must be positive")
	ErrZeroTotalDebt    = errors.New("debtpool: no debt outstanding")
	ErrInsufficientDebt = errors.New("debtpool: shares to burn exceed user shares")
	ErrUserNoDebt       = errors.New("debtpool: user holds no debt shares")
	ErrNoRewardAccrued  = errors.New("debtpool: no rewards accrued")
	ErrUnauthorized     = errors.New("debtpool: caller not authorized")
	ErrUnknownSynthetic = errors.New("debtpool: synthetic not registered")
	ErrSyntheticExists  = errors.New("debtpool: synthetic already registered")
)

// ModuleID is the caller identity the pool uses against the token bank.
const ModuleID = "debtpool"

// Pool is the debt-share ledger. All mutating entry points are capability
// gated: debt managers may adjust shares, reward distributors may push fees.
type Pool struct {
	bank        *token.Bank
	oracle      oracle.PriceOracle
	stableDenom types.AssetID
	logger      zerolog.Logger

	debtManagers       map[string]bool
	rewardDistributors map[string]bool

	totalShares     sdkmath.Int
	userShares      map[string]sdkmath.Int
	rewardIndex     sdkmath.LegacyDec // USD-wei accrued per share, monotone
	userRewardIndex map[string]sdkmath.LegacyDec
	pendingRewards  map[string]sdkmath.Int // settled, unclaimed USD-wei

	synthetics []types.SyntheticAsset // iteration order is not stable across removals
	synthIndex map[types.AssetID]int
}

// New creates an empty pool over the given bank and oracle. The stable denom
// is the unit rewards are paid out in.
func New(bank *token.Bank, priceOracle oracle.PriceOracle, stableDenom types.AssetID) *Pool {
	return &Pool{
		bank:               bank,
		oracle:             priceOracle,
		stableDenom:        stableDenom,
		logger:             logger.GetForComponent("debt_pool"),
		debtManagers:       make(map[string]bool),
		rewardDistributors: make(map[string]bool),
		totalShares:        sdkmath.ZeroInt(),
		userShares:         make(map[string]sdkmath.Int),
		rewardIndex:        sdkmath.LegacyZeroDec(),
		userRewardIndex:    make(map[string]sdkmath.LegacyDec),
		pendingRewards:     make(map[string]sdkmath.Int),
		synthIndex:         make(map[types.AssetID]int),
	}
}

// AuthorizeDebtManager grants a caller identity the debt-adjustment capability.
func (p *Pool) AuthorizeDebtManager(caller string) {
	p.debtManagers[caller] = true
}

// AuthorizeRewardDistributor grants a caller identity the fee-distribution
// capability.
func (p *Pool) AuthorizeRewardDistributor(caller string) {
	p.rewardDistributors[caller] = true
}

// RegisterSynthetic adds an instrument to the debt aggregation set.
func (p *Pool) RegisterSynthetic(asset types.SyntheticAsset) error {
	if _, exists := p.synthIndex[asset.Denom]; exists {
		return fmt.Errorf("%w: %s", ErrSyntheticExists, asset.Denom)
	}
	p.synthIndex[asset.Denom] = len(p.synthetics)
	p.synthetics = append(p.synthetics, asset)
	p.logger.Info().
		Str("denom", asset.Denom.String()).
		Str("anchor", asset.AnchorDenom.String()).
		Msg("Synthetic registered")
	return nil
}

// DeregisterSynthetic removes an instrument with a swap-with-last; callers
// must not depend on iteration order.
func (p *Pool) DeregisterSynthetic(denom types.AssetID) error {
	idx, exists := p.synthIndex[denom]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownSynthetic, denom)
	}
	last := len(p.synthetics) - 1
	if idx != last {
		p.synthetics[idx] = p.synthetics[last]
		p.synthIndex[p.synthetics[idx].Denom] = idx
	}
	p.synthetics = p.synthetics[:last]
	delete(p.synthIndex, denom)
	return nil
}

// Synthetics returns a copy of the registered instrument list.
func (p *Pool) Synthetics() []types.SyntheticAsset {
	out := make([]types.SyntheticAsset, len(p.synthetics))
	copy(out, p.synthetics)
	return out
}

// Synthetic looks up a registered instrument by denom.
func (p *Pool) Synthetic(denom types.AssetID) (types.SyntheticAsset, bool) {
	idx, exists := p.synthIndex[denom]
	if !exists {
		return types.SyntheticAsset{}, false
	}
	return p.synthetics[idx], true
}

// IsSynthetic reports whether a denom is a registered instrument.
func (p *Pool) IsSynthetic(denom types.AssetID) bool {
	_, exists := p.synthIndex[denom]
	return exists
}

// StableDenom returns the stable synthetic's denom.
func (p *Pool) StableDenom() types.AssetID {
	return p.stableDenom
}

// IncreaseDebt mints amountUSD worth of new debt shares to the user. The
// user's pending reward is settled first so accrual under the old share count
// is never attributed to the new shares. Callers increase debt before minting
// the corresponding synthetic supply, so share pricing uses the pre-mint
// total.
func (p *Pool) IncreaseDebt(caller, user string, amountUSD sdkmath.Int) (err error) {
	if !p.debtManagers[caller] {
		return fmt.Errorf("%w: %s is not a debt manager", ErrUnauthorized, caller)
	}
	if amountUSD.IsNil() || !amountUSD.IsPositive() {
		return ErrZeroAmount
	}

	snap := p.snapshot()
	defer func() {
		if err != nil {
			p.restore(snap)
		}
	}()

	p.settleRewards(user)

	var newShares sdkmath.Int
	if p.totalShares.IsZero() {
		// Bootstrap: 1 share per USD-wei.
		newShares = amountUSD
	} else {
		totalDebt, derr := p.TotalDebtUSD()
		if derr != nil {
			return derr
		}
		if totalDebt.IsZero() {
			// Shares exist but the instruments they claim are worthless or
			// gone. Minting against a zero denominator is undefined.
			return ErrZeroTotalDebt
		}
		newShares = amountUSD.Mul(p.totalShares).Quo(totalDebt)
	}

	p.userShares[user] = p.shares(user).Add(newShares)
	p.totalShares = p.totalShares.Add(newShares)

	p.logger.Debug().
		Str("user", user).
		Str("amountUSD", amountUSD.String()).
		Str("newShares", newShares.String()).
		Str("totalShares", p.totalShares.String()).
		Msg("Debt increased")
	return nil
}

// DecreaseDebt burns shares equivalent to amountUSD of debt. The caller must
// cap amountUSD at the user's current debt beforehand; this function does not
// clamp and fails with ErrInsufficientDebt on overshoot.
func (p *Pool) DecreaseDebt(caller, user string, amountUSD sdkmath.Int) (err error) {
	if !p.debtManagers[caller] {
		return fmt.Errorf("%w: %s is not a debt manager", ErrUnauthorized, caller)
	}
	if amountUSD.IsNil() || !amountUSD.IsPositive() {
		return ErrZeroAmount
	}

	snap := p.snapshot()
	defer func() {
		if err != nil {
			p.restore(snap)
		}
	}()

	p.settleRewards(user)

	totalDebt, derr := p.TotalDebtUSD()
	if derr != nil {
		return derr
	}
	if totalDebt.IsZero() || p.totalShares.IsZero() {
		return ErrZeroTotalDebt
	}

	sharesToBurn := amountUSD.Mul(p.totalShares).Quo(totalDebt)
	userShares := p.shares(user)
	if sharesToBurn.GT(userShares) {
		return fmt.Errorf("%w: burn %s > held %s", ErrInsufficientDebt, sharesToBurn, userShares)
	}

	remaining := userShares.Sub(sharesToBurn)
	if remaining.IsZero() {
		delete(p.userShares, user)
	} else {
		p.userShares[user] = remaining
	}
	p.totalShares = p.totalShares.Sub(sharesToBurn)

	p.logger.Debug().
		Str("user", user).
		Str("amountUSD", amountUSD.String()).
		Str("burnedShares", sharesToBurn.String()).
		Str("totalShares", p.totalShares.String()).
		Msg("Debt decreased")
	return nil
}

// DistributeRewards spreads feeUSD across all current debt holders by bumping
// the global reward index. Fees with nobody to receive them are rejected, not
// burned.
func (p *Pool) DistributeRewards(caller string, feeUSD sdkmath.Int) error {
	if !p.rewardDistributors[caller] {
		return fmt.Errorf("%w: %s is not a reward distributor", ErrUnauthorized, caller)
	}
	if feeUSD.IsNil() || !feeUSD.IsPositive() {
		return ErrZeroAmount
	}
	if p.totalShares.IsZero() {
		return ErrZeroTotalDebt
	}

	perShare := sdkmath.LegacyNewDecFromInt(feeUSD).QuoInt(p.totalShares)
	p.rewardIndex = p.rewardIndex.Add(perShare)

	p.logger.Debug().
		Str("feeUSD", feeUSD.String()).
		Str("rewardIndex", p.rewardIndex.String()).
		Msg("Rewards distributed")
	return nil
}

// ClaimRewards settles and pays out the user's accrued rewards as freshly
// minted stable synthetic. Returns the claimed USD-wei amount.
func (p *Pool) ClaimRewards(user string) (claimed sdkmath.Int, err error) {
	if p.shares(user).IsZero() {
		return sdkmath.ZeroInt(), ErrUserNoDebt
	}

	snap := p.snapshot()
	defer func() {
		if err != nil {
			p.restore(snap)
		}
	}()

	p.settleRewards(user)

	pending := p.pendingRewards[user]
	if pending.IsNil() || pending.IsZero() {
		return sdkmath.ZeroInt(), ErrNoRewardAccrued
	}
	p.pendingRewards[user] = sdkmath.ZeroInt()

	if err := p.bank.Mint(ModuleID, p.stableDenom, user, pending); err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("debtpool: minting reward payout: %w", err)
	}

	p.logger.Info().
		Str("user", user).
		Str("claimedUSD", pending.String()).
		Msg("Rewards claimed")
	return pending, nil
}

// TotalDebtUSD re-derives the aggregate protocol debt by summing
// supply * anchor price over every registered instrument. Deliberately not
// cached: stale totals corrupt share pricing.
func (p *Pool) TotalDebtUSD() (sdkmath.Int, error) {
	total := sdkmath.ZeroInt()
	for _, synth := range p.synthetics {
		supply := p.bank.TotalSupply(synth.Denom)
		if supply.IsZero() {
			continue
		}
		price, err := p.oracle.Price(synth.AnchorDenom)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("debtpool: pricing %s: %w", synth.Denom, err)
		}
		value, err := utils.USDValue(supply, types.SyntheticDecimals, price)
		if err != nil {
			return sdkmath.ZeroInt(), fmt.Errorf("debtpool: valuing %s: %w", synth.Denom, err)
		}
		total = total.Add(value)
	}
	return total, nil
}

// UserDebtUSD returns the user's proportional claim on the total debt.
func (p *Pool) UserDebtUSD(user string) (sdkmath.Int, error) {
	shares := p.shares(user)
	if shares.IsZero() || p.totalShares.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	totalDebt, err := p.TotalDebtUSD()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return shares.Mul(totalDebt).Quo(p.totalShares), nil
}

// PendingRewards computes the user's claimable reward without mutating state.
func (p *Pool) PendingRewards(user string) sdkmath.Int {
	settled := p.pendingRewards[user]
	if settled.IsNil() {
		settled = sdkmath.ZeroInt()
	}
	shares := p.shares(user)
	if shares.IsZero() {
		return settled
	}
	delta := p.rewardIndex.Sub(p.userIndex(user))
	return settled.Add(delta.MulInt(shares).TruncateInt())
}

// RewardIndex returns the global per-share fee accumulator.
func (p *Pool) RewardIndex() sdkmath.LegacyDec {
	return p.rewardIndex
}

// TotalShares returns the outstanding share count.
func (p *Pool) TotalShares() sdkmath.Int {
	return p.totalShares
}

// UserShares returns the user's share balance.
func (p *Pool) UserShares(user string) sdkmath.Int {
	return p.shares(user)
}

// settleRewards realizes the reward accrued under the user's current share
// count and advances their index snapshot. Must run before any share-count
// change for the user.
func (p *Pool) settleRewards(user string) {
	shares := p.shares(user)
	if shares.IsPositive() {
		delta := p.rewardIndex.Sub(p.userIndex(user))
		if delta.IsPositive() {
			accrued := delta.MulInt(shares).TruncateInt()
			current := p.pendingRewards[user]
			if current.IsNil() {
				current = sdkmath.ZeroInt()
			}
			p.pendingRewards[user] = current.Add(accrued)
		}
	}
	p.userRewardIndex[user] = p.rewardIndex
}

func (p *Pool) shares(user string) sdkmath.Int {
	shares, ok := p.userShares[user]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return shares
}

func (p *Pool) userIndex(user string) sdkmath.LegacyDec {
	idx, ok := p.userRewardIndex[user]
	if !ok {
		return sdkmath.LegacyZeroDec()
	}
	return idx
}

type poolSnapshot struct {
	totalShares     sdkmath.Int
	userShares      map[string]sdkmath.Int
	rewardIndex     sdkmath.LegacyDec
	userRewardIndex map[string]sdkmath.LegacyDec
	pendingRewards  map[string]sdkmath.Int
}

func (p *Pool) snapshot() poolSnapshot {
	snap := poolSnapshot{
		totalShares:     p.totalShares,
		userShares:      make(map[string]sdkmath.Int, len(p.userShares)),
		rewardIndex:     p.rewardIndex,
		userRewardIndex: make(map[string]sdkmath.LegacyDec, len(p.userRewardIndex)),
		pendingRewards:  make(map[string]sdkmath.Int, len(p.pendingRewards)),
	}
	for user, shares := range p.userShares {
		snap.userShares[user] = shares
	}
	for user, idx := range p.userRewardIndex {
		snap.userRewardIndex[user] = idx
	}
	for user, pending := range p.pendingRewards {
		snap.pendingRewards[user] = pending
	}
	return snap
}

func (p *Pool) restore(snap poolSnapshot) {
	p.totalShares = snap.totalShares
	p.userShares = snap.userShares
	p.rewardIndex = snap.rewardIndex
	p.userRewardIndex = snap.userRewardIndex
	p.pendingRewards = snap.pendingRewards
}

// Snapshot exposes a rollback point for composite operations that touch the
// pool alongside other ledgers.
type Snapshot = poolSnapshot

// Capture returns a restorable copy of the pool's mutable state.
func (p *Pool) Capture() Snapshot {
	return p.snapshot()
}

// Rollback restores a capture taken by Capture.
func (p *Pool) Rollback(snap Snapshot) {
	p.restore(snap)
}
