/*

This file contains the fungible-token ledger the engines operate against. It
stands in for the host chain's bank module: balances and supplies per denom,
transfers between accounts, and mint/burn gated by a per-denom authority set.

Denoms may carry a transfer fee in basis points to model non-standard token
behavior; the collateral manager's deposit path verifies the received balance
delta precisely because of tokens like these.

*/

package token

import (
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/types"
)

var (
	ErrUnknownDenom      = errors.New("token: denom not registered")
	ErrAlreadyRegistered = errors.New("token: denom already registered")
	ErrUnauthorized      = errors.New("token: caller lacks mint/burn authority")
	ErrInsufficientFunds = errors.New("token: insufficient balance")
	ErrInvalidAmount     = errors.New("token: amount must be positive")
	ErrInvalidDecimals   = errors.New("token: decimals must be between 0 and 18")
)

var basisPoints = sdkmath.NewInt(10_000)

// Bank is the in-memory fungible-token ledger.
type Bank struct {
	mu          sync.RWMutex
	balances    map[types.AssetID]map[string]sdkmath.Int
	supplies    map[types.AssetID]sdkmath.Int
	decimals    map[types.AssetID]int
	transferFee map[types.AssetID]uint64 // bps skimmed (destroyed) on every transfer
	authorities map[types.AssetID]map[string]bool
	logger      zerolog.Logger
}

// NewBank creates an empty ledger.
func NewBank() *Bank {
	return &Bank{
		balances:    make(map[types.AssetID]map[string]sdkmath.Int),
		supplies:    make(map[types.AssetID]sdkmath.Int),
		decimals:    make(map[types.AssetID]int),
		transferFee: make(map[types.AssetID]uint64),
		authorities: make(map[types.AssetID]map[string]bool),
		logger:      logger.GetForComponent("token_bank"),
	}
}

// Register creates a denom with its native precision.
func (b *Bank) Register(denom types.AssetID, decimals int) error {
	if decimals < 0 || decimals > 18 {
		return fmt.Errorf("%w: %d", ErrInvalidDecimals, decimals)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.supplies[denom]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, denom)
	}
	b.balances[denom] = make(map[string]sdkmath.Int)
	b.supplies[denom] = sdkmath.ZeroInt()
	b.decimals[denom] = decimals
	b.authorities[denom] = make(map[string]bool)
	b.logger.Info().Str("denom", denom.String()).Int("decimals", decimals).Msg("Denom registered")
	return nil
}

// SetTransferFeeBps configures a fee-on-transfer denom. The fee is destroyed,
// so the recipient observes a smaller balance delta than the sent amount.
func (b *Bank) SetTransferFeeBps(denom types.AssetID, bps uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.supplies[denom]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	b.transferFee[denom] = bps
	return nil
}

// GrantMintBurn authorizes a caller identity to mint and burn the denom.
func (b *Bank) GrantMintBurn(denom types.AssetID, caller string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	auth, exists := b.authorities[denom]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	auth[caller] = true
	return nil
}

// Mint creates amount units of denom in to's account. Restricted to granted
// callers.
func (b *Bank) Mint(caller string, denom types.AssetID, to string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireAuthority(caller, denom); err != nil {
		return err
	}
	b.credit(denom, to, amount)
	b.supplies[denom] = b.supplies[denom].Add(amount)
	return nil
}

// Burn destroys amount units of denom from from's account. Restricted to
// granted callers.
func (b *Bank) Burn(caller string, denom types.AssetID, from string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.requireAuthority(caller, denom); err != nil {
		return err
	}
	if err := b.debit(denom, from, amount); err != nil {
		return err
	}
	b.supplies[denom] = b.supplies[denom].Sub(amount)
	return nil
}

// Transfer moves amount units of denom between accounts, applying the denom's
// transfer fee if one is configured.
func (b *Bank) Transfer(denom types.AssetID, from, to string, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.supplies[denom]; !exists {
		return fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	if err := b.debit(denom, from, amount); err != nil {
		return err
	}
	received := amount
	if bps := b.transferFee[denom]; bps > 0 {
		fee := amount.Mul(sdkmath.NewIntFromUint64(bps)).Quo(basisPoints)
		received = amount.Sub(fee)
		b.supplies[denom] = b.supplies[denom].Sub(fee)
	}
	b.credit(denom, to, received)
	return nil
}

// BalanceOf returns the holder's balance, zero for unknown accounts.
func (b *Bank) BalanceOf(denom types.AssetID, holder string) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	holders, exists := b.balances[denom]
	if !exists {
		return sdkmath.ZeroInt()
	}
	bal, ok := holders[holder]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return bal
}

// TotalSupply returns the outstanding supply of denom.
func (b *Bank) TotalSupply(denom types.AssetID) sdkmath.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	supply, exists := b.supplies[denom]
	if !exists {
		return sdkmath.ZeroInt()
	}
	return supply
}

// Decimals returns the denom's native precision.
func (b *Bank) Decimals(denom types.AssetID) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	dec, exists := b.decimals[denom]
	if !exists {
		return 0, fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	return dec, nil
}

// Snapshot captures balances and supplies for rollback on a failed operation.
type Snapshot struct {
	balances map[types.AssetID]map[string]sdkmath.Int
	supplies map[types.AssetID]sdkmath.Int
}

// Snapshot deep-copies the mutable ledger state.
func (b *Bank) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	snap := Snapshot{
		balances: make(map[types.AssetID]map[string]sdkmath.Int, len(b.balances)),
		supplies: make(map[types.AssetID]sdkmath.Int, len(b.supplies)),
	}
	for denom, holders := range b.balances {
		copied := make(map[string]sdkmath.Int, len(holders))
		for holder, bal := range holders {
			copied[holder] = bal
		}
		snap.balances[denom] = copied
	}
	for denom, supply := range b.supplies {
		snap.supplies[denom] = supply
	}
	return snap
}

// Restore replaces the mutable ledger state with a prior snapshot.
func (b *Bank) Restore(snap Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances = snap.balances
	b.supplies = snap.supplies
}

func (b *Bank) requireAuthority(caller string, denom types.AssetID) error {
	auth, exists := b.authorities[denom]
	if !exists {
		return fmt.Errorf("%w: %s", ErrUnknownDenom, denom)
	}
	if !auth[caller] {
		return fmt.Errorf("%w: %s on %s", ErrUnauthorized, caller, denom)
	}
	return nil
}

func (b *Bank) credit(denom types.AssetID, holder string, amount sdkmath.Int) {
	holders := b.balances[denom]
	current, ok := holders[holder]
	if !ok {
		current = sdkmath.ZeroInt()
	}
	holders[holder] = current.Add(amount)
}

func (b *Bank) debit(denom types.AssetID, holder string, amount sdkmath.Int) error {
	holders := b.balances[denom]
	current, ok := holders[holder]
	if !ok || current.LT(amount) {
		return fmt.Errorf("%w: %s needs %s %s", ErrInsufficientFunds, holder, amount, denom)
	}
	holders[holder] = current.Sub(amount)
	return nil
}
