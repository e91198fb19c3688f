package engine

import (
	"fmt"

	"github.com/elys-network/synthcore/internal/collateral"
	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/exchanger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
)

// LedgerSpec declares the assets and parameters a fresh ledger starts with.
type LedgerSpec struct {
	// StableSynthetic is the USD-pegged instrument rewards and debt
	// repayment settle in. Its anchor denom is the oracle's stable key.
	StableSynthetic types.SyntheticAsset

	// Synthetics are the non-stable instruments, valued at their anchor
	// feeds.
	Synthetics []types.SyntheticAsset

	// Collateral are the deposit assets, registered in the bank with their
	// native decimals.
	Collateral []types.CollateralAsset

	Params types.RiskParameters
}

// Bootstrap wires a complete engine from scratch: bank, oracle, debt pool,
// exchanger and collateral manager, with every module capability granted.
func Bootstrap(spec LedgerSpec) (*Engine, error) {
	if err := spec.Params.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if spec.StableSynthetic.Denom == "" {
		return nil, fmt.Errorf("bootstrap: stable synthetic denom is required")
	}

	bank := token.NewBank()
	store := oracle.NewStore(spec.StableSynthetic.AnchorDenom)
	pool := debtpool.New(bank, store, spec.StableSynthetic.Denom)

	if err := bank.Register(spec.StableSynthetic.Denom, types.SyntheticDecimals); err != nil {
		return nil, fmt.Errorf("bootstrap: registering stable: %w", err)
	}
	if err := pool.RegisterSynthetic(spec.StableSynthetic); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	for _, synth := range spec.Synthetics {
		if err := bank.Register(synth.Denom, types.SyntheticDecimals); err != nil {
			return nil, fmt.Errorf("bootstrap: registering %s: %w", synth.Denom, err)
		}
		if err := pool.RegisterSynthetic(synth); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	ex, err := exchanger.New(bank, pool, store, spec.Params.ExchangeFeeRate)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	manager, err := collateral.NewManager(bank, pool, ex, store, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	for _, asset := range spec.Collateral {
		if err := bank.Register(asset.Denom, asset.Decimals); err != nil {
			return nil, fmt.Errorf("bootstrap: registering %s: %w", asset.Denom, err)
		}
		if err := manager.SupportAsset(asset); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}

	// Capability grants. The pool mints reward payouts, the exchanger
	// mints and burns every instrument it swaps, and the manager mints
	// and burns stable on the direct debt paths.
	if err := bank.GrantMintBurn(spec.StableSynthetic.Denom, debtpool.ModuleID); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if err := bank.GrantMintBurn(spec.StableSynthetic.Denom, exchanger.ModuleID); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	if err := bank.GrantMintBurn(spec.StableSynthetic.Denom, collateral.ModuleID); err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	for _, synth := range spec.Synthetics {
		if err := bank.GrantMintBurn(synth.Denom, exchanger.ModuleID); err != nil {
			return nil, fmt.Errorf("bootstrap: %w", err)
		}
	}
	pool.AuthorizeDebtManager(collateral.ModuleID)
	pool.AuthorizeRewardDistributor(exchanger.ModuleID)

	return New(Config{
		Bank:      bank,
		Oracle:    store,
		Pool:      pool,
		Exchanger: ex,
		Manager:   manager,
	})
}

// Bank exposes the ledger for funding flows outside the engine's own
// operations, deposits arriving from the host chain for instance.
func (e *Engine) Bank() *token.Bank {
	return e.bank
}

// Oracle exposes the price store for the feed loop.
func (e *Engine) Oracle() *oracle.Store {
	return e.oracle
}
