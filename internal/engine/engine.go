/*

This file contains the protocol engine, the single entry point the web
layer and the daemon drive. It composes the debt pool, exchanger and
collateral manager, serializes all mutating operations, assigns each one a
UUID for log tracing, and writes receipts and position snapshots to the
database after every call.

*/

package engine

import (
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/synthcore/internal/collateral"
	"github.com/elys-network/synthcore/internal/debtpool"
	"github.com/elys-network/synthcore/internal/exchanger"
	"github.com/elys-network/synthcore/internal/logger"
	"github.com/elys-network/synthcore/internal/oracle"
	"github.com/elys-network/synthcore/internal/state"
	"github.com/elys-network/synthcore/internal/token"
	"github.com/elys-network/synthcore/internal/types"
	"github.com/elys-network/synthcore/internal/utils"
)

// Engine is the composed synthetic-asset protocol.
type Engine struct {
	// Core dependencies
	logger    zerolog.Logger
	bank      *token.Bank
	oracle    *oracle.Store
	pool      *debtpool.Pool
	exchanger *exchanger.Exchanger
	manager   *collateral.Manager

	// Serializes every operation end to end, including receipt and
	// snapshot writes, so the audit trail matches execution order. Read
	// queries take the same lock: the web layer serves them concurrently
	// with mutations, and the underlying ledgers are not safe to read
	// mid-mutation.
	mu sync.Mutex
}

// Config holds the configuration for creating a new Engine instance.
type Config struct {
	Bank      *token.Bank
	Oracle    *oracle.Store
	Pool      *debtpool.Pool
	Exchanger *exchanger.Exchanger
	Manager   *collateral.Manager
}

// New creates an Engine instance with dependency injection.
func New(cfg Config) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("engine configuration validation failed: %w", err)
	}

	e := &Engine{
		logger:    logger.GetForComponent("engine"),
		bank:      cfg.Bank,
		oracle:    cfg.Oracle,
		pool:      cfg.Pool,
		exchanger: cfg.Exchanger,
		manager:   cfg.Manager,
	}

	e.logger.Info().Msg("Engine instance created successfully with dependency injection")
	return e, nil
}

func validateConfig(cfg Config) error {
	if cfg.Bank == nil {
		return fmt.Errorf("bank cannot be nil")
	}
	if cfg.Oracle == nil {
		return fmt.Errorf("oracle cannot be nil")
	}
	if cfg.Pool == nil {
		return fmt.Errorf("debt pool cannot be nil")
	}
	if cfg.Exchanger == nil {
		return fmt.Errorf("exchanger cannot be nil")
	}
	if cfg.Manager == nil {
		return fmt.Errorf("collateral manager cannot be nil")
	}
	return nil
}

// Deposit credits collateral pulled from the user's bank balance.
func (e *Engine) Deposit(user string, denom types.AssetID, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	err := e.manager.Deposit(user, denom, amount)
	e.record(opID, types.OpDeposit, user, "", denom, amount, amount, err)
	if err == nil {
		e.snapshotPosition(user)
	}
	return err
}

// Withdraw pushes collateral back to the user's bank balance.
func (e *Engine) Withdraw(user string, denom types.AssetID, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	err := e.manager.Withdraw(user, denom, amount)
	e.record(opID, types.OpWithdraw, user, "", denom, amount, amount, err)
	if err == nil {
		e.snapshotPosition(user)
	}
	return err
}

// Mint issues synthetic tokens against the user's collateral.
func (e *Engine) Mint(user string, synDenom types.AssetID, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	err := e.manager.Mint(user, synDenom, amount)
	e.record(opID, types.OpMint, user, "", synDenom, amount, amount, err)
	if err == nil {
		e.snapshotPosition(user)
	}
	return err
}

// Burn retires synthetic tokens against the user's debt.
func (e *Engine) Burn(user string, synDenom types.AssetID, amount sdkmath.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	err := e.manager.Burn(user, synDenom, amount)
	e.record(opID, types.OpBurn, user, "", synDenom, amount, amount, err)
	if err == nil {
		e.snapshotPosition(user)
	}
	return err
}

// ExchangeExactInput swaps a fixed input amount of one synthetic for another.
func (e *Engine) ExchangeExactInput(user string, from, to types.AssetID, amountIn sdkmath.Int, recipient string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	amountOut, feeUSD, err := e.exchanger.ExchangeExactInput(user, from, to, amountIn, recipient)
	e.record(opID, types.OpExchangeInput, user, recipient, from, amountIn, amountOut, err)
	if err == nil {
		exchangeFeeUSD.Add(mustFloat(feeUSD))
	}
	return amountOut, err
}

// ExchangeExactOutput swaps for a fixed output amount of another synthetic.
func (e *Engine) ExchangeExactOutput(user string, from, to types.AssetID, amountOut sdkmath.Int, recipient string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	amountIn, feeUSD, err := e.exchanger.ExchangeExactOutput(user, from, to, amountOut, recipient)
	e.record(opID, types.OpExchangeOutput, user, recipient, to, amountOut, amountIn, err)
	if err == nil {
		exchangeFeeUSD.Add(mustFloat(feeUSD))
	}
	return amountIn, err
}

// Liquidate repays part of an unhealthy position's debt for collateral.
func (e *Engine) Liquidate(liquidator, user string, amountUSD sdkmath.Int) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	paidUSD, err := e.manager.Liquidate(liquidator, user, amountUSD)
	e.record(opID, types.OpLiquidate, liquidator, user, "", amountUSD, paidUSD, err)
	if err == nil {
		e.snapshotPosition(user)
		e.snapshotPosition(liquidator)
	}
	return paidUSD, err
}

// ClaimRewards pays out the user's accrued exchange fee rewards.
func (e *Engine) ClaimRewards(user string) (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opID := uuid.NewString()
	claimed, err := e.pool.ClaimRewards(user)
	e.record(opID, types.OpClaimRewards, user, "", e.pool.StableDenom(), sdkmath.ZeroInt(), claimed, err)
	return claimed, err
}

// Position is the queryable view of a user's risk state.
type Position struct {
	User           string                        `json:"user"`
	CollateralUSD  sdkmath.Int                   `json:"collateral_usd"`
	DebtUSD        sdkmath.Int                   `json:"debt_usd"`
	HealthFactor   sdkmath.LegacyDec             `json:"health_factor"`
	PendingRewards sdkmath.Int                   `json:"pending_rewards"`
	Holdings       map[types.AssetID]sdkmath.Int `json:"holdings"`
}

// GetPosition assembles the live view of a user's position.
func (e *Engine) GetPosition(user string) (Position, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	collUSD, err := e.manager.UserCollateralUSD(user)
	if err != nil {
		return Position{}, err
	}
	debtUSD, err := e.pool.UserDebtUSD(user)
	if err != nil {
		return Position{}, err
	}
	health, err := e.manager.HealthFactor(user)
	if err != nil {
		return Position{}, err
	}
	return Position{
		User:           user,
		CollateralUSD:  collUSD,
		DebtUSD:        debtUSD,
		HealthFactor:   health,
		PendingRewards: e.pool.PendingRewards(user),
		Holdings:       e.manager.Holdings(user),
	}, nil
}

// TotalDebtUSD re-derives the aggregate protocol debt.
func (e *Engine) TotalDebtUSD() (sdkmath.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pool.TotalDebtUSD()
}

// SupportedCollateral lists the registered collateral assets.
func (e *Engine) SupportedCollateral() []types.CollateralAsset {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.manager.SupportedAssets()
}

// Synthetics lists the registered synthetic instruments.
func (e *Engine) Synthetics() []types.SyntheticAsset {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.pool.Synthetics()
}

// Prices returns the oracle's current committed prices. The store carries
// its own lock; the price feed commits outside the engine lock.
func (e *Engine) Prices() map[types.AssetID]sdkmath.LegacyDec {
	return e.oracle.Prices()
}

// RiskParameters returns the active risk parameter set.
func (e *Engine) RiskParameters() types.RiskParameters {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.manager.RiskParameters()
}

// UpdateRiskParameters swaps in a new parameter set and persists it as the
// active version.
func (e *Engine) UpdateRiskParameters(params types.RiskParameters, configName string, version int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.manager.SetRiskParameters(params); err != nil {
		return err
	}
	if err := e.exchanger.SetFeeRate(params.ExchangeFeeRate); err != nil {
		return err
	}
	if state.DB != nil {
		if _, err := state.SaveRiskParameters(params, configName, version, true); err != nil {
			e.logger.Error().Err(err).Msg("Failed to persist risk parameters")
		}
	}
	return nil
}

// record writes the receipt trail and bumps metrics. Persistence failures are
// logged, never propagated; the ledger change already happened.
func (e *Engine) record(opID string, opType types.OperationType, user, counterparty string, asset types.AssetID, requested, executed sdkmath.Int, opErr error) {
	outcome := "success"
	message := ""
	executedStr := executed.String()
	if opErr != nil {
		outcome = "failure"
		message = opErr.Error()
		executedStr = "0"
	}
	operationsTotal.WithLabelValues(string(opType), outcome).Inc()

	event := e.logger.Info()
	if opErr != nil {
		event = e.logger.Warn().Err(opErr)
	}
	event.
		Str("operationId", opID).
		Str("type", string(opType)).
		Str("user", user).
		Str("asset", asset.String()).
		Str("requested", requested.String()).
		Msg("Operation processed")

	if state.DB == nil {
		return
	}
	receipt := types.OperationReceipt{
		OperationID:     opID,
		Type:            opType,
		User:            user,
		Counterparty:    counterparty,
		Asset:           asset.String(),
		AmountRequested: requested.String(),
		AmountExecuted:  executedStr,
		Success:         opErr == nil,
		Message:         message,
		Timestamp:       time.Now().UTC(),
	}
	if _, err := state.SaveOperationReceipt(receipt); err != nil {
		e.logger.Error().Err(err).Str("operationId", opID).Msg("Failed to persist operation receipt")
	}
}

// snapshotPosition records the user's post-operation risk state and refreshes
// the protocol gauges.
func (e *Engine) snapshotPosition(user string) {
	collUSD, err := e.manager.UserCollateralUSD(user)
	if err != nil {
		e.logger.Error().Err(err).Str("user", user).Msg("Failed to value collateral for snapshot")
		return
	}
	debtUSD, err := e.pool.UserDebtUSD(user)
	if err != nil {
		e.logger.Error().Err(err).Str("user", user).Msg("Failed to value debt for snapshot")
		return
	}

	healthFloat := -1.0 // debt free reports as infinitely healthy
	if debtUSD.IsPositive() {
		health, herr := e.manager.HealthFactor(user)
		if herr == nil {
			healthFloat, _ = health.Float64()
		}
	}

	if total, terr := e.pool.TotalDebtUSD(); terr == nil {
		totalDebtUSDGauge.Set(mustFloat(total))
	}

	if state.DB == nil {
		return
	}
	snapshot := types.PositionSnapshot{
		User:          user,
		CollateralUSD: mustFloat(collUSD),
		DebtUSD:       mustFloat(debtUSD),
		HealthFactor:  healthFloat,
		Timestamp:     time.Now().UTC(),
	}
	if _, err := state.SavePositionSnapshot(snapshot); err != nil {
		e.logger.Error().Err(err).Str("user", user).Msg("Failed to persist position snapshot")
	}
}

// mustFloat renders a USD-wei amount as a float for metrics and reporting.
func mustFloat(usd sdkmath.Int) float64 {
	f, err := utils.SDKIntToFloat64(usd, types.SyntheticDecimals)
	if err != nil {
		return 0
	}
	return f
}
