/*

This file contains the types persisted to the database for auditing: one
receipt per engine operation and per-user position snapshots captured after
each successful state change.

*/

package types

import "time"

// OperationType identifies a surfaced protocol operation.
type OperationType string

const (
	OpDeposit        OperationType = "DEPOSIT_COLLATERAL"
	OpWithdraw       OperationType = "WITHDRAW_COLLATERAL"
	OpMint           OperationType = "MINT_SYNTHETIC"
	OpBurn           OperationType = "BURN_SYNTHETIC"
	OpExchangeInput  OperationType = "EXCHANGE_EXACT_INPUT"
	OpExchangeOutput OperationType = "EXCHANGE_EXACT_OUTPUT"
	OpLiquidate      OperationType = "LIQUIDATE"
	OpClaimRewards   OperationType = "CLAIM_REWARDS"
)

// OperationReceipt records the outcome of a single engine operation.
// Amounts are decimal strings in native units of the named asset.
type OperationReceipt struct {
	ReceiptID       int64         `json:"receipt_id,omitempty"` // Auto-incremented by DB
	OperationID     string        `json:"operation_id"`         // UUID for tracing logs across the call
	Type            OperationType `json:"type"`
	User            string        `json:"user"`
	Counterparty    string        `json:"counterparty,omitempty"` // liquidation target / swap recipient
	Asset           string        `json:"asset,omitempty"`
	AmountRequested string        `json:"amount_requested,omitempty"`
	AmountExecuted  string        `json:"amount_executed,omitempty"`
	Success         bool          `json:"success"`
	Message         string        `json:"message,omitempty"`
	Timestamp       time.Time     `json:"timestamp"`
}

// PositionSnapshot captures a user's risk position after an operation.
// USD values are stored as floats for reporting only; the ledger itself never
// leaves fixed-point.
type PositionSnapshot struct {
	SnapshotID    int64     `json:"snapshot_id,omitempty"`
	User          string    `json:"user"`
	CollateralUSD float64   `json:"collateral_usd"`
	DebtUSD       float64   `json:"debt_usd"`
	HealthFactor  float64   `json:"health_factor"` // -1 when debt is zero (infinitely healthy)
	Timestamp     time.Time `json:"timestamp"`
}
