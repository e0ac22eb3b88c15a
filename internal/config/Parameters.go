/*

This file contains the default policy for newly created farms.

Farm definitions in the farms YAML file only need to state what differs from these values.
Each value mirrors what the protocol's root farms were launched with.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/dexponent/farmd/internal/types"
)

// DefaultFarmParameters is the baseline policy applied to every farm definition.
var DefaultFarmParameters = types.FarmParams{
	MaturityPeriod: 24 * time.Hour, // Deposits must declare a maturity at least one day out.
	// Rationale: Positions are expected to stay long enough to earn at least one harvest.
	// Shorter locks let depositors hop in and out around harvests and dilute long-term holders.

	EnforceMaturity: false, // Maturity is recorded but does not block withdrawals.
	// Rationale: Exits must stay open during incidents. Farms that want hard locks opt in.

	ReserveRatioBps: 2000, // Keep 20% of total assets liquid.
	// Rationale: Withdrawals are served from the reserve only. 20% covers normal redemption
	// traffic between rebalances without leaving most of the capital idle.

	MinReserve: sdkmath.ZeroInt(), // No absolute liquid floor by default.
	// Rationale: The ratio already scales with the farm. Small farms set a floor explicitly.

	RebalanceStepBps: 1000, // Move at most 10% of total assets per rebalanceToTarget call.
	// Rationale: Bounded steps keep each call cheap and let the owner stop a bad epoch early.

	EpochDuration: 7 * 24 * time.Hour, // An epoch that has not converged in a week is dropped.
	// Rationale: A stale target should not keep moving liquidity after conditions changed.

	Splits: types.IncentiveSplits{LPs: 70, Verifiers: 10, Yodas: 10, Owner: 10},
	// Rationale: Liquidity providers keep the bulk of revenue. Verifiers and yodas are paid
	// through the incentive pool and the owner receives a fixed cut for running the farm.
}

// DefaultStrategyLimits bounds staking strategies when a definition sets none.
var DefaultStrategyLimits = types.StrategyLimits{
	MinDeposit:  sdkmath.NewIntWithDecimal(1, 18), // One whole token at 18 decimals.
	MaxCapacity: sdkmath.NewIntWithDecimal(1, 24), // One million whole tokens.
}

// DefaultLendingAPRBps is used for lending adapters that do not state an APR.
const DefaultLendingAPRBps = 500
