/*

This file contains the farm-level state shared between the vault engine, the protocol registry,
the harvester and the web API.

*/

package types

import (
	"math/big"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// FarmID is the identifier assigned to a farm by the protocol registry.
type FarmID uint64

const (
	// MaxBps is the basis-point denominator (100%).
	MaxBps = 10_000
	// PercentDenominator is the denominator used by incentive splits.
	PercentDenominator = 100
)

var (
	// Scale is the fixed-point factor for pricePerShare and accYieldPerShare.
	Scale = sdkmath.NewIntWithDecimal(1, 18)
	// BpsDenominator is MaxBps as an Int.
	BpsDenominator = sdkmath.NewInt(MaxBps)
	// MaxAmount caps totalAssets, totalShares, totalLiquidity and any single principal,
	// keeping every share conversion and yield snapshot inside 256 bits.
	MaxAmount = sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 120))
	// MaxAccYieldPerShare caps the yield accumulator.
	MaxAccYieldPerShare = sdkmath.NewIntFromBigInt(new(big.Int).Lsh(big.NewInt(1), 128))
)

// Epoch is an in-flight rebalancing campaign toward a target reserve ratio and/or deployed amount.
type Epoch struct {
	TargetRatioBps uint32      `json:"target_ratio_bps"`
	TargetAmount   sdkmath.Int `json:"target_amount"` // Absolute deployed amount cap, zero means "ratio only"
	StartedAt      time.Time   `json:"started_at"`
}

// Expired reports whether the epoch ran past its duration. A zero duration never expires.
func (e Epoch) Expired(now time.Time, duration time.Duration) bool {
	if duration <= 0 {
		return false
	}
	return now.After(e.StartedAt.Add(duration))
}

// FarmParams are the per-farm policy knobs fixed at creation and adjustable by the farm owner.
type FarmParams struct {
	MaturityPeriod   time.Duration   `json:"maturity_period"`    // Minimum lock a deposit must declare
	EnforceMaturity  bool            `json:"enforce_maturity"`   // Whether withdrawals before maturity are rejected
	ReserveRatioBps  uint32          `json:"reserve_ratio_bps"`  // Target liquid fraction of total assets
	MinReserve       sdkmath.Int     `json:"min_reserve"`        // Absolute liquid floor
	RebalanceStepBps uint32          `json:"rebalance_step_bps"` // Max share of total assets moved per rebalanceToTarget call
	EpochDuration    time.Duration   `json:"epoch_duration"`     // Lifetime of a rebalancing epoch, zero for unbounded
	Splits           IncentiveSplits `json:"splits"`
}

// Validate checks the parameter ranges.
func (p FarmParams) Validate() error {
	if p.MaturityPeriod < 0 {
		return ErrInvalidConfig.Wrap("maturity period cannot be negative")
	}
	if p.ReserveRatioBps > MaxBps {
		return ErrInvalidAmount.Wrapf("reserve ratio %d bps exceeds %d", p.ReserveRatioBps, MaxBps)
	}
	if p.MinReserve.IsNil() || p.MinReserve.IsNegative() {
		return ErrInvalidAmount.Wrap("min reserve must be non-negative")
	}
	if p.RebalanceStepBps == 0 || p.RebalanceStepBps > MaxBps {
		return ErrInvalidConfig.Wrapf("rebalance step %d bps must be in (0, %d]", p.RebalanceStepBps, MaxBps)
	}
	if p.EpochDuration < 0 {
		return ErrInvalidConfig.Wrap("epoch duration cannot be negative")
	}
	return p.Splits.Validate()
}

// IncentiveSplits divides harvested revenue, in percent. Whatever the non-LP shares
// leave over accrues to liquidity providers.
type IncentiveSplits struct {
	LPs       uint32 `json:"lps" yaml:"lps"`
	Verifiers uint32 `json:"verifiers" yaml:"verifiers"`
	Yodas     uint32 `json:"yodas" yaml:"yodas"`
	Owner     uint32 `json:"owner" yaml:"owner"`
}

// DefaultSplits routes all revenue to liquidity providers.
func DefaultSplits() IncentiveSplits {
	return IncentiveSplits{LPs: PercentDenominator}
}

// Validate checks that the splits do not exceed 100%.
func (s IncentiveSplits) Validate() error {
	sum := s.LPs + s.Verifiers + s.Yodas + s.Owner
	if sum == 0 || sum > PercentDenominator {
		return ErrInvalidSplits.Wrapf("splits sum to %d, must be in (0, %d]", sum, PercentDenominator)
	}
	return nil
}

// PoolShare is the percent routed to the incentive pool (verifiers and yodas).
func (s IncentiveSplits) PoolShare() uint32 {
	return s.Verifiers + s.Yodas
}

// VaultState is the full accounting state of one farm.
type VaultState struct {
	FarmID           FarmID         `json:"farm_id"`
	Address          sdk.AccAddress `json:"address"`
	Asset            string         `json:"asset"`
	ClaimToken       string         `json:"claim_token"`
	TotalLiquidity   sdkmath.Int    `json:"total_liquidity"`
	TotalAssets      sdkmath.Int    `json:"total_assets"`
	TotalShares      sdkmath.Int    `json:"total_shares"`
	AccYieldPerShare sdkmath.Int    `json:"acc_yield_per_share"`
	AccumulatedYield sdkmath.Int    `json:"accumulated_yield"`
	ReserveRatioBps  uint32         `json:"reserve_ratio_bps"`
	MinReserve       sdkmath.Int    `json:"min_reserve"`
	Epoch            *Epoch         `json:"epoch,omitempty"`
	Strategy         sdk.AccAddress `json:"strategy,omitempty"`
	Paused           bool           `json:"paused"`
	FarmOwner        sdk.AccAddress `json:"farm_owner"`
	Pool             sdk.AccAddress `json:"pool,omitempty"`
	ConsensusModule  sdk.AccAddress `json:"consensus_module,omitempty"`
	Params           FarmParams     `json:"params"`
}

// NewVaultState returns an empty state for a freshly created farm.
func NewVaultState(id FarmID, address sdk.AccAddress, asset, claimToken string, owner sdk.AccAddress, params FarmParams) VaultState {
	return VaultState{
		FarmID:           id,
		Address:          address,
		Asset:            asset,
		ClaimToken:       claimToken,
		TotalLiquidity:   sdkmath.ZeroInt(),
		TotalAssets:      sdkmath.ZeroInt(),
		TotalShares:      sdkmath.ZeroInt(),
		AccYieldPerShare: sdkmath.ZeroInt(),
		AccumulatedYield: sdkmath.ZeroInt(),
		ReserveRatioBps:  params.ReserveRatioBps,
		MinReserve:       params.MinReserve,
		FarmOwner:        owner,
		Params:           params,
	}
}

// HarvestResult describes one pullRevenue round.
type HarvestResult struct {
	FarmID           FarmID      `json:"farm_id"`
	Harvested        sdkmath.Int `json:"harvested"`
	LPYield          sdkmath.Int `json:"lp_yield"`
	PoolFee          sdkmath.Int `json:"pool_fee"`
	OwnerFee         sdkmath.Int `json:"owner_fee"`
	AccYieldPerShare sdkmath.Int `json:"acc_yield_per_share"`
}

// NewEmptyHarvestResult is the result of a no-op harvest.
func NewEmptyHarvestResult(id FarmID, acc sdkmath.Int) HarvestResult {
	return HarvestResult{
		FarmID:           id,
		Harvested:        sdkmath.ZeroInt(),
		LPYield:          sdkmath.ZeroInt(),
		PoolFee:          sdkmath.ZeroInt(),
		OwnerFee:         sdkmath.ZeroInt(),
		AccYieldPerShare: acc,
	}
}

// RebalanceDirection tells which way a rebalanceToTarget step moved liquidity.
type RebalanceDirection string

const (
	RebalanceNone     RebalanceDirection = "NONE"
	RebalanceDeploy   RebalanceDirection = "DEPLOY"   // reserve -> strategy
	RebalanceWithdraw RebalanceDirection = "WITHDRAW" // strategy -> reserve
)

// RebalanceResult is the outcome of a single bounded rebalanceToTarget step.
type RebalanceResult struct {
	Direction RebalanceDirection `json:"direction"`
	Moved     sdkmath.Int        `json:"moved"`
	Remaining sdkmath.Int        `json:"remaining"` // Distance to the epoch target after this step
	Converged bool               `json:"converged"`
	Expired   bool               `json:"expired"`
}

// FarmSnapshot is a point-in-time view of a farm used by the harvester, the state store
// and the web API.
type FarmSnapshot struct {
	FarmID           FarmID      `json:"farm_id"`
	Address          string      `json:"address"`
	Asset            string      `json:"asset"`
	ClaimToken       string      `json:"claim_token"`
	Owner            string      `json:"owner"`
	Strategy         string      `json:"strategy,omitempty"`
	TotalLiquidity   sdkmath.Int `json:"total_liquidity"`
	TotalAssets      sdkmath.Int `json:"total_assets"`
	TotalShares      sdkmath.Int `json:"total_shares"`
	PricePerShare    sdkmath.Int `json:"price_per_share"` // Scaled by Scale
	AccYieldPerShare sdkmath.Int `json:"acc_yield_per_share"`
	AccumulatedYield sdkmath.Int `json:"accumulated_yield"`
	Available        sdkmath.Int `json:"available"`
	Deployed         sdkmath.Int `json:"deployed"`
	PendingRewards   sdkmath.Int `json:"pending_rewards"`
	ReserveRatioBps  uint32      `json:"reserve_ratio_bps"`
	Epoch            *Epoch      `json:"epoch,omitempty"`
	Paused           bool        `json:"paused"`
	Positions        int         `json:"positions"`
	Timestamp        time.Time   `json:"timestamp"`
}
