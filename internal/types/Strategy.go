/*

This file contains the declarative inputs used to build strategies from named adapters.

*/

package types

import (
	"slices"
	"time"

	sdkmath "cosmossdk.io/math"
)

// AdapterSelection picks a registered adapter by name and gives it a weight.
type AdapterSelection struct {
	Name      string `json:"name" yaml:"name"`
	WeightBps uint32 `json:"weight_bps" yaml:"weight_bps"`
}

// ValidateWeights checks that weights are non-empty, positive and sum to MaxBps.
func ValidateWeights(weights []uint32) error {
	if len(weights) == 0 {
		return ErrInvalidWeights.Wrap("no weights")
	}
	var sum uint64
	for i, w := range weights {
		if w == 0 {
			return ErrInvalidWeights.Wrapf("weight %d is zero", i)
		}
		sum += uint64(w)
	}
	if sum != MaxBps {
		return ErrInvalidWeights.Wrapf("weights sum to %d, expected %d", sum, MaxBps)
	}
	return nil
}

// StrategyLimits bound what a strategy accepts. A zero MaxCapacity means unlimited.
type StrategyLimits struct {
	MinDeposit  sdkmath.Int `json:"min_deposit"`
	MaxCapacity sdkmath.Int `json:"max_capacity"`
}

// NoLimits accepts any positive deposit.
func NoLimits() StrategyLimits {
	return StrategyLimits{MinDeposit: sdkmath.ZeroInt(), MaxCapacity: sdkmath.ZeroInt()}
}

// Validate checks the limits are coherent.
func (l StrategyLimits) Validate() error {
	if l.MinDeposit.IsNil() || l.MinDeposit.IsNegative() {
		return ErrInvalidConfig.Wrap("min deposit must be non-negative")
	}
	if l.MaxCapacity.IsNil() || l.MaxCapacity.IsNegative() {
		return ErrInvalidConfig.Wrap("max capacity must be non-negative")
	}
	if l.MaxCapacity.IsPositive() && l.MinDeposit.GT(l.MaxCapacity) {
		return ErrInvalidConfig.Wrapf("min deposit %s exceeds max capacity %s", l.MinDeposit, l.MaxCapacity)
	}
	return nil
}

// Headroom is how much more the strategy can take given its current TVL.
// The second return value is false when capacity is unlimited.
func (l StrategyLimits) Headroom(tvl sdkmath.Int) (sdkmath.Int, bool) {
	if l.MaxCapacity.IsNil() || l.MaxCapacity.IsZero() {
		return sdkmath.ZeroInt(), false
	}
	if tvl.GTE(l.MaxCapacity) {
		return sdkmath.ZeroInt(), true
	}
	return l.MaxCapacity.Sub(tvl), true
}

// FeeTiers are the pool fee tiers, in hundredths of a basis point, an anchor strategy may use.
var FeeTiers = []uint32{100, 500, 3000, 10000}

// AnchorParams configure a market-making strategy that keeps a concentrated liquidity
// position centred on the pool price.
type AnchorParams struct {
	FeeTier           uint32        `json:"fee_tier"`
	SqrtPriceX96      sdkmath.Int   `json:"sqrt_price_x96"` // Initial pool price, sqrt Q64.96
	UpperRange        sdkmath.Int   `json:"upper_range"`    // Band width above the price
	LowerRange        sdkmath.Int   `json:"lower_range"`    // Band width below the price
	QuoteToken        string        `json:"quote_token"`
	LiquidityManager  string        `json:"liquidity_manager"`
	MinLiquidity      sdkmath.Int   `json:"min_liquidity"`
	RebalanceInterval time.Duration `json:"rebalance_interval"` // Minimum time between re-centrings
}

// Validate checks the parameters. The lower band must leave a positive price floor.
func (p AnchorParams) Validate() error {
	if !slices.Contains(FeeTiers, p.FeeTier) {
		return ErrInvalidConfig.Wrapf("fee tier %d is not one of %v", p.FeeTier, FeeTiers)
	}
	if p.SqrtPriceX96.IsNil() || !p.SqrtPriceX96.IsPositive() {
		return ErrInvalidConfig.Wrap("sqrt price must be positive")
	}
	if p.UpperRange.IsNil() || !p.UpperRange.IsPositive() || p.LowerRange.IsNil() || !p.LowerRange.IsPositive() {
		return ErrInvalidConfig.Wrap("range widths must be positive")
	}
	if p.LowerRange.GTE(p.SqrtPriceX96) {
		return ErrInvalidConfig.Wrapf("lower range %s reaches below zero price", p.LowerRange)
	}
	if p.QuoteToken == "" || p.LiquidityManager == "" {
		return ErrInvalidConfig.Wrap("quote token and liquidity manager are required")
	}
	if p.MinLiquidity.IsNil() || p.MinLiquidity.IsNegative() {
		return ErrInvalidConfig.Wrap("min liquidity must be non-negative")
	}
	if p.RebalanceInterval <= 0 {
		return ErrInvalidConfig.Wrap("rebalance interval must be positive")
	}
	return nil
}
