/*

This file contains the per-depositor position kept by each farm.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Position is a depositor's bookkeeping record within one farm. Positions are never
// deleted, they can decay to a zero principal.
type Position struct {
	Holder       sdk.AccAddress `json:"holder"`
	Principal    sdkmath.Int    `json:"principal"`     // Net deposited value
	Maturity     time.Time      `json:"maturity"`      // Earliest time the position is unconstrained
	YieldDebt    sdkmath.Int    `json:"yield_debt"`    // principal * accYieldPerShare / Scale at the last principal change
	AccruedYield sdkmath.Int    `json:"accrued_yield"` // Yield settled at principal changes, not yet claimed
	ClaimedYield sdkmath.Int    `json:"claimed_yield"` // Lifetime claimed yield, for reporting
	CreatedAt    time.Time      `json:"created_at"`
}

// NewPosition returns an empty position for holder.
func NewPosition(holder sdk.AccAddress, now time.Time) Position {
	return Position{
		Holder:       holder,
		Principal:    sdkmath.ZeroInt(),
		YieldDebt:    sdkmath.ZeroInt(),
		AccruedYield: sdkmath.ZeroInt(),
		ClaimedYield: sdkmath.ZeroInt(),
		CreatedAt:    now,
	}
}

// Snapshot is principal * acc / Scale, the value YieldDebt is reset to.
func (p Position) Snapshot(accYieldPerShare sdkmath.Int) sdkmath.Int {
	return p.Principal.Mul(accYieldPerShare).Quo(Scale)
}

// Unsettled is the yield accrued since the last principal change.
func (p Position) Unsettled(accYieldPerShare sdkmath.Int) sdkmath.Int {
	pending := p.Snapshot(accYieldPerShare).Sub(p.YieldDebt)
	if pending.IsNegative() {
		return sdkmath.ZeroInt()
	}
	return pending
}

// Pending is everything owed to the holder: settled plus unsettled yield.
func (p Position) Pending(accYieldPerShare sdkmath.Int) sdkmath.Int {
	return p.AccruedYield.Add(p.Unsettled(accYieldPerShare))
}

// Settle moves the unsettled yield into AccruedYield and refreshes YieldDebt.
// Call it before every principal change and again after with the new principal.
func (p *Position) Settle(accYieldPerShare sdkmath.Int) {
	p.AccruedYield = p.AccruedYield.Add(p.Unsettled(accYieldPerShare))
	p.YieldDebt = p.Snapshot(accYieldPerShare)
}
