package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"

	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// RebalanceToTarget moves at most one step of liquidity between the reserve and the
// strategy toward the active epoch's target. Anyone may call it; repeated calls converge.
// On convergence the epoch's ratio becomes the farm's reserve ratio and the epoch ends.
// Without an active epoch there is nothing to move and the result is RebalanceNone.
func (f *Farm) RebalanceToTarget(ctx context.Context) (types.RebalanceResult, error) {
	release, err := f.enter()
	if err != nil {
		return types.RebalanceResult{}, err
	}
	defer release()

	result := types.RebalanceResult{
		Direction: types.RebalanceNone,
		Moved:     sdkmath.ZeroInt(),
		Remaining: sdkmath.ZeroInt(),
	}
	epoch := f.state.Epoch
	if epoch == nil {
		return result, nil
	}
	if epoch.Expired(f.now(), f.state.Params.EpochDuration) {
		f.state.Epoch = nil
		result.Expired = true
		f.log.Info().Time("started_at", epoch.StartedAt).Msg("epoch expired before converging")
		return result, nil
	}
	if err := f.requireStrategy(); err != nil {
		return result, err
	}

	ta := f.state.TotalAssets
	deployed, err := f.strategy.TVL(ctx)
	if err != nil {
		return result, err
	}

	desiredReserve := utils.MinInt(utils.MaxInt(utils.BpsOf(ta, epoch.TargetRatioBps), f.state.MinReserve), ta)
	desiredDeployed := ta.Sub(desiredReserve)
	if epoch.TargetAmount.IsPositive() {
		desiredDeployed = utils.MinInt(desiredDeployed, epoch.TargetAmount)
	}

	diff := desiredDeployed.Sub(deployed)
	step := utils.BpsOf(ta, f.state.Params.RebalanceStepBps)
	if step.IsZero() {
		step = diff.Abs()
	}

	switch {
	case diff.IsPositive():
		move := utils.MinInt(diff, step)
		limits := f.strategy.Limits()
		headroom, capped := limits.Headroom(deployed)
		if capped {
			move = utils.MinInt(move, headroom)
		}
		if move.LT(limits.MinDeposit) {
			// round a small step up to the strategy minimum when the target allows it
			move = sdkmath.ZeroInt()
			if limits.MinDeposit.LTE(diff) && (!capped || limits.MinDeposit.LTE(headroom)) {
				move = limits.MinDeposit
			}
		}
		if move.IsPositive() {
			if err := f.deploy(ctx, move); err != nil {
				return result, err
			}
			result.Direction = types.RebalanceDeploy
			result.Moved = move
		}
		result.Remaining = diff.Sub(result.Moved)
		// a target the strategy cannot absorb counts as reached
		if result.Moved.IsZero() {
			result.Remaining = sdkmath.ZeroInt()
		}
	case diff.IsNegative():
		move := utils.MinInt(diff.Neg(), step)
		if err := f.recall(ctx, move); err != nil {
			return result, err
		}
		result.Direction = types.RebalanceWithdraw
		result.Moved = move
		result.Remaining = diff.Neg().Sub(move)
	}

	if result.Remaining.IsZero() {
		f.state.ReserveRatioBps = epoch.TargetRatioBps
		f.state.Epoch = nil
		result.Converged = true
	}

	f.log.Info().
		Str("direction", string(result.Direction)).
		Str("moved", result.Moved.String()).
		Str("remaining", result.Remaining.String()).
		Bool("converged", result.Converged).
		Msg("rebalance step")
	return result, nil
}
