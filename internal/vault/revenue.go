package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// PullRevenue harvests the strategy and accrues the liquidity providers' share of the
// yield into NAV and accYieldPerShare. It is a no-op when nothing is pending or there are
// no shares to credit.
func (f *Farm) PullRevenue(ctx context.Context, caller sdk.AccAddress) (types.HarvestResult, error) {
	release, err := f.enter()
	if err != nil {
		return types.HarvestResult{}, err
	}
	defer release()

	if err := f.requireRegistry(caller); err != nil {
		return types.HarvestResult{}, err
	}
	if err := f.requireStrategy(); err != nil {
		return types.HarvestResult{}, err
	}
	return f.harvest(ctx)
}

func (f *Farm) harvest(ctx context.Context) (types.HarvestResult, error) {
	result := types.NewEmptyHarvestResult(f.state.FarmID, f.state.AccYieldPerShare)
	if f.state.TotalShares.IsZero() {
		return result, nil
	}
	pending, err := f.strategy.PendingRewards(ctx)
	if err != nil {
		return result, err
	}
	if !pending.IsPositive() {
		return result, nil
	}
	splits := f.state.Params.Splits
	if splits.PoolShare() > 0 && f.state.Pool.Empty() {
		return result, types.ErrPoolNotSet
	}
	if _, err := f.accrue(pending); err != nil {
		return result, err
	}

	before := f.bank.Balance(f.state.Asset, f.state.Address)
	reported, err := f.strategy.Harvest(ctx, f.state.Address)
	if err != nil {
		return result, err
	}
	yield := f.bank.Balance(f.state.Asset, f.state.Address).Sub(before)
	if !yield.Equal(reported) {
		f.log.Warn().Str("reported", reported.String()).Str("received", yield.String()).
			Msg("strategy reported a different harvest than it delivered")
	}
	if !yield.IsPositive() {
		return result, nil
	}

	poolFee := utils.PercentOf(yield, splits.PoolShare())
	ownerFee := utils.PercentOf(yield, splits.Owner)
	lp := yield.Sub(poolFee).Sub(ownerFee)

	accrued, err := f.accrue(lp)
	if err != nil {
		f.log.Error().Err(err).Str("harvested", yield.String()).Msg("harvested yield left unaccounted")
		return result, err
	}

	prev := f.state
	f.state.AccYieldPerShare = accrued
	f.state.TotalAssets = f.state.TotalAssets.Add(lp)
	f.state.AccumulatedYield = f.state.AccumulatedYield.Add(yield)

	if poolFee.IsPositive() {
		if err := f.bank.Send(f.state.Asset, f.state.Address, f.state.Pool, poolFee); err != nil {
			f.state = prev
			f.log.Error().Err(err).Str("harvested", yield.String()).Msg("pool fee transfer failed, harvest not accrued")
			return result, err
		}
	}
	if ownerFee.IsPositive() {
		if err := f.bank.Send(f.state.Asset, f.state.Address, f.state.FarmOwner, ownerFee); err != nil {
			f.state = prev
			if poolFee.IsPositive() {
				if rerr := f.bank.Send(f.state.Asset, f.state.Pool, f.state.Address, poolFee); rerr != nil {
					f.log.Error().Err(rerr).Str("pool_fee", poolFee.String()).Msg("failed to return pool fee")
				}
			}
			f.log.Error().Err(err).Str("harvested", yield.String()).Msg("owner fee transfer failed, harvest not accrued")
			return result, err
		}
	}

	result.Harvested = yield
	result.LPYield = lp
	result.PoolFee = poolFee
	result.OwnerFee = ownerFee
	result.AccYieldPerShare = f.state.AccYieldPerShare

	f.log.Info().
		Str("harvested", yield.String()).
		Str("lp_yield", lp.String()).
		Str("pool_fee", poolFee.String()).
		Str("owner_fee", ownerFee.String()).
		Str("acc_yield_per_share", f.state.AccYieldPerShare.String()).
		Msg("revenue pulled")
	return result, nil
}

// accrue returns accYieldPerShare after crediting lp to the current shares, rejecting
// amounts that would push totalAssets or the accumulator past their bounds.
func (f *Farm) accrue(lp sdkmath.Int) (sdkmath.Int, error) {
	if lp.GT(types.MaxAmount.Sub(f.state.TotalAssets)) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("yield %s exceeds farm capacity", lp)
	}
	delta, err := utils.MulDivFloor(lp, types.Scale, f.state.TotalShares)
	if err != nil {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("yield %s: %s", lp, err)
	}
	acc := f.state.AccYieldPerShare.Add(delta)
	if acc.GT(types.MaxAccYieldPerShare) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("yield %s overflows the per-share accumulator", lp)
	}
	return acc, nil
}
