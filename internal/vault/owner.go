package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/types"
)

// DeployLiquidity moves amount from the reserve into the strategy.
func (f *Farm) DeployLiquidity(ctx context.Context, caller sdk.AccAddress, amount sdkmath.Int) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if err := f.requireStrategy(); err != nil {
		return err
	}
	return f.deploy(ctx, amount)
}

func (f *Farm) deploy(ctx context.Context, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("deploy amount %s", amount)
	}
	before, err := f.strategy.TVL(ctx)
	if err != nil {
		return err
	}
	if avail := f.state.TotalAssets.Sub(before); amount.GT(avail) {
		return types.ErrInvalidAmount.Wrapf("deploy amount %s exceeds available liquidity %s", amount, avail)
	}
	if err := f.strategy.DeployLiquidity(ctx, f.state.Address, amount); err != nil {
		return err
	}
	f.checkTVLDelta(ctx, before, amount, "deploy")

	f.log.Info().Str("amount", amount.String()).Msg("liquidity deployed to strategy")
	return nil
}

// WithdrawFromStrategy pulls amount from the strategy back into the reserve.
func (f *Farm) WithdrawFromStrategy(ctx context.Context, caller sdk.AccAddress, amount sdkmath.Int) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if err := f.requireStrategy(); err != nil {
		return err
	}
	return f.recall(ctx, amount)
}

func (f *Farm) recall(ctx context.Context, amount sdkmath.Int) error {
	if amount.IsNil() || !amount.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s", amount)
	}
	before, err := f.strategy.TVL(ctx)
	if err != nil {
		return err
	}
	if amount.GT(before) {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s exceeds deployed liquidity %s", amount, before)
	}
	if err := f.strategy.Withdraw(ctx, f.state.Address, amount); err != nil {
		return err
	}
	f.checkTVLDelta(ctx, before, amount.Neg(), "withdraw")

	f.log.Info().Str("amount", amount.String()).Msg("liquidity withdrawn from strategy")
	return nil
}

func (f *Farm) checkTVLDelta(ctx context.Context, before, want sdkmath.Int, op string) {
	after, err := f.strategy.TVL(ctx)
	if err != nil {
		f.log.Warn().Err(err).Str("op", op).Msg("could not read strategy TVL after move")
		return
	}
	if got := after.Sub(before); !got.Equal(want) {
		f.log.Warn().Str("op", op).Str("expected", want.String()).Str("actual", got.String()).
			Msg("strategy TVL moved by an unexpected amount")
	}
}

// SetReserveRatioBps sets the target liquid fraction of total assets.
func (f *Farm) SetReserveRatioBps(caller sdk.AccAddress, bps uint32) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if bps > types.MaxBps {
		return types.ErrInvalidAmount.Wrapf("reserve ratio %d bps exceeds %d", bps, types.MaxBps)
	}
	f.state.ReserveRatioBps = bps
	f.log.Info().Uint32("bps", bps).Msg("reserve ratio set")
	return nil
}

// SetMinReserve sets the absolute liquid floor.
func (f *Farm) SetMinReserve(caller sdk.AccAddress, amount sdkmath.Int) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if amount.IsNil() || amount.IsNegative() {
		return types.ErrInvalidAmount.Wrapf("min reserve %s", amount)
	}
	f.state.MinReserve = amount
	f.log.Info().Str("amount", amount.String()).Msg("min reserve set")
	return nil
}

// StartEpoch begins a rebalancing campaign, replacing any active one.
func (f *Farm) StartEpoch(caller sdk.AccAddress, targetRatioBps uint32, targetAmount sdkmath.Int) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if targetRatioBps > types.MaxBps {
		return types.ErrInvalidAmount.Wrapf("target ratio %d bps exceeds %d", targetRatioBps, types.MaxBps)
	}
	if targetAmount.IsNil() {
		targetAmount = sdkmath.ZeroInt()
	}
	if targetAmount.IsNegative() {
		return types.ErrInvalidAmount.Wrapf("target amount %s", targetAmount)
	}
	f.state.Epoch = &types.Epoch{
		TargetRatioBps: targetRatioBps,
		TargetAmount:   targetAmount,
		StartedAt:      f.now(),
	}
	f.log.Info().Uint32("target_ratio_bps", targetRatioBps).Str("target_amount", targetAmount.String()).
		Msg("epoch started")
	return nil
}

// RebalanceStrategy hands data to the strategy's own rebalancing. TVL must not change.
func (f *Farm) RebalanceStrategy(ctx context.Context, caller sdk.AccAddress, data []byte) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if err := f.requireStrategy(); err != nil {
		return err
	}
	before, err := f.strategy.TVL(ctx)
	if err != nil {
		return err
	}
	if err := f.strategy.Rebalance(ctx, f.state.Address, data); err != nil {
		return err
	}
	f.checkTVLDelta(ctx, before, sdkmath.ZeroInt(), "rebalance")
	f.log.Info().Int("hint_bytes", len(data)).Msg("strategy rebalanced")
	return nil
}

// Pause blocks new deposits. Withdrawals, claims and owner operations stay available.
func (f *Farm) Pause(caller sdk.AccAddress) error {
	return f.setPaused(caller, true)
}

func (f *Farm) Unpause(caller sdk.AccAddress) error {
	return f.setPaused(caller, false)
}

func (f *Farm) setPaused(caller sdk.AccAddress, paused bool) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if f.state.Paused != paused {
		f.state.Paused = paused
		f.log.Info().Bool("paused", paused).Msg("pause state changed")
	}
	return nil
}

// MigrateStrategy swaps the active strategy on a paused farm. Pending rewards are
// harvested and all deployed liquidity is withdrawn from the old strategy first, so
// nothing is left behind; the new strategy starts empty.
func (f *Farm) MigrateStrategy(ctx context.Context, caller sdk.AccAddress, next strategy.Strategy) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if !f.state.Paused {
		return types.ErrNotPaused.Wrap("pause the farm before migrating its strategy")
	}
	if err := f.checkCompatible(next); err != nil {
		return err
	}
	if f.strategy != nil && f.strategy.Address().Equals(next.Address()) {
		return types.ErrStrategyMismatch.Wrap("strategy is already active")
	}

	if f.strategy != nil {
		if _, err := f.harvest(ctx); err != nil {
			return err
		}
		tvl, err := f.strategy.TVL(ctx)
		if err != nil {
			return err
		}
		if tvl.IsPositive() {
			if err := f.recall(ctx, tvl); err != nil {
				return err
			}
		}
	}

	prev := f.state.Strategy
	f.strategy = next
	f.state.Strategy = next.Address()
	f.log.Info().Str("from", prev.String()).Str("to", next.Address().String()).Msg("strategy migrated")
	return nil
}

func (f *Farm) checkCompatible(s strategy.Strategy) error {
	if s == nil {
		return types.ErrInvalidConfig.Wrap("strategy is nil")
	}
	if s.Asset() != f.state.Asset {
		return types.ErrStrategyMismatch.Wrapf("strategy asset %s, farm asset %s", s.Asset(), f.state.Asset)
	}
	if !s.Farm().Equals(f.state.Address) {
		return types.ErrStrategyMismatch.Wrapf("strategy is bound to %s", s.Farm())
	}
	return nil
}

// SetStrategy wires the farm's strategy. It may be called by the registry or the owner,
// and only replaces a strategy that holds no liquidity; use MigrateStrategy otherwise.
func (f *Farm) SetStrategy(ctx context.Context, caller sdk.AccAddress, s strategy.Strategy) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if f.requireRegistry(caller) != nil && f.requireOwner(caller) != nil {
		return types.ErrUnauthorized.Wrapf("%s cannot set the strategy", caller)
	}
	if err := f.checkCompatible(s); err != nil {
		return err
	}
	if f.strategy != nil {
		tvl, err := f.strategy.TVL(ctx)
		if err != nil {
			return err
		}
		if tvl.IsPositive() {
			return types.ErrStrategyMismatch.Wrapf("current strategy still holds %s", tvl)
		}
	}

	f.strategy = s
	f.state.Strategy = s.Address()
	f.log.Info().Str("strategy", s.Address().String()).Str("kind", string(s.Kind())).Msg("strategy set")
	return nil
}

// SetPool sets the incentive pool receiving the verifier and yoda shares of revenue.
func (f *Farm) SetPool(caller, pool sdk.AccAddress) error {
	return f.setRegistryAddress(caller, pool, func(a sdk.AccAddress) { f.state.Pool = a }, "pool")
}

// SetConsensusModule records the consensus module address. The farm only stores it.
func (f *Farm) SetConsensusModule(caller, module sdk.AccAddress) error {
	return f.setRegistryAddress(caller, module, func(a sdk.AccAddress) { f.state.ConsensusModule = a }, "consensus_module")
}

func (f *Farm) setRegistryAddress(caller, addr sdk.AccAddress, set func(sdk.AccAddress), field string) error {
	release, err := f.enter()
	if err != nil {
		return err
	}
	defer release()

	if err := f.requireRegistry(caller); err != nil {
		return err
	}
	if addr.Empty() {
		return types.ErrInvalidConfig.Wrapf("%s address is empty", field)
	}
	set(addr)
	f.log.Info().Str(field, addr.String()).Msg("farm wired")
	return nil
}
