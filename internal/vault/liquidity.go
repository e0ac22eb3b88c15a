package vault

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// ProvideLiquidity deposits amount of the asset for caller and mints claim tokens at the
// pre-deposit NAV. A zero maturity defaults to now plus the farm's maturity period.
func (f *Farm) ProvideLiquidity(ctx context.Context, caller sdk.AccAddress, amount sdkmath.Int, maturity time.Time) (sdkmath.Int, error) {
	release, err := f.enter()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if f.state.Paused {
		return sdkmath.ZeroInt(), types.ErrPaused
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("deposit amount %s", amount)
	}
	now := f.now()
	minMaturity := now.Add(f.state.Params.MaturityPeriod)
	if maturity.IsZero() {
		maturity = minMaturity
	}
	if maturity.Before(minMaturity) {
		return sdkmath.ZeroInt(), types.ErrInvalidMaturity.Wrapf("maturity %s is before %s", maturity.Format(time.RFC3339), minMaturity.Format(time.RFC3339))
	}
	if amount.GT(types.MaxAmount.Sub(f.state.TotalAssets)) || amount.GT(types.MaxAmount.Sub(f.state.TotalLiquidity)) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("deposit of %s exceeds farm capacity", amount)
	}
	shares, err := convertToShares(f.state, amount)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if !shares.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("deposit of %s mints no shares", amount)
	}
	if shares.GT(types.MaxAmount.Sub(f.state.TotalShares)) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("deposit of %s exceeds farm share capacity", amount)
	}
	pos := f.lookupPosition(caller)
	if pos.Principal.Add(amount).GT(types.MaxAmount) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("deposit of %s exceeds position capacity", amount)
	}

	if err := f.bank.Send(f.state.Asset, caller, f.state.Address, amount); err != nil {
		return sdkmath.ZeroInt(), err
	}

	f.state.TotalLiquidity = f.state.TotalLiquidity.Add(amount)
	f.state.TotalAssets = f.state.TotalAssets.Add(amount)
	f.state.TotalShares = f.state.TotalShares.Add(shares)

	pos.Settle(f.state.AccYieldPerShare)
	pos.Principal = pos.Principal.Add(amount)
	pos.YieldDebt = pos.Snapshot(f.state.AccYieldPerShare)
	if maturity.After(pos.Maturity) {
		pos.Maturity = maturity
	}
	f.commitPosition(pos)

	if err := f.claim.Mint(f.state.Address, caller, shares); err != nil {
		// the farm is the minter, this only fails on a wiring bug
		return sdkmath.ZeroInt(), err
	}

	f.log.Info().
		Str("holder", caller.String()).
		Str("amount", amount.String()).
		Str("shares", shares.String()).
		Time("maturity", pos.Maturity).
		Msg("liquidity provided")
	return shares, nil
}

// WithdrawLiquidity burns claim tokens and pays out assets from the reserve. With asShares
// amount is a share count and the payout is floored; otherwise amount is the asset payout
// and the shares burned are rounded up.
func (f *Farm) WithdrawLiquidity(ctx context.Context, caller sdk.AccAddress, amount sdkmath.Int, asShares bool) (sdkmath.Int, error) {
	release, err := f.enter()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("withdraw amount %s", amount)
	}
	if f.state.TotalShares.IsZero() {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrap("farm has no shares")
	}

	balance := f.claim.BalanceOf(caller)
	var shares, assets sdkmath.Int
	if asShares {
		shares = amount
		if shares.GT(balance) {
			return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("burning %s shares exceeds balance %s", shares, balance)
		}
		if assets, err = convertToAssets(f.state, shares); err != nil {
			return sdkmath.ZeroInt(), err
		}
	} else {
		assets = amount
		if assets.GT(f.state.TotalAssets) {
			return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("withdraw of %s exceeds total assets %s", assets, f.state.TotalAssets)
		}
		shares, err = utils.MulDivCeil(amount, f.state.TotalShares, f.state.TotalAssets)
		if err != nil {
			return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("farm has no assets: %s", err)
		}
		if shares.GT(balance) {
			return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("burning %s shares exceeds balance %s", shares, balance)
		}
	}
	if !assets.IsPositive() {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("%s shares redeem to nothing", shares)
	}

	avail, err := f.available(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if assets.GT(avail) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("payout %s exceeds available liquidity %s", assets, avail)
	}

	// stored only once the payout has gone through
	pos := f.lookupPosition(caller)
	if f.state.Params.EnforceMaturity && f.now().Before(pos.Maturity) {
		return sdkmath.ZeroInt(), types.ErrPositionLocked.Wrapf("matures at %s", pos.Maturity.Format(time.RFC3339))
	}

	prevState := f.state

	if err := f.claim.Burn(f.state.Address, caller, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	f.state.TotalShares = f.state.TotalShares.Sub(shares)
	f.state.TotalAssets = f.state.TotalAssets.Sub(assets)
	f.state.TotalLiquidity = f.state.TotalLiquidity.Sub(assets)
	if f.state.TotalLiquidity.IsNegative() {
		f.state.TotalLiquidity = sdkmath.ZeroInt()
	}

	pos.Settle(f.state.AccYieldPerShare)
	principalOut := pos.Principal.Mul(shares).Quo(balance)
	pos.Principal = pos.Principal.Sub(principalOut)
	// any value paid above principal is yield the holder has now taken
	if realized := assets.Sub(principalOut); realized.IsPositive() {
		pos.AccruedYield = pos.AccruedYield.Sub(utils.MinInt(realized, pos.AccruedYield))
	}
	pos.YieldDebt = pos.Snapshot(f.state.AccYieldPerShare)

	if err := f.bank.Send(f.state.Asset, f.state.Address, caller, assets); err != nil {
		f.state = prevState
		if merr := f.claim.Mint(f.state.Address, caller, shares); merr != nil {
			f.log.Error().Err(merr).Msg("failed to restore burned shares")
		}
		return sdkmath.ZeroInt(), err
	}
	f.commitPosition(pos)

	f.log.Info().
		Str("holder", caller.String()).
		Str("assets", assets.String()).
		Str("shares", shares.String()).
		Str("principal", pos.Principal.String()).
		Msg("liquidity withdrawn")
	return assets, nil
}

// PendingYield is the yield owed to holder and not yet claimed.
func (f *Farm) PendingYield(holder sdk.AccAddress) sdkmath.Int {
	v := f.read()
	p, ok := v.positions[holder.String()]
	if !ok {
		return sdkmath.ZeroInt()
	}
	return p.Pending(v.state.AccYieldPerShare)
}

// ClaimYield pays caller's pending yield out of the reserve. The yield lives in NAV, so
// the matching shares are burned, rounded up. When the rounded-up count would consume the
// holder's whole balance the count is floored instead and the payout is what those shares
// are worth; a holder whose yield is worth every share they hold exits completely.
func (f *Farm) ClaimYield(ctx context.Context, caller sdk.AccAddress) (sdkmath.Int, error) {
	release, err := f.enter()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	defer release()

	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	stored, ok := f.positions[caller.String()]
	if !ok {
		return sdkmath.ZeroInt(), nil
	}
	pos := *stored
	owed := pos.Pending(f.state.AccYieldPerShare)
	if owed.IsZero() || f.state.TotalShares.IsZero() || f.state.TotalAssets.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	owed = utils.MinInt(owed, f.state.TotalAssets)

	balance := f.claim.BalanceOf(caller)
	payout := owed
	shares, err := utils.MulDivCeil(owed, f.state.TotalShares, f.state.TotalAssets)
	if err != nil {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("converting yield to shares: %s", err)
	}
	exit := false
	if shares.GTE(balance) {
		if shares, err = utils.MulDivFloor(owed, f.state.TotalShares, f.state.TotalAssets); err != nil {
			return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("converting yield to shares: %s", err)
		}
		if shares.GTE(balance) {
			shares = balance
			exit = true
		}
		if payout, err = convertToAssets(f.state, shares); err != nil {
			return sdkmath.ZeroInt(), err
		}
	}
	if !shares.IsPositive() || !payout.IsPositive() {
		return sdkmath.ZeroInt(), nil
	}
	avail, err := f.available(ctx)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if payout.GT(avail) {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("yield %s exceeds available liquidity %s", payout, avail)
	}

	prevState := f.state

	if err := f.claim.Burn(f.state.Address, caller, shares); err != nil {
		return sdkmath.ZeroInt(), err
	}
	f.state.TotalShares = f.state.TotalShares.Sub(shares)
	f.state.TotalAssets = f.state.TotalAssets.Sub(payout)
	if f.state.TotalLiquidity.GT(f.state.TotalAssets) {
		f.state.TotalLiquidity = f.state.TotalAssets
	}
	pos.Settle(f.state.AccYieldPerShare)
	if exit {
		pos.Principal = sdkmath.ZeroInt()
		pos.AccruedYield = sdkmath.ZeroInt()
		pos.YieldDebt = sdkmath.ZeroInt()
	} else {
		pos.AccruedYield = pos.AccruedYield.Sub(utils.MinInt(payout, pos.AccruedYield))
	}
	pos.ClaimedYield = pos.ClaimedYield.Add(utils.MinInt(payout, owed))

	if err := f.bank.Send(f.state.Asset, f.state.Address, caller, payout); err != nil {
		f.state = prevState
		if merr := f.claim.Mint(f.state.Address, caller, shares); merr != nil {
			f.log.Error().Err(merr).Msg("failed to restore burned shares")
		}
		return sdkmath.ZeroInt(), err
	}
	f.commitPosition(pos)

	f.log.Info().
		Str("holder", caller.String()).
		Str("yield", payout.String()).
		Str("shares_burned", shares.String()).
		Bool("exit", exit).
		Msg("yield claimed")
	return payout, nil
}
