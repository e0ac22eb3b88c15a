package strategy

import (
	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
)

// base holds the fields and checks shared by every variant.
type base struct {
	address sdk.AccAddress
	farm    sdk.AccAddress
	asset   string
	limits  types.StrategyLimits
	bank    *token.Bank
	log     zerolog.Logger
}

func (b *base) Address() sdk.AccAddress      { return b.address }
func (b *base) Farm() sdk.AccAddress         { return b.farm }
func (b *base) Asset() string                { return b.asset }
func (b *base) Limits() types.StrategyLimits { return b.limits }

func (b *base) authorize(caller sdk.AccAddress) error {
	if !caller.Equals(b.farm) {
		return types.ErrUnauthorized.Wrapf("%s is not the bound farm", caller)
	}
	return nil
}

func (b *base) checkDeposit(amt, tvl sdkmath.Int) error {
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("deploy amount %s", amt)
	}
	if amt.LT(b.limits.MinDeposit) {
		return types.ErrInvalidAmount.Wrapf("deploy amount %s below minimum %s", amt, b.limits.MinDeposit)
	}
	if headroom, capped := b.limits.Headroom(tvl); capped && amt.GT(headroom) {
		return types.ErrInvalidAmount.Wrapf("deploy amount %s exceeds remaining capacity %s", amt, headroom)
	}
	return nil
}

// refund sends amt parked at the strategy address back to the farm.
func (b *base) refund(amt sdkmath.Int) {
	if !amt.IsPositive() {
		return
	}
	if err := b.bank.Send(b.asset, b.address, b.farm, amt); err != nil {
		b.log.Error().Err(err).Str("amount", amt.String()).Msg("failed to refund farm")
	}
}
