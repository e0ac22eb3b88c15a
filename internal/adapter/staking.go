package adapter

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
)

type stake struct {
	principal  sdkmath.Int
	rewardDebt sdkmath.Int
	settled    sdkmath.Int
}

// StakingAdapter is a staking venue whose rewards are pushed in by the venue operator
// through Accrue and shared pro rata over staked principal.
type StakingAdapter struct {
	mu          sync.Mutex
	name        string
	address     sdk.AccAddress
	asset       string
	bank        *token.Bank
	totalStaked sdkmath.Int
	accPerUnit  sdkmath.Int
	stakes      map[string]*stake
	log         zerolog.Logger
}

// NewStakingAdapter creates a venue with a module address derived from its name.
func NewStakingAdapter(name, asset string, bank *token.Bank) *StakingAdapter {
	return newStakingAdapter(NamespaceStaking, name, asset, "staking_adapter", bank)
}

func newStakingAdapter(namespace, name, asset, component string, bank *token.Bank) *StakingAdapter {
	return &StakingAdapter{
		name:        name,
		address:     authtypes.NewModuleAddress("adapter/" + namespace + "/" + name),
		asset:       asset,
		bank:        bank,
		totalStaked: sdkmath.ZeroInt(),
		accPerUnit:  sdkmath.ZeroInt(),
		stakes:      make(map[string]*stake),
		log:         logger.GetForComponent(component).With().Str("adapter", name).Logger(),
	}
}

func (a *StakingAdapter) Name() string            { return a.name }
func (a *StakingAdapter) Address() sdk.AccAddress { return a.address }
func (a *StakingAdapter) Asset() string           { return a.asset }

func (a *StakingAdapter) get(depositor sdk.AccAddress) *stake {
	s, ok := a.stakes[depositor.String()]
	if !ok {
		s = &stake{principal: sdkmath.ZeroInt(), rewardDebt: sdkmath.ZeroInt(), settled: sdkmath.ZeroInt()}
		a.stakes[depositor.String()] = s
	}
	return s
}

func (a *StakingAdapter) unsettled(s *stake) sdkmath.Int {
	return s.principal.Mul(a.accPerUnit).Quo(types.Scale).Sub(s.rewardDebt)
}

func (a *StakingAdapter) settle(s *stake) {
	s.settled = s.settled.Add(a.unsettled(s))
}

func (a *StakingAdapter) Deposit(ctx context.Context, depositor sdk.AccAddress, amt sdkmath.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("deposit amount %s", amt)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.bank.Send(a.asset, depositor, a.address, amt); err != nil {
		return err
	}
	s := a.get(depositor)
	a.settle(s)
	s.principal = s.principal.Add(amt)
	s.rewardDebt = s.principal.Mul(a.accPerUnit).Quo(types.Scale)
	a.totalStaked = a.totalStaked.Add(amt)

	a.log.Debug().Str("depositor", depositor.String()).Str("amount", amt.String()).Msg("staked")
	return nil
}

func (a *StakingAdapter) Withdraw(ctx context.Context, depositor sdk.AccAddress, amt sdkmath.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s", amt)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.get(depositor)
	if s.principal.LT(amt) {
		return types.ErrInsufficientFunds.Wrapf("%s staked %s, requested %s", depositor, s.principal, amt)
	}
	if err := a.bank.Send(a.asset, a.address, depositor, amt); err != nil {
		return err
	}
	a.settle(s)
	s.principal = s.principal.Sub(amt)
	s.rewardDebt = s.principal.Mul(a.accPerUnit).Quo(types.Scale)
	a.totalStaked = a.totalStaked.Sub(amt)

	a.log.Debug().Str("depositor", depositor.String()).Str("amount", amt.String()).Msg("unstaked")
	return nil
}

func (a *StakingAdapter) TotalAssets(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.get(depositor).principal, nil
}

func (a *StakingAdapter) PendingRewards(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.get(depositor)
	return s.settled.Add(a.unsettled(s)), nil
}

func (a *StakingAdapter) Harvest(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.get(depositor)
	a.settle(s)
	s.rewardDebt = s.principal.Mul(a.accPerUnit).Quo(types.Scale)
	reward := s.settled
	if reward.IsZero() {
		return reward, nil
	}
	if err := a.bank.Send(a.asset, a.address, depositor, reward); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.settled = sdkmath.ZeroInt()

	a.log.Info().Str("depositor", depositor.String()).Str("reward", reward.String()).Msg("rewards harvested")
	return reward, nil
}

// Accrue pulls amt of the asset from funder and distributes it over current stakers.
func (a *StakingAdapter) Accrue(funder sdk.AccAddress, amt sdkmath.Int) error {
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("reward amount %s", amt)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.totalStaked.IsZero() {
		return types.ErrInvalidAmount.Wrap("no stake to reward")
	}
	if err := a.bank.Send(a.asset, funder, a.address, amt); err != nil {
		return err
	}
	a.accPerUnit = a.accPerUnit.Add(amt.Mul(types.Scale).Quo(a.totalStaked))

	a.log.Info().Str("amount", amt.String()).Str("acc_per_unit", a.accPerUnit.String()).Msg("rewards accrued")
	return nil
}
