package strategy

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/types"
)

// LendingStrategy supplies all liquidity to a single lending adapter.
type LendingStrategy struct {
	base
	mu      sync.Mutex
	adapter adapter.Adapter
}

var _ Strategy = (*LendingStrategy)(nil)

func (s *LendingStrategy) Kind() Kind { return KindLending }

func (s *LendingStrategy) Adapter() adapter.Adapter { return s.adapter }

func (s *LendingStrategy) DeployLiquidity(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tvl, err := s.adapter.TotalAssets(ctx, s.address)
	if err != nil {
		return err
	}
	if err := s.checkDeposit(amt, tvl); err != nil {
		return err
	}
	if err := s.bank.Send(s.asset, s.farm, s.address, amt); err != nil {
		return err
	}
	if err := s.adapter.Deposit(ctx, s.address, amt); err != nil {
		s.refund(amt)
		return err
	}

	s.log.Info().Str("amount", amt.String()).Msg("liquidity supplied")
	return nil
}

func (s *LendingStrategy) Withdraw(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s", amt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.adapter.Withdraw(ctx, s.address, amt); err != nil {
		return err
	}
	if err := s.bank.Send(s.asset, s.address, s.farm, amt); err != nil {
		if rerr := s.adapter.Deposit(ctx, s.address, amt); rerr != nil {
			s.log.Error().Err(rerr).Msg("failed to restore withdrawn funds")
		}
		return err
	}

	s.log.Info().Str("amount", amt.String()).Msg("liquidity redeemed")
	return nil
}

func (s *LendingStrategy) TVL(ctx context.Context) (sdkmath.Int, error) {
	return s.adapter.TotalAssets(ctx, s.address)
}

func (s *LendingStrategy) PendingRewards(ctx context.Context) (sdkmath.Int, error) {
	return s.adapter.PendingRewards(ctx, s.address)
}

func (s *LendingStrategy) Harvest(ctx context.Context, caller sdk.AccAddress) (sdkmath.Int, error) {
	if err := s.authorize(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	got, err := s.adapter.Harvest(ctx, s.address)
	if err != nil || got.IsZero() {
		return got, err
	}
	if err := s.bank.Send(s.asset, s.address, s.farm, got); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.log.Info().Str("harvested", got.String()).Msg("interest forwarded to farm")
	return got, nil
}

// Rebalance is a no-op: there is a single adapter.
func (s *LendingStrategy) Rebalance(_ context.Context, caller sdk.AccAddress, _ []byte) error {
	return s.authorize(caller)
}
