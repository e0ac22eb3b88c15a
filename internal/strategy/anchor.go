package strategy

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/types"
)

// AnchorHint is the optional JSON payload accepted by AnchorStrategy.Rebalance.
type AnchorHint struct {
	SqrtPriceX96 sdkmath.Int `json:"sqrt_price_x96"`
}

// AnchorStrategy market-makes the farm asset against a quote token through a single
// liquidity manager, keeping its position centred on the pool price. Fees earned by
// the position are the strategy's rewards.
type AnchorStrategy struct {
	base
	mu            sync.Mutex
	manager       *adapter.LiquidityManager
	params        types.AnchorParams
	current       adapter.PriceRange
	lastRebalance time.Time
	now           func() time.Time
}

var _ Strategy = (*AnchorStrategy)(nil)

func (s *AnchorStrategy) Kind() Kind { return KindAnchor }

func (s *AnchorStrategy) Params() types.AnchorParams { return s.params }

func (s *AnchorStrategy) Manager() *adapter.LiquidityManager { return s.manager }

// Range returns the band the position is centred on and when it was last set.
func (s *AnchorStrategy) Range() (adapter.PriceRange, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.lastRebalance
}

func (s *AnchorStrategy) DeployLiquidity(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tvl, err := s.manager.TotalAssets(ctx, s.address)
	if err != nil {
		return err
	}
	if err := s.checkDeposit(amt, tvl); err != nil {
		return err
	}
	if err := s.bank.Send(s.asset, s.farm, s.address, amt); err != nil {
		return err
	}
	if err := s.manager.Deposit(ctx, s.address, amt); err != nil {
		s.refund(amt)
		return err
	}

	s.log.Info().Str("amount", amt.String()).Str("sqrt_price_x96", s.current.SqrtPriceX96.String()).
		Msg("liquidity added to position")
	return nil
}

func (s *AnchorStrategy) Withdraw(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s", amt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.manager.Withdraw(ctx, s.address, amt); err != nil {
		return err
	}
	if err := s.bank.Send(s.asset, s.address, s.farm, amt); err != nil {
		if rerr := s.manager.Deposit(ctx, s.address, amt); rerr != nil {
			s.log.Error().Err(rerr).Msg("failed to restore removed liquidity")
		}
		return err
	}

	s.log.Info().Str("amount", amt.String()).Msg("liquidity removed from position")
	return nil
}

func (s *AnchorStrategy) TVL(ctx context.Context) (sdkmath.Int, error) {
	return s.manager.TotalAssets(ctx, s.address)
}

func (s *AnchorStrategy) PendingRewards(ctx context.Context) (sdkmath.Int, error) {
	return s.manager.PendingRewards(ctx, s.address)
}

func (s *AnchorStrategy) Harvest(ctx context.Context, caller sdk.AccAddress) (sdkmath.Int, error) {
	if err := s.authorize(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	got, err := s.manager.Harvest(ctx, s.address)
	if err != nil || got.IsZero() {
		return got, err
	}
	if err := s.bank.Send(s.asset, s.address, s.farm, got); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.log.Info().Str("harvested", got.String()).Msg("swap fees forwarded to farm")
	return got, nil
}

// Rebalance re-centres the position. A hinted price outside the current band moves it
// at once; otherwise the position is re-centred, on the hinted or current price, only
// after the rebalance interval has passed. Funds never move, so TVL is unchanged.
func (s *AnchorStrategy) Rebalance(ctx context.Context, caller sdk.AccAddress, data []byte) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	price := s.current.SqrtPriceX96
	hinted := false
	if len(data) > 0 {
		var hint AnchorHint
		if err := json.Unmarshal(data, &hint); err != nil {
			return types.ErrInvalidConfig.Wrapf("rebalance hint: %s", err)
		}
		if !hint.SqrtPriceX96.IsNil() {
			if !hint.SqrtPriceX96.IsPositive() {
				return types.ErrInvalidConfig.Wrap("hinted sqrt price must be positive")
			}
			price, hinted = hint.SqrtPriceX96, true
		}
	}

	now := s.now()
	outOfRange := hinted && !s.current.Contains(price)
	due := !now.Before(s.lastRebalance.Add(s.params.RebalanceInterval))
	if !outOfRange && !due {
		s.log.Debug().Time("next", s.lastRebalance.Add(s.params.RebalanceInterval)).Msg("rebalance not due")
		return nil
	}
	return s.recenter(ctx, price, now)
}

func (s *AnchorStrategy) recenter(ctx context.Context, sqrtPrice sdkmath.Int, now time.Time) error {
	r := anchorRange(sqrtPrice, s.params)
	if err := s.manager.SetRange(ctx, s.address, r); err != nil {
		return err
	}
	s.current = r
	s.lastRebalance = now
	return nil
}

func anchorRange(sqrtPrice sdkmath.Int, p types.AnchorParams) adapter.PriceRange {
	return adapter.PriceRange{
		SqrtPriceX96: sqrtPrice,
		Lower:        sqrtPrice.Sub(p.LowerRange),
		Upper:        sqrtPrice.Add(p.UpperRange),
	}
}
