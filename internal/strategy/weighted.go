package strategy

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// RebalanceHint is the optional JSON payload accepted by WeightedStrategy.Rebalance.
type RebalanceHint struct {
	WeightsBps []uint32 `json:"weights_bps"`
}

// StakingInfo is the descriptive configuration a staking strategy was deployed with.
type StakingInfo struct {
	RewardToken    string                `json:"reward_token"`
	MaturityPeriod time.Duration         `json:"maturity_period"`
	Splits         types.IncentiveSplits `json:"splits"`
}

// WeightedStrategy splits liquidity across staking adapters by basis-point weight.
type WeightedStrategy struct {
	base
	mu       sync.Mutex
	adapters []adapter.Adapter
	weights  []uint32
	info     StakingInfo
}

var _ Strategy = (*WeightedStrategy)(nil)

func (s *WeightedStrategy) Kind() Kind { return KindStaking }

func (s *WeightedStrategy) Info() StakingInfo { return s.info }

// Allocation returns the adapters and their weights in order.
func (s *WeightedStrategy) Allocation() ([]adapter.Adapter, []uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]adapter.Adapter(nil), s.adapters...), append([]uint32(nil), s.weights...)
}

func (s *WeightedStrategy) DeployLiquidity(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tvl, err := s.tvl(ctx)
	if err != nil {
		return err
	}
	if err := s.checkDeposit(amt, tvl); err != nil {
		return err
	}
	if err := s.bank.Send(s.asset, s.farm, s.address, amt); err != nil {
		return err
	}

	legs := utils.SplitByWeights(amt, s.weights)
	for i, leg := range legs {
		if leg.IsZero() {
			continue
		}
		if err := s.adapters[i].Deposit(ctx, s.address, leg); err != nil {
			s.log.Error().Err(err).Str("adapter", s.adapters[i].Name()).Str("amount", leg.String()).
				Msg("adapter deposit failed, unwinding")
			s.unwindDeposits(ctx, legs[:i])
			s.refund(amt)
			return err
		}
	}

	s.log.Info().Str("amount", amt.String()).Int("adapters", len(legs)).Msg("liquidity deployed")
	return nil
}

func (s *WeightedStrategy) unwindDeposits(ctx context.Context, done []sdkmath.Int) {
	for i, leg := range done {
		if leg.IsZero() {
			continue
		}
		if err := s.adapters[i].Withdraw(ctx, s.address, leg); err != nil {
			s.log.Error().Err(err).Str("adapter", s.adapters[i].Name()).Msg("failed to unwind deposit")
		}
	}
}

func (s *WeightedStrategy) Withdraw(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s", amt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	balances, total, err := s.balances(ctx)
	if err != nil {
		return err
	}
	if total.LT(amt) {
		return types.ErrInsufficientFunds.Wrapf("strategy holds %s, requested %s", total, amt)
	}

	// pro rata by weight, capped at what each adapter holds
	pulls := utils.SplitByWeights(amt, s.weights)
	shortfall := sdkmath.ZeroInt()
	for i := range pulls {
		if pulls[i].GT(balances[i]) {
			shortfall = shortfall.Add(pulls[i].Sub(balances[i]))
			pulls[i] = balances[i]
		}
	}
	// then any adapter with balance left covers the shortfall
	for i := range pulls {
		if shortfall.IsZero() {
			break
		}
		spare := balances[i].Sub(pulls[i])
		take := utils.MinInt(spare, shortfall)
		pulls[i] = pulls[i].Add(take)
		shortfall = shortfall.Sub(take)
	}

	for i, pull := range pulls {
		if pull.IsZero() {
			continue
		}
		if err := s.adapters[i].Withdraw(ctx, s.address, pull); err != nil {
			s.log.Error().Err(err).Str("adapter", s.adapters[i].Name()).Str("amount", pull.String()).
				Msg("adapter withdraw failed, unwinding")
			s.redeposit(ctx, pulls[:i])
			return err
		}
	}
	if err := s.bank.Send(s.asset, s.address, s.farm, amt); err != nil {
		s.redeposit(ctx, pulls)
		return err
	}

	s.log.Info().Str("amount", amt.String()).Msg("liquidity withdrawn")
	return nil
}

func (s *WeightedStrategy) redeposit(ctx context.Context, done []sdkmath.Int) {
	for i, leg := range done {
		if leg.IsZero() {
			continue
		}
		if err := s.adapters[i].Deposit(ctx, s.address, leg); err != nil {
			s.log.Error().Err(err).Str("adapter", s.adapters[i].Name()).Msg("failed to restore withdrawn funds")
		}
	}
}

func (s *WeightedStrategy) TVL(ctx context.Context) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tvl(ctx)
}

func (s *WeightedStrategy) tvl(ctx context.Context) (sdkmath.Int, error) {
	_, total, err := s.balances(ctx)
	return total, err
}

func (s *WeightedStrategy) balances(ctx context.Context) ([]sdkmath.Int, sdkmath.Int, error) {
	out := make([]sdkmath.Int, len(s.adapters))
	total := sdkmath.ZeroInt()
	for i, a := range s.adapters {
		bal, err := a.TotalAssets(ctx, s.address)
		if err != nil {
			return nil, sdkmath.ZeroInt(), err
		}
		out[i] = bal
		total = total.Add(bal)
	}
	return out, total, nil
}

func (s *WeightedStrategy) PendingRewards(ctx context.Context) (sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := sdkmath.ZeroInt()
	for _, a := range s.adapters {
		p, err := a.PendingRewards(ctx, s.address)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		total = total.Add(p)
	}
	return total, nil
}

func (s *WeightedStrategy) Harvest(ctx context.Context, caller sdk.AccAddress) (sdkmath.Int, error) {
	if err := s.authorize(caller); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// a failing adapter is skipped so the others still pay out; its rewards stay pending
	total := sdkmath.ZeroInt()
	var firstErr error
	failed := 0
	for _, a := range s.adapters {
		got, err := a.Harvest(ctx, s.address)
		if err != nil {
			s.log.Warn().Err(err).Str("adapter", a.Name()).Msg("adapter harvest failed")
			if firstErr == nil {
				firstErr = err
			}
			failed++
			continue
		}
		total = total.Add(got)
	}
	if failed == len(s.adapters) {
		return sdkmath.ZeroInt(), firstErr
	}
	if total.IsZero() {
		return total, nil
	}
	if err := s.bank.Send(s.asset, s.address, s.farm, total); err != nil {
		return sdkmath.ZeroInt(), err
	}

	s.log.Info().Str("harvested", total.String()).Msg("rewards forwarded to farm")
	return total, nil
}

// UpdateWeights replaces the weights without moving funds.
func (s *WeightedStrategy) UpdateWeights(caller sdk.AccAddress, weights []uint32) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkWeights(weights); err != nil {
		return err
	}
	s.setWeights(weights)
	return nil
}

func (s *WeightedStrategy) checkWeights(weights []uint32) error {
	if len(weights) != len(s.adapters) {
		return types.ErrInvalidWeights.Wrapf("got %d weights for %d adapters", len(weights), len(s.adapters))
	}
	return types.ValidateWeights(weights)
}

func (s *WeightedStrategy) setWeights(weights []uint32) {
	s.weights = append([]uint32(nil), weights...)
	s.log.Info().Interface("weights_bps", s.weights).Msg("weights updated")
}

// adapterMove is one leg of a rebalance, kept so a failed rebalance can be unwound.
type adapterMove struct {
	index   int
	amount  sdkmath.Int
	deposit bool
}

// Rebalance optionally applies a weights hint and then moves funds so each adapter
// holds its weighted share of TVL. The new weights take effect only once every move
// has succeeded; a failed move unwinds the ones before it.
func (s *WeightedStrategy) Rebalance(ctx context.Context, caller sdk.AccAddress, data []byte) error {
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	weights := s.weights
	if len(data) > 0 {
		var hint RebalanceHint
		if err := json.Unmarshal(data, &hint); err != nil {
			return types.ErrInvalidConfig.Wrapf("rebalance hint: %s", err)
		}
		if len(hint.WeightsBps) > 0 {
			if err := s.checkWeights(hint.WeightsBps); err != nil {
				return err
			}
			weights = hint.WeightsBps
		}
	}

	balances, total, err := s.balances(ctx)
	if err != nil {
		return err
	}
	targets := utils.SplitByWeights(total, weights)

	var done []adapterMove
	moved := sdkmath.ZeroInt()
	for i := range balances {
		if excess := balances[i].Sub(targets[i]); excess.IsPositive() {
			if err := s.adapters[i].Withdraw(ctx, s.address, excess); err != nil {
				s.unwindMoves(ctx, done)
				return err
			}
			done = append(done, adapterMove{index: i, amount: excess})
			moved = moved.Add(excess)
		}
	}
	for i := range balances {
		if deficit := targets[i].Sub(balances[i]); deficit.IsPositive() {
			if err := s.adapters[i].Deposit(ctx, s.address, deficit); err != nil {
				s.log.Error().Err(err).Str("adapter", s.adapters[i].Name()).Str("amount", deficit.String()).
					Msg("adapter deposit failed, unwinding rebalance")
				s.unwindMoves(ctx, done)
				return err
			}
			done = append(done, adapterMove{index: i, amount: deficit, deposit: true})
		}
	}
	if len(data) > 0 && !slices.Equal(weights, s.weights) {
		s.setWeights(weights)
	}

	if moved.IsPositive() {
		s.log.Info().Str("moved", moved.String()).Interface("weights_bps", s.weights).Msg("adapters rebalanced")
	}
	return nil
}

func (s *WeightedStrategy) unwindMoves(ctx context.Context, done []adapterMove) {
	for i := len(done) - 1; i >= 0; i-- {
		m := done[i]
		a := s.adapters[m.index]
		var err error
		if m.deposit {
			err = a.Withdraw(ctx, s.address, m.amount)
		} else {
			err = a.Deposit(ctx, s.address, m.amount)
		}
		if err != nil {
			s.log.Error().Err(err).Str("adapter", a.Name()).Str("amount", m.amount.String()).
				Msg("failed to unwind rebalance move")
		}
	}
}
