package strategy

import (
	"context"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
)

// Factory builds strategies from adapter names resolved through the registry. All
// inputs are validated before anything is constructed.
type Factory struct {
	mu       sync.Mutex
	registry *adapter.Registry
	bank     *token.Bank
	seq      uint64
	now      func() time.Time
	log      zerolog.Logger
}

func NewFactory(registry *adapter.Registry, bank *token.Bank) *Factory {
	return &Factory{
		registry: registry,
		bank:     bank,
		now:      time.Now,
		log:      logger.GetForComponent("strategy_factory"),
	}
}

// WithClock sets the clock handed to time-aware strategies and returns the factory.
func (f *Factory) WithClock(now func() time.Time) *Factory {
	if now != nil {
		f.now = now
	}
	return f
}

func (f *Factory) nextAddress() sdk.AccAddress {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return authtypes.NewModuleAddress(fmt.Sprintf("strategy/%d", f.seq))
}

func (f *Factory) newBase(farm sdk.AccAddress, asset string, limits types.StrategyLimits, component string) base {
	addr := f.nextAddress()
	return base{
		address: addr,
		farm:    farm,
		asset:   asset,
		limits:  limits,
		bank:    f.bank,
		log:     logger.GetForComponent(component).With().Str("strategy", addr.String()).Logger(),
	}
}

func validateTarget(farm sdk.AccAddress, asset string) error {
	if farm.Empty() {
		return types.ErrInvalidConfig.Wrap("farm address is required")
	}
	if asset == "" {
		return types.ErrInvalidConfig.Wrap("asset is required")
	}
	return nil
}

// DeployStakingStrategy builds a WeightedStrategy over the named staking adapters.
func (f *Factory) DeployStakingStrategy(
	farm sdk.AccAddress,
	asset string,
	rewardToken string,
	maturityPeriod time.Duration,
	selections []types.AdapterSelection,
	splits types.IncentiveSplits,
	limits types.StrategyLimits,
) (*WeightedStrategy, error) {
	if err := validateTarget(farm, asset); err != nil {
		return nil, err
	}
	if len(selections) == 0 {
		return nil, types.ErrInvalidWeights.Wrap("no adapters selected")
	}

	adapters := make([]adapter.Adapter, 0, len(selections))
	weights := make([]uint32, 0, len(selections))
	seen := make(map[string]bool, len(selections))
	for _, sel := range selections {
		if seen[sel.Name] {
			return nil, types.ErrInvalidWeights.Wrapf("adapter %s selected twice", sel.Name)
		}
		seen[sel.Name] = true

		a, err := f.registry.Resolve(adapter.NamespaceStaking, sel.Name)
		if err != nil {
			return nil, err
		}
		if a.Asset() != asset {
			return nil, types.ErrStrategyMismatch.Wrapf("adapter %s holds %s, strategy asset is %s", sel.Name, a.Asset(), asset)
		}
		adapters = append(adapters, a)
		weights = append(weights, sel.WeightBps)
	}
	if err := types.ValidateWeights(weights); err != nil {
		return nil, err
	}
	if err := splits.Validate(); err != nil {
		return nil, err
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	if maturityPeriod < 0 {
		return nil, types.ErrInvalidMaturity.Wrap("maturity period cannot be negative")
	}

	s := &WeightedStrategy{
		base:     f.newBase(farm, asset, limits, "weighted_strategy"),
		adapters: adapters,
		weights:  weights,
		info: StakingInfo{
			RewardToken:    rewardToken,
			MaturityPeriod: maturityPeriod,
			Splits:         splits,
		},
	}

	f.log.Info().Str("farm", farm.String()).Str("strategy", s.address.String()).
		Interface("selections", selections).Msg("staking strategy deployed")
	return s, nil
}

// DeployLendingStrategy builds a LendingStrategy over the named lending adapter.
func (f *Factory) DeployLendingStrategy(farm sdk.AccAddress, asset, lendingAdapter string) (*LendingStrategy, error) {
	if err := validateTarget(farm, asset); err != nil {
		return nil, err
	}
	a, err := f.registry.Resolve(adapter.NamespaceLending, lendingAdapter)
	if err != nil {
		return nil, err
	}
	if a.Asset() != asset {
		return nil, types.ErrStrategyMismatch.Wrapf("adapter %s holds %s, strategy asset is %s", lendingAdapter, a.Asset(), asset)
	}

	s := &LendingStrategy{
		base:    f.newBase(farm, asset, types.NoLimits(), "lending_strategy"),
		adapter: a,
	}

	f.log.Info().Str("farm", farm.String()).Str("strategy", s.address.String()).
		Str("adapter", lendingAdapter).Msg("lending strategy deployed")
	return s, nil
}

// DeployAnchorStrategy builds an AnchorStrategy over the named liquidity manager and
// centres its position on the initial price.
func (f *Factory) DeployAnchorStrategy(farm sdk.AccAddress, asset string, params types.AnchorParams) (*AnchorStrategy, error) {
	if err := validateTarget(farm, asset); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	a, err := f.registry.Resolve(adapter.NamespaceLiquidity, params.LiquidityManager)
	if err != nil {
		return nil, err
	}
	manager, ok := a.(*adapter.LiquidityManager)
	if !ok {
		return nil, types.ErrUnknownAdapter.Wrapf("%s is not a liquidity manager", params.LiquidityManager)
	}
	if manager.Asset() != asset {
		return nil, types.ErrStrategyMismatch.Wrapf("manager %s holds %s, strategy asset is %s", params.LiquidityManager, manager.Asset(), asset)
	}
	if manager.QuoteToken() != params.QuoteToken {
		return nil, types.ErrStrategyMismatch.Wrapf("manager %s quotes %s, strategy quotes %s", params.LiquidityManager, manager.QuoteToken(), params.QuoteToken)
	}

	limits := types.StrategyLimits{MinDeposit: params.MinLiquidity, MaxCapacity: sdkmath.ZeroInt()}
	s := &AnchorStrategy{
		base:    f.newBase(farm, asset, limits, "anchor_strategy"),
		manager: manager,
		params:  params,
		now:     f.now,
	}
	if err := s.recenter(context.Background(), params.SqrtPriceX96, f.now()); err != nil {
		return nil, err
	}

	f.log.Info().Str("farm", farm.String()).Str("strategy", s.address.String()).
		Str("manager", params.LiquidityManager).Uint32("fee_tier", params.FeeTier).Msg("anchor strategy deployed")
	return s, nil
}
