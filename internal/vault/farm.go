package vault

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// Config wires a Farm to its collaborators.
type Config struct {
	ID         types.FarmID
	Address    sdk.AccAddress
	Asset      string
	ClaimToken *token.Token // must be minted by Address
	Owner      sdk.AccAddress
	Registry   sdk.AccAddress // principal allowed to pull revenue and wire the farm
	Params     types.FarmParams
	Bank       *token.Bank
	Now        func() time.Time
}

// Farm is a share-based liquidity vault. Depositors receive claim tokens at NAV, the
// owner routes idle assets into a single Strategy, and the registry pulls harvested
// yield back into the accounting.
//
// Mutating operations are expected to be serialized by the caller (see protocol.Core);
// a nested or concurrent mutation is rejected with ErrReentrancyRejected. Read methods
// never block: they serve the state committed by the last completed mutation, so a
// strategy reading the farm from inside a mutation sees the pre-call values.
type Farm struct {
	mu        sync.Mutex // held by the single mutation that owns entered
	entered   atomic.Bool
	committed atomic.Pointer[view]
	state     types.VaultState
	positions map[string]*types.Position
	strategy  strategy.Strategy
	claim     *token.Token
	bank      *token.Bank
	registry  sdk.AccAddress
	now       func() time.Time
	log       zerolog.Logger
}

// view is an immutable copy of the farm published after each mutation.
type view struct {
	state     types.VaultState
	positions map[string]types.Position
	strategy  strategy.Strategy
}

// NewFarm validates cfg and returns an empty farm.
func NewFarm(cfg Config) (*Farm, error) {
	if cfg.Address.Empty() || cfg.Owner.Empty() || cfg.Registry.Empty() {
		return nil, types.ErrInvalidConfig.Wrap("farm, owner and registry addresses are required")
	}
	if cfg.Asset == "" || cfg.Bank == nil {
		return nil, types.ErrInvalidConfig.Wrap("asset and bank are required")
	}
	if cfg.ClaimToken == nil || !cfg.ClaimToken.Minter().Equals(cfg.Address) {
		return nil, types.ErrInvalidConfig.Wrap("claim token must be minted by the farm")
	}
	if cfg.ClaimToken.TotalSupply().IsPositive() {
		return nil, types.ErrInvalidConfig.Wrap("claim token already has supply")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	f := &Farm{
		state:     types.NewVaultState(cfg.ID, cfg.Address, cfg.Asset, cfg.ClaimToken.Denom(), cfg.Owner, cfg.Params),
		positions: make(map[string]*types.Position),
		claim:     cfg.ClaimToken,
		bank:      cfg.Bank,
		registry:  cfg.Registry,
		now:       cfg.Now,
		log:       logger.GetForComponent("farm_vault").With().Uint64("farm_id", uint64(cfg.ID)).Logger(),
	}
	f.publish()
	return f, nil
}

// enter acquires the reentrancy guard and the write lock. The returned func publishes
// the resulting state and releases both.
func (f *Farm) enter() (func(), error) {
	if !f.entered.CompareAndSwap(false, true) {
		return nil, types.ErrReentrancyRejected
	}
	f.mu.Lock()
	return func() {
		f.publish()
		f.mu.Unlock()
		f.entered.Store(false)
	}, nil
}

func (f *Farm) publish() {
	positions := make(map[string]types.Position, len(f.positions))
	for k, p := range f.positions {
		positions[k] = *p
	}
	f.committed.Store(&view{state: copyState(f.state), positions: positions, strategy: f.strategy})
}

func (f *Farm) read() *view { return f.committed.Load() }

func copyState(s types.VaultState) types.VaultState {
	if s.Epoch != nil {
		e := *s.Epoch
		s.Epoch = &e
	}
	return s
}

func (f *Farm) requireOwner(caller sdk.AccAddress) error {
	if !caller.Equals(f.state.FarmOwner) {
		return types.ErrUnauthorized.Wrapf("%s is not the farm owner", caller)
	}
	return nil
}

func (f *Farm) requireRegistry(caller sdk.AccAddress) error {
	if !caller.Equals(f.registry) {
		return types.ErrUnauthorized.Wrapf("%s is not the protocol registry", caller)
	}
	return nil
}

func (f *Farm) requireStrategy() error {
	if f.strategy == nil {
		return types.ErrStrategyNotSet
	}
	return nil
}

func (f *Farm) ID() types.FarmID { return f.read().state.FarmID }

func (f *Farm) Address() sdk.AccAddress { return f.read().state.Address }

func (f *Farm) ClaimToken() *token.Token { return f.claim }

// Strategy returns the active strategy, or nil.
func (f *Farm) Strategy() strategy.Strategy {
	return f.read().strategy
}

// State returns a copy of the vault state.
func (f *Farm) State() types.VaultState {
	return copyState(f.read().state)
}

// Position returns holder's position and whether one exists.
func (f *Farm) Position(holder sdk.AccAddress) (types.Position, bool) {
	p, ok := f.read().positions[holder.String()]
	return p, ok
}

// Positions returns every position ordered by creation time.
func (f *Farm) Positions() []types.Position {
	v := f.read()
	out := make([]types.Position, 0, len(v.positions))
	for _, p := range v.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Holder.String() < out[j].Holder.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// lookupPosition returns a copy of holder's position, or a fresh one that is not yet
// stored. commitPosition writes it back.
func (f *Farm) lookupPosition(holder sdk.AccAddress) types.Position {
	if p, ok := f.positions[holder.String()]; ok {
		return *p
	}
	return types.NewPosition(holder, f.now())
}

func (f *Farm) commitPosition(p types.Position) {
	f.positions[p.Holder.String()] = &p
}

// PricePerShare is totalAssets*Scale/totalShares, or Scale for an empty farm.
func (f *Farm) PricePerShare() sdkmath.Int {
	return pricePerShare(f.read().state)
}

func pricePerShare(s types.VaultState) sdkmath.Int {
	if s.TotalShares.IsZero() {
		return types.Scale
	}
	pps, err := utils.MulDivFloor(s.TotalAssets, types.Scale, s.TotalShares)
	if err != nil {
		// unreachable while totalAssets stays under MaxAmount
		return sdkmath.ZeroInt()
	}
	return pps
}

// ConvertToShares floors amount*totalShares/totalAssets.
func (f *Farm) ConvertToShares(amount sdkmath.Int) (sdkmath.Int, error) {
	return convertToShares(f.read().state, amount)
}

func convertToShares(s types.VaultState, amount sdkmath.Int) (sdkmath.Int, error) {
	if s.TotalShares.IsZero() || s.TotalAssets.IsZero() {
		return amount, nil
	}
	shares, err := utils.MulDivFloor(amount, s.TotalShares, s.TotalAssets)
	if err != nil {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("converting %s to shares: %s", amount, err)
	}
	return shares, nil
}

// ConvertToAssets floors shares*totalAssets/totalShares.
func (f *Farm) ConvertToAssets(shares sdkmath.Int) (sdkmath.Int, error) {
	return convertToAssets(f.read().state, shares)
}

func convertToAssets(s types.VaultState, shares sdkmath.Int) (sdkmath.Int, error) {
	if s.TotalShares.IsZero() {
		return shares, nil
	}
	assets, err := utils.MulDivFloor(shares, s.TotalAssets, s.TotalShares)
	if err != nil {
		return sdkmath.ZeroInt(), types.ErrInvalidAmount.Wrapf("converting %s shares to assets: %s", shares, err)
	}
	return assets, nil
}

// DeployedLiquidity is the active strategy's TVL, zero without a strategy.
func (f *Farm) DeployedLiquidity(ctx context.Context) (sdkmath.Int, error) {
	return deployedIn(ctx, f.read().strategy)
}

func deployedIn(ctx context.Context, s strategy.Strategy) (sdkmath.Int, error) {
	if s == nil {
		return sdkmath.ZeroInt(), nil
	}
	return s.TVL(ctx)
}

// AvailableLiquidity is totalAssets minus deployed liquidity.
func (f *Farm) AvailableLiquidity(ctx context.Context) (sdkmath.Int, error) {
	v := f.read()
	return availableIn(ctx, v.state, v.strategy)
}

func (f *Farm) available(ctx context.Context) (sdkmath.Int, error) {
	return availableIn(ctx, f.state, f.strategy)
}

func availableIn(ctx context.Context, s types.VaultState, strat strategy.Strategy) (sdkmath.Int, error) {
	deployed, err := deployedIn(ctx, strat)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	avail := s.TotalAssets.Sub(deployed)
	if avail.IsNegative() {
		return sdkmath.ZeroInt(), nil
	}
	return avail, nil
}

// Snapshot gathers a consistent reporting view of the farm.
func (f *Farm) Snapshot(ctx context.Context) (types.FarmSnapshot, error) {
	v := f.read()

	deployed, err := deployedIn(ctx, v.strategy)
	if err != nil {
		return types.FarmSnapshot{}, err
	}
	pending := sdkmath.ZeroInt()
	strategyAddr := ""
	if v.strategy != nil {
		if pending, err = v.strategy.PendingRewards(ctx); err != nil {
			return types.FarmSnapshot{}, err
		}
		strategyAddr = v.strategy.Address().String()
	}
	avail := v.state.TotalAssets.Sub(deployed)
	if avail.IsNegative() {
		avail = sdkmath.ZeroInt()
	}
	s := copyState(v.state)

	return types.FarmSnapshot{
		FarmID:           s.FarmID,
		Address:          s.Address.String(),
		Asset:            s.Asset,
		ClaimToken:       s.ClaimToken,
		Owner:            s.FarmOwner.String(),
		Strategy:         strategyAddr,
		TotalLiquidity:   s.TotalLiquidity,
		TotalAssets:      s.TotalAssets,
		TotalShares:      s.TotalShares,
		PricePerShare:    pricePerShare(s),
		AccYieldPerShare: s.AccYieldPerShare,
		AccumulatedYield: s.AccumulatedYield,
		Available:        avail,
		Deployed:         deployed,
		PendingRewards:   pending,
		ReserveRatioBps:  s.ReserveRatioBps,
		Epoch:            s.Epoch,
		Paused:           s.Paused,
		Positions:        len(v.positions),
		Timestamp:        f.now(),
	}, nil
}
