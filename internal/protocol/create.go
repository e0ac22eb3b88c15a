package protocol

import (
	"context"
	"fmt"
	"strings"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/vault"
)

// StrategyRequest names the adapters a new farm's strategy is built from.
type StrategyRequest struct {
	Kind           strategy.Kind
	RewardToken    string
	Selections     []types.AdapterSelection // staking
	LendingAdapter string                   // lending
	Anchor         *types.AnchorParams      // anchor
	Limits         types.StrategyLimits
}

// FarmRequest describes a farm to create.
type FarmRequest struct {
	Asset       string
	ClaimSymbol string // suffix of the claim denom, e.g. "vdxp"
	Params      types.FarmParams
	Strategy    StrategyRequest
}

// ClaimDenom is the claim-token denom for farm id.
func ClaimDenom(id types.FarmID, symbol string) string {
	return fmt.Sprintf("farm/%d/%s", id, strings.ToLower(symbol))
}

// CreateApprovedFarm creates a farm owned by caller, who must be an approved owner, with a
// fresh claim token and a strategy built through the factory. Nothing is registered unless
// every step succeeds.
func (c *Core) CreateApprovedFarm(ctx context.Context, caller sdk.AccAddress, req FarmRequest) (*vault.Farm, error) {
	if !c.IsApprovedFarmOwner(caller) {
		return nil, types.ErrUnauthorized.Wrapf("%s is not an approved farm owner", caller)
	}

	c.execMu.Lock()
	defer c.execMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	farm, err := c.createFarm(ctx, c.nextFarmID, caller, req)
	if err != nil {
		return nil, err
	}
	c.nextFarmID++
	return farm, nil
}

// CreateRootFarm creates the protocol's own farm under RootFarmID, owned by the admin,
// and makes it the root farm. It can only be created once.
func (c *Core) CreateRootFarm(ctx context.Context, caller sdk.AccAddress, req FarmRequest) (*vault.Farm, error) {
	if err := c.requireAdmin(caller); err != nil {
		return nil, err
	}

	c.execMu.Lock()
	defer c.execMu.Unlock()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.farms[RootFarmID]; exists {
		return nil, types.ErrInvalidConfig.Wrap("root farm already exists")
	}
	farm, err := c.createFarm(ctx, RootFarmID, caller, req)
	if err != nil {
		return nil, err
	}
	c.rootFarm, c.hasRoot = RootFarmID, true
	return farm, nil
}

// createFarm builds and registers farm id. Callers hold execMu and mu.
func (c *Core) createFarm(ctx context.Context, id types.FarmID, owner sdk.AccAddress, req FarmRequest) (*vault.Farm, error) {
	if req.Asset == "" || req.ClaimSymbol == "" {
		return nil, types.ErrInvalidConfig.Wrap("asset and claim symbol are required")
	}
	if _, err := c.bank.Token(req.Asset); err != nil {
		return nil, err
	}
	if err := req.Params.Validate(); err != nil {
		return nil, err
	}

	addr := FarmAddressOf(id)
	s, err := c.buildStrategy(addr, req)
	if err != nil {
		return nil, err
	}

	claim := token.New(ClaimDenom(id, req.ClaimSymbol), addr).WithFeePolicy(c)
	farm, err := vault.NewFarm(vault.Config{
		ID:         id,
		Address:    addr,
		Asset:      req.Asset,
		ClaimToken: claim,
		Owner:      owner,
		Registry:   c.address,
		Params:     req.Params,
		Bank:       c.bank,
		Now:        c.now,
	})
	if err != nil {
		return nil, err
	}
	if err := farm.SetStrategy(ctx, c.address, s); err != nil {
		return nil, err
	}
	if !c.pool.Empty() {
		if err := farm.SetPool(c.address, c.pool); err != nil {
			return nil, err
		}
	}
	if !c.consensusModule.Empty() {
		if err := farm.SetConsensusModule(c.address, c.consensusModule); err != nil {
			return nil, err
		}
	}
	if err := c.bank.Register(claim); err != nil {
		return nil, err
	}

	c.farms[id] = farm

	c.log.Info().
		Uint64("farm_id", uint64(id)).
		Str("owner", owner.String()).
		Str("asset", req.Asset).
		Str("claim_token", claim.Denom()).
		Str("strategy", s.Address().String()).
		Str("kind", string(s.Kind())).
		Msg("farm created")
	return farm, nil
}

func (c *Core) buildStrategy(farm sdk.AccAddress, req FarmRequest) (strategy.Strategy, error) {
	sr := req.Strategy
	switch sr.Kind {
	case strategy.KindStaking, "":
		reward := sr.RewardToken
		if reward == "" {
			reward = req.Asset
		}
		limits := sr.Limits
		if limits.MinDeposit.IsNil() || limits.MaxCapacity.IsNil() {
			limits = types.NoLimits()
		}
		s, err := c.factory.DeployStakingStrategy(farm, req.Asset, reward, req.Params.MaturityPeriod,
			sr.Selections, req.Params.Splits, limits)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strategy.KindLending:
		s, err := c.factory.DeployLendingStrategy(farm, req.Asset, sr.LendingAdapter)
		if err != nil {
			return nil, err
		}
		return s, nil
	case strategy.KindAnchor:
		if sr.Anchor == nil {
			return nil, types.ErrInvalidConfig.Wrap("anchor strategy parameters are required")
		}
		s, err := c.factory.DeployAnchorStrategy(farm, req.Asset, *sr.Anchor)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, types.ErrInvalidConfig.Wrapf("unknown strategy kind %q", sr.Kind)
	}
}
