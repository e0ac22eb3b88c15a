package protocol

import (
	"context"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/config"
	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
	"github.com/dexponent/farmd/internal/vault"
)

// Deployment is an in-process protocol brought up from a farms file.
type Deployment struct {
	Core      *Core
	Asset     *token.Token
	Staking   map[string]*adapter.StakingAdapter
	Lending   map[string]*adapter.LendingAdapter
	Liquidity map[string]*adapter.LiquidityManager
}

// Bootstrap creates the asset, registers adapters, applies protocol settings and creates
// the root farm followed by every farm in spec, resolving principals through book. The address-book entry "admin"
// administers the protocol and receives the asset supply.
func Bootstrap(ctx context.Context, spec *config.FarmsFileSpec, book *config.AddressBook, now func() time.Time) (*Deployment, error) {
	admin, err := book.Address("admin")
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}

	bank := token.NewBank()
	asset := token.New(spec.Asset.Denom, admin)
	if err := bank.Register(asset); err != nil {
		return nil, err
	}
	if spec.Asset.Supply != "" {
		supply, err := utils.ParseAmount(spec.Asset.Supply)
		if err != nil {
			return nil, err
		}
		if supply.IsPositive() {
			if err := asset.Mint(admin, admin, supply); err != nil {
				return nil, err
			}
		}
	}

	d := &Deployment{
		Asset:     asset,
		Staking:   make(map[string]*adapter.StakingAdapter),
		Lending:   make(map[string]*adapter.LendingAdapter),
		Liquidity: make(map[string]*adapter.LiquidityManager),
	}
	registry := adapter.NewRegistry(admin)
	for _, def := range spec.Adapters {
		var a adapter.Adapter
		switch def.Namespace {
		case adapter.NamespaceStaking:
			s := adapter.NewStakingAdapter(def.Name, spec.Asset.Denom, bank)
			d.Staking[def.Name] = s
			a = s
		case adapter.NamespaceLending:
			apr := def.APRBps
			if apr == 0 {
				apr = config.DefaultLendingAPRBps
			}
			l := adapter.NewLendingAdapter(def.Name, spec.Asset.Denom, apr, bank, now)
			if def.Fund != "" {
				amt, err := utils.ParseAmount(def.Fund)
				if err != nil {
					return nil, err
				}
				if err := l.Fund(admin, amt); err != nil {
					return nil, fmt.Errorf("failed to fund lending adapter %s: %w", def.Name, err)
				}
			}
			d.Lending[def.Name] = l
			a = l
		case adapter.NamespaceLiquidity:
			m := adapter.NewLiquidityManager(def.Name, spec.Asset.Denom, def.Quote, bank)
			d.Liquidity[def.Name] = m
			a = m
		default:
			return nil, types.ErrInvalidConfig.Wrapf("unknown adapter namespace %q", def.Namespace)
		}
		if err := registry.RegisterAdapter(admin, def.Namespace, def.Name, a); err != nil {
			return nil, err
		}
	}

	core := NewCore(admin, bank, registry, now)
	d.Core = core

	for _, name := range spec.Owners {
		owner, err := book.Address(name)
		if err != nil {
			return nil, err
		}
		if err := core.SetApprovedFarmOwner(admin, owner, true); err != nil {
			return nil, err
		}
	}
	if spec.IncentivePool != "" {
		pool, err := book.Address(spec.IncentivePool)
		if err != nil {
			return nil, err
		}
		if err := core.SetIncentivePool(admin, pool); err != nil {
			return nil, err
		}
	}
	if spec.ConsensusModule != "" {
		module, err := book.Address(spec.ConsensusModule)
		if err != nil {
			return nil, err
		}
		if err := core.SetConsensusModule(ctx, admin, module); err != nil {
			return nil, err
		}
	}
	if fee := spec.TransferFee; fee != nil {
		var collector sdk.AccAddress
		if fee.Collector != "" {
			if collector, err = book.Address(fee.Collector); err != nil {
				return nil, err
			}
		}
		if err := core.SetTransferFeeRate(admin, fee.Bps, collector); err != nil {
			return nil, err
		}
	}

	if def := spec.RootFarm; def != nil {
		if err := d.createFarm(ctx, admin, book, *def, true); err != nil {
			return nil, fmt.Errorf("root_farm: %w", err)
		}
	}
	for i, def := range spec.Farms {
		if err := d.createFarm(ctx, admin, book, def, false); err != nil {
			return nil, fmt.Errorf("farms[%d]: %w", i, err)
		}
	}
	return d, nil
}

func (d *Deployment) createFarm(ctx context.Context, admin sdk.AccAddress, book *config.AddressBook, def config.FarmDefinition, root bool) error {
	params, err := def.Params.Apply(config.DefaultFarmParameters)
	if err != nil {
		return err
	}
	limits, err := def.Strategy.Limits()
	if err != nil {
		return err
	}

	req := FarmRequest{
		Asset:       d.Asset.Denom(),
		ClaimSymbol: def.ClaimSymbol,
		Params:      params,
		Strategy: StrategyRequest{
			Kind:           strategy.Kind(def.Strategy.Kind),
			RewardToken:    def.Strategy.RewardToken,
			Selections:     def.Strategy.Selections,
			LendingAdapter: def.Strategy.LendingAdapter,
			Limits:         limits,
		},
	}
	if def.Strategy.Anchor != nil {
		anchor, err := def.Strategy.Anchor.Params()
		if err != nil {
			return err
		}
		req.Strategy.Anchor = &anchor
	}

	var farm *vault.Farm
	if root {
		farm, err = d.Core.CreateRootFarm(ctx, admin, req)
	} else {
		var owner sdk.AccAddress
		if owner, err = book.Address(def.Owner); err != nil {
			return err
		}
		farm, err = d.Core.CreateApprovedFarm(ctx, owner, req)
	}
	if err != nil {
		return err
	}

	for _, seed := range def.Seed {
		holder, err := book.Address(seed.Holder)
		if err != nil {
			return err
		}
		amt, err := utils.ParseAmount(seed.Amount)
		if err != nil {
			return err
		}
		if err := d.Asset.Transfer(admin, holder, amt); err != nil {
			return fmt.Errorf("failed to fund seed holder %s: %w", seed.Holder, err)
		}
		if err := d.Core.Exec(ctx, farm.ID(), func(f *vault.Farm) error {
			_, err := f.ProvideLiquidity(ctx, holder, amt, time.Time{})
			return err
		}); err != nil {
			return fmt.Errorf("seed deposit for %s: %w", seed.Holder, err)
		}
	}
	return nil
}
