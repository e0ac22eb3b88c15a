package protocol

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/vault"
)

// Core is the protocol registry. It approves farm owners, creates farms with their
// claim tokens and strategies, and serializes every state-changing farm operation.
type Core struct {
	execMu sync.Mutex // serializes farm mutations
	mu     sync.RWMutex

	admin    sdk.AccAddress
	address  sdk.AccAddress
	bank     *token.Bank
	adapters *adapter.Registry
	factory  *strategy.Factory
	now      func() time.Time

	approved        map[string]bool
	farms           map[types.FarmID]*vault.Farm
	nextFarmID      types.FarmID
	rootFarm        types.FarmID
	hasRoot         bool
	pool            sdk.AccAddress
	consensusModule sdk.AccAddress

	feeBps       atomic.Uint32
	feeCollector atomic.Pointer[sdk.AccAddress]

	log zerolog.Logger
}

// NewCore returns a registry administered by admin. now may be nil.
func NewCore(admin sdk.AccAddress, bank *token.Bank, adapters *adapter.Registry, now func() time.Time) *Core {
	if now == nil {
		now = time.Now
	}
	return &Core{
		admin:      admin,
		address:    authtypes.NewModuleAddress(types.ModuleName),
		bank:       bank,
		adapters:   adapters,
		factory:    strategy.NewFactory(adapters, bank).WithClock(now),
		now:        now,
		approved:   make(map[string]bool),
		farms:      make(map[types.FarmID]*vault.Farm),
		nextFarmID: 1,
		log:        logger.GetForComponent("protocol_core"),
	}
}

// RootFarmID is reserved for the protocol's root farm; approved owners get ids from 1.
const RootFarmID types.FarmID = 0

// Address is the registry principal farms accept revenue pulls and wiring from.
func (c *Core) Address() sdk.AccAddress { return c.address }

func (c *Core) Admin() sdk.AccAddress { return c.admin }

func (c *Core) Bank() *token.Bank { return c.bank }

func (c *Core) Adapters() *adapter.Registry { return c.adapters }

func (c *Core) Factory() *strategy.Factory { return c.factory }

func (c *Core) requireAdmin(caller sdk.AccAddress) error {
	if !caller.Equals(c.admin) {
		return types.ErrUnauthorized.Wrapf("%s is not the protocol admin", caller)
	}
	return nil
}

// SetApprovedFarmOwner grants or revokes the right to create farms.
func (c *Core) SetApprovedFarmOwner(caller, owner sdk.AccAddress, approved bool) error {
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if approved {
		c.approved[owner.String()] = true
	} else {
		delete(c.approved, owner.String())
	}
	c.log.Info().Str("owner", owner.String()).Bool("approved", approved).Msg("farm owner approval changed")
	return nil
}

func (c *Core) IsApprovedFarmOwner(owner sdk.AccAddress) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.approved[owner.String()]
}

// SetIncentivePool sets the pool new farms are wired to.
func (c *Core) SetIncentivePool(caller, pool sdk.AccAddress) error {
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	c.mu.Lock()
	c.pool = pool
	c.mu.Unlock()
	c.log.Info().Str("pool", pool.String()).Msg("incentive pool set")
	return nil
}

// SetConsensusModule records the consensus module and pushes it to every existing farm.
func (c *Core) SetConsensusModule(ctx context.Context, caller, module sdk.AccAddress) error {
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	c.mu.Lock()
	c.consensusModule = module
	c.mu.Unlock()

	for _, id := range c.FarmIDs() {
		if err := c.Exec(ctx, id, func(f *vault.Farm) error {
			return f.SetConsensusModule(c.address, module)
		}); err != nil {
			return err
		}
	}
	c.log.Info().Str("module", module.String()).Msg("consensus module set")
	return nil
}

// SetRootFarm marks an existing farm as the protocol's root farm.
func (c *Core) SetRootFarm(caller sdk.AccAddress, id types.FarmID) error {
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.farms[id]; !ok {
		return types.ErrFarmNotFound.Wrapf("farm %d", id)
	}
	c.rootFarm, c.hasRoot = id, true
	c.log.Info().Uint64("farm_id", uint64(id)).Msg("root farm set")
	return nil
}

// RootFarm returns the root farm, if one has been set.
func (c *Core) RootFarm() (*vault.Farm, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.hasRoot {
		return nil, false
	}
	f, ok := c.farms[c.rootFarm]
	return f, ok
}

// SetTransferFeeRate sets the claim-token transfer fee and its collector.
func (c *Core) SetTransferFeeRate(caller sdk.AccAddress, bps uint32, collector sdk.AccAddress) error {
	if err := c.requireAdmin(caller); err != nil {
		return err
	}
	if bps > types.MaxBps {
		return types.ErrInvalidAmount.Wrapf("transfer fee %d bps exceeds %d", bps, types.MaxBps)
	}
	if bps > 0 && collector.Empty() {
		return types.ErrInvalidConfig.Wrap("fee collector is required for a non-zero fee")
	}
	c.feeCollector.Store(&collector)
	c.feeBps.Store(bps)
	c.log.Info().Uint32("bps", bps).Str("collector", collector.String()).Msg("transfer fee set")
	return nil
}

// TransferFeeBps implements token.FeePolicy for every claim token.
func (c *Core) TransferFeeBps() uint32 { return c.feeBps.Load() }

// FeeCollector implements token.FeePolicy.
func (c *Core) FeeCollector() sdk.AccAddress {
	if p := c.feeCollector.Load(); p != nil {
		return *p
	}
	return nil
}

// FarmAddressOf derives the module address a farm id is (or will be) created at.
func FarmAddressOf(id types.FarmID) sdk.AccAddress {
	return authtypes.NewModuleAddress(fmt.Sprintf("farm/%d", id))
}

// Farm resolves a farm by id.
func (c *Core) Farm(id types.FarmID) (*vault.Farm, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.farms[id]
	if !ok {
		return nil, types.ErrFarmNotFound.Wrapf("farm %d", id)
	}
	return f, nil
}

// FarmIDs lists every farm, ascending.
func (c *Core) FarmIDs() []types.FarmID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]types.FarmID, 0, len(c.farms))
	for id := range c.farms {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Exec runs fn against farm id while holding the protocol execution lock, so every
// mutation observes the result of the previous one.
func (c *Core) Exec(ctx context.Context, id types.FarmID, fn func(*vault.Farm) error) error {
	f, err := c.Farm(id)
	if err != nil {
		return err
	}
	c.execMu.Lock()
	defer c.execMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(f)
}

// PullFarmRevenue harvests farm id's strategy into its accounting.
func (c *Core) PullFarmRevenue(ctx context.Context, id types.FarmID) (types.HarvestResult, error) {
	var res types.HarvestResult
	err := c.Exec(ctx, id, func(f *vault.Farm) error {
		var err error
		res, err = f.PullRevenue(ctx, c.address)
		return err
	})
	return res, err
}

// RebalanceFarm advances farm id's active epoch by one step.
func (c *Core) RebalanceFarm(ctx context.Context, id types.FarmID) (types.RebalanceResult, error) {
	var res types.RebalanceResult
	err := c.Exec(ctx, id, func(f *vault.Farm) error {
		var err error
		res, err = f.RebalanceToTarget(ctx)
		return err
	})
	return res, err
}
