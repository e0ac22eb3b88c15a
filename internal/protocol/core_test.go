package protocol_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/testutil"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/vault"
)

var (
	admin     = testutil.Account("admin")
	owner     = testutil.Account("owner")
	venue     = testutil.Account("venue")
	pool      = testutil.Account("pool")
	alice     = testutil.Account("alice")
	bob       = testutil.Account("bob")
	collector = testutil.Account("collector")
)

type env struct {
	ctx   context.Context
	clock *testutil.Clock
	bank  *token.Bank
	asset *token.Token
	alpha *adapter.StakingAdapter
	beta  *adapter.StakingAdapter
	mm    *adapter.LendingAdapter
	lm    *adapter.LiquidityManager
	core  *protocol.Core
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{ctx: context.Background(), clock: testutil.NewClock(), bank: token.NewBank()}
	e.asset = token.New(testutil.AssetDenom, admin)
	require.NoError(t, e.bank.Register(e.asset))
	require.NoError(t, e.asset.Mint(admin, venue, sdkmath.NewInt(1_000_000)))

	reg := adapter.NewRegistry(admin)
	e.alpha = adapter.NewStakingAdapter("alpha", testutil.AssetDenom, e.bank)
	e.beta = adapter.NewStakingAdapter("beta", testutil.AssetDenom, e.bank)
	e.mm = adapter.NewLendingAdapter("mm", testutil.AssetDenom, 1000, e.bank, e.clock.Now)
	require.NoError(t, reg.RegisterAdapter(admin, adapter.NamespaceStaking, "alpha", e.alpha))
	require.NoError(t, reg.RegisterAdapter(admin, adapter.NamespaceStaking, "beta", e.beta))
	require.NoError(t, reg.RegisterAdapter(admin, adapter.NamespaceLending, "mm", e.mm))
	e.lm = adapter.NewLiquidityManager("anchor", testutil.AssetDenom, "uusdc", e.bank)
	require.NoError(t, reg.RegisterAdapter(admin, adapter.NamespaceLiquidity, "anchor", e.lm))

	e.core = protocol.NewCore(admin, e.bank, reg, e.clock.Now)
	return e
}

func stakingRequest() protocol.FarmRequest {
	return protocol.FarmRequest{
		Asset:       testutil.AssetDenom,
		ClaimSymbol: "vDXP",
		Params:      testutil.DefaultParams(),
		Strategy: protocol.StrategyRequest{
			Kind: strategy.KindStaking,
			Selections: []types.AdapterSelection{
				{Name: "alpha", WeightBps: 5000},
				{Name: "beta", WeightBps: 5000},
			},
		},
	}
}

func (e *env) createFarm(t *testing.T, req protocol.FarmRequest) *vault.Farm {
	t.Helper()
	if !e.core.IsApprovedFarmOwner(owner) {
		require.NoError(t, e.core.SetApprovedFarmOwner(admin, owner, true))
	}
	f, err := e.core.CreateApprovedFarm(e.ctx, owner, req)
	require.NoError(t, err)
	return f
}

func (e *env) deposit(t *testing.T, id types.FarmID, holder sdk.AccAddress, amt int64) sdkmath.Int {
	t.Helper()
	require.NoError(t, e.asset.Mint(admin, holder, sdkmath.NewInt(amt)))
	var shares sdkmath.Int
	require.NoError(t, e.core.Exec(e.ctx, id, func(f *vault.Farm) error {
		var err error
		shares, err = f.ProvideLiquidity(e.ctx, holder, sdkmath.NewInt(amt), time.Time{})
		return err
	}))
	return shares
}

func TestCreateApprovedFarmRequiresApproval(t *testing.T) {
	e := newEnv(t)

	_, err := e.core.CreateApprovedFarm(e.ctx, owner, stakingRequest())
	require.ErrorIs(t, err, types.ErrUnauthorized)

	err = e.core.SetApprovedFarmOwner(owner, owner, true)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	require.NoError(t, e.core.SetApprovedFarmOwner(admin, owner, true))
	assert.True(t, e.core.IsApprovedFarmOwner(owner))
	require.NoError(t, e.core.SetApprovedFarmOwner(admin, owner, false))
	assert.False(t, e.core.IsApprovedFarmOwner(owner))
}

func TestCreateStakingFarm(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.core.SetIncentivePool(admin, pool))

	f := e.createFarm(t, stakingRequest())

	assert.Equal(t, types.FarmID(1), f.ID())
	assert.True(t, f.Address().Equals(protocol.FarmAddressOf(1)))
	assert.Equal(t, "farm/1/vdxp", f.ClaimToken().Denom())
	assert.True(t, f.ClaimToken().Minter().Equals(f.Address()))

	registered, err := e.bank.Token("farm/1/vdxp")
	require.NoError(t, err)
	assert.Same(t, f.ClaimToken(), registered)

	s := f.State()
	assert.True(t, s.FarmOwner.Equals(owner))
	assert.True(t, s.Pool.Equals(pool))
	require.NotNil(t, f.Strategy())
	assert.Equal(t, strategy.KindStaking, f.Strategy().Kind())
	assert.True(t, f.Strategy().Farm().Equals(f.Address()))

	second := e.createFarm(t, stakingRequest())
	assert.Equal(t, types.FarmID(2), second.ID())
	assert.Equal(t, []types.FarmID{1, 2}, e.core.FarmIDs())
}

func TestCreateLendingFarm(t *testing.T) {
	e := newEnv(t)
	req := stakingRequest()
	req.ClaimSymbol = "ldxp"
	req.Strategy = protocol.StrategyRequest{Kind: strategy.KindLending, LendingAdapter: "mm"}

	f := e.createFarm(t, req)
	assert.Equal(t, strategy.KindLending, f.Strategy().Kind())
	assert.Equal(t, "farm/1/ldxp", f.ClaimToken().Denom())
}

func TestCreateFarmFailureRegistersNothing(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.core.SetApprovedFarmOwner(admin, owner, true))

	cases := map[string]func(*protocol.FarmRequest){
		"unknown adapter": func(r *protocol.FarmRequest) {
			r.Strategy.Selections = []types.AdapterSelection{{Name: "gamma", WeightBps: types.MaxBps}}
		},
		"bad weights": func(r *protocol.FarmRequest) {
			r.Strategy.Selections = []types.AdapterSelection{{Name: "alpha", WeightBps: 4000}}
		},
		"unknown asset":  func(r *protocol.FarmRequest) { r.Asset = "uatom" },
		"missing symbol": func(r *protocol.FarmRequest) { r.ClaimSymbol = "" },
		"bad splits": func(r *protocol.FarmRequest) {
			r.Params.Splits = types.IncentiveSplits{LPs: 90, Owner: 20}
		},
		"unknown kind": func(r *protocol.FarmRequest) { r.Strategy.Kind = "perps" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			req := stakingRequest()
			mutate(&req)
			_, err := e.core.CreateApprovedFarm(e.ctx, owner, req)
			require.Error(t, err)
			assert.Empty(t, e.core.FarmIDs())
		})
	}

	f := e.createFarm(t, stakingRequest())
	assert.Equal(t, types.FarmID(1), f.ID())
}

func TestFarmNotFound(t *testing.T) {
	e := newEnv(t)

	_, err := e.core.Farm(9)
	require.ErrorIs(t, err, types.ErrFarmNotFound)

	_, err = e.core.PullFarmRevenue(e.ctx, 9)
	require.ErrorIs(t, err, types.ErrFarmNotFound)

	_, err = e.core.RebalanceFarm(e.ctx, 9)
	require.ErrorIs(t, err, types.ErrFarmNotFound)
}

func TestPullFarmRevenue(t *testing.T) {
	e := newEnv(t)
	f := e.createFarm(t, stakingRequest())
	e.deposit(t, f.ID(), alice, 200)
	require.NoError(t, e.core.Exec(e.ctx, f.ID(), func(f *vault.Farm) error {
		return f.DeployLiquidity(e.ctx, owner, sdkmath.NewInt(100))
	}))
	require.NoError(t, e.alpha.Accrue(venue, sdkmath.NewInt(10)))

	// only the protocol may pull
	_, err := f.PullRevenue(e.ctx, owner)
	require.ErrorIs(t, err, types.ErrUnauthorized)

	res, err := e.core.PullFarmRevenue(e.ctx, f.ID())
	require.NoError(t, err)
	assert.Equal(t, int64(10), res.Harvested.Int64())
	assert.Equal(t, int64(10), res.LPYield.Int64())
	assert.Equal(t, int64(210), f.State().TotalAssets.Int64())
	assert.Equal(t, int64(10), f.PendingYield(alice).Int64())
}

func TestRebalanceFarmWithoutEpoch(t *testing.T) {
	e := newEnv(t)
	f := e.createFarm(t, stakingRequest())

	res, err := e.core.RebalanceFarm(e.ctx, f.ID())
	require.NoError(t, err)
	assert.Equal(t, types.RebalanceNone, res.Direction)
	assert.True(t, res.Moved.IsZero())
	assert.False(t, res.Converged)
}

func TestClaimTokenTransferFee(t *testing.T) {
	e := newEnv(t)
	f := e.createFarm(t, stakingRequest())
	e.deposit(t, f.ID(), alice, 1000)

	require.ErrorIs(t, e.core.SetTransferFeeRate(alice, 100, collector), types.ErrUnauthorized)
	require.ErrorIs(t, e.core.SetTransferFeeRate(admin, types.MaxBps+1, collector), types.ErrInvalidAmount)
	require.ErrorIs(t, e.core.SetTransferFeeRate(admin, 100, nil), types.ErrInvalidConfig)
	require.NoError(t, e.core.SetTransferFeeRate(admin, 100, collector))

	claim := f.ClaimToken()
	require.NoError(t, claim.Transfer(alice, bob, sdkmath.NewInt(500)))

	assert.Equal(t, int64(500), claim.BalanceOf(alice).Int64())
	assert.Equal(t, int64(495), claim.BalanceOf(bob).Int64())
	assert.Equal(t, int64(5), claim.BalanceOf(collector).Int64())
	assert.Equal(t, int64(1000), claim.TotalSupply().Int64())
	assert.True(t, f.State().TotalShares.Equal(claim.TotalSupply()))
}

func TestSetConsensusModulePushesToFarms(t *testing.T) {
	e := newEnv(t)
	first := e.createFarm(t, stakingRequest())
	module := testutil.Account("consensus")

	require.ErrorIs(t, e.core.SetConsensusModule(e.ctx, owner, module), types.ErrUnauthorized)
	require.NoError(t, e.core.SetConsensusModule(e.ctx, admin, module))
	assert.True(t, first.State().ConsensusModule.Equals(module))

	// farms created afterwards inherit it
	second := e.createFarm(t, stakingRequest())
	assert.True(t, second.State().ConsensusModule.Equals(module))
}

func TestExecSerializesConcurrentDeposits(t *testing.T) {
	e := newEnv(t)
	f := e.createFarm(t, stakingRequest())

	const n = 20
	holders := make([]sdk.AccAddress, n)
	for i := range holders {
		holders[i] = testutil.Account(fmt.Sprintf("lp-%d", i))
		require.NoError(t, e.asset.Mint(admin, holders[i], sdkmath.NewInt(10)))
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, h := range holders {
		wg.Add(1)
		go func(h sdk.AccAddress) {
			defer wg.Done()
			errs <- e.core.Exec(e.ctx, f.ID(), func(f *vault.Farm) error {
				_, err := f.ProvideLiquidity(e.ctx, h, sdkmath.NewInt(10), time.Time{})
				return err
			})
		}(h)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	s := f.State()
	assert.Equal(t, int64(n*10), s.TotalShares.Int64())
	assert.Equal(t, int64(n*10), s.TotalAssets.Int64())
	assert.Len(t, f.Positions(), n)
}

func TestExecHonoursCancelledContext(t *testing.T) {
	e := newEnv(t)
	f := e.createFarm(t, stakingRequest())

	ctx, cancel := context.WithCancel(e.ctx)
	cancel()
	called := false
	err := e.core.Exec(ctx, f.ID(), func(*vault.Farm) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func rootRequest() protocol.FarmRequest {
	params := testutil.DefaultParams()
	params.Splits = types.IncentiveSplits{LPs: 80, Verifiers: 20}
	return protocol.FarmRequest{
		Asset:       testutil.AssetDenom,
		ClaimSymbol: "vDXP",
		Params:      params,
		Strategy: protocol.StrategyRequest{
			Kind: strategy.KindAnchor,
			Anchor: &types.AnchorParams{
				FeeTier:           3000,
				SqrtPriceX96:      sdkmath.NewInt(1_000_000),
				UpperRange:        sdkmath.NewInt(100),
				LowerRange:        sdkmath.NewInt(50),
				QuoteToken:        "uusdc",
				LiquidityManager:  "anchor",
				MinLiquidity:      sdkmath.NewInt(1),
				RebalanceInterval: time.Hour,
			},
		},
	}
}

func TestCreateRootFarm(t *testing.T) {
	e := newEnv(t)
	_, ok := e.core.RootFarm()
	require.False(t, ok)

	_, err := e.core.CreateRootFarm(e.ctx, owner, rootRequest())
	require.ErrorIs(t, err, types.ErrUnauthorized)

	bad := rootRequest()
	bad.Strategy.Anchor = nil
	_, err = e.core.CreateRootFarm(e.ctx, admin, bad)
	require.ErrorIs(t, err, types.ErrInvalidConfig)
	_, err = e.core.Farm(protocol.RootFarmID)
	require.ErrorIs(t, err, types.ErrFarmNotFound)

	f, err := e.core.CreateRootFarm(e.ctx, admin, rootRequest())
	require.NoError(t, err)
	assert.Equal(t, protocol.RootFarmID, f.ID())
	assert.True(t, f.Address().Equals(protocol.FarmAddressOf(protocol.RootFarmID)))
	assert.True(t, f.State().FarmOwner.Equals(admin))
	_, err = f.PullRevenue(e.ctx, admin)
	require.ErrorIs(t, err, types.ErrUnauthorized, "only the core may pull the root farm")
	assert.Equal(t, "farm/0/vdxp", f.ClaimToken().Denom())
	assert.Equal(t, strategy.KindAnchor, f.Strategy().Kind())

	root, ok := e.core.RootFarm()
	require.True(t, ok)
	assert.Same(t, f, root)

	_, err = e.core.CreateRootFarm(e.ctx, admin, rootRequest())
	require.ErrorIs(t, err, types.ErrInvalidConfig)

	// approved owners keep numbering from 1
	assert.Equal(t, types.FarmID(1), e.createFarm(t, stakingRequest()).ID())
}

func TestRootFarmLifecycle(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, e.core.SetIncentivePool(admin, pool))
	f, err := e.core.CreateRootFarm(e.ctx, admin, rootRequest())
	require.NoError(t, err)
	anchor, ok := f.Strategy().(*strategy.AnchorStrategy)
	require.True(t, ok)

	e.deposit(t, protocol.RootFarmID, alice, 200)
	require.NoError(t, e.core.Exec(e.ctx, protocol.RootFarmID, func(f *vault.Farm) error {
		return f.DeployLiquidity(e.ctx, admin, sdkmath.NewInt(100))
	}))
	held, err := e.lm.TotalAssets(e.ctx, anchor.Address())
	require.NoError(t, err)
	assert.Equal(t, int64(100), held.Int64())
	require.NoError(t, e.lm.Accrue(venue, sdkmath.NewInt(50)))

	res, err := e.core.PullFarmRevenue(e.ctx, protocol.RootFarmID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.Harvested.Int64())
	assert.Equal(t, int64(40), res.LPYield.Int64())
	assert.Equal(t, int64(10), res.PoolFee.Int64())
	assert.Equal(t, int64(10), e.bank.Balance(testutil.AssetDenom, pool).Int64())
	assert.Equal(t, int64(240), f.State().TotalAssets.Int64())
	assert.Equal(t, int64(40), f.PendingYield(alice).Int64())

	// inside the band nothing moves, outside it the range is re-centred
	require.NoError(t, e.core.Exec(e.ctx, protocol.RootFarmID, func(f *vault.Farm) error {
		return f.RebalanceStrategy(e.ctx, admin, nil)
	}))
	r, _ := anchor.Range()
	assert.Equal(t, int64(1_000_000), r.SqrtPriceX96.Int64())
	require.NoError(t, e.core.Exec(e.ctx, protocol.RootFarmID, func(f *vault.Farm) error {
		return f.RebalanceStrategy(e.ctx, admin, []byte(`{"sqrt_price_x96":"2000000"}`))
	}))
	r, _ = anchor.Range()
	assert.Equal(t, int64(1_999_950), r.Lower.Int64())
	assert.Equal(t, int64(2_000_100), r.Upper.Int64())

	require.NoError(t, e.core.Exec(e.ctx, protocol.RootFarmID, func(f *vault.Farm) error {
		return f.WithdrawFromStrategy(e.ctx, admin, sdkmath.NewInt(100))
	}))
	held, err = e.lm.TotalAssets(e.ctx, anchor.Address())
	require.NoError(t, err)
	assert.True(t, held.IsZero())
	assert.Equal(t, int64(240), e.bank.Balance(testutil.AssetDenom, f.Address()).Int64())
}

func TestSetRootFarm(t *testing.T) {
	e := newEnv(t)
	f := e.createFarm(t, stakingRequest())

	require.ErrorIs(t, e.core.SetRootFarm(owner, f.ID()), types.ErrUnauthorized)
	require.ErrorIs(t, e.core.SetRootFarm(admin, 9), types.ErrFarmNotFound)
	_, ok := e.core.RootFarm()
	require.False(t, ok)

	require.NoError(t, e.core.SetRootFarm(admin, f.ID()))
	root, ok := e.core.RootFarm()
	require.True(t, ok)
	assert.Same(t, f, root)
}
