package testutil

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/vault"
)

// AssetDenom is the deposit asset used across fixtures.
const AssetDenom = "udxp"

// DefaultParams keeps every policy knob permissive so tests opt into what they exercise.
func DefaultParams() types.FarmParams {
	return types.FarmParams{
		MaturityPeriod:   0,
		ReserveRatioBps:  2000,
		MinReserve:       sdkmath.ZeroInt(),
		RebalanceStepBps: types.MaxBps,
		Splits:           types.DefaultSplits(),
	}
}

// FarmFixture is a farm wired to a 50/50 weighted strategy over two staking adapters.
type FarmFixture struct {
	Ctx      context.Context
	Clock    *Clock
	Admin    sdk.AccAddress
	Owner    sdk.AccAddress
	Registry sdk.AccAddress
	Venue    sdk.AccAddress
	Pool     sdk.AccAddress
	Bank     *token.Bank
	Asset    *token.Token
	Adapters *adapter.Registry
	Alpha    *adapter.StakingAdapter
	Beta     *adapter.StakingAdapter
	Factory  *strategy.Factory
	Farm     *vault.Farm
	Strategy *strategy.WeightedStrategy
}

// NewFarmFixture builds the fixture. The strategy is wired through the registry principal.
func NewFarmFixture(t testing.TB, params types.FarmParams) *FarmFixture {
	t.Helper()
	f := &FarmFixture{
		Ctx:      context.Background(),
		Clock:    NewClock(),
		Admin:    Account("admin"),
		Owner:    Account("owner"),
		Registry: Account("registry"),
		Venue:    Account("venue"),
		Pool:     Account("pool"),
		Bank:     token.NewBank(),
	}
	f.Asset = token.New(AssetDenom, f.Admin)
	require.NoError(t, f.Bank.Register(f.Asset))
	f.Fund(t, f.Venue, sdkmath.NewInt(1_000_000_000))

	f.Adapters = adapter.NewRegistry(f.Admin)
	f.Alpha = adapter.NewStakingAdapter("alpha", AssetDenom, f.Bank)
	f.Beta = adapter.NewStakingAdapter("beta", AssetDenom, f.Bank)
	require.NoError(t, f.Adapters.RegisterAdapter(f.Admin, adapter.NamespaceStaking, "alpha", f.Alpha))
	require.NoError(t, f.Adapters.RegisterAdapter(f.Admin, adapter.NamespaceStaking, "beta", f.Beta))
	f.Factory = strategy.NewFactory(f.Adapters, f.Bank)

	farmAddr := authtypes.NewModuleAddress("farm/1")
	claim := token.New("farm/1/vdxp", farmAddr)
	require.NoError(t, f.Bank.Register(claim))

	var err error
	f.Farm, err = vault.NewFarm(vault.Config{
		ID:         1,
		Address:    farmAddr,
		Asset:      AssetDenom,
		ClaimToken: claim,
		Owner:      f.Owner,
		Registry:   f.Registry,
		Params:     params,
		Bank:       f.Bank,
		Now:        f.Clock.Now,
	})
	require.NoError(t, err)

	f.Strategy = f.NewWeightedStrategy(t, types.NoLimits())
	require.NoError(t, f.Farm.SetStrategy(f.Ctx, f.Registry, f.Strategy))
	return f
}

// NewWeightedStrategy deploys another 50/50 strategy bound to the fixture farm.
func (f *FarmFixture) NewWeightedStrategy(t testing.TB, limits types.StrategyLimits) *strategy.WeightedStrategy {
	t.Helper()
	s, err := f.Factory.DeployStakingStrategy(f.Farm.Address(), AssetDenom, AssetDenom, 0,
		[]types.AdapterSelection{{Name: "alpha", WeightBps: 5000}, {Name: "beta", WeightBps: 5000}},
		types.DefaultSplits(), limits)
	require.NoError(t, err)
	return s
}

// Fund mints amt of the asset to holder.
func (f *FarmFixture) Fund(t testing.TB, holder sdk.AccAddress, amt sdkmath.Int) {
	t.Helper()
	require.NoError(t, f.Asset.Mint(f.Admin, holder, amt))
}

// Deposit funds holder and provides amt with the default maturity.
func (f *FarmFixture) Deposit(t testing.TB, holder sdk.AccAddress, amt int64) sdkmath.Int {
	t.Helper()
	f.Fund(t, holder, sdkmath.NewInt(amt))
	shares, err := f.Farm.ProvideLiquidity(f.Ctx, holder, sdkmath.NewInt(amt), time.Time{})
	require.NoError(t, err)
	return shares
}

// Accrue pushes amt of venue rewards into the alpha adapter.
func (f *FarmFixture) Accrue(t testing.TB, amt int64) {
	t.Helper()
	require.NoError(t, f.Alpha.Accrue(f.Venue, sdkmath.NewInt(amt)))
}
