package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/config"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/strategy"
	"github.com/dexponent/farmd/internal/testutil"
	"github.com/dexponent/farmd/internal/types"
)

const bootstrapBook = `{
	"admin": "0x00000000000000000000000000000000000000a1",
	"owner": "0x00000000000000000000000000000000000000a2",
	"pool": "0x00000000000000000000000000000000000000a3",
	"treasury": "0x00000000000000000000000000000000000000a4",
	"alice": "0x00000000000000000000000000000000000000a5"
}`

const bootstrapFarms = `
asset:
  denom: udxp
  supply: 1e12
adapters:
  - {namespace: staking, name: alpha}
  - {namespace: staking, name: beta}
  - {namespace: lending, name: mm, fund: 1e6}
owners: [owner]
incentive_pool: pool
transfer_fee: {bps: 10, collector: treasury}
farms:
  - owner: owner
    claim_symbol: vdxp
    strategy:
      kind: staking
      selections:
        - {name: alpha, weight_bps: 7000}
        - {name: beta, weight_bps: 3000}
      min_deposit: "1"
    seed:
      - {holder: alice, amount: 5000}
  - owner: owner
    claim_symbol: ldxp
    strategy: {kind: lending, lending_adapter: mm}
`

func loadBootstrap(t *testing.T, farms string) (*config.FarmsFileSpec, *config.AddressBook) {
	t.Helper()
	book, err := config.ParseAddressBook("local", []byte(bootstrapBook))
	require.NoError(t, err)
	spec, err := config.ParseFarmsFile([]byte(farms))
	require.NoError(t, err)
	return spec, book
}

func TestBootstrap(t *testing.T) {
	spec, book := loadBootstrap(t, bootstrapFarms)
	clock := testutil.NewClock()

	d, err := protocol.Bootstrap(context.Background(), spec, book, clock.Now)
	require.NoError(t, err)

	core := d.Core
	ownerAddr, _ := book.Address("owner")
	aliceAddr, _ := book.Address("alice")
	poolAddr, _ := book.Address("pool")

	assert.True(t, core.IsApprovedFarmOwner(ownerAddr))
	assert.Equal(t, uint32(10), core.TransferFeeBps())
	assert.Equal(t, []types.FarmID{1, 2}, core.FarmIDs())
	assert.Equal(t, []string{"alpha", "beta"}, core.Adapters().Names("staking"))
	assert.Equal(t, int64(1_000_000), d.Lending["mm"].InterestPool().Int64())

	staking, err := core.Farm(1)
	require.NoError(t, err)
	assert.Equal(t, strategy.KindStaking, staking.Strategy().Kind())
	assert.True(t, staking.State().Pool.Equals(poolAddr))
	assert.Equal(t, config.DefaultFarmParameters.ReserveRatioBps, staking.State().ReserveRatioBps)

	pos, ok := staking.Position(aliceAddr)
	require.True(t, ok)
	assert.Equal(t, int64(5000), pos.Principal.Int64())
	assert.Equal(t, clock.Now().Add(config.DefaultFarmParameters.MaturityPeriod), pos.Maturity)
	assert.Equal(t, int64(5000), staking.ClaimToken().BalanceOf(aliceAddr).Int64())

	lending, err := core.Farm(2)
	require.NoError(t, err)
	assert.Equal(t, strategy.KindLending, lending.Strategy().Kind())
}

func TestBootstrapRootFarm(t *testing.T) {
	spec, book := loadBootstrap(t, `
asset: {denom: udxp, supply: 1e12}
adapters: [{namespace: liquidity, name: lm, quote: uusdc}]
incentive_pool: pool
root_farm:
  claim_symbol: vdxp
  strategy:
    kind: anchor
    anchor:
      fee_tier: 500
      sqrt_price_x96: "1000000"
      upper_range: "100"
      lower_range: "50"
      quote_token: uusdc
      liquidity_manager: lm
      rebalance_interval: 1h
  params:
    splits: {lps: 80, verifiers: 20}
  seed:
    - {holder: alice, amount: 1000}
`)
	d, err := protocol.Bootstrap(context.Background(), spec, book, testutil.NewClock().Now)
	require.NoError(t, err)
	assert.Equal(t, []types.FarmID{0}, d.Core.FarmIDs())

	root, ok := d.Core.RootFarm()
	require.True(t, ok)
	assert.Equal(t, "farm/0/vdxp", root.ClaimToken().Denom())
	assert.Equal(t, int64(1000), root.State().TotalAssets.Int64())

	anchor := root.Strategy().(*strategy.AnchorStrategy)
	r, ok := d.Liquidity["lm"].Range(anchor.Address())
	require.True(t, ok)
	assert.Equal(t, int64(999_950), r.Lower.Int64())
	assert.Equal(t, int64(1_000_100), r.Upper.Int64())

	_, err = d.Core.PullFarmRevenue(context.Background(), protocol.RootFarmID)
	require.NoError(t, err)
}

func TestBootstrapUnknownAddressBookEntry(t *testing.T) {
	spec, book := loadBootstrap(t, `
asset: {denom: udxp}
owners: [mallory]
`)
	_, err := protocol.Bootstrap(context.Background(), spec, book, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mallory")
}

func TestBootstrapUnknownSelection(t *testing.T) {
	spec, book := loadBootstrap(t, `
asset: {denom: udxp, supply: "100"}
adapters: [{namespace: staking, name: alpha}]
owners: [owner]
farms:
  - owner: owner
    claim_symbol: vdxp
    strategy:
      selections: [{name: gamma, weight_bps: 10000}]
`)
	_, err := protocol.Bootstrap(context.Background(), spec, book, nil)
	require.ErrorIs(t, err, types.ErrUnknownAdapter)
}

func TestBootstrapLocalDeployment(t *testing.T) {
	book, err := config.LoadAddressBook("../../deployment", "local")
	require.NoError(t, err)
	spec, err := config.LoadFarmsFile("../../deployment/farms.local.yaml")
	require.NoError(t, err)

	d, err := protocol.Bootstrap(context.Background(), spec, book, testutil.NewClock().Now)
	require.NoError(t, err)
	require.Equal(t, []types.FarmID{0, 1, 2}, d.Core.FarmIDs())

	root, ok := d.Core.RootFarm()
	require.True(t, ok)
	assert.Equal(t, protocol.RootFarmID, root.ID())
	assert.Equal(t, strategy.KindAnchor, root.Strategy().Kind())
	assert.Equal(t, 720*time.Hour, root.State().Params.MaturityPeriod)
	assert.Equal(t, types.IncentiveSplits{LPs: 80, Verifiers: 20}, root.State().Params.Splits)
	assert.Equal(t, "3000000000000000000", root.State().TotalAssets.String())
	admin, err := book.Address("admin")
	require.NoError(t, err)
	assert.True(t, root.State().FarmOwner.Equals(admin))
	anchor, ok := root.Strategy().(*strategy.AnchorStrategy)
	require.True(t, ok)
	assert.Same(t, d.Liquidity["anchor-lm"], anchor.Manager())

	staking, err := d.Core.Farm(1)
	require.NoError(t, err)
	assert.Equal(t, "7000000000000000000", staking.State().TotalAssets.String())
	assert.Equal(t, "farm/1/vdxp", staking.ClaimToken().Denom())

	lending, err := d.Core.Farm(2)
	require.NoError(t, err)
	assert.Equal(t, uint32(3000), lending.State().ReserveRatioBps)

	consensus, err := book.Address("consensus")
	require.NoError(t, err)
	assert.True(t, staking.State().ConsensusModule.Equals(consensus))
	assert.Equal(t, uint32(10), d.Core.TransferFeeBps())
}
