package strategy

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/types"
)

// Kind identifies the strategy variant.
type Kind string

const (
	KindStaking Kind = "staking"
	KindLending Kind = "lending"
	KindAnchor  Kind = "anchor"
)

// Strategy deploys a farm's liquidity into one or more adapters. Every mutating call
// must come from the farm the strategy is bound to; funds always move between the farm
// address and the adapters through the strategy address.
type Strategy interface {
	Address() sdk.AccAddress
	Kind() Kind
	Farm() sdk.AccAddress
	Asset() string
	Limits() types.StrategyLimits
	// DeployLiquidity pulls amt from the farm and places it into adapters.
	DeployLiquidity(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error
	// Withdraw returns amt to the farm.
	Withdraw(ctx context.Context, caller sdk.AccAddress, amt sdkmath.Int) error
	TVL(ctx context.Context) (sdkmath.Int, error)
	PendingRewards(ctx context.Context) (sdkmath.Int, error)
	// Harvest collects rewards from every adapter, forwards them to the farm and returns the total.
	Harvest(ctx context.Context, caller sdk.AccAddress) (sdkmath.Int, error)
	// Rebalance redistributes funds across adapters. data is variant specific and may be empty.
	Rebalance(ctx context.Context, caller sdk.AccAddress, data []byte) error
}
