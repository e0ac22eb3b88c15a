package adapter

import (
	"context"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
)

// Namespaces partition the registry; names need only be unique within one.
const (
	NamespaceStaking   = "staking"
	NamespaceLending   = "lending"
	NamespaceLiquidity = "liquidity"
)

// Adapter is a single yield venue for one asset. Balances are tracked per depositor so
// several strategies can share a venue without seeing each other's funds.
type Adapter interface {
	Name() string
	Address() sdk.AccAddress
	Asset() string
	// Deposit pulls amt of the asset from depositor into the venue.
	Deposit(ctx context.Context, depositor sdk.AccAddress, amt sdkmath.Int) error
	// Withdraw returns amt of depositor's principal.
	Withdraw(ctx context.Context, depositor sdk.AccAddress, amt sdkmath.Int) error
	// TotalAssets is depositor's withdrawable principal.
	TotalAssets(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error)
	PendingRewards(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error)
	// Harvest pays pending rewards to depositor and returns the amount paid.
	Harvest(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error)
}
