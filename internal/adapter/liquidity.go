package adapter

import (
	"context"
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
)

// PriceRange is a concentrated liquidity band around a pool price, in sqrt Q64.96 units.
type PriceRange struct {
	SqrtPriceX96 sdkmath.Int `json:"sqrt_price_x96"`
	Lower        sdkmath.Int `json:"lower"`
	Upper        sdkmath.Int `json:"upper"`
}

// Validate checks that the price sits strictly inside a non-negative band.
func (r PriceRange) Validate() error {
	if r.SqrtPriceX96.IsNil() || !r.SqrtPriceX96.IsPositive() {
		return types.ErrInvalidConfig.Wrap("sqrt price must be positive")
	}
	if r.Lower.IsNil() || r.Upper.IsNil() || r.Lower.IsNegative() {
		return types.ErrInvalidConfig.Wrap("range bounds must be set and non-negative")
	}
	if !r.Lower.LT(r.SqrtPriceX96) || !r.SqrtPriceX96.LT(r.Upper) {
		return types.ErrInvalidConfig.Wrapf("price %s outside range [%s, %s]", r.SqrtPriceX96, r.Lower, r.Upper)
	}
	return nil
}

// Contains reports whether sqrtPrice lies inside the band.
func (r PriceRange) Contains(sqrtPrice sdkmath.Int) bool {
	return r.Lower.LT(sqrtPrice) && sqrtPrice.LT(r.Upper)
}

// LiquidityManager is a concentrated liquidity venue pairing the asset with a quote
// token. Principal and swap fees are tracked per owner like a staking venue: fees are
// pushed in by the pool operator through Accrue. Each owner's position carries the
// price range it was last centred on.
type LiquidityManager struct {
	*StakingAdapter
	quote  string
	mu     sync.Mutex
	ranges map[string]PriceRange
}

var _ Adapter = (*LiquidityManager)(nil)

// NewLiquidityManager creates a manager for the asset/quote pair.
func NewLiquidityManager(name, asset, quote string, bank *token.Bank) *LiquidityManager {
	return &LiquidityManager{
		StakingAdapter: newStakingAdapter(NamespaceLiquidity, name, asset, "liquidity_manager", bank),
		quote:          quote,
		ranges:         make(map[string]PriceRange),
	}
}

func (m *LiquidityManager) QuoteToken() string { return m.quote }

// SetRange re-centres owner's position.
func (m *LiquidityManager) SetRange(ctx context.Context, owner sdk.AccAddress, r PriceRange) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ranges[owner.String()] = r

	m.log.Info().Str("owner", owner.String()).Str("sqrt_price_x96", r.SqrtPriceX96.String()).
		Str("lower", r.Lower.String()).Str("upper", r.Upper.String()).Msg("position range set")
	return nil
}

// Range returns owner's current range.
func (m *LiquidityManager) Range(owner sdk.AccAddress) (PriceRange, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.ranges[owner.String()]
	return r, ok
}
