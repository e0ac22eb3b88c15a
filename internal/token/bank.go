package token

import (
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/types"
)

// Bank indexes ledgers by denom so adapters, strategies and farms can move any asset
// without holding a reference to each token.
type Bank struct {
	mu      sync.RWMutex
	tokens  map[string]*Token
	blocked map[string]bool
}

func NewBank() *Bank {
	return &Bank{tokens: make(map[string]*Token), blocked: make(map[string]bool)}
}

// BlockAddress stops addr from receiving funds through Send, like a blocked module account.
func (b *Bank) BlockAddress(addr sdk.AccAddress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked[addr.String()] = true
}

// UnblockAddress reverses BlockAddress.
func (b *Bank) UnblockAddress(addr sdk.AccAddress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blocked, addr.String())
}

// Register adds a ledger. Registering a denom twice replaces nothing and fails.
func (b *Bank) Register(t *Token) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.tokens[t.Denom()]; exists {
		return types.ErrInvalidConfig.Wrapf("denom %s already registered", t.Denom())
	}
	b.tokens[t.Denom()] = t
	return nil
}

// Token returns the ledger for denom.
func (b *Bank) Token(denom string) (*Token, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.tokens[denom]
	if !ok {
		return nil, types.ErrInvalidConfig.Wrapf("unknown denom %s", denom)
	}
	return t, nil
}

// Send transfers amt of denom between holders.
func (b *Bank) Send(denom string, from, to sdk.AccAddress, amt sdkmath.Int) error {
	t, err := b.Token(denom)
	if err != nil {
		return err
	}
	b.mu.RLock()
	blocked := b.blocked[to.String()]
	b.mu.RUnlock()
	if blocked {
		return types.ErrUnauthorized.Wrapf("%s is not allowed to receive funds", to)
	}
	return t.Transfer(from, to, amt)
}

// Balance returns holder's balance of denom, zero for unknown denoms.
func (b *Bank) Balance(denom string, holder sdk.AccAddress) sdkmath.Int {
	t, err := b.Token(denom)
	if err != nil {
		return sdkmath.ZeroInt()
	}
	return t.BalanceOf(holder)
}

// Balances returns every non-zero balance of holder as sdk.Coins.
func (b *Bank) Balances(holder sdk.AccAddress) sdk.Coins {
	b.mu.RLock()
	defer b.mu.RUnlock()
	coins := sdk.NewCoins()
	for _, t := range b.tokens {
		if bal := t.BalanceOf(holder); bal.IsPositive() {
			coins = coins.Add(sdk.NewCoin(t.Denom(), bal))
		}
	}
	return coins
}
