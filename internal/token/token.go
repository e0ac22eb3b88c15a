/*

This file contains the in-process fungible ledger used for both the deposit asset and each
farm's claim token. Balances are keyed by bech32 address string.

*/

package token

import (
	"sync"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"

	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

// FeePolicy supplies the transfer fee charged on holder-to-holder transfers.
type FeePolicy interface {
	TransferFeeBps() uint32
	FeeCollector() sdk.AccAddress
}

// Token is a single-denom balance ledger. Only the minter can mint or burn.
type Token struct {
	mu       sync.RWMutex
	denom    string
	minter   sdk.AccAddress
	balances map[string]sdkmath.Int
	supply   sdkmath.Int
	fees     FeePolicy
}

// New returns an empty ledger for denom controlled by minter.
func New(denom string, minter sdk.AccAddress) *Token {
	return &Token{
		denom:    denom,
		minter:   minter,
		balances: make(map[string]sdkmath.Int),
		supply:   sdkmath.ZeroInt(),
	}
}

// WithFeePolicy attaches a transfer fee policy and returns the token.
func (t *Token) WithFeePolicy(p FeePolicy) *Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fees = p
	return t
}

func (t *Token) Denom() string { return t.denom }

func (t *Token) Minter() sdk.AccAddress { return t.minter }

// Mint creates amt units for to.
func (t *Token) Mint(caller, to sdk.AccAddress, amt sdkmath.Int) error {
	if !caller.Equals(t.minter) {
		return types.ErrUnauthorized.Wrapf("%s cannot mint %s", caller, t.denom)
	}
	if amt.IsNil() || amt.IsNegative() {
		return types.ErrInvalidAmount.Wrapf("mint amount %s", amt)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.credit(to, amt)
	t.supply = t.supply.Add(amt)
	return nil
}

// Burn destroys amt units held by from.
func (t *Token) Burn(caller, from sdk.AccAddress, amt sdkmath.Int) error {
	if !caller.Equals(t.minter) {
		return types.ErrUnauthorized.Wrapf("%s cannot burn %s", caller, t.denom)
	}
	if amt.IsNil() || amt.IsNegative() {
		return types.ErrInvalidAmount.Wrapf("burn amount %s", amt)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amt); err != nil {
		return err
	}
	t.supply = t.supply.Sub(amt)
	return nil
}

// Transfer moves amt from one holder to another. When a fee policy is set and neither
// side is the minter, the fee is diverted to the collector. Supply never changes.
func (t *Token) Transfer(from, to sdk.AccAddress, amt sdkmath.Int) error {
	if amt.IsNil() || amt.IsNegative() {
		return types.ErrInvalidAmount.Wrapf("transfer amount %s", amt)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.debit(from, amt); err != nil {
		return err
	}
	fee := t.feeFor(from, to, amt)
	if fee.IsPositive() {
		t.credit(t.fees.FeeCollector(), fee)
	}
	t.credit(to, amt.Sub(fee))
	return nil
}

func (t *Token) feeFor(from, to sdk.AccAddress, amt sdkmath.Int) sdkmath.Int {
	if t.fees == nil || from.Equals(t.minter) || to.Equals(t.minter) {
		return sdkmath.ZeroInt()
	}
	collector := t.fees.FeeCollector()
	bps := t.fees.TransferFeeBps()
	if bps == 0 || collector.Empty() {
		return sdkmath.ZeroInt()
	}
	return utils.BpsOf(amt, bps)
}

// BalanceOf returns the holder's balance.
func (t *Token) BalanceOf(holder sdk.AccAddress) sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if b, ok := t.balances[holder.String()]; ok {
		return b
	}
	return sdkmath.ZeroInt()
}

// TotalSupply returns minted minus burned.
func (t *Token) TotalSupply() sdkmath.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.supply
}

// Coin returns the holder's balance as an sdk.Coin.
func (t *Token) Coin(holder sdk.AccAddress) sdk.Coin {
	return sdk.NewCoin(t.denom, t.BalanceOf(holder))
}

func (t *Token) credit(to sdk.AccAddress, amt sdkmath.Int) {
	key := to.String()
	bal, ok := t.balances[key]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	t.balances[key] = bal.Add(amt)
}

func (t *Token) debit(from sdk.AccAddress, amt sdkmath.Int) error {
	key := from.String()
	bal, ok := t.balances[key]
	if !ok {
		bal = sdkmath.ZeroInt()
	}
	if bal.LT(amt) {
		return types.ErrInsufficientFunds.Wrapf("%s has %s%s, needs %s", from, bal, t.denom, amt)
	}
	t.balances[key] = bal.Sub(amt)
	return nil
}
