package adapter

import (
	"context"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	authtypes "github.com/cosmos/cosmos-sdk/x/auth/types"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
)

const secondsPerYear = 365 * 24 * 60 * 60

type supply struct {
	principal   sdkmath.Int
	interest    sdkmath.Int
	lastAccrual time.Time
}

// LendingAdapter is a lending market paying simple interest at a fixed APR on supplied
// principal. Interest is paid out of a pool funded through Fund; a harvest pays at most
// what the pool holds and leaves the rest pending.
type LendingAdapter struct {
	mu       sync.Mutex
	name     string
	address  sdk.AccAddress
	asset    string
	bank     *token.Bank
	aprBps   uint32
	pool     sdkmath.Int
	supplies map[string]*supply
	now      func() time.Time
	log      zerolog.Logger
}

// NewLendingAdapter creates a market. now may be nil to use wall-clock time.
func NewLendingAdapter(name, asset string, aprBps uint32, bank *token.Bank, now func() time.Time) *LendingAdapter {
	if now == nil {
		now = time.Now
	}
	return &LendingAdapter{
		name:     name,
		address:  authtypes.NewModuleAddress("adapter/lending/" + name),
		asset:    asset,
		bank:     bank,
		aprBps:   aprBps,
		pool:     sdkmath.ZeroInt(),
		supplies: make(map[string]*supply),
		now:      now,
		log:      logger.GetForComponent("lending_adapter").With().Str("adapter", name).Logger(),
	}
}

func (a *LendingAdapter) Name() string            { return a.name }
func (a *LendingAdapter) Address() sdk.AccAddress { return a.address }
func (a *LendingAdapter) Asset() string           { return a.asset }
func (a *LendingAdapter) APRBps() uint32          { return a.aprBps }

func (a *LendingAdapter) get(depositor sdk.AccAddress) *supply {
	s, ok := a.supplies[depositor.String()]
	if !ok {
		s = &supply{principal: sdkmath.ZeroInt(), interest: sdkmath.ZeroInt(), lastAccrual: a.now()}
		a.supplies[depositor.String()] = s
	}
	return s
}

func (a *LendingAdapter) accrued(s *supply, at time.Time) sdkmath.Int {
	elapsed := int64(at.Sub(s.lastAccrual) / time.Second)
	if elapsed <= 0 || s.principal.IsZero() {
		return sdkmath.ZeroInt()
	}
	return s.principal.MulRaw(int64(a.aprBps)).MulRaw(elapsed).QuoRaw(types.MaxBps * secondsPerYear)
}

// accrue folds interest earned since the last touch into s. Leftover fractional seconds
// are kept by only advancing lastAccrual when something was earned.
func (a *LendingAdapter) accrue(s *supply) {
	at := a.now()
	earned := a.accrued(s, at)
	if earned.IsPositive() || s.principal.IsZero() {
		s.lastAccrual = at
	}
	s.interest = s.interest.Add(earned)
}

func (a *LendingAdapter) Deposit(ctx context.Context, depositor sdk.AccAddress, amt sdkmath.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("supply amount %s", amt)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.bank.Send(a.asset, depositor, a.address, amt); err != nil {
		return err
	}
	s := a.get(depositor)
	a.accrue(s)
	s.principal = s.principal.Add(amt)

	a.log.Debug().Str("depositor", depositor.String()).Str("amount", amt.String()).Msg("supplied")
	return nil
}

func (a *LendingAdapter) Withdraw(ctx context.Context, depositor sdk.AccAddress, amt sdkmath.Int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("withdraw amount %s", amt)
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.get(depositor)
	if s.principal.LT(amt) {
		return types.ErrInsufficientFunds.Wrapf("%s supplied %s, requested %s", depositor, s.principal, amt)
	}
	if err := a.bank.Send(a.asset, a.address, depositor, amt); err != nil {
		return err
	}
	a.accrue(s)
	s.principal = s.principal.Sub(amt)

	a.log.Debug().Str("depositor", depositor.String()).Str("amount", amt.String()).Msg("redeemed")
	return nil
}

func (a *LendingAdapter) TotalAssets(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.get(depositor).principal, nil
}

func (a *LendingAdapter) PendingRewards(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.get(depositor)
	return s.interest.Add(a.accrued(s, a.now())), nil
}

func (a *LendingAdapter) Harvest(ctx context.Context, depositor sdk.AccAddress) (sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return sdkmath.ZeroInt(), err
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.get(depositor)
	a.accrue(s)
	paid := s.interest
	if a.pool.LT(paid) {
		paid = a.pool
	}
	if paid.IsZero() {
		return paid, nil
	}
	if err := a.bank.Send(a.asset, a.address, depositor, paid); err != nil {
		return sdkmath.ZeroInt(), err
	}
	s.interest = s.interest.Sub(paid)
	a.pool = a.pool.Sub(paid)

	a.log.Info().Str("depositor", depositor.String()).Str("interest", paid.String()).
		Str("unpaid", s.interest.String()).Msg("interest harvested")
	return paid, nil
}

// Fund pulls amt from funder into the interest pool.
func (a *LendingAdapter) Fund(funder sdk.AccAddress, amt sdkmath.Int) error {
	if amt.IsNil() || !amt.IsPositive() {
		return types.ErrInvalidAmount.Wrapf("fund amount %s", amt)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.bank.Send(a.asset, funder, a.address, amt); err != nil {
		return err
	}
	a.pool = a.pool.Add(amt)
	return nil
}

// InterestPool returns the funded interest not yet paid out.
func (a *LendingAdapter) InterestPool() sdkmath.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pool
}
