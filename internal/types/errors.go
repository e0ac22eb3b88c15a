package types

import (
	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the codespace for every farm engine error.
const ModuleName = "farm"

var (
	ErrUnauthorized       = errorsmod.Register(ModuleName, 2, "unauthorized")
	ErrPaused             = errorsmod.Register(ModuleName, 3, "farm is paused")
	ErrInvalidAmount      = errorsmod.Register(ModuleName, 4, "invalid amount")
	ErrInvalidWeights     = errorsmod.Register(ModuleName, 5, "invalid adapter weights")
	ErrUnknownAdapter     = errorsmod.Register(ModuleName, 6, "unknown adapter")
	ErrReentrancyRejected = errorsmod.Register(ModuleName, 7, "reentrant call rejected")
	ErrStrategyNotSet     = errorsmod.Register(ModuleName, 8, "strategy not set")
	ErrPoolNotSet         = errorsmod.Register(ModuleName, 9, "pool not set")
	ErrPositionLocked     = errorsmod.Register(ModuleName, 11, "position has not matured")
	ErrInvalidMaturity    = errorsmod.Register(ModuleName, 12, "invalid maturity")
	ErrFarmNotFound       = errorsmod.Register(ModuleName, 13, "farm not found")
	ErrInvalidSplits      = errorsmod.Register(ModuleName, 14, "invalid incentive splits")
	ErrStrategyMismatch   = errorsmod.Register(ModuleName, 15, "strategy mismatch")
	ErrInvalidConfig      = errorsmod.Register(ModuleName, 16, "invalid configuration")
	ErrInsufficientFunds  = errorsmod.Register(ModuleName, 17, "insufficient funds")
	ErrNotPaused          = errorsmod.Register(ModuleName, 18, "farm must be paused")
)
