/*
This file contains the fixed-point helpers shared by the farm engine, strategies and reporting:
floor/ceil mul-div on SDK Ints, basis-point slices and float conversion for metrics.
*/

package utils

import (
	"errors"
	"fmt"
	"math"
	"strings"

	sdkmath "cosmossdk.io/math"
)

var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrConversionFailed = errors.New("conversion failed")
	ErrDivisionByZero   = errors.New("division by zero")
	ErrOverflow         = errors.New("integer overflow")
)

// MulDivFloor returns floor(a*b/c).
func MulDivFloor(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	num, err := a.SafeMul(b)
	if err != nil {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return num.Quo(c), nil
}

// MulDivCeil returns ceil(a*b/c) for non-negative operands.
func MulDivCeil(a, b, c sdkmath.Int) (sdkmath.Int, error) {
	if c.IsZero() {
		return sdkmath.ZeroInt(), ErrDivisionByZero
	}
	num, err := a.SafeMul(b)
	if err != nil {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	q := num.Quo(c)
	if !num.Mod(c).IsZero() {
		q = q.AddRaw(1)
	}
	return q, nil
}

// BpsOf returns floor(amount*bps/10000).
func BpsOf(amount sdkmath.Int, bps uint32) sdkmath.Int {
	return amount.MulRaw(int64(bps)).QuoRaw(10_000)
}

// PercentOf returns floor(amount*pct/100).
func PercentOf(amount sdkmath.Int, pct uint32) sdkmath.Int {
	return amount.MulRaw(int64(pct)).QuoRaw(100)
}

// SplitByWeights divides amount into len(weights) legs using cumulative rounding:
// leg i is floor(amount*cum_i/total) - floor(amount*cum_{i-1}/total). The legs sum to
// amount exactly, the last leg takes what remains, and every leg is within one unit
// of its exact proportional share.
func SplitByWeights(amount sdkmath.Int, weights []uint32) []sdkmath.Int {
	legs := make([]sdkmath.Int, len(weights))
	if len(weights) == 0 {
		return legs
	}
	var total uint64
	for _, w := range weights {
		total += uint64(w)
	}
	if total == 0 {
		for i := range legs {
			legs[i] = sdkmath.ZeroInt()
		}
		return legs
	}

	totalInt := sdkmath.NewIntFromUint64(total)
	var cum uint64
	prev := sdkmath.ZeroInt()
	for i, w := range weights {
		if i == len(weights)-1 {
			legs[i] = amount.Sub(prev)
			break
		}
		cum += uint64(w)
		upTo := amount.Mul(sdkmath.NewIntFromUint64(cum)).Quo(totalInt)
		legs[i] = upTo.Sub(prev)
		prev = upTo
	}
	return legs
}

// MinInt returns the smaller of a and b.
func MinInt(a, b sdkmath.Int) sdkmath.Int {
	if a.LT(b) {
		return a
	}
	return b
}

// MaxInt returns the larger of a and b.
func MaxInt(a, b sdkmath.Int) sdkmath.Int {
	if a.GT(b) {
		return a
	}
	return b
}

// ParseAmount parses a base-unit integer. It accepts "1000", "1_000" and "1e18".
func ParseAmount(s string) (sdkmath.Int, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", "")
	if s == "" {
		return sdkmath.ZeroInt(), ErrAmountNil
	}
	if mant, exp, ok := strings.Cut(strings.ToLower(s), "e"); ok {
		m, okm := sdkmath.NewIntFromString(mant)
		var e int64
		if _, err := fmt.Sscan(exp, &e); !okm || err != nil || e < 0 || e > 77 {
			return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrConversionFailed, s)
		}
		if m.IsNegative() {
			return sdkmath.ZeroInt(), ErrAmountNegative
		}
		return m.Mul(sdkmath.NewIntWithDecimal(1, int(e))), nil
	}
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %q", ErrConversionFailed, s)
	}
	if v.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}
	return v, nil
}

// SDKIntToFloat64 converts an SDK Int to float64, dividing by 10^precision.
// Used for reporting only, never for accounting.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	if precision < 0 || precision > 18 {
		return 0, fmt.Errorf("%w: %d (must be between 0 and 18)", ErrInvalidPrecision, precision)
	}
	if amount.IsNil() {
		return 0, ErrAmountNil
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	dec := sdkmath.LegacyNewDecFromInt(amount)
	if precision > 0 {
		dec = dec.Quo(sdkmath.LegacyNewDecFromInt(sdkmath.NewIntWithDecimal(1, precision)))
	}
	f, err := dec.Float64()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrConversionFailed, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}
