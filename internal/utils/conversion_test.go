package utils

import (
	"strings"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMulDiv(t *testing.T) {
	a, b, c := sdkmath.NewInt(10), sdkmath.NewInt(10), sdkmath.NewInt(3)

	floor, err := MulDivFloor(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, int64(33), floor.Int64())

	ceil, err := MulDivCeil(a, b, c)
	require.NoError(t, err)
	assert.Equal(t, int64(34), ceil.Int64())

	exact, err := MulDivCeil(sdkmath.NewInt(9), sdkmath.NewInt(1), sdkmath.NewInt(3))
	require.NoError(t, err)
	assert.Equal(t, int64(3), exact.Int64())

	_, err = MulDivFloor(a, b, sdkmath.ZeroInt())
	require.ErrorIs(t, err, ErrDivisionByZero)
}

func TestMulDivOverflow(t *testing.T) {
	huge, ok := sdkmath.NewIntFromString("1" + strings.Repeat("0", 60))
	require.True(t, ok)

	_, err := MulDivFloor(huge, huge, sdkmath.OneInt())
	require.ErrorIs(t, err, ErrOverflow)
	_, err = MulDivCeil(huge, huge, sdkmath.NewInt(3))
	require.ErrorIs(t, err, ErrOverflow)

	v, err := MulDivFloor(huge, sdkmath.NewInt(2), sdkmath.NewInt(4))
	require.NoError(t, err)
	assert.True(t, huge.QuoRaw(2).Equal(v), v.String())
}

func TestSplitByWeights(t *testing.T) {
	tests := []struct {
		name    string
		amount  int64
		weights []uint32
	}{
		{"even", 100, []uint32{5000, 5000}},
		{"odd amount", 101, []uint32{5000, 5000}},
		{"thirds", 100, []uint32{3333, 3333, 3334}},
		{"skewed", 7, []uint32{100, 9800, 100}},
		{"single", 12345, []uint32{10000}},
		{"dust", 1, []uint32{2500, 2500, 2500, 2500}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			amount := sdkmath.NewInt(tt.amount)
			legs := SplitByWeights(amount, tt.weights)
			require.Len(t, legs, len(tt.weights))

			sum := sdkmath.ZeroInt()
			for i, leg := range legs {
				require.False(t, leg.IsNegative())
				sum = sum.Add(leg)
				// |leg*10000 - amount*w| < 10000
				diff := leg.MulRaw(10_000).Sub(amount.MulRaw(int64(tt.weights[i]))).Abs()
				assert.True(t, diff.LT(sdkmath.NewInt(10_000)), "leg %d off by more than one unit", i)
			}
			assert.True(t, sum.Equal(amount))
		})
	}
}

func TestBpsAndPercent(t *testing.T) {
	assert.Equal(t, int64(2500), BpsOf(sdkmath.NewInt(10_000), 2500).Int64())
	assert.Equal(t, int64(0), BpsOf(sdkmath.NewInt(3), 1).Int64())
	assert.Equal(t, int64(7), PercentOf(sdkmath.NewInt(70), 10).Int64())
}

func TestParseAmount(t *testing.T) {
	v, err := ParseAmount("1e18")
	require.NoError(t, err)
	assert.True(t, v.Equal(sdkmath.NewIntWithDecimal(1, 18)))

	v, err = ParseAmount("1_000")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), v.Int64())

	_, err = ParseAmount("-5")
	require.ErrorIs(t, err, ErrAmountNegative)

	_, err = ParseAmount("abc")
	require.ErrorIs(t, err, ErrConversionFailed)

	_, err = ParseAmount("")
	require.ErrorIs(t, err, ErrAmountNil)
}

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1_500_000), 6)
	require.NoError(t, err)
	assert.InDelta(t, 1.5, f, 1e-9)

	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 6)
	require.ErrorIs(t, err, ErrAmountNegative)

	_, err = SDKIntToFloat64(sdkmath.NewInt(1), 19)
	require.ErrorIs(t, err, ErrInvalidPrecision)
}
