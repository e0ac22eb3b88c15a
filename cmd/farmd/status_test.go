package main

import (
	"bytes"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/types"
)

func TestWriteStatusTable(t *testing.T) {
	var buf bytes.Buffer
	statuses := []farmStatus{
		{Snapshot: types.FarmSnapshot{
			FarmID: 1, ClaimToken: "farm/1/vdxp",
			TotalAssets: sdkmath.NewInt(210), TotalShares: sdkmath.NewInt(200),
			Deployed: sdkmath.NewInt(100), Available: sdkmath.NewInt(110), Positions: 1,
		}},
		{
			Snapshot: types.FarmSnapshot{
				FarmID: 2, ClaimToken: "farm/2/vdxp", Paused: true,
				TotalAssets: sdkmath.ZeroInt(), TotalShares: sdkmath.ZeroInt(),
				Deployed: sdkmath.ZeroInt(), Available: sdkmath.ZeroInt(),
			},
			Yield: &types.FarmYieldSummary{TotalHarvested: "42"},
		},
	}
	require.NoError(t, writeStatusTable(&buf, statuses))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "CLAIM TOKEN")
	assert.Regexp(t, `^1\s+farm/1/vdxp\s+210\s+200\s+100\s+110\s+1\s+false\s+-$`, string(lines[1]))
	assert.Regexp(t, `^2\s+farm/2/vdxp\s+0\s+0\s+0\s+0\s+0\s+true\s+42$`, string(lines[2]))
}

func TestDBConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "")
	_, enabled, err := dbConfigFromEnv()
	require.NoError(t, err)
	assert.False(t, enabled)

	t.Setenv("DB_HOST", "db")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_USER", "farmd")
	t.Setenv("DB_NAME", "farms")
	t.Setenv("DB_SSLMODE", "")
	cfg, enabled, err := dbConfigFromEnv()
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "disable", cfg.SSLMode)
	assert.Equal(t, "farms", cfg.DBName)
}
