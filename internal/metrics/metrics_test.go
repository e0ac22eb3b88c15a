package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/types"
)

func TestObserveSnapshot(t *testing.T) {
	m := New()
	m.ObserveSnapshot(types.FarmSnapshot{
		FarmID:           3,
		TotalAssets:      sdkmath.NewInt(210),
		TotalShares:      sdkmath.NewInt(200),
		TotalLiquidity:   sdkmath.NewInt(200),
		PricePerShare:    sdkmath.NewInt(1_050_000_000_000_000_000),
		Available:        sdkmath.NewInt(42),
		Deployed:         sdkmath.NewInt(168),
		PendingRewards:   sdkmath.NewInt(3),
		AccumulatedYield: sdkmath.NewInt(10),
		Positions:        2,
		Paused:           true,
	})

	assert.Equal(t, 210.0, promtestutil.ToFloat64(m.totalAssets.WithLabelValues("3")))
	assert.Equal(t, 168.0, promtestutil.ToFloat64(m.deployed.WithLabelValues("3")))
	assert.InDelta(t, 1.05, promtestutil.ToFloat64(m.pricePerShare.WithLabelValues("3")), 1e-12)
	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.positions.WithLabelValues("3")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.paused.WithLabelValues("3")))
}

func TestObserveSnapshotToleratesNilAmounts(t *testing.T) {
	m := New()
	m.ObserveSnapshot(types.FarmSnapshot{FarmID: 1})
	assert.Equal(t, 0.0, promtestutil.ToFloat64(m.totalAssets.WithLabelValues("1")))
}

func TestObserveReceipt(t *testing.T) {
	m := New()
	m.ObserveReceipt(types.HarvestReceipt{
		FarmID:  1,
		Success: true,
		Harvest: types.HarvestResult{Harvested: sdkmath.NewInt(10)},
		Rebalance: &types.RebalanceResult{
			Direction: types.RebalanceDeploy,
			Moved:     sdkmath.NewInt(25),
		},
	})
	m.ObserveReceipt(types.HarvestReceipt{FarmID: 1, Success: true, Harvest: types.HarvestResult{Harvested: sdkmath.NewInt(5)}})
	m.ObserveReceipt(types.HarvestReceipt{FarmID: 1, Success: false})

	assert.Equal(t, 2.0, promtestutil.ToFloat64(m.harvests.WithLabelValues("1", "ok")))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(m.harvests.WithLabelValues("1", "failed")))
	assert.Equal(t, 15.0, promtestutil.ToFloat64(m.harvested.WithLabelValues("1")))
	assert.Equal(t, 25.0, promtestutil.ToFloat64(m.rebalanced.WithLabelValues("1", "DEPLOY")))
}

func TestHandlerExposesSeries(t *testing.T) {
	m := New()
	m.ObserveSnapshot(types.FarmSnapshot{FarmID: 7, TotalAssets: sdkmath.NewInt(1)})
	m.ObserveCycle(types.CycleSummary{Duration: 50 * time.Millisecond})

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)
	assert.True(t, strings.Contains(text, `farmd_farm_total_assets{farm_id="7"} 1`))
	assert.True(t, strings.Contains(text, "farmd_harvester_cycles_total 1"))
	assert.True(t, strings.Contains(text, "farmd_harvester_cycle_duration_seconds_count 1"))
}
