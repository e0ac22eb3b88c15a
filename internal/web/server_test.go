package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/adapter"
	"github.com/dexponent/farmd/internal/metrics"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/testutil"
	"github.com/dexponent/farmd/internal/token"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/vault"
)

var (
	admin = testutil.Account("admin")
	owner = testutil.Account("owner")
	alice = testutil.Account("alice")
)

type fakeHistory struct {
	healthErr error
	snapshots []types.FarmSnapshot
	receipts  []types.HarvestReceipt
	summary   types.FarmYieldSummary
	lastLimit int
}

func (h *fakeHistory) RecentSnapshots(_ context.Context, _ types.FarmID, limit int) ([]types.FarmSnapshot, error) {
	h.lastLimit = limit
	return h.snapshots, nil
}

func (h *fakeHistory) RecentReceipts(_ context.Context, _ types.FarmID, limit int) ([]types.HarvestReceipt, error) {
	h.lastLimit = limit
	return h.receipts, nil
}

func (h *fakeHistory) YieldSummary(_ context.Context, id types.FarmID) (types.FarmYieldSummary, error) {
	s := h.summary
	s.FarmID = id
	return s, nil
}

func (h *fakeHistory) Healthy() error { return h.healthErr }

type fakeCycles struct {
	last types.CycleSummary
	ok   bool
}

func (c fakeCycles) LastCycle() (types.CycleSummary, bool) { return c.last, c.ok }

// newCore builds a protocol with one farm holding a 500 deposit from alice.
func newCore(t *testing.T) *protocol.Core {
	t.Helper()
	ctx := context.Background()
	bank := token.NewBank()
	asset := token.New(testutil.AssetDenom, admin)
	require.NoError(t, bank.Register(asset))

	reg := adapter.NewRegistry(admin)
	alpha := adapter.NewStakingAdapter("alpha", testutil.AssetDenom, bank)
	require.NoError(t, reg.RegisterAdapter(admin, adapter.NamespaceStaking, "alpha", alpha))

	core := protocol.NewCore(admin, bank, reg, nil)
	require.NoError(t, core.SetApprovedFarmOwner(admin, owner, true))
	f, err := core.CreateApprovedFarm(ctx, owner, protocol.FarmRequest{
		Asset:       testutil.AssetDenom,
		ClaimSymbol: "vdxp",
		Params:      testutil.DefaultParams(),
		Strategy: protocol.StrategyRequest{
			Selections: []types.AdapterSelection{{Name: "alpha", WeightBps: types.MaxBps}},
		},
	})
	require.NoError(t, err)

	require.NoError(t, asset.Mint(admin, alice, sdkmath.NewInt(500)))
	require.NoError(t, core.Exec(ctx, f.ID(), func(f *vault.Farm) error {
		_, err := f.ProvideLiquidity(ctx, alice, sdkmath.NewInt(500), time.Time{})
		return err
	}))
	return core
}

func do(t *testing.T, ws *WebServer, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, req)
	var body map[string]interface{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestHealth(t *testing.T) {
	ws := NewWebServer(Config{Core: newCore(t)})
	rec, body := do(t, ws, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", body["status"])
	status := body["farmd_status"].(map[string]interface{})
	assert.Equal(t, "disabled", status["database"])
	assert.Equal(t, float64(1), status["farms"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHealthDegraded(t *testing.T) {
	t.Run("database down", func(t *testing.T) {
		ws := NewWebServer(Config{History: &fakeHistory{healthErr: errors.New("down")}})
		rec, body := do(t, ws, "/api/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "DEGRADED", body["status"])
	})
	t.Run("failed farms in last cycle", func(t *testing.T) {
		ws := NewWebServer(Config{Cycles: fakeCycles{ok: true, last: types.CycleSummary{CycleNumber: 3, Failed: 1}}})
		rec, body := do(t, ws, "/health")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "DEGRADED", body["status"])
	})
}

func TestGetFarms(t *testing.T) {
	ws := NewWebServer(Config{Core: newCore(t)})
	rec, body := do(t, ws, "/api/farms")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	farm := body["farms"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "500", farm["total_assets"])
	assert.Equal(t, "farm/1/vdxp", farm["claim_token"])
}

func TestGetFarm(t *testing.T) {
	ws := NewWebServer(Config{Core: newCore(t)})

	rec, body := do(t, ws, "/api/farms/1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, body, "farm")
	assert.Contains(t, body, "params")

	rec, _ = do(t, ws, "/api/farms/9")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, ws, "/api/farms/abc")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetPositions(t *testing.T) {
	ws := NewWebServer(Config{Core: newCore(t)})

	rec, body := do(t, ws, "/api/farms/1/positions")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])

	rec, body = do(t, ws, "/api/farms/1/positions/"+alice.String())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "500", body["shares"])
	assert.Equal(t, "500", body["share_value"])
	assert.Equal(t, "0", body["pending_yield"])

	rec, _ = do(t, ws, "/api/farms/1/positions/"+owner.String())
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, ws, "/api/farms/1/positions/not-an-address")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistoryRoutes(t *testing.T) {
	t.Run("without a store", func(t *testing.T) {
		ws := NewWebServer(Config{Core: newCore(t)})
		for _, p := range []string{"/api/farms/1/snapshots", "/api/farms/1/receipts", "/api/farms/1/yield"} {
			rec, _ := do(t, ws, p)
			assert.Equal(t, http.StatusServiceUnavailable, rec.Code, p)
		}
	})

	hist := &fakeHistory{
		snapshots: []types.FarmSnapshot{{FarmID: 1, TotalAssets: sdkmath.NewInt(10)}},
		receipts:  []types.HarvestReceipt{{ReceiptID: uuid.New(), FarmID: 1, Success: true}},
		summary:   types.FarmYieldSummary{Harvests: 4, TotalHarvested: "40"},
	}
	ws := NewWebServer(Config{History: hist})

	rec, body := do(t, ws, "/api/farms/1/snapshots?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), body["count"])
	assert.Equal(t, 5, hist.lastLimit)

	rec, body = do(t, ws, "/api/farms/1/receipts?limit=1000")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(20), body["limit"])
	assert.Equal(t, 20, hist.lastLimit)

	rec, body = do(t, ws, "/api/farms/2/yield")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), body["farm_id"])
	assert.Equal(t, "40", body["total_harvested"])
}

func TestLatestCycle(t *testing.T) {
	rec, _ := do(t, NewWebServer(Config{}), "/api/cycles/latest")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, _ = do(t, NewWebServer(Config{Cycles: fakeCycles{}}), "/api/cycles/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	ws := NewWebServer(Config{Cycles: fakeCycles{ok: true, last: types.CycleSummary{CycleNumber: 7, Farms: 2}}})
	rec, body := do(t, ws, "/api/cycles/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(7), body["cycle_number"])
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	ws := NewWebServer(Config{Metrics: m})
	rec, _ := do(t, ws, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStartStopsOnCancel(t *testing.T) {
	ws := NewWebServer(Config{Port: "0"})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Start(ctx) }()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
