package state

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexponent/farmd/internal/types"
)

func withMockDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	prev := DB
	DB = db
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
		DB = prev
	})
	return mock
}

func sampleSnapshot(ts time.Time) types.FarmSnapshot {
	return types.FarmSnapshot{
		FarmID:           1,
		Asset:            "udxp",
		ClaimToken:       "farm/1/vdxp",
		TotalLiquidity:   sdkmath.NewInt(200),
		TotalAssets:      sdkmath.NewInt(210),
		TotalShares:      sdkmath.NewInt(200),
		PricePerShare:    sdkmath.NewInt(1_050_000_000_000_000_000),
		AccYieldPerShare: sdkmath.NewInt(50_000_000_000_000_000),
		AccumulatedYield: sdkmath.NewInt(10),
		Available:        sdkmath.NewInt(42),
		Deployed:         sdkmath.NewInt(168),
		PendingRewards:   sdkmath.ZeroInt(),
		ReserveRatioBps:  2000,
		Positions:        1,
		Timestamp:        ts,
	}
}

func TestStoreRequiresInit(t *testing.T) {
	prev := DB
	DB = nil
	defer func() { DB = prev }()

	ctx := context.Background()
	_, err := IncrementCycleNumber(ctx)
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = SaveFarmSnapshot(ctx, uuid.New(), 1, types.FarmSnapshot{})
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, SaveHarvestReceipt(ctx, types.HarvestReceipt{}), ErrNotInitialized)
	_, err = GetRecentFarmSnapshots(ctx, 1, 10)
	assert.ErrorIs(t, err, ErrNotInitialized)
	assert.ErrorIs(t, EnsureSchema(), ErrNotInitialized)
	assert.Error(t, TestDBConnection())
}

func TestIncrementCycleNumber(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectQuery("UPDATE cycle_counter").
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(8))

	n, err := IncrementCycleNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestResetCycleNumber(t *testing.T) {
	mock := withMockDB(t)
	require.Error(t, ResetCycleNumber(context.Background(), -1))

	mock.ExpectExec("UPDATE cycle_counter").WithArgs(0).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, ResetCycleNumber(context.Background(), 0))
}

func TestSaveFarmSnapshot(t *testing.T) {
	mock := withMockDB(t)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cycleID := uuid.New()

	mock.ExpectQuery("INSERT INTO farm_snapshots").
		WithArgs(cycleID.String(), 3, int64(1), ts,
			"200", "210", "200", "1050000000000000000",
			"42", "168", "10", false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}).AddRow(int64(7)))

	id, err := SaveFarmSnapshot(context.Background(), cycleID, 3, sampleSnapshot(ts))
	require.NoError(t, err)
	assert.Equal(t, int64(7), id)
}

func TestSaveHarvestReceipt(t *testing.T) {
	mock := withMockDB(t)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := types.HarvestReceipt{
		ReceiptID:   uuid.New(),
		CycleID:     uuid.New(),
		CycleNumber: 2,
		FarmID:      4,
		Timestamp:   ts,
		Success:     true,
		Harvest: types.HarvestResult{
			FarmID:    4,
			Harvested: sdkmath.NewInt(10),
			LPYield:   sdkmath.NewInt(7),
			PoolFee:   sdkmath.NewInt(2),
			OwnerFee:  sdkmath.NewInt(1),
		},
	}

	mock.ExpectExec("INSERT INTO harvest_receipts").
		WithArgs(r.ReceiptID.String(), r.CycleID.String(), 2, int64(4), ts, true, "",
			"10", "7", "2", "1", nil).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, SaveHarvestReceipt(context.Background(), r))

	// a failed harvest carries zero amounts and the rebalance step as JSON
	failed := types.HarvestReceipt{
		ReceiptID: uuid.New(), CycleID: r.CycleID, FarmID: 4, Timestamp: ts, Message: "boom",
		Rebalance: &types.RebalanceResult{Direction: types.RebalanceDeploy, Moved: sdkmath.NewInt(5), Remaining: sdkmath.ZeroInt()},
	}
	mock.ExpectExec("INSERT INTO harvest_receipts").
		WithArgs(failed.ReceiptID.String(), failed.CycleID.String(), 0, int64(4), ts, false, "boom",
			"0", "0", "0", "0", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, SaveHarvestReceipt(context.Background(), failed))
}

func TestGetRecentFarmSnapshots(t *testing.T) {
	mock := withMockDB(t)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(sampleSnapshot(ts))
	require.NoError(t, err)

	mock.ExpectQuery("SELECT snapshot\\s+FROM farm_snapshots").
		WithArgs(int64(1), 10).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot"}).
			AddRow(raw).
			AddRow([]byte("{not json")))

	// an out-of-range limit falls back to the default
	snaps, err := GetRecentFarmSnapshots(context.Background(), 1, 1000)
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, "210", snaps[0].TotalAssets.String())
	assert.Equal(t, "farm/1/vdxp", snaps[0].ClaimToken)
	assert.True(t, ts.Equal(snaps[0].Timestamp))
}

func TestGetRecentHarvestReceipts(t *testing.T) {
	mock := withMockDB(t)
	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	receiptID, cycleID := uuid.New(), uuid.New()

	mock.ExpectQuery("FROM harvest_receipts").
		WithArgs(int64(3), 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"receipt_id", "cycle_id", "cycle_number", "harvest_timestamp", "success", "message",
			"harvested", "lp_yield", "pool_fee", "owner_fee", "rebalance",
		}).AddRow(receiptID.String(), cycleID.String(), 9, ts, true, nil,
			"100", "70", "20", "10", []byte(`{"direction":"WITHDRAW","moved":"25","remaining":"0","converged":true,"expired":false}`)))

	receipts, err := GetRecentHarvestReceipts(context.Background(), 3, 5)
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	r := receipts[0]
	assert.Equal(t, receiptID, r.ReceiptID)
	assert.Equal(t, cycleID, r.CycleID)
	assert.Equal(t, types.FarmID(3), r.FarmID)
	assert.Equal(t, "70", r.Harvest.LPYield.String())
	require.NotNil(t, r.Rebalance)
	assert.Equal(t, types.RebalanceWithdraw, r.Rebalance.Direction)
	assert.True(t, r.Rebalance.Converged)
}

func TestGetFarmYieldSummary(t *testing.T) {
	mock := withMockDB(t)
	ts := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("FROM harvest_receipts").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"ok", "failed", "h", "lp", "pool", "owner", "last"}).
			AddRow(4, 1, "40", "28", "8", "4", ts))

	s, err := GetFarmYieldSummary(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 4, s.Harvests)
	assert.Equal(t, 1, s.FailedHarvests)
	assert.Equal(t, "40", s.TotalHarvested)
	assert.Equal(t, "28", s.TotalLPYield)
	require.NotNil(t, s.LastHarvest)
	assert.True(t, ts.Equal(*s.LastHarvest))
}

func TestSaveFarmParameters(t *testing.T) {
	mock := withMockDB(t)
	params := types.FarmParams{
		ReserveRatioBps:  2000,
		MinReserve:       sdkmath.NewInt(5),
		RebalanceStepBps: 1000,
		Splits:           types.DefaultSplits(),
	}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COALESCE\\(MAX\\(version\\), 0\\) \\+ 1 FROM farm_parameters").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(3))
	mock.ExpectExec("UPDATE farm_parameters SET is_active = FALSE").
		WithArgs(int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO farm_parameters").
		WithArgs(int64(2), 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := SaveFarmParameters(context.Background(), 2, params)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestSaveFarmParametersRollsBack(t *testing.T) {
	mock := withMockDB(t)

	mock.ExpectBegin()
	mock.ExpectQuery("FROM farm_parameters").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(1))
	mock.ExpectExec("UPDATE farm_parameters").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := SaveFarmParameters(context.Background(), 2, types.FarmParams{MinReserve: sdkmath.ZeroInt()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestLoadActiveFarmParameters(t *testing.T) {
	mock := withMockDB(t)
	raw, err := json.Marshal(types.FarmParams{
		ReserveRatioBps:  2500,
		MinReserve:       sdkmath.NewInt(9),
		RebalanceStepBps: 500,
		EpochDuration:    time.Hour,
		Splits:           types.IncentiveSplits{LPs: 80, Owner: 20},
	})
	require.NoError(t, err)

	mock.ExpectQuery("FROM farm_parameters").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "params"}).AddRow(4, raw))

	p, version, err := LoadActiveFarmParameters(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 4, version)
	assert.Equal(t, uint32(2500), p.ReserveRatioBps)
	assert.Equal(t, "9", p.MinReserve.String())
	assert.Equal(t, time.Hour, p.EpochDuration)
	assert.Equal(t, uint32(20), p.Splits.Owner)

	mock.ExpectQuery("FROM farm_parameters").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"version", "params"}))
	_, _, err = LoadActiveFarmParameters(context.Background(), 3)
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	mock := withMockDB(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS farm_parameters").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, EnsureSchema())
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5432, User: "farmd", Password: "pw", DBName: "farms", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=farmd password=pw dbname=farms sslmode=disable", cfg.DSN())
}
