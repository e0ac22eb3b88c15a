package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dexponent/farmd/internal/types"
)

const maxQueryLimit = 100

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxQueryLimit {
		return 10 // Default limit
	}
	return limit
}

func intOrZero(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

// GetRecentFarmSnapshots returns the latest snapshots of a farm, newest first.
func GetRecentFarmSnapshots(ctx context.Context, farmID types.FarmID, limit int) ([]types.FarmSnapshot, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	query := `
		SELECT snapshot
		FROM farm_snapshots
		WHERE farm_id = $1
		ORDER BY snapshot_timestamp DESC
		LIMIT $2
	`
	rows, err := DB.QueryContext(ctx, query, int64(farmID), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query farm snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make([]types.FarmSnapshot, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan farm snapshot: %w", err)
		}
		var snap types.FarmSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			log.Error().Err(err).Uint64("farm_id", uint64(farmID)).Msg("Skipping undecodable farm snapshot")
			continue
		}
		snapshots = append(snapshots, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return snapshots, nil
}

// GetRecentHarvestReceipts returns the latest harvest receipts of a farm, newest first.
func GetRecentHarvestReceipts(ctx context.Context, farmID types.FarmID, limit int) ([]types.HarvestReceipt, error) {
	if DB == nil {
		return nil, ErrNotInitialized
	}

	query := `
		SELECT receipt_id, cycle_id, cycle_number, harvest_timestamp, success, message,
			harvested::TEXT, lp_yield::TEXT, pool_fee::TEXT, owner_fee::TEXT, rebalance
		FROM harvest_receipts
		WHERE farm_id = $1
		ORDER BY harvest_timestamp DESC
		LIMIT $2
	`
	rows, err := DB.QueryContext(ctx, query, int64(farmID), clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query harvest receipts: %w", err)
	}
	defer rows.Close()

	receipts := make([]types.HarvestReceipt, 0)
	for rows.Next() {
		var (
			r                                  types.HarvestReceipt
			receiptID, cycleID                 string
			message                            sql.NullString
			harvested, lpYield, poolFee, owner string
			rebalance                          []byte
		)
		if err := rows.Scan(&receiptID, &cycleID, &r.CycleNumber, &r.Timestamp, &r.Success, &message,
			&harvested, &lpYield, &poolFee, &owner, &rebalance); err != nil {
			return nil, fmt.Errorf("failed to scan harvest receipt: %w", err)
		}
		if r.ReceiptID, err = uuid.Parse(receiptID); err != nil {
			return nil, fmt.Errorf("invalid receipt id %q: %w", receiptID, err)
		}
		if r.CycleID, err = uuid.Parse(cycleID); err != nil {
			return nil, fmt.Errorf("invalid cycle id %q: %w", cycleID, err)
		}
		r.FarmID = farmID
		r.Message = message.String
		r.Harvest = types.HarvestResult{
			FarmID:    farmID,
			Harvested: parseNumeric(harvested),
			LPYield:   parseNumeric(lpYield),
			PoolFee:   parseNumeric(poolFee),
			OwnerFee:  parseNumeric(owner),
		}
		if len(rebalance) > 0 {
			var rb types.RebalanceResult
			if err := json.Unmarshal(rebalance, &rb); err != nil {
				return nil, fmt.Errorf("failed to unmarshal rebalance: %w", err)
			}
			r.Rebalance = &rb
		}
		receipts = append(receipts, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return receipts, nil
}

// GetFarmYieldSummary aggregates every harvest receipt of a farm.
func GetFarmYieldSummary(ctx context.Context, farmID types.FarmID) (types.FarmYieldSummary, error) {
	summary := types.FarmYieldSummary{FarmID: farmID}
	if DB == nil {
		return summary, ErrNotInitialized
	}

	query := `
		SELECT
			COUNT(*) FILTER (WHERE success),
			COUNT(*) FILTER (WHERE NOT success),
			COALESCE(SUM(harvested), 0)::TEXT,
			COALESCE(SUM(lp_yield), 0)::TEXT,
			COALESCE(SUM(pool_fee), 0)::TEXT,
			COALESCE(SUM(owner_fee), 0)::TEXT,
			MAX(harvest_timestamp)
		FROM harvest_receipts
		WHERE farm_id = $1
	`
	var last sql.NullTime
	err := DB.QueryRowContext(ctx, query, int64(farmID)).Scan(
		&summary.Harvests, &summary.FailedHarvests,
		&summary.TotalHarvested, &summary.TotalLPYield, &summary.TotalPoolFees, &summary.TotalOwnerFees,
		&last,
	)
	if err != nil {
		return summary, fmt.Errorf("failed to query yield summary: %w", err)
	}
	if last.Valid {
		t := last.Time.UTC()
		summary.LastHarvest = &t
	}
	return summary, nil
}

// parseNumeric reads a NUMERIC(78, 0) rendered as text. Malformed values read as zero.
func parseNumeric(s string) sdkmath.Int {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.ZeroInt()
	}
	return v
}
