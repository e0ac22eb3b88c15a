// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dexponent/farmd/internal/types"
)

// SaveFarmSnapshot stores one farm's snapshot for a harvest cycle.
func SaveFarmSnapshot(ctx context.Context, cycleID uuid.UUID, cycleNumber int, snap types.FarmSnapshot) (int64, error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	snapshotJSON, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO farm_snapshots (
			cycle_id, cycle_number, farm_id, snapshot_timestamp,
			total_liquidity, total_assets, total_shares, price_per_share,
			available, deployed, accumulated_yield, paused, snapshot
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING snapshot_id;
	`

	var snapshotID int64
	err = DB.QueryRowContext(ctx, query,
		cycleID.String(), cycleNumber, int64(snap.FarmID), snap.Timestamp,
		snap.TotalLiquidity.String(), snap.TotalAssets.String(), snap.TotalShares.String(), snap.PricePerShare.String(),
		snap.Available.String(), snap.Deployed.String(), snap.AccumulatedYield.String(), snap.Paused, snapshotJSON,
	).Scan(&snapshotID)
	if err != nil {
		return 0, fmt.Errorf("failed to save farm snapshot: %w", err)
	}

	log.Debug().
		Int64("snapshot_id", snapshotID).
		Uint64("farm_id", uint64(snap.FarmID)).
		Int("cycle_number", cycleNumber).
		Str("total_assets", snap.TotalAssets.String()).
		Msg("Farm snapshot saved to database")

	return snapshotID, nil
}

// SaveHarvestReceipt stores the outcome of one farm's harvest.
func SaveHarvestReceipt(ctx context.Context, r types.HarvestReceipt) error {
	if DB == nil {
		return ErrNotInitialized
	}

	var rebalance any // NULL unless an epoch step ran
	if r.Rebalance != nil {
		raw, err := json.Marshal(r.Rebalance)
		if err != nil {
			return fmt.Errorf("failed to marshal rebalance: %w", err)
		}
		rebalance = raw
	}

	query := `
		INSERT INTO harvest_receipts (
			receipt_id, cycle_id, cycle_number, farm_id, harvest_timestamp,
			success, message, harvested, lp_yield, pool_fee, owner_fee, rebalance
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`

	_, err := DB.ExecContext(ctx, query,
		r.ReceiptID.String(), r.CycleID.String(), r.CycleNumber, int64(r.FarmID), r.Timestamp,
		r.Success, r.Message,
		intOrZero(r.Harvest.Harvested), intOrZero(r.Harvest.LPYield),
		intOrZero(r.Harvest.PoolFee), intOrZero(r.Harvest.OwnerFee),
		rebalance,
	)
	if err != nil {
		return fmt.Errorf("failed to save harvest receipt: %w", err)
	}
	return nil
}
