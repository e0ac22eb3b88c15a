package state

import (
	"context"

	"github.com/google/uuid"

	"github.com/dexponent/farmd/internal/types"
)

// PostgresStore exposes the package functions as a value the harvester and the web
// server can depend on through their own interfaces.
type PostgresStore struct{}

func (PostgresStore) NextCycle(ctx context.Context) (int, error) {
	return IncrementCycleNumber(ctx)
}

func (PostgresStore) SaveFarmSnapshot(ctx context.Context, cycleID uuid.UUID, cycleNumber int, snap types.FarmSnapshot) error {
	_, err := SaveFarmSnapshot(ctx, cycleID, cycleNumber, snap)
	return err
}

func (PostgresStore) SaveHarvestReceipt(ctx context.Context, r types.HarvestReceipt) error {
	return SaveHarvestReceipt(ctx, r)
}

func (PostgresStore) RecentSnapshots(ctx context.Context, farmID types.FarmID, limit int) ([]types.FarmSnapshot, error) {
	return GetRecentFarmSnapshots(ctx, farmID, limit)
}

func (PostgresStore) RecentReceipts(ctx context.Context, farmID types.FarmID, limit int) ([]types.HarvestReceipt, error) {
	return GetRecentHarvestReceipts(ctx, farmID, limit)
}

func (PostgresStore) YieldSummary(ctx context.Context, farmID types.FarmID) (types.FarmYieldSummary, error) {
	return GetFarmYieldSummary(ctx, farmID)
}

func (PostgresStore) Healthy() error {
	return TestDBConnection()
}
