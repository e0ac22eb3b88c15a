package types

import (
	"time"

	"github.com/google/uuid"
)

// HarvestReceipt records what the harvester did to one farm in one cycle.
type HarvestReceipt struct {
	ReceiptID   uuid.UUID        `json:"receipt_id"`
	CycleID     uuid.UUID        `json:"cycle_id"`
	CycleNumber int              `json:"cycle_number"`
	FarmID      FarmID           `json:"farm_id"`
	Timestamp   time.Time        `json:"timestamp"`
	Success     bool             `json:"success"`
	Message     string           `json:"message,omitempty"`
	Harvest     HarvestResult    `json:"harvest"`
	Rebalance   *RebalanceResult `json:"rebalance,omitempty"` // Set when an epoch was active
}

// FarmYieldSummary aggregates harvest receipts for one farm.
type FarmYieldSummary struct {
	FarmID         FarmID     `json:"farm_id"`
	Harvests       int        `json:"harvests"`
	FailedHarvests int        `json:"failed_harvests"`
	TotalHarvested string     `json:"total_harvested"`
	TotalLPYield   string     `json:"total_lp_yield"`
	TotalPoolFees  string     `json:"total_pool_fees"`
	TotalOwnerFees string     `json:"total_owner_fees"`
	LastHarvest    *time.Time `json:"last_harvest,omitempty"`
}

// CycleSummary is the harvester's report for one pass over every farm.
type CycleSummary struct {
	CycleID     uuid.UUID        `json:"cycle_id"`
	CycleNumber int              `json:"cycle_number"`
	StartedAt   time.Time        `json:"started_at"`
	Duration    time.Duration    `json:"duration"`
	Farms       int              `json:"farms"`
	Failed      int              `json:"failed"`
	Receipts    []HarvestReceipt `json:"receipts"`
}
