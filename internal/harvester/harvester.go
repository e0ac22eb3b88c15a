// Package harvester runs the periodic maintenance cycle over every farm: pull revenue,
// advance an active rebalancing epoch by one step, then snapshot and report.
package harvester

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/metrics"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/types"
)

// Store persists cycle output. state.PostgresStore implements it.
type Store interface {
	NextCycle(ctx context.Context) (int, error)
	SaveFarmSnapshot(ctx context.Context, cycleID uuid.UUID, cycleNumber int, snap types.FarmSnapshot) error
	SaveHarvestReceipt(ctx context.Context, r types.HarvestReceipt) error
}

// Config holds the dependencies of a Harvester. Store and Metrics are optional.
type Config struct {
	Core    *protocol.Core
	Store   Store
	Metrics *metrics.Metrics
	Now     func() time.Time
}

// Harvester drives every farm registered with the protocol core.
type Harvester struct {
	core    *protocol.Core
	store   Store
	metrics *metrics.Metrics
	now     func() time.Time
	logger  zerolog.Logger

	mu          sync.Mutex
	localCycles int
	last        *types.CycleSummary
}

// New creates a Harvester.
func New(cfg Config) (*Harvester, error) {
	if cfg.Core == nil {
		return nil, errors.New("protocol core cannot be nil")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Harvester{
		core:    cfg.Core,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		now:     now,
		logger:  logger.GetForComponent("harvester"),
	}, nil
}

// RunLoop runs a cycle immediately and then once per interval until ctx is done.
func (h *Harvester) RunLoop(ctx context.Context, interval time.Duration) {
	h.logger.Info().Dur("interval", interval).Msg("Starting harvester loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.RunCycle(ctx)
	for {
		select {
		case <-ctx.Done():
			h.logger.Info().Msg("Harvester loop stopped due to context cancellation")
			return
		case <-ticker.C:
			h.RunCycle(ctx)
		}
	}
}

// RunCycle processes every farm once. A failure on one farm is recorded in its receipt
// and never stops the others.
func (h *Harvester) RunCycle(ctx context.Context) types.CycleSummary {
	started := time.Now()
	summary := types.CycleSummary{
		CycleID:     uuid.New(),
		CycleNumber: h.nextCycle(ctx),
		StartedAt:   h.now(),
	}
	cycleLogger := h.logger.With().
		Str("cycle_id", summary.CycleID.String()).
		Int("cycle", summary.CycleNumber).
		Logger()
	cycleLogger.Info().Msg("--- Starting harvest cycle ---")

	for _, id := range h.core.FarmIDs() {
		if ctx.Err() != nil {
			cycleLogger.Warn().Msg("Cycle interrupted by context cancellation")
			break
		}
		receipt := h.processFarm(ctx, summary, id, cycleLogger)
		summary.Farms++
		if !receipt.Success {
			summary.Failed++
		}
		summary.Receipts = append(summary.Receipts, receipt)
	}

	summary.Duration = time.Since(started)
	if h.metrics != nil {
		h.metrics.ObserveCycle(summary)
	}
	h.mu.Lock()
	last := summary
	h.last = &last
	h.mu.Unlock()

	cycleLogger.Info().
		Int("farms", summary.Farms).
		Int("failed", summary.Failed).
		Str("duration", summary.Duration.String()).
		Msg("--- Harvest cycle complete ---")
	return summary
}

// LastCycle returns the most recent cycle summary, if any cycle has run.
func (h *Harvester) LastCycle() (types.CycleSummary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return types.CycleSummary{}, false
	}
	return *h.last, true
}

// nextCycle increments the persistent counter, falling back to a local one when there is
// no store or it is unreachable.
func (h *Harvester) nextCycle(ctx context.Context) int {
	h.mu.Lock()
	h.localCycles++
	local := h.localCycles
	h.mu.Unlock()

	if h.store == nil {
		return local
	}
	n, err := h.store.NextCycle(ctx)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to increment cycle number, using local counter")
		return local
	}
	return n
}

func (h *Harvester) processFarm(ctx context.Context, cycle types.CycleSummary, id types.FarmID, cycleLogger zerolog.Logger) types.HarvestReceipt {
	farmLogger := cycleLogger.With().Uint64("farm_id", uint64(id)).Logger()
	receipt := types.HarvestReceipt{
		ReceiptID:   uuid.New(),
		CycleID:     cycle.CycleID,
		CycleNumber: cycle.CycleNumber,
		FarmID:      id,
		Timestamp:   h.now(),
		Success:     true,
	}

	farm, err := h.core.Farm(id)
	if err != nil {
		receipt.Success = false
		receipt.Message = err.Error()
		h.finish(ctx, receipt, farmLogger)
		return receipt
	}
	st := farm.State()
	receipt.Harvest = types.NewEmptyHarvestResult(id, st.AccYieldPerShare)

	var failures []string
	if st.Paused {
		farmLogger.Info().Msg("Farm is paused, snapshot only")
	} else {
		res, err := h.core.PullFarmRevenue(ctx, id)
		if err != nil {
			failures = append(failures, fmt.Sprintf("pull revenue: %v", err))
			farmLogger.Error().Err(err).Msg("Revenue pull failed")
		} else {
			receipt.Harvest = res
			if res.Harvested.IsPositive() {
				farmLogger.Info().
					Str("harvested", res.Harvested.String()).
					Str("lp_yield", res.LPYield.String()).
					Msg("Revenue pulled")
			}
		}

		if farm.State().Epoch != nil {
			rb, err := h.core.RebalanceFarm(ctx, id)
			if err != nil {
				failures = append(failures, fmt.Sprintf("rebalance: %v", err))
				farmLogger.Error().Err(err).Msg("Epoch rebalance step failed")
			} else {
				receipt.Rebalance = &rb
				farmLogger.Info().
					Str("direction", string(rb.Direction)).
					Str("moved", rb.Moved.String()).
					Str("remaining", rb.Remaining.String()).
					Bool("converged", rb.Converged).
					Bool("expired", rb.Expired).
					Msg("Epoch advanced")
			}
		}
	}

	snap, err := farm.Snapshot(ctx)
	if err != nil {
		failures = append(failures, fmt.Sprintf("snapshot: %v", err))
		farmLogger.Error().Err(err).Msg("Snapshot failed")
	} else {
		if h.metrics != nil {
			h.metrics.ObserveSnapshot(snap)
		}
		if h.store != nil {
			if err := h.store.SaveFarmSnapshot(ctx, cycle.CycleID, cycle.CycleNumber, snap); err != nil {
				farmLogger.Error().Err(err).Msg("Failed to save farm snapshot")
			}
		}
	}

	if len(failures) > 0 {
		receipt.Success = false
		receipt.Message = strings.Join(failures, "; ")
	}
	h.finish(ctx, receipt, farmLogger)
	return receipt
}

func (h *Harvester) finish(ctx context.Context, receipt types.HarvestReceipt, farmLogger zerolog.Logger) {
	if h.metrics != nil {
		h.metrics.ObserveReceipt(receipt)
	}
	if h.store != nil {
		if err := h.store.SaveHarvestReceipt(ctx, receipt); err != nil {
			farmLogger.Error().Err(err).Msg("Failed to save harvest receipt")
		}
	}
}
