// Package metrics exports farm accounting and harvester activity as Prometheus series.
package metrics

import (
	"net/http"
	"strconv"

	sdkmath "cosmossdk.io/math"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/types"
	"github.com/dexponent/farmd/internal/utils"
)

const namespace = "farmd"

// Metrics holds every series farmd exports. Amounts are reported in base units.
type Metrics struct {
	registry *prometheus.Registry

	totalAssets      *prometheus.GaugeVec
	totalShares      *prometheus.GaugeVec
	totalLiquidity   *prometheus.GaugeVec
	pricePerShare    *prometheus.GaugeVec
	available        *prometheus.GaugeVec
	deployed         *prometheus.GaugeVec
	pendingRewards   *prometheus.GaugeVec
	accumulatedYield *prometheus.GaugeVec
	positions        *prometheus.GaugeVec
	paused           *prometheus.GaugeVec

	harvests      *prometheus.CounterVec
	harvested     *prometheus.CounterVec
	rebalanced    *prometheus.CounterVec
	cycles        prometheus.Counter
	cycleDuration prometheus.Histogram

	log zerolog.Logger
}

// New registers every series on a fresh registry, alongside the Go and process collectors.
func New() *Metrics {
	farmGauge := func(name, help string) *prometheus.GaugeVec {
		return prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "farm",
			Name:      name,
			Help:      help,
		}, []string{"farm_id"})
	}

	m := &Metrics{
		registry:         prometheus.NewRegistry(),
		totalAssets:      farmGauge("total_assets", "Assets backing the farm's shares."),
		totalShares:      farmGauge("total_shares", "Claim tokens outstanding."),
		totalLiquidity:   farmGauge("total_liquidity", "Principal currently provided by depositors."),
		pricePerShare:    farmGauge("price_per_share", "Assets per share."),
		available:        farmGauge("available_liquidity", "Assets held in the farm reserve."),
		deployed:         farmGauge("deployed_liquidity", "Assets deployed to the strategy."),
		pendingRewards:   farmGauge("pending_rewards", "Rewards the strategy could harvest now."),
		accumulatedYield: farmGauge("accumulated_yield", "Gross yield harvested since creation."),
		positions:        farmGauge("positions", "Depositor positions."),
		paused:           farmGauge("paused", "1 while the farm is paused."),
		harvests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvester",
			Name:      "harvests_total",
			Help:      "Revenue pulls by outcome.",
		}, []string{"farm_id", "result"}),
		harvested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvester",
			Name:      "harvested_total",
			Help:      "Gross yield pulled by the harvester.",
		}, []string{"farm_id"}),
		rebalanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvester",
			Name:      "rebalanced_total",
			Help:      "Liquidity moved by epoch rebalance steps.",
		}, []string{"farm_id", "direction"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "harvester",
			Name:      "cycles_total",
			Help:      "Completed harvest cycles.",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "harvester",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one harvest cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		log: logger.GetForComponent("metrics"),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.totalAssets, m.totalShares, m.totalLiquidity, m.pricePerShare,
		m.available, m.deployed, m.pendingRewards, m.accumulatedYield, m.positions, m.paused,
		m.harvests, m.harvested, m.rebalanced, m.cycles, m.cycleDuration,
	)
	return m
}

// Registry is the registry the series live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func farmLabel(id types.FarmID) string {
	return strconv.FormatUint(uint64(id), 10)
}

// toFloat converts for display only. A value that cannot be represented is logged and
// reported as zero rather than poisoning the series.
func (m *Metrics) toFloat(v sdkmath.Int, precision int) float64 {
	if v.IsNil() {
		return 0
	}
	f, err := utils.SDKIntToFloat64(v, precision)
	if err != nil {
		m.log.Warn().Err(err).Str("value", v.String()).Msg("Cannot export amount")
		return 0
	}
	return f
}

// ObserveSnapshot sets every farm gauge from snap.
func (m *Metrics) ObserveSnapshot(snap types.FarmSnapshot) {
	id := farmLabel(snap.FarmID)
	m.totalAssets.WithLabelValues(id).Set(m.toFloat(snap.TotalAssets, 0))
	m.totalShares.WithLabelValues(id).Set(m.toFloat(snap.TotalShares, 0))
	m.totalLiquidity.WithLabelValues(id).Set(m.toFloat(snap.TotalLiquidity, 0))
	m.pricePerShare.WithLabelValues(id).Set(m.toFloat(snap.PricePerShare, 18))
	m.available.WithLabelValues(id).Set(m.toFloat(snap.Available, 0))
	m.deployed.WithLabelValues(id).Set(m.toFloat(snap.Deployed, 0))
	m.pendingRewards.WithLabelValues(id).Set(m.toFloat(snap.PendingRewards, 0))
	m.accumulatedYield.WithLabelValues(id).Set(m.toFloat(snap.AccumulatedYield, 0))
	m.positions.WithLabelValues(id).Set(float64(snap.Positions))
	paused := 0.0
	if snap.Paused {
		paused = 1
	}
	m.paused.WithLabelValues(id).Set(paused)
}

// ObserveReceipt counts one farm's harvest outcome and any rebalance step it took.
func (m *Metrics) ObserveReceipt(r types.HarvestReceipt) {
	id := farmLabel(r.FarmID)
	if !r.Success {
		m.harvests.WithLabelValues(id, "failed").Inc()
		return
	}
	m.harvests.WithLabelValues(id, "ok").Inc()
	if amt := m.toFloat(r.Harvest.Harvested, 0); amt > 0 {
		m.harvested.WithLabelValues(id).Add(amt)
	}
	if rb := r.Rebalance; rb != nil && rb.Direction != types.RebalanceNone {
		m.rebalanced.WithLabelValues(id, string(rb.Direction)).Add(m.toFloat(rb.Moved, 0))
	}
}

// ObserveCycle records a finished harvest cycle.
func (m *Metrics) ObserveCycle(c types.CycleSummary) {
	m.cycles.Inc()
	m.cycleDuration.Observe(c.Duration.Seconds())
}
