package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dexponent/farmd/internal/config"
	"github.com/dexponent/farmd/internal/harvester"
	"github.com/dexponent/farmd/internal/metrics"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/state"
	"github.com/dexponent/farmd/internal/web"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Bootstrap the farms and run the harvester and API",
		RunE:  runCmd,
	}
}

func runCmd(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("farmd starting...")

	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	// --- Optional persistence ---
	var store harvester.Store
	var history web.History
	dbCfg, enabled, err := dbConfigFromEnv()
	if err != nil {
		return err
	}
	if enabled {
		if err := state.InitDB(dbCfg); err != nil {
			return err
		}
		defer state.CloseDB()
		if err := state.EnsureSchema(); err != nil {
			return err
		}
		if err := saveFarmParameters(ctx, d.Core); err != nil {
			return err
		}
		pg := state.PostgresStore{}
		store, history = pg, pg
	} else {
		log.Warn().Msg("DB_HOST not set, snapshots and receipts will not be persisted")
	}

	m := metrics.New()
	h, err := harvester.New(harvester.Config{Core: d.Core, Store: store, Metrics: m})
	if err != nil {
		return err
	}

	webServer := web.NewWebServer(web.Config{
		Port:    config.WebPort,
		Core:    d.Core,
		History: history,
		Cycles:  h,
		Metrics: m,
	})
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting farm API")
		if err := webServer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server failed")
		}
	}()

	log.Info().Str("interval", config.HarvestInterval.String()).Msg("Starting harvester loop")
	h.RunLoop(ctx, config.HarvestInterval)
	log.Info().Msg("farmd stopped")
	return nil
}

// saveFarmParameters records each farm's bootstrapped policy as a new parameter version.
func saveFarmParameters(ctx context.Context, core *protocol.Core) error {
	for _, id := range core.FarmIDs() {
		f, err := core.Farm(id)
		if err != nil {
			return err
		}
		version, err := state.SaveFarmParameters(ctx, id, f.State().Params)
		if err != nil {
			return err
		}
		log.Info().Uint64("farm_id", uint64(id)).Int("version", version).Msg("Farm parameters saved")
	}
	return nil
}
