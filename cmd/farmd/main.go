package main

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dexponent/farmd/internal/config"
	"github.com/dexponent/farmd/internal/logger"
	"github.com/dexponent/farmd/internal/protocol"
	"github.com/dexponent/farmd/internal/state"
)

// main is the entry point for the farm daemon.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "farmd",
		Short: "Share-based liquidity farm engine",
		Long: `farmd brings up the farms described in FARMD_FARMS_FILE against the
address book of FARMD_NETWORK, then harvests them on a fixed interval.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := config.LoadConfig(); err != nil {
				return err
			}
			return logger.Initialize(config.LogLevel, config.LogFile)
		},
	}

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

// bootstrap loads the address book and farms file and creates every farm.
func bootstrap(ctx context.Context) (*protocol.Deployment, error) {
	book, err := config.LoadAddressBook(config.DeploymentDir, config.Network)
	if err != nil {
		return nil, err
	}
	spec, err := config.LoadFarmsFile(config.FarmsFile)
	if err != nil {
		return nil, err
	}
	d, err := protocol.Bootstrap(ctx, spec, book, time.Now)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("network", config.Network).
		Int("farms", len(d.Core.FarmIDs())).
		Msg("Protocol bootstrapped")
	return d, nil
}

// dbConfigFromEnv returns the database settings, or false when DB_HOST is unset.
func dbConfigFromEnv() (state.DBConfig, bool, error) {
	host := os.Getenv("DB_HOST")
	if host == "" {
		return state.DBConfig{}, false, nil
	}
	port, err := config.DBPort()
	if err != nil {
		return state.DBConfig{}, false, err
	}
	sslMode := os.Getenv("DB_SSLMODE")
	if sslMode == "" {
		sslMode = "disable"
	}
	return state.DBConfig{
		Host: host, Port: port,
		User: os.Getenv("DB_USER"), Password: os.Getenv("DB_PASSWORD"),
		DBName: os.Getenv("DB_NAME"), SSLMode: sslMode,
	}, true, nil
}
