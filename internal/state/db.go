// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

// Amounts are base-unit integers up to 2^256, so they are stored as NUMERIC(78, 0).
const schemaSQL = `
	CREATE TABLE IF NOT EXISTS farm_parameters (
		params_id SERIAL PRIMARY KEY,
		farm_id BIGINT NOT NULL,
		version INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE,
		activated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		params JSONB NOT NULL,
		CONSTRAINT uq_farm_parameters_farm_version UNIQUE (farm_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_farm_parameters_farm_active ON farm_parameters(farm_id, is_active);

	CREATE TABLE IF NOT EXISTS farm_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number INTEGER NOT NULL,
		farm_id BIGINT NOT NULL,
		snapshot_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		total_liquidity NUMERIC(78, 0) NOT NULL,
		total_assets NUMERIC(78, 0) NOT NULL,
		total_shares NUMERIC(78, 0) NOT NULL,
		price_per_share NUMERIC(78, 0) NOT NULL,
		available NUMERIC(78, 0) NOT NULL,
		deployed NUMERIC(78, 0) NOT NULL,
		accumulated_yield NUMERIC(78, 0) NOT NULL,
		paused BOOLEAN NOT NULL DEFAULT FALSE,
		snapshot JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_farm_snapshots_farm_timestamp ON farm_snapshots(farm_id, snapshot_timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_farm_snapshots_cycle ON farm_snapshots(cycle_number DESC);

	CREATE TABLE IF NOT EXISTS harvest_receipts (
		receipt_id UUID PRIMARY KEY,
		cycle_id UUID NOT NULL,
		cycle_number INTEGER NOT NULL,
		farm_id BIGINT NOT NULL,
		harvest_timestamp TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		success BOOLEAN NOT NULL,
		message TEXT,
		harvested NUMERIC(78, 0) NOT NULL DEFAULT 0,
		lp_yield NUMERIC(78, 0) NOT NULL DEFAULT 0,
		pool_fee NUMERIC(78, 0) NOT NULL DEFAULT 0,
		owner_fee NUMERIC(78, 0) NOT NULL DEFAULT 0,
		rebalance JSONB
	);
	CREATE INDEX IF NOT EXISTS idx_harvest_receipts_farm_timestamp ON harvest_receipts(farm_id, harvest_timestamp DESC);

	-- Cycle counter table for persistent global cycle tracking
	CREATE TABLE IF NOT EXISTS cycle_counter (
		id INTEGER PRIMARY KEY DEFAULT 1,
		current_cycle INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		CONSTRAINT single_row_check CHECK (id = 1)
	);

	-- Insert initial row if it doesn't exist
	INSERT INTO cycle_counter (id, current_cycle)
	VALUES (1, 0)
	ON CONFLICT (id) DO NOTHING;
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured.")
	return nil
}

// DropSchema removes every farmd table. Used by scripts/reset_db.go.
func DropSchema() error {
	if DB == nil {
		return ErrNotInitialized
	}
	dropSQL := `
		DROP TABLE IF EXISTS harvest_receipts CASCADE;
		DROP TABLE IF EXISTS farm_snapshots CASCADE;
		DROP TABLE IF EXISTS farm_parameters CASCADE;
		DROP TABLE IF EXISTS cycle_counter CASCADE;
	`
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("All farmd tables dropped")
	return nil
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	// Use a short timeout context for health checks
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
