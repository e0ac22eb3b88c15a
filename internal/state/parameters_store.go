// ./internal/state/parameters_store.go
package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dexponent/farmd/internal/types"
)

// SaveFarmParameters records params as the new active version for farmID and returns
// that version. Earlier versions stay in the table, inactive.
func SaveFarmParameters(ctx context.Context, farmID types.FarmID, params types.FarmParams) (version int, err error) {
	if DB == nil {
		return 0, ErrNotInitialized
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal farm parameters: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) + 1 FROM farm_parameters WHERE farm_id = $1;`,
		int64(farmID),
	).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to read parameter version for farm %d: %w", farmID, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE farm_parameters SET is_active = FALSE WHERE farm_id = $1 AND is_active = TRUE;`,
		int64(farmID),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate parameters for farm %d: %w", farmID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO farm_parameters (farm_id, version, is_active, params) VALUES ($1, $2, TRUE, $3);`,
		int64(farmID), version, raw,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert parameters for farm %d: %w", farmID, err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.Info().
		Uint64("farm_id", uint64(farmID)).
		Int("version", version).
		Msg("Saved farm parameters")
	return version, nil
}

// LoadActiveFarmParameters returns the active parameters of farmID and their version.
func LoadActiveFarmParameters(ctx context.Context, farmID types.FarmID) (*types.FarmParams, int, error) {
	if DB == nil {
		return nil, 0, ErrNotInitialized
	}

	query := `
		SELECT version, params
		FROM farm_parameters
		WHERE farm_id = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`

	var (
		version int
		raw     []byte
	)
	err := DB.QueryRowContext(ctx, query, int64(farmID)).Scan(&version, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, fmt.Errorf("no active parameters found for farm %d", farmID)
		}
		return nil, 0, fmt.Errorf("failed to load parameters for farm %d: %w", farmID, err)
	}

	var p types.FarmParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, 0, fmt.Errorf("failed to unmarshal parameters for farm %d: %w", farmID, err)
	}
	return &p, version, nil
}
