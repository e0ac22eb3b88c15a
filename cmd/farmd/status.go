package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dexponent/farmd/internal/state"
	"github.com/dexponent/farmd/internal/types"
)

var printJSON bool

type farmStatus struct {
	Snapshot types.FarmSnapshot      `json:"snapshot"`
	Yield    *types.FarmYieldSummary `json:"yield,omitempty"`
}

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the bootstrapped farms",
		Long: `Bootstrap the configured farms in memory and print their state.
When DB_HOST is set, the persisted yield summary of each farm is included.`,
		RunE: statusCmd,
	}

	cmd.Flags().BoolVar(&printJSON, "json", false, "output status in JSON format")
	return cmd
}

func statusCmd(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	d, err := bootstrap(ctx)
	if err != nil {
		return err
	}

	dbCfg, enabled, err := dbConfigFromEnv()
	if err != nil {
		return err
	}
	if enabled {
		if err := state.InitDB(dbCfg); err != nil {
			return err
		}
		defer state.CloseDB()
	}

	statuses := make([]farmStatus, 0)
	for _, id := range d.Core.FarmIDs() {
		f, err := d.Core.Farm(id)
		if err != nil {
			return err
		}
		snap, err := f.Snapshot(ctx)
		if err != nil {
			return fmt.Errorf("failed to snapshot farm %d: %w", id, err)
		}
		st := farmStatus{Snapshot: snap}
		if enabled {
			summary, err := state.GetFarmYieldSummary(ctx, id)
			if err != nil {
				return err
			}
			st.Yield = &summary
		}
		statuses = append(statuses, st)
	}

	out := cmd.OutOrStdout()
	if printJSON {
		jsonBytes, err := json.MarshalIndent(statuses, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal status: %w", err)
		}
		fmt.Fprintln(out, string(jsonBytes))
		return nil
	}
	return writeStatusTable(out, statuses)
}

func writeStatusTable(out io.Writer, statuses []farmStatus) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FARM\tCLAIM TOKEN\tTOTAL ASSETS\tTOTAL SHARES\tDEPLOYED\tAVAILABLE\tPOSITIONS\tPAUSED\tHARVESTED")
	for _, s := range statuses {
		harvested := "-"
		if s.Yield != nil {
			harvested = s.Yield.TotalHarvested
		}
		snap := s.Snapshot
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%t\t%s\n",
			snap.FarmID, snap.ClaimToken, snap.TotalAssets, snap.TotalShares,
			snap.Deployed, snap.Available, snap.Positions, snap.Paused, harvested)
	}
	return w.Flush()
}
