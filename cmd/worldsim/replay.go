package main

import (
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"github.com/talgya/pantheon/internal/logging"
	"github.com/talgya/pantheon/internal/persistence"
	"github.com/talgya/pantheon/internal/replay"
)

var replayTick uint64

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Rebuild the world at a past tick from the event log",
	Long: `replay folds the shard's event log up to --tick and prints the
resulting state digest with a per-faction summary. It only reads the
database and can run alongside a live server.

Examples:
  worldsim replay --tick 1200
  worldsim replay -c shard.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logging.Setup(cfg.LogFormat, cfg.LogLevel)

		db, err := persistence.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()

		to := replayTick
		if to == 0 {
			to = math.MaxUint64
		}
		events, err := replay.Load(cmd.Context(), db.Events(), cfg.Shard, 0, to)
		if err != nil {
			return err
		}
		if len(events) == 0 {
			return fmt.Errorf("shard %q has no events", cfg.Shard)
		}
		st, skipped := replay.Rebuild(cfg.Shard, events, min(to, replay.EndTick(events)))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "shard %s  tick %d  events %d  skipped %d\n", st.Shard, st.Tick, len(events), skipped)
		fmt.Fprintf(out, "digest %s\n\n", st.Digest())
		for _, f := range st.SortedFactions() {
			var pop int
			for _, tid := range f.Territories {
				if t := st.Territory(tid); t != nil {
					pop += t.Population
				}
			}
			fmt.Fprintf(out, "%-24s territories %3d  population %6d  power %7.1f  reputation %5.1f\n",
				f.Name, len(f.Territories), pop, f.DivinePower, f.Reputation)
		}
		active := 0
		for _, s := range st.Sieges {
			if s.Active() {
				active++
			}
		}
		fmt.Fprintf(out, "\nsieges %d (%d active)  relations %d\n", len(st.Sieges), active, len(st.Relations))
		return nil
	},
}

func init() {
	replayCmd.Flags().Uint64VarP(&replayTick, "tick", "t", 0, "tick to rebuild (0 = latest)")
	rootCmd.AddCommand(replayCmd)
}
