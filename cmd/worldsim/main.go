// Command worldsim runs a Pantheon world shard: the tick loop, its event
// log, snapshot persistence and the HTTP/WebSocket API.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/pantheon/internal/config"
)

var (
	configPath string
	shardFlag  string
	dbFlag     string
)

var rootCmd = &cobra.Command{
	Use:   "worldsim",
	Short: "Pantheon world shard server",
	Long: `worldsim runs one shard of the Pantheon territory simulation.

Available commands:
  run      Start the tick loop and the HTTP API
  replay   Rebuild the world at a past tick from the event log

Settings come from --config (YAML), then .env, then PANTHEON_* variables,
then command-line flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&shardFlag, "shard", "", "shard id (overrides config)")
	rootCmd.PersistentFlags().StringVar(&dbFlag, "db", "", "SQLite database path (overrides config)")
}

// loadConfig reads the layered config and applies command-line overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if shardFlag != "" {
		cfg.Shard = shardFlag
	}
	if dbFlag != "" {
		cfg.DBPath = dbFlag
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
