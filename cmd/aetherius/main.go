package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/AetheriusMC/aetherius/pkg/config"
	"github.com/AetheriusMC/aetherius/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "aetherius",
	Short: "Aetherius - sandbox game server management engine",
	Long: `Aetherius supervises a sandbox game server process and wraps it with
a persistent console, a command pipeline, an event bus, and modular
components, delivered as a single binary.

Run 'aetherius start' to bring the engine up, then attach from any
terminal with 'aetherius console'.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Aetherius version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "aetherius.yaml", "Path to the engine configuration")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(cmdCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(componentCmd)
	rootCmd.AddCommand(pluginCmd)
	rootCmd.AddCommand(systemCmd)
}

// loadConfig reads the config (defaults when the file is absent) and
// initialises logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      cfg.Log.Level,
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}
