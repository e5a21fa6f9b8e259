package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pevans/waybackfed/config"
	"github.com/spf13/cobra"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "waybackfed",
		Short:         "Archive news articles found through Wayback Machine snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.load()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", getEnv("WAYBACKFED_CONFIG", config.DefaultConfigPath), "sites configuration file")
	flags.StringVar(&a.dataDir, "data-dir", "", "data directory (overrides config and WAYBACKFED_DATA_DIR)")
	flags.StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.BoolVar(&a.noLedger, "no-ledger", false, "don't record stage runs in the ledger")

	rootCmd.AddCommand(
		newStageCmd("discover", "Find one archived snapshot per day for each seed", []string{"discover"}, a),
		newStageCmd("extract", "Extract and clean article links from pending snapshots", []string{"extract"}, a),
		newStageCmd("fetch", "Fetch and normalize articles for pending links", []string{"fetch"}, a),
		newRunCmd(a),
		newStatusCmd(a),
		newResetCmd(a),
		newServeCmd(a),
	)

	return rootCmd
}
