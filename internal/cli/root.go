// Package cli defines the chatdb command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"chatdb/internal/app"
	"chatdb/pkg/config"
	"chatdb/pkg/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "chatdb",
	Short: "Chat rooms on a transactional ordered key-value store",
	Long: `chatdb joins multi-user chat rooms persisted in an embedded
transactional key-value store. Messages form a time-ordered log; clients
wait for new messages through key watches instead of polling.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default ./config.yaml)")
	rootCmd.PersistentFlags().String("db", "", "store directory (overrides config)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
}

// setup resolves the effective config from flags, env, and file, then
// initializes logging and opens the app.
func setup(cmd *cobra.Command) (*app.App, *config.Config, error) {
	cfgPath, _ := cmd.Flags().GetString("config")
	explicit := cmd.Flags().Changed("config")
	if cfgPath == "" {
		cfgPath = "./config.yaml"
	}
	cfg, source, err := config.LoadEffective(cfgPath, explicit)
	if err != nil {
		return nil, nil, err
	}
	if db, _ := cmd.Flags().GetString("db"); db != "" {
		cfg.Storage.DBPath = db
	}
	level := cfg.Logging.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	logger.Init(level, cfg.Logging.Format)

	a, err := app.New(cfg, source, version)
	if err != nil {
		return nil, nil, err
	}
	return a, cfg, nil
}
