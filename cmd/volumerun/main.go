package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/sawpanic/volumerun/internal/config"
)

const (
	appName = "VolumeRun"
	version = "v2.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339

	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "volumerun",
		Short:   "Send-volume optimizer for creator pages",
		Version: version,
		Long: `VolumeRun computes per-creator daily send volumes from performance scores,
fan count and page type, then caps them with diminishing-returns elasticity,
spreads them across the week and checks caption inventory.

Saved weekly predictions are measured against actual revenue once the week
has closed.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			jsonLogs, _ := cmd.Flags().GetBool("log-json")
			setupLogging(level, jsonLogs)
		},
	}

	addGlobalFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(
		newCalculateCmd(),
		newMeasureCmd(),
		newAccuracyCmd(),
		newScheduleCmd(),
		newMonitorCmd(),
	)
	return rootCmd
}

func addGlobalFlags(fs *pflag.FlagSet) {
	fs.String("config", "config/volumerun.yaml", "Path to the YAML configuration file")
	fs.String("log-level", "", "Log level (debug|info|warn|error), overrides config")
	fs.Bool("log-json", false, "Force JSON logs even on a terminal")
}

// setupLogging picks a console writer on a TTY and JSON otherwise
func setupLogging(level string, forceJSON bool) {
	if level == "" {
		level = "info"
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if !forceJSON && term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// loadConfig reads and validates the configuration named by --config. The
// config's log section applies unless a flag overrides it.
func loadConfig(cmd *cobra.Command) (*config.AppConfig, error) {
	path, _ := cmd.Flags().GetString("config")

	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cmd.Flags().GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	jsonLogs, _ := cmd.Flags().GetBool("log-json")
	setupLogging(level, jsonLogs || cfg.Log.JSON)

	log.Debug().Str("config", path).Str("app", appName).Str("version", version).Msg("Configuration loaded")
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
