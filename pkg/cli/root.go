// Package cli implements the trafficinspect command-line interface.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/config"
	"github.com/gingofthesouth/AppTrafficInspectorKit/pkg/logging"
)

var (
	cfgPath   string
	logLevel  string
	logFormat string

	buildVersion = "dev"
	buildCommit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "trafficinspect",
	Short: "Capture and stream application HTTP traffic records",
	Long: `trafficinspect reconstructs outgoing HTTP request lifecycles into
records and streams them to a receiver over a length-prefixed byte stream.

Run a receiver with 'trafficinspect receive', then point 'trafficinspect
watch' (or an application embedding the library) at it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// SetBuildInfo stores the build-time version for the version command.
func SetBuildInfo(version, commit string) {
	buildVersion = version
	buildCommit = commit
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("trafficinspect %s (%s)\n", buildVersion, buildCommit)
		},
	})
}

// loadConfig merges the config file (if any) with command-line overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	return logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Format: logging.ParseFormat(cfg.Log.Format),
	})
}
