// Package cmd implements the csv-attest CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/edgelesssys/go-csv-qpl/internal/config"
	"github.com/edgelesssys/go-csv-qpl/internal/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var (
	// Global flags
	configPath   string
	logLevel     string
	outputFormat string

	// Set up before every command
	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "csv-attest",
	Short: "Hygon CSV attestation tool",
	Long: `csv-attest requests and verifies Hygon CSV attestation reports.

On the host, it reads the platform status, the chip id, and the platform certificates.
In a guest, it requests attestation reports. Anywhere, it verifies them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "help" {
			return nil
		}

		cfg = config.Default()
		if configPath != "" {
			var err error
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level = logLevel
		}

		var err error
		logger, err = logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return fmt.Errorf("creating logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "yaml", "Output format: json, yaml")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// formatOutput writes data in the format selected with the --output flag.
func formatOutput(w io.Writer, data any) error {
	switch outputFormat {
	case "json":
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(data)
	case "yaml":
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(data); err != nil {
			return err
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unknown output format %q", outputFormat)
	}
}
