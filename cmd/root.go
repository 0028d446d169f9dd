// Package cmd provides the formdesk command-line interface.
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	infoColor    = color.New(color.FgCyan)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	outputJSON bool
	configFile string
	noColor    bool
	quiet      bool
)

const defaultTimeout = 30 * time.Second // context timeout for one-shot CLI operations

// NewRootCmd builds the formdesk command tree. Running it without a
// subcommand starts the server.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "formdesk",
		Short: "Contact form intake service with an admin panel",
		Long: `formdesk accepts contact submissions from a public form and serves an
admin panel protected by session cookies, CSRF tokens and login rate limiting.

Configuration is read from config.yaml, .env and FORMDESK_* environment variables.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor {
				color.NoColor = true
			}
			if configFile != "" {
				if _, err := os.Stat(configFile); err != nil {
					return fmt.Errorf("config file %s: %w", configFile, err)
				}
				viper.SetConfigFile(configFile)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file path (default ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "Suppress non-essential output")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newHashPasswordCmd())
	rootCmd.AddCommand(newCheckConfigCmd())
	rootCmd.AddCommand(newShowConfigCmd())

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// outputAsJSON writes v as indented JSON.
func outputAsJSON(w io.Writer, v interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
