// Command pluma serves and inspects the voice assistant's tool plugins.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harunnryd/pluma/pkg/pluma"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "pluma",
	Short:         "Tool plugin host for a home voice assistant",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = pluma.Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (defaults to $PLUMA_CONFIG)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)
}

func loadConfig() (pluma.Config, error) {
	path := configPath
	if strings.TrimSpace(path) == "" {
		path = os.Getenv("PLUMA_CONFIG")
	}
	cfg, err := pluma.LoadConfig(path)
	if err != nil {
		return pluma.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// buildQuiet wires a container that logs to stderr so stdout stays clean
// for command output.
func buildQuiet() (*pluma.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := pluma.NewLogger(os.Stderr, quietLevel(cfg.LogLevel), cfg.LogFormat)
	slog.SetDefault(logger)
	return pluma.New(cfg, pluma.Options{Logger: logger})
}

func quietLevel(level string) string {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		return level
	}
	return "warn"
}
