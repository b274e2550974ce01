/*
Package commands holds the cobra command tree of the tempchat binary.

Running the binary without a subcommand starts the server, so existing deployments that
invoke it bare keep working.
*/
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tempchat/internal/configs"
	"tempchat/internal/pkg/logx"
)

var rootCmd = &cobra.Command{
	Use:   "tempchat",
	Short: "TempChat ephemeral chat server",
	Long: `TempChat is a single-room realtime chat server whose messages expire
after a chosen time or when their author disconnects.

Available commands:
  serve      Start the HTTP and WebSocket server (default)
  migrate    Run PostgreSQL schema migrations

Use "tempchat [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
	RunE:         runServe,
}

// Execute executes the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the configuration and initializes the global logger from it.
func loadConfig() (*configs.AppConfig, error) {
	cfg, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment())
	return cfg, nil
}
