// ABOUTME: Entry point for onebot-gateway, the OneBot v11 reverse WebSocket server
// ABOUTME: Builds the cobra command tree and resolves the config file location

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/2389/onebot-gateway/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                  _           _
  ___  _ __   ___| |__   ___ | |_       __ _  __ _| |_ _____      ____ _ _   _
 / _ \| '_ \ / _ \ '_ \ / _ \| __|____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| (_) | | | |  __/ |_) | (_) | ||_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
 \___/|_| |_|\___|_.__/ \___/ \__|     \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                       |___/                             |___/
`

// cfgFile is the --config flag value.
var cfgFile string

// getConfigPath returns the path to the gateway config file.
// Priority: --config flag > ONEBOT_GATEWAY_CONFIG > XDG_CONFIG_HOME > ~/.config
func getConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultPath()
}

func main() {
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd configures the root command with all subcommands and flags.
func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "onebot-gateway",
		Short: "OneBot v11 reverse WebSocket gateway",
		Long: `onebot-gateway accepts reverse WebSocket connections from OneBot v11 bridges,
routes QQ messages to an agent one turn per session at a time and exposes a small
admin API for inspection.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/onebot-gateway/gateway.yaml)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(healthCmd())
	rootCmd.AddCommand(connectionsCmd())
	rootCmd.AddCommand(sessionsCmd())
	rootCmd.AddCommand(tokenCmd())

	return rootCmd
}
