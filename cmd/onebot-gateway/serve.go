// ABOUTME: serve, init and token subcommands
// ABOUTME: serve prints the banner and runs the gateway with the echo agent until interrupted

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/onebot-gateway/internal/agent"
	"github.com/2389/onebot-gateway/internal/auth"
	"github.com/2389/onebot-gateway/internal/config"
	"github.com/2389/onebot-gateway/internal/gateway"
)

func serveCmd() *cobra.Command {
	var prefixes []string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			ag, err := echoBackend(prefixes)
			if err != nil {
				return err
			}
			return runServe(cmd, ag)
		},
	}
	cmd.Flags().StringSliceVar(&prefixes, "echo-prefix", nil, "text prepended to echo replies; repeat to rotate turns across several echo backends")
	return cmd
}

// echoBackend builds the serve agent: a plain echo, or a round-robin over one
// prefixed echo per prefix.
func echoBackend(prefixes []string) (agent.Agent, error) {
	if len(prefixes) <= 1 {
		e := &agent.EchoAgent{}
		if len(prefixes) == 1 {
			e.Prefix = prefixes[0]
		}
		return e, nil
	}
	backends := make([]agent.Agent, 0, len(prefixes))
	for _, p := range prefixes {
		backends = append(backends, &agent.EchoAgent{Prefix: p})
	}
	return agent.NewRoundRobin(backends...)
}

func runServe(cmd *cobra.Command, ag agent.Agent) error {
	configPath := getConfigPath()

	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stdout)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("OneBot:    ws://%s\n", cfg.Server.ListenAddr())
	green.Print("    ▶ ")
	if cfg.Server.AdminEnabled() {
		fmt.Printf("Admin:     http://%s\n", cfg.Server.AdminAddr)
	} else {
		fmt.Print("Admin:     ")
		gray.Println("disabled")
	}
	if cfg.Server.AccessToken == "" && cfg.Auth.JWTSecret == "" {
		yellow.Print("    ! ")
		fmt.Println("no access token configured, any bridge may connect")
	}
	fmt.Println()

	logger.Info("starting onebot-gateway",
		"config", configPath,
		"listen_addr", cfg.Server.ListenAddr(),
		"admin_addr", cfg.Server.AdminAddr,
	)

	gw, err := gateway.New(cfg, logger, ag)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(cmd.Context())
}

func initCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a sample config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getConfigPath()
			if err := writeSampleConfig(path, force); err != nil {
				return err
			}
			color.New(color.FgGreen).Print("✓ ")
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

// writeSampleConfig writes config.Sample to path, refusing to replace an
// existing file unless force is set.
func writeSampleConfig(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
		} else if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("checking config path: %w", err)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.Sample), 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

func tokenCmd() *cobra.Command {
	var expires time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Sign a bridge or admin token with auth.jwt_secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(getConfigPath())
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			token, err := signToken(cfg.Auth.JWTSecret, args[0], expires)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&expires, "expires", 0, "token lifetime (0 never expires)")
	return cmd
}

func signToken(secret, subject string, expires time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("auth.jwt_secret is not configured")
	}
	verifier, err := auth.NewJWTVerifier([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("creating verifier: %w", err)
	}
	token, err := verifier.Generate(subject, expires)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}
