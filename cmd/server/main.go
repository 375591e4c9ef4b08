package main

import (
	"fmt"
	"log"
	"os"

	"github.com/akshat-collab/code-battle-arena/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "arena",
	Short:        "Code battle arena runs timed multi-player coding competitions.",
	SilenceUsage: true,
}

func newLogger() *log.Logger {
	return log.New(os.Stderr, "[arena] ", log.LstdFlags)
}

// loadConfig reads .env and the environment, then lets set flags override
// the result before validating it.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(".env")
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("addr") {
		cfg.ServerAddr, _ = flags.GetString("addr")
	}
	if flags.Changed("dsn") {
		cfg.DatabaseDSN, _ = flags.GetString("dsn")
	}
	if flags.Changed("store") {
		cfg.Store, _ = flags.GetString("store")
	}
	if flags.Changed("signing-key") {
		cfg.SigningSecret, _ = flags.GetString("signing-key")
	}
	if flags.Changed("allowed-origins") {
		cfg.AllowedOrigins, _ = flags.GetStringSlice("allowed-origins")
	}
	if flags.Changed("redis-addr") {
		cfg.Redis.Addr, _ = flags.GetString("redis-addr")
	}
	if flags.Changed("judge-url") {
		cfg.JudgeURL, _ = flags.GetString("judge-url")
	}
	if flags.Changed("migrate") {
		cfg.Migrate, _ = flags.GetBool("migrate")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
