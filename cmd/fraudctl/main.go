// FraudGuard - Transaction fraud scoring with explainable verdicts.
// Copyright (c) 2025 opensource.finance
// Licensed under the Apache License 2.0

// Command fraudctl inspects fraud history and exercises a running
// FraudGuard API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/fraudguard/internal/config"
	"github.com/opensource-finance/fraudguard/internal/domain"
)

// Version information (set via ldflags)
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fraudctl",
		Short:         "fraudctl - FraudGuard operator tool",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", defaultConfigPath(), "Path to the FraudGuard config file")
	root.PersistentFlags().String("url", "http://localhost:8000", "FraudGuard API base URL")

	root.AddCommand(historyCmd())
	root.AddCommand(predictCmd())
	root.AddCommand(benchCmd())

	return root
}

func defaultConfigPath() string {
	if p := os.Getenv("FRAUDGUARD_CONFIG"); p != "" {
		return p
	}
	return "configs/config.yaml"
}

func loadConfig(cmd *cobra.Command) (*domain.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	config.SetupLogging(domain.LoggingConfig{Level: "warn", Format: "text"}, cmd.ErrOrStderr())
	return cfg, nil
}

func baseURL(cmd *cobra.Command) string {
	u, _ := cmd.Flags().GetString("url")
	return u
}
