// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/previsim/previsim/pkg/logging"
	"github.com/previsim/previsim/services/simulation"
)

// --- Global Command Variables ---
var (
	configPath string
	computeURL string
	pushURL    string

	sessionConfig simulation.SessionConfig

	rootCmd = &cobra.Command{
		Use:   "previsim",
		Short: "A cli for the Previsim pension simulation orchestrator",
		Long: `Previsim keeps an editable simulation parameter set synchronized
with the remote actuarial computation service, coalescing edits into
single recalculations and surfacing progress over the push channel.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := simulation.LoadSessionConfig(configPath)
			if err != nil {
				return err
			}
			if computeURL != "" {
				cfg.ComputeURL = computeURL
			}
			if pushURL != "" {
				cfg.PushURL = pushURL
			}
			sessionConfig = cfg
			return nil
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&computeURL, "compute-url", "", "computation service URL override")
	rootCmd.PersistentFlags().StringVar(&pushURL, "push-url", "", "push channel URL override")

	calculateCmd.Flags().StringVar(&paramsPath, "params", "", "YAML file with parameter overrides")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8600", "listen address for the stub service")

	rootCmd.AddCommand(calculateCmd)
	rootCmd.AddCommand(tablesCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(serveCmd)
}

// installDefaultLogger makes the CLI logger the process-wide slog default.
func installDefaultLogger(logger *logging.Logger) {
	slog.SetDefault(logger.Slog())
}
