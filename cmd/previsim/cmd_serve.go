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

	"github.com/previsim/previsim/services/stubserver"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local stub computation service",
	Long: `Serves a deterministic stand-in for the remote actuarial service:
defaults, lookup tables, calculate, suggestions, apply-suggestion, the
websocket push channel and Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		slog.Info("starting stub computation service", "addr", serveAddr)
		return stubserver.New().Run(serveAddr)
	},
}
