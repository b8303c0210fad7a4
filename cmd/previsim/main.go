// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"os"

	"github.com/previsim/previsim/pkg/logging"
)

func main() {
	logger := logging.New(logging.Config{
		Level:   logLevelFromEnv(),
		Service: "cli",
	})
	defer logger.Close()
	// Route the package-level slog calls in the services through the same
	// handler the CLI uses.
	installDefaultLogger(logger)

	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func logLevelFromEnv() logging.Level {
	if os.Getenv("PREVISIM_DEBUG") != "" {
		return logging.LevelDebug
	}
	return logging.LevelInfo
}
