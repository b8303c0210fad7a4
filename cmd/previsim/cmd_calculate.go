// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/previsim/previsim/pkg/validation"
	"github.com/previsim/previsim/services/compute"
	"github.com/previsim/previsim/services/simulation"
	"github.com/previsim/previsim/services/simulation/datatypes"
)

var paramsPath string

var calculateCmd = &cobra.Command{
	Use:   "calculate",
	Short: "Run a one-shot calculation against the computation service",
	Long: `Fetches the service's default parameter snapshot, overlays the
optional --params YAML file, and prints the calculation result as JSON.`,
	RunE: runCalculate,
}

func runCalculate(cmd *cobra.Command, args []string) error {
	client, err := compute.NewClient(compute.Config{
		BaseURL:        sessionConfig.ComputeURL,
		RequestTimeout: sessionConfig.RequestTimeout,
	})
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	snapshot, err := client.Defaults(ctx)
	if err != nil {
		return fmt.Errorf("fetch defaults: %w", err)
	}

	if paramsPath != "" {
		raw, err := os.ReadFile(paramsPath)
		if err != nil {
			return fmt.Errorf("read params file: %w", err)
		}
		// Unmarshal onto the defaults so unspecified fields keep their
		// server-provided values.
		if err := yaml.Unmarshal(raw, snapshot); err != nil {
			return fmt.Errorf("parse params file: %w", err)
		}
	}

	code, err := validation.SanitizeTableCode(snapshot.MortalityTable)
	if err != nil {
		return err
	}
	snapshot.MortalityTable = code

	normalized := datatypes.Normalize(*snapshot)
	if err := normalized.Validate(); err != nil {
		return fmt.Errorf("invalid parameters: %w", err)
	}

	result, err := client.Calculate(ctx, normalized)
	if err != nil {
		return fmt.Errorf("calculate: %w", err)
	}
	if result == nil {
		return fmt.Errorf("service deferred the result to the push channel; use 'previsim watch' instead")
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	fmt.Printf("deficit/surplus: %s\n", simulation.FormatBRL(result.DeficitSurplus))
	return nil
}
