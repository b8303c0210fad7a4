// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/previsim/previsim/services/compute"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "List the selectable actuarial reference tables",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := compute.NewClient(compute.Config{
			BaseURL:        sessionConfig.ComputeURL,
			RequestTimeout: sessionConfig.RequestTimeout,
		})
		if err != nil {
			return err
		}
		tables, err := client.LookupTables(cmd.Context())
		if err != nil {
			return fmt.Errorf("fetch lookup tables: %w", err)
		}

		fmt.Printf("%-14s %-32s %s\n", "CODE", "NAME", "APPROVED")
		for _, t := range tables {
			approved := "no"
			if t.Approved {
				approved = "yes"
			}
			fmt.Printf("%-14s %-32s %s\n", t.Code, t.DisplayName, approved)
		}
		return nil
	},
}
