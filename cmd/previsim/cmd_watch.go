// Copyright (C) 2026 Previsim (eng@previsim.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/previsim/previsim/services/pushchannel"
	"github.com/previsim/previsim/services/simulation"
	"github.com/previsim/previsim/services/simulation/datatypes"
	"github.com/previsim/previsim/services/simulation/observability"
)

var watchCmd = &cobra.Command{
	Use:   "watch [parameter-file.yaml]",
	Short: "Watch a parameter file and recalculate reactively on every save",
	Long: `Seeds a session from the service defaults, then watches the given
YAML parameter file. Every save merges into the session and drives the
debounced recalculation pipeline; results and push-channel state are
logged as they arrive.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	paramFile, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
	session, err := simulation.NewSession(sessionConfig, metrics)
	if err != nil {
		return err
	}
	if err := session.Start(ctx); err != nil {
		return err
	}
	defer session.Close()

	session.Store().OnResult(func(res datatypes.ResultSnapshot) {
		slog.Info("result",
			"monthly_benefit", simulation.FormatBRL(res.MonthlyBenefit),
			"deficit_surplus", simulation.FormatBRL(res.DeficitSurplus),
			"replacement_rate", fmt.Sprintf("%.1f%%", res.AchievedReplacementRate),
			"stale", res.Stale,
		)
	})
	session.OnPushStateChange(func(prev, next pushchannel.State, attempt int) {
		slog.Info("push channel state", "from", prev.String(), "to", next.String(), "attempt", attempt)
	})

	if err := loadParamFile(session, paramFile); err != nil {
		slog.Warn("initial parameter load failed, using service defaults", "error", err)
	}

	// Watch the parent directory: editors typically rename a temp file over
	// the original, which drops the watch on the file itself.
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(paramFile)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(paramFile), err)
	}

	slog.Info("watching parameter file", "path", paramFile)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Name != paramFile {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := loadParamFile(session, paramFile); err != nil {
					slog.Warn("parameter file rejected", "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				slog.Warn("watcher error", "error", err)
			}
		}
	})
	return group.Wait()
}

// loadParamFile overlays the file onto the session's current snapshot and
// installs the result. The dispatcher's fingerprint check absorbs no-op
// saves, so every readable file state can be pushed through unconditionally.
func loadParamFile(session *simulation.Session, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	next := session.Store().Current()
	if err := yaml.Unmarshal(raw, &next); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	session.Replace(next)
	return nil
}
