// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/statflow/statflow/internal/aggregator"
	"github.com/statflow/statflow/internal/search"
)

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Provision the search cluster",
		Long: `Register the index templates for raw events and rollups and create
the bookmark index. Run once against a fresh cluster before the first
daemon starts; rerunning is harmless.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, namer, err := a.openSearch()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			templates, err := search.NewTemplateManager(engine, namer)
			if err != nil {
				return err
			}
			if err := templates.PutAll(ctx); err != nil {
				return fmt.Errorf("put index templates: %w", err)
			}
			if err := aggregator.EnsureBookmarkIndex(ctx, engine, namer.BookmarkIndex()); err != nil {
				return fmt.Errorf("create bookmark index: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Initialized search cluster: %d index templates, bookmark index %s\n",
				len(templates.Names()), namer.BookmarkIndex())
			return nil
		},
	}
}
