// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/statflow/statflow/internal/eventbus"
	"github.com/statflow/statflow/internal/tasks"
)

func newEventsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Work with queued usage events",
	}
	cmd.AddCommand(newEventsProcessCommand(a))
	return cmd
}

func newEventsProcessCommand(a *app) *cobra.Command {
	var eager bool
	cmd := &cobra.Command{
		Use:   "process [event-types...]",
		Short: "Index queued usage events into the search cluster",
		Long: `Index queued usage events into the search cluster.

Without arguments every enabled event type is processed. By default the
command dispatches a task to a running daemon, which drains the queues
with its own connections. With --eager it connects to the bus and the
cluster itself and runs the indexers in-process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if eager {
				return a.runEventsEager(cmd.Context(), cmd.OutOrStdout(), args)
			}
			return a.dispatchEvents(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	cmd.Flags().BoolVar(&eager, "eager", false, "run the indexers in-process instead of dispatching a task")
	return cmd
}

// dispatchEvents validates the requested names and publishes a
// process-events task for a running daemon to pick up. An empty name
// list stays empty on the wire; the daemon resolves it against its own
// enabled set.
func (a *app) dispatchEvents(ctx context.Context, out io.Writer, names []string) error {
	reg, err := a.openCatalog()
	if err != nil {
		return err
	}
	if _, err := a.selectEventTypes(reg, names); err != nil {
		return err
	}

	pub, err := a.openPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	taskID, err := tasks.NewDispatcher(pub, a.logger).ProcessEvents(ctx, names)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Dispatched task %s (%s)\n", taskID, nameScope(names, "event types"))
	return nil
}

func (a *app) runEventsEager(ctx context.Context, out io.Writer, names []string) error {
	reg, cleanup, err := a.openRegistry()
	if err != nil {
		return err
	}
	defer cleanup()

	defs, err := a.selectEventTypes(reg, names)
	if err != nil {
		return err
	}

	conn, js, err := a.openBus()
	if err != nil {
		return err
	}
	defer conn.Close()
	consumer, err := eventbus.NewConsumer(js, &a.cfg.NATS, a.logger)
	if err != nil {
		return err
	}

	engine, namer, err := a.openSearch()
	if err != nil {
		return err
	}
	indexers, err := a.buildIndexers(consumer, engine, namer, defs)
	if err != nil {
		return err
	}

	var errs []error
	for _, ix := range indexers {
		indexed, failed, err := ix.Run(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("index %s: %w", ix.EventType(), err))
			continue
		}
		if failed > 0 {
			fmt.Fprintf(out, "%s: indexed %d events, %d failed\n", ix.EventType(), indexed, failed)
			continue
		}
		fmt.Fprintf(out, "%s: indexed %d events\n", ix.EventType(), indexed)
	}
	return errors.Join(errs...)
}

// nameScope renders a name list for command output.
func nameScope(names []string, plural string) string {
	if len(names) == 0 {
		return "all enabled " + plural
	}
	return strings.Join(names, ", ")
}
