// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/statflow/statflow/internal/eventbus"
)

func newQueuesCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "Administer the event stream and its consumers",
	}
	cmd.AddCommand(
		newQueuesDeclareCommand(a),
		newQueuesPurgeCommand(a),
		newQueuesDeleteCommand(a),
	)
	return cmd
}

func newQueuesDeclareCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "declare [queues...]",
		Short: "Create the event stream and durable consumers",
		Long: `Create the event stream and the durable consumers that hold queued
events until an indexer drains them. Declaring is idempotent; a serve
daemon keeps redeclaring the same names.

Queue names are event types plus the reserved "tasks" queue. Without
arguments every enabled event type and the task queue are declared.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queues, err := a.queueNames(args)
			if err != nil {
				return err
			}
			conn, js, err := a.openBus()
			if err != nil {
				return err
			}
			defer conn.Close()
			streams, err := eventbus.NewStreamManager(js, &a.cfg.NATS)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if _, err := streams.EnsureStream(ctx); err != nil {
				return fmt.Errorf("declare stream: %w", err)
			}
			for _, q := range queues {
				if err := streams.EnsureConsumer(ctx, q); err != nil {
					return fmt.Errorf("declare consumer for %s: %w", q, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Declared stream %s with consumers: %s\n",
				streams.Exchange(), strings.Join(queues, ", "))
			return nil
		},
	}
}

func newQueuesPurgeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "purge [queues...]",
		Short: "Drop queued messages without deleting the consumers",
		Long: `Drop every queued message on the named queues. Purged events are gone;
the consumers stay declared and keep receiving new messages.

Without arguments every enabled event type and the task queue are
purged.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queues, err := a.queueNames(args)
			if err != nil {
				return err
			}
			conn, js, err := a.openBus()
			if err != nil {
				return err
			}
			defer conn.Close()
			streams, err := eventbus.NewStreamManager(js, &a.cfg.NATS)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var errs []error
			for _, q := range queues {
				if err := streams.PurgeEvents(cmd.Context(), q); err != nil {
					errs = append(errs, fmt.Errorf("purge %s: %w", q, err))
					continue
				}
				fmt.Fprintf(out, "Purged %s\n", q)
			}
			return errors.Join(errs...)
		},
	}
}

func newQueuesDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [queues...]",
		Short: "Delete consumers, or the whole stream",
		Long: `Delete the durable consumers for the named queues. Without arguments
the entire stream is deleted, consumers and queued messages included.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var queues []string
			if len(args) > 0 {
				var err error
				if queues, err = a.queueNames(args); err != nil {
					return err
				}
			}
			conn, js, err := a.openBus()
			if err != nil {
				return err
			}
			defer conn.Close()
			streams, err := eventbus.NewStreamManager(js, &a.cfg.NATS)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			if len(queues) == 0 {
				if err := streams.DeleteStream(ctx); err != nil {
					return fmt.Errorf("delete stream: %w", err)
				}
				fmt.Fprintf(out, "Deleted stream %s\n", streams.Exchange())
				return nil
			}
			var errs []error
			for _, q := range queues {
				if err := streams.DeleteConsumer(ctx, q); err != nil {
					errs = append(errs, fmt.Errorf("delete consumer for %s: %w", q, err))
					continue
				}
				fmt.Fprintf(out, "Deleted consumer for %s\n", q)
			}
			return errors.Join(errs...)
		},
	}
}

// queueNames resolves which queues a command works on. Names are event
// types plus the reserved task queue; an empty list means every enabled
// event type and the task queue.
func (a *app) queueNames(names []string) ([]string, error) {
	reg, err := a.openCatalog()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		defs, err := a.selectEventTypes(reg, nil)
		if err != nil {
			return nil, err
		}
		return append(eventTypeNames(defs), eventbus.TaskToken), nil
	}
	resolved := make([]string, 0, len(names))
	for _, name := range names {
		if name != eventbus.TaskToken {
			if _, err := a.selectEventTypes(reg, []string{name}); err != nil {
				return nil, err
			}
		}
		resolved = append(resolved, name)
	}
	return resolved, nil
}
