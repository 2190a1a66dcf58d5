// Statflow - Usage Event Telemetry for Digital Repository Platforms
// Copyright 2026 The Statflow Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/statflow/statflow

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/statflow/statflow/internal/aggregator"
	"github.com/statflow/statflow/internal/tasks"
)

func newAggregationsCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "aggregations",
		Short: "Work with aggregated rollups",
	}
	cmd.AddCommand(
		newAggregationsProcessCommand(a),
		newAggregationsDeleteCommand(a),
		newAggregationsListBookmarksCommand(a),
	)
	return cmd
}

func newAggregationsProcessCommand(a *app) *cobra.Command {
	var (
		startDate      string
		endDate        string
		updateBookmark bool
		eager          bool
	)
	cmd := &cobra.Command{
		Use:   "process [aggregations...]",
		Short: "Aggregate indexed events into rollups",
		Long: `Aggregate indexed events into rollup documents.

Without arguments every enabled aggregation runs. Without dates the run
resumes from each aggregation's bookmark. By default the command
dispatches a task to a running daemon; with --eager it runs the
aggregators in-process.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(startDate, endDate)
			if err != nil {
				return err
			}
			if eager {
				return a.runAggregationsEager(cmd.Context(), cmd.OutOrStdout(), args, aggregator.RunParams{
					Start:          start,
					End:            end,
					UpdateBookmark: updateBookmark,
				})
			}
			return a.dispatchAggregations(cmd.Context(), cmd.OutOrStdout(), args, start, end, updateBookmark)
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "aggregate events from this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "aggregate events up to this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&updateBookmark, "update-bookmark", false, "advance the bookmark after a successful run")
	cmd.Flags().BoolVar(&eager, "eager", false, "run the aggregators in-process instead of dispatching a task")
	return cmd
}

func (a *app) dispatchAggregations(ctx context.Context, out io.Writer, names []string, start, end time.Time, updateBookmark bool) error {
	reg, err := a.openCatalog()
	if err != nil {
		return err
	}
	if _, err := a.selectAggregations(reg, names); err != nil {
		return err
	}

	pub, err := a.openPublisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	params := tasks.AggregateParams{Aggregations: names, UpdateBookmark: updateBookmark}
	if !start.IsZero() {
		params.Start = &start
	}
	if !end.IsZero() {
		params.End = &end
	}
	taskID, err := tasks.NewDispatcher(pub, a.logger).AggregateEvents(ctx, params)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Dispatched task %s (%s)\n", taskID, nameScope(names, "aggregations"))
	return nil
}

func (a *app) runAggregationsEager(ctx context.Context, out io.Writer, names []string, params aggregator.RunParams) error {
	aggs, err := a.openAggregators(names)
	if err != nil {
		return err
	}

	var errs []error
	for _, agg := range aggs {
		res, err := agg.Run(ctx, params)
		if err != nil {
			errs = append(errs, fmt.Errorf("aggregate %s: %w", agg.Name(), err))
			continue
		}
		fmt.Fprintf(out, "%s: wrote %d rollups in %d steps\n", agg.Name(), res.Written, res.Steps)
	}
	return errors.Join(errs...)
}

func newAggregationsDeleteCommand(a *app) *cobra.Command {
	var (
		startDate string
		endDate   string
		yes       bool
	)
	cmd := &cobra.Command{
		Use:   "delete [aggregations...]",
		Short: "Delete rollup documents and their bookmarks",
		Long: `Delete rollup documents in a date range along with the bookmarks in
it, so the next aggregation run rebuilds the range from raw events.
Raw events are not touched.

Without arguments every enabled aggregation is affected; without dates
the whole history is deleted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(startDate, endDate)
			if err != nil {
				return err
			}
			aggs, err := a.openAggregators(args)
			if err != nil {
				return err
			}

			if !yes {
				prompt := fmt.Sprintf("Delete rollups and bookmarks for %s, %s?",
					nameScope(args, "aggregations"), rangeLabel(start, end))
				ok, err := confirm(cmd, prompt)
				if err != nil {
					return err
				}
				if !ok {
					return errors.New("aborted")
				}
			}

			out := cmd.OutOrStdout()
			total := 0
			var errs []error
			for _, agg := range aggs {
				n, err := agg.Delete(cmd.Context(), start, end)
				total += n
				if err != nil {
					errs = append(errs, fmt.Errorf("delete %s: %w", agg.Name(), err))
					continue
				}
				fmt.Fprintf(out, "%s: deleted %d documents\n", agg.Name(), n)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "delete rollups from this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "delete rollups up to this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&yes, "yes", false, "skip the confirmation prompt")
	return cmd
}

func newAggregationsListBookmarksCommand(a *app) *cobra.Command {
	var (
		startDate string
		endDate   string
		limit     int
	)
	cmd := &cobra.Command{
		Use:   "list-bookmarks [aggregations...]",
		Short: "List aggregation bookmarks, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(startDate, endDate)
			if err != nil {
				return err
			}
			aggs, err := a.openAggregators(args)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, agg := range aggs {
				marks, err := agg.Bookmarks().List(cmd.Context(), start, end, limit)
				if err != nil {
					return fmt.Errorf("list bookmarks for %s: %w", agg.Name(), err)
				}
				if len(marks) == 0 {
					fmt.Fprintf(out, "%s: no bookmarks\n", agg.Name())
					continue
				}
				for _, m := range marks {
					fmt.Fprintf(out, "%s\t%s\n", m.AggregationType, m.Date.UTC().Format(time.RFC3339))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&startDate, "start-date", "", "list bookmarks from this date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&endDate, "end-date", "", "list bookmarks up to this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum bookmarks per aggregation (0 = store default)")
	return cmd
}

// openAggregators resolves the named (or all enabled) aggregations and
// builds them against the search cluster.
func (a *app) openAggregators(names []string) ([]*aggregator.Aggregator, error) {
	reg, err := a.openCatalog()
	if err != nil {
		return nil, err
	}
	cfgs, err := a.selectAggregations(reg, names)
	if err != nil {
		return nil, err
	}
	engine, namer, err := a.openSearch()
	if err != nil {
		return nil, err
	}
	return a.buildAggregators(engine, namer, cfgs)
}

// parseRange parses the optional --start-date and --end-date values.
// Zero times stand for an unset bound.
func parseRange(startDate, endDate string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if startDate != "" {
		if start, err = parseDay("start-date", startDate); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endDate != "" {
		if end, err = parseDay("end-date", endDate); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		return time.Time{}, time.Time{}, invalidInput("--end-date %s is before --start-date %s", endDate, startDate)
	}
	return start, end, nil
}

// rangeLabel renders a date range for prompts and output.
func rangeLabel(start, end time.Time) string {
	const layout = "2006-01-02"
	switch {
	case start.IsZero() && end.IsZero():
		return "all time"
	case start.IsZero():
		return "up to " + end.Format(layout)
	case end.IsZero():
		return "from " + start.Format(layout)
	default:
		return start.Format(layout) + " to " + end.Format(layout)
	}
}

// confirm asks on the command's input stream and accepts y or yes.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}
