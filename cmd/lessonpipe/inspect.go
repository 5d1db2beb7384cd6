package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	gojson "github.com/goccy/go-json"

	"github.com/BaSui01/lessonpipe/diagnostics"
)

// =============================================================================
// 🔍 inspect 命令
// =============================================================================

func runInspect(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(stderr)
	runID := fs.String("run-id", "", "Run id to print")
	list := fs.Int("list", 0, "List the n most recent run ids")
	stage := fs.String("stage", "", "Only print entries of this stage")
	outcomes := fs.Bool("outcomes", false, "Count stored runs by outcome")

	env, err := parseWithConfig(fs, args)
	if err != nil {
		return err
	}
	defer func() { _ = env.logger.Sync() }()

	selected := 0
	for _, set := range []bool{*runID != "", *list > 0, *outcomes} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		return newUsageError("exactly one of --run-id, --list or --outcomes is required")
	}
	if *runID != "" {
		if err := diagnostics.ValidateRunID(*runID); err != nil {
			return newUsageError("%v", err)
		}
	}

	store, err := diagnostics.Open(ctx, env.cfg, env.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case *list > 0:
		return listRuns(ctx, store, *list, stdout)
	case *outcomes:
		return printOutcomes(ctx, store, stdout)
	default:
		return printTrace(ctx, store, *runID, diagnostics.Stage(*stage), stdout)
	}
}

func listRuns(ctx context.Context, store *diagnostics.MultiStore, limit int, w io.Writer) error {
	ids, err := store.List(ctx, limit)
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func printTrace(ctx context.Context, store *diagnostics.MultiStore, runID string, stage diagnostics.Stage, w io.Writer) error {
	trace, err := store.Load(ctx, runID)
	if errors.Is(err, diagnostics.ErrNotFound) {
		return fmt.Errorf("no trace stored for run %s", runID)
	}
	if err != nil {
		return err
	}
	if stage != "" {
		trace = trace.Clone()
		trace.Entries = trace.Stage(stage)
	}

	b, err := gojson.MarshalIndent(trace, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode trace: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// printOutcomes 只有数据库后端支持聚合
func printOutcomes(ctx context.Context, store *diagnostics.MultiStore, w io.Writer) error {
	for _, s := range store.Stores() {
		gs, ok := s.(*diagnostics.GormStore)
		if !ok {
			continue
		}
		counts, err := gs.CountByOutcome(ctx)
		if err != nil {
			return err
		}
		outcomes := make([]string, 0, len(counts))
		for o := range counts {
			outcomes = append(outcomes, o)
		}
		sort.Strings(outcomes)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "OUTCOME\tRUNS")
		for _, o := range outcomes {
			fmt.Fprintf(tw, "%s\t%d\n", o, counts[o])
		}
		return tw.Flush()
	}
	return newUsageError("--outcomes requires the database diagnostics backend")
}
