package commands

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teranos/prism/am"
	"github.com/teranos/prism/display"
	"github.com/teranos/prism/errors"
	"github.com/teranos/prism/logger"
	"github.com/teranos/prism/orchestrator"
	"github.com/teranos/prism/projection"
	"github.com/teranos/prism/pulse"
	"github.com/teranos/prism/source"
)

// SchemaCmd defines tables, analyzers, constraints and indexes in both stores
var SchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: logger.SymSync + " Define search and graph store schemas",
	Long: logger.SymSync + ` schema - define the store schemas

Creates the search tables for every document kind and variant, the text
analyzer and the per-attribute fields, and the graph node key constraint
and indexes. Safe to run repeatedly.`,
	RunE: runSchema,
}

// ReindexCmd enqueues a projection of every row of the given kinds
var ReindexCmd = &cobra.Command{
	Use:   "reindex [kinds...]",
	Short: logger.SymSync + " Re-project every row of the given document kinds",
	Long: logger.SymSync + ` reindex - enqueue a full re-projection

Walks the source for each kind and enqueues one unit per row. Without
arguments every kind is reindexed. A running Pulse daemon does the writes.

Kinds: ` + kindList() + `

Examples:
  prism reindex                   # Everything
  prism reindex entity connection # Two kinds`,
	RunE: runReindex,
}

// CatchupCmd runs one reconcile pass
var CatchupCmd = &cobra.Command{
	Use:   "catchup",
	Short: logger.SymSync + " Re-trigger rows changed since the last reconcile",
	Long: logger.SymSync + ` catchup - run one reconcile pass now

Takes the reconcile marker, re-triggers every source row modified since the
last successful pass and advances the watermark. Skips when another pass
holds the marker.`,
	RunE: runCatchup,
}

// TriggerCmd enqueues the sync of one mutation by hand
var TriggerCmd = &cobra.Command{
	Use:   "trigger <model> <id>",
	Short: logger.SymSync + " Trigger sync for one source row",
	Long: logger.SymSync + ` trigger - enqueue the sync of one source row

Models: ` + modelList() + `

Examples:
  prism trigger entity 42
  prism trigger attribute 7 --fields published
  prism trigger entity_entity 9 --op deleting`,
	Args: cobra.ExactArgs(2),
	RunE: runTrigger,
}

func init() {
	ReindexCmd.Flags().Bool("json", false, "Output counts as JSON")
	TriggerCmd.Flags().String("op", string(orchestrator.OpSaved), "Mutation op: saved or deleting")
	TriggerCmd.Flags().StringSlice("fields", nil, "Changed columns (default: all)")
}

func kindList() string {
	names := make([]string, len(projection.Kinds))
	for i, k := range projection.Kinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

func modelList() string {
	names := make([]string, len(source.Models))
	for i, m := range source.Models {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func loadStack(ctx context.Context) (*stack, error) {
	cfg, err := am.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openStack(ctx, cfg, logger.Logger)
}

func ensureSchemas(ctx context.Context, s *stack) error {
	if err := s.search.EnsureSchema(ctx); err != nil {
		return errors.Wrap(err, "search schema")
	}
	if s.search.Enabled() {
		tree, err := s.src.AttributeTree(ctx)
		if err != nil {
			return err
		}
		for _, a := range tree.All() {
			if err := s.search.EnsureAttributeField(ctx, a); err != nil {
				return errors.Wrapf(err, "search field for attribute %d", a.ID)
			}
		}
	}
	if err := s.graph.EnsureSchema(ctx); err != nil {
		return errors.Wrap(err, "graph schema")
	}
	return nil
}

func runSchema(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	if err := ensureSchemas(ctx, s); err != nil {
		return err
	}
	display.Success("Search store schema %s", enabledLabel(s.search.Enabled()))
	display.Success("Graph store schema %s", enabledLabel(s.graph.Enabled()))
	return nil
}

func runReindex(cmd *cobra.Command, args []string) error {
	var kinds []projection.Kind
	for _, a := range args {
		k, err := projection.ParseKind(a)
		if err != nil {
			return err
		}
		kinds = append(kinds, k)
	}

	ctx := cmd.Context()
	s, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	jsonOutput := display.ShouldOutputJSON(cmd)
	var progress pulse.ProgressEmitter = &termProgress{}
	if jsonOutput {
		progress = pulse.NopProgress{}
	}

	r := orchestrator.NewReindexer(s.orch, orchestrator.ReindexConfig{
		PageSize:      s.cfg.Reindex.PageSize,
		RatePerSecond: s.cfg.Reindex.RatePerSecond,
		Timeout:       time.Duration(s.cfg.Pulse.BulkJobTimeoutSeconds) * time.Second,
		Progress:      progress,
	}, logger.Logger)

	counts, runErr := r.Run(ctx, kinds...)

	if jsonOutput {
		if err := display.OutputJSON(counts); err != nil {
			return err
		}
		return runErr
	}

	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, string(k))
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, n := range names {
		rows = append(rows, []string{n, strconv.Itoa(counts[projection.Kind(n)])})
	}
	if err := display.Table([]string{"Kind", "Enqueued"}, rows); err != nil {
		return err
	}
	return runErr
}

func runCatchup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	s, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	r, closeMarker, err := s.newReconciler(ctx, logger.Logger)
	if err != nil {
		return err
	}
	defer closeMarker()

	if err := r.Run(ctx); err != nil {
		if errors.Is(err, errors.ErrMarkerHeld) {
			display.Warning("Another reconcile pass holds the marker, skipped")
			return nil
		}
		return err
	}
	display.Success("Reconcile pass complete")
	return nil
}

func runTrigger(cmd *cobra.Command, args []string) error {
	model, err := source.ParseModel(args[0])
	if err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		return errors.NewInvalidRequestError("id must be an integer, got %q", args[1])
	}
	op, _ := cmd.Flags().GetString("op")
	fields, _ := cmd.Flags().GetStringSlice("fields")

	m := orchestrator.Mutation{Model: model, ID: id, Op: orchestrator.Op(op), Fields: fields}
	if err := m.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	s, err := loadStack(ctx)
	if err != nil {
		return err
	}
	defer s.Close(context.Background())

	if err := s.orch.Trigger(ctx, m); err != nil {
		return err
	}
	display.Success("Enqueued %s", m)
	return nil
}
