package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/graph"
	"github.com/roach88/dojo/internal/pattern"
)

// IngestOptions holds flags for the ingest command.
type IngestOptions struct {
	*RootOptions
	File string // batch file of {field, payload} entries
}

// IngestOutput is the JSON result of a single ingestion.
type IngestOutput struct {
	ID    string `json:"id"`
	Field string `json:"field"`
}

// BatchEntry is one element of a batch ingestion result.
type BatchEntry struct {
	Index   int    `json:"index"`
	Field   string `json:"field"`
	ID      string `json:"id,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// NewIngestCommand creates the ingest command.
func NewIngestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &IngestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "ingest <field> <payload|->",
		Short: "Record a discovered pattern",
		Long: `Record a discovered pattern in the pattern store.

The payload is validated against the field's predicate. A payload of "-"
is read from stdin. With --file, a YAML or JSON list of {field, payload}
entries is ingested in order and every entry is reported separately.

Exit codes:
  0 - Pattern recorded (every entry, with --file)
  1 - Pattern refused (duplicate, malformed, unknown field)
  2 - Command error

Examples:
  dojo ingest algebra "x^2 - 1 = (x-1)(x+1)"
  echo "a^2 + b^2 = c^2" | dojo ingest geometry -
  dojo ingest --file patterns.yaml --format json`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.File != "" {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(2)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.File != "" {
				return runIngestBatch(opts, cmd)
			}
			return runIngest(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.File, "file", "f", "", "ingest every entry of a YAML/JSON batch file")

	return cmd
}

func runIngest(opts *IngestOptions, field, payload string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if payload == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read payload from stdin", err)
		}
		payload = strings.TrimRight(string(data), "\n")
	}

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		id, err := sys.Ingest(ctx, opts.actor(), pattern.Field(field), payload)
		if err != nil {
			return fail(f, "ingest", err)
		}
		return f.Result(
			IngestOutput{ID: id.String(), Field: field},
			fmt.Sprintf("Ingested %s (%s)", id, field),
		)
	})
}

// batchFileEntry is the on-disk shape of one batch submission.
type batchFileEntry struct {
	Field   string `yaml:"field"`
	Payload string `yaml:"payload"`
}

func runIngestBatch(opts *IngestOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	data, err := os.ReadFile(opts.File)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read batch file", err)
	}

	var entries []batchFileEntry
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&entries); err != nil && !errors.Is(err, io.EOF) {
		return WrapExitError(ExitCommandError, "failed to parse batch file", err)
	}

	batch := make([]pattern.Submission, len(entries))
	for i, e := range entries {
		batch[i] = pattern.Submission{Field: pattern.Field(e.Field), Payload: e.Payload}
	}

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		results, err := sys.IngestBatch(ctx, opts.actor(), batch)
		if err != nil {
			return fail(f, "ingest", err)
		}

		out := make([]BatchEntry, len(results))
		refused := 0
		var text strings.Builder
		for i, r := range results {
			out[i] = BatchEntry{Index: i, Field: entries[i].Field}
			if r.Err != nil {
				refused++
				out[i].Code = dojo.ErrorCode(r.Err)
				out[i].Message = r.Err.Error()
				fmt.Fprintf(&text, "%d\t-\t%s\n", i, r.Err)
				continue
			}
			out[i].ID = r.ID.String()
			fmt.Fprintf(&text, "%d\t%s\tok\n", i, r.ID)
		}
		fmt.Fprintf(&text, "%d ingested, %d refused", len(results)-refused, refused)

		if err := f.Result(out, text.String()); err != nil {
			return err
		}
		if refused > 0 {
			return &ExitError{
				Code:     ExitFailure,
				Message:  fmt.Sprintf("%d of %d submissions refused", refused, len(results)),
				Reported: true,
			}
		}
		return nil
	})
}

// LinkOptions holds flags for the link command.
type LinkOptions struct {
	*RootOptions
	Kind   string
	Weight float64
}

// LinkOutput is the JSON result of the link command.
type LinkOutput struct {
	ID          string     `json:"id"`
	Source      string     `json:"source"`
	Target      string     `json:"target"`
	Kind        graph.Kind `json:"kind"`
	Weight      float64    `json:"weight"`
	SourceScore float64    `json:"source_score"`
	TargetScore float64    `json:"target_score"`
}

// NewLinkCommand creates the link command.
func NewLinkCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "link <source> <target>",
		Short: "Relate two validated patterns",
		Long: `Record a directed, typed relationship between two validated patterns.

Both endpoints' impact scores are recomputed. Kinds: derives-from,
generalizes, conflicts-with, composes-with.

Examples:
  dojo link P2 P1 --kind derives-from
  dojo link 3 4 --kind conflicts-with --weight 0.5`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLink(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Kind, "kind", "k", "", "relationship kind (required)")
	cmd.Flags().Float64VarP(&opts.Weight, "weight", "w", 1.0, "relationship weight (finite, >= 0)")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func runLink(opts *LinkOptions, sourceArg, targetArg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	source, err := dojo.ParsePatternID(sourceArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid source", err)
	}
	target, err := dojo.ParsePatternID(targetArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid target", err)
	}

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		kind := graph.Kind(opts.Kind)
		rid, err := sys.Link(ctx, opts.actor(), source, target, kind, opts.Weight)
		if err != nil {
			return fail(f, "link", err)
		}

		out := LinkOutput{
			ID:          rid.String(),
			Source:      source.String(),
			Target:      target.String(),
			Kind:        kind,
			Weight:      opts.Weight,
			SourceScore: sys.Graph.Score(source),
			TargetScore: sys.Graph.Score(target),
		}
		return f.Result(out, fmt.Sprintf("Linked %s -[%s]-> %s as %s (scores %.2f, %.2f)",
			source, kind, target, rid, out.SourceScore, out.TargetScore))
	})
}

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Kinds []string
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <domain>",
		Short: "List a domain's patterns by impact score",
		Long: `List the validated patterns of a domain, highest impact score first, with
the targets of their outgoing relationships.

A composite domain joins fields with "+".

Examples:
  dojo query algebra
  dojo query algebra+geometry --kind derives-from --kind generalizes`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Kinds, "kind", "k", nil, "only follow these relationship kinds (repeatable)")

	return cmd
}

func runQuery(opts *QueryOptions, domain string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		rows, err := sys.Query(opts.actor(), domain, toKinds(opts.Kinds)...)
		if err != nil {
			return fail(f, "query", err)
		}

		var text strings.Builder
		tw := tabwriter.NewWriter(&text, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFIELD\tSCORE\tRELATED\tPAYLOAD")
		for _, r := range rows {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\n",
				r.Pattern.ID, r.Pattern.Field, r.Pattern.ImpactScore, joinIDs(r.Related), r.Pattern.Payload)
		}
		tw.Flush()

		return f.Result(rows, strings.TrimRight(text.String(), "\n"))
	})
}

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Kinds []string
	Depth int
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <pattern>",
		Short: "Show a pattern's relationships, conflicts and reachable set",
		Long: `Show one pattern with every relationship touching it, the patterns it
conflicts with, and the patterns reachable over its outgoing relationships.

The walk visits each pattern once, so cycles end it. --depth 0 walks
without limit.

Examples:
  dojo inspect P3
  dojo inspect P3 --kind derives-from --depth 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.Kinds, "kind", "k", nil, "only walk these relationship kinds (repeatable)")
	cmd.Flags().IntVarP(&opts.Depth, "depth", "d", 0, "maximum walk depth (0 = unbounded)")

	return cmd
}

func runInspect(opts *InspectOptions, idArg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	id, err := dojo.ParsePatternID(idArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pattern", err)
	}

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		n, err := sys.Inspect(ctx, opts.actor(), id, toKinds(opts.Kinds), opts.Depth)
		if err != nil {
			return fail(f, "inspect", err)
		}

		var text strings.Builder
		p := n.Pattern
		fmt.Fprintf(&text, "%s [%s] %s score=%.2f\n", p.ID, p.Field, p.Status, p.ImpactScore)
		fmt.Fprintf(&text, "  payload:   %s\n", p.Payload)
		if p.Reason != "" {
			fmt.Fprintf(&text, "  reason:    %s\n", p.Reason)
		}
		for _, e := range n.Edges {
			fmt.Fprintf(&text, "  edge:      %s %s -[%s]-> %s (weight %g)\n", e.ID, e.Source, e.Kind, e.Target, e.Weight)
		}
		fmt.Fprintf(&text, "  conflicts: %s\n", joinIDs(n.Conflicts))
		fmt.Fprintf(&text, "  reachable: %s", joinIDs(n.Reachable))

		return f.Result(n, text.String())
	})
}

// CompatibleOutput is the JSON result of the compatible command.
type CompatibleOutput struct {
	A          string `json:"a"`
	B          string `json:"b"`
	Compatible bool   `json:"compatible"`
}

// NewCompatibleCommand creates the compatible command.
func NewCompatibleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compatible <a> <b>",
		Short: "Check whether two patterns may be trained together",
		Long: `Report whether a conflicts-with relationship joins two patterns, in either
direction. Conflicting patterns are never trained into the same specialist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompatible(rootOpts, args[0], args[1], cmd)
		},
	}
}

func runCompatible(opts *RootOptions, aArg, bArg string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	a, err := dojo.ParsePatternID(aArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pattern", err)
	}
	b, err := dojo.ParsePatternID(bArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid pattern", err)
	}

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		ok, err := sys.Compatible(opts.actor(), a, b)
		if err != nil {
			return fail(f, "compatible", err)
		}

		verdict := "compatible"
		if !ok {
			verdict = "in conflict"
		}
		return f.Result(
			CompatibleOutput{A: a.String(), B: b.String(), Compatible: ok},
			fmt.Sprintf("%s and %s are %s", a, b, verdict),
		)
	})
}

// ExportOptions holds flags for the export command.
type ExportOptions struct {
	*RootOptions
	Output string
}

// ExportSummary is the result of an export written to a file.
type ExportSummary struct {
	Path     string `json:"path"`
	Patterns int    `json:"patterns"`
	Edges    int    `json:"edges"`
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExportOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump every pattern and relationship",
		Long: `Dump every pattern, rejected ones included, and every relationship.

Exporting data requires desktop privilege.

Examples:
  dojo export --actor desktop --format json
  dojo export --actor desktop -o graph.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the dump as JSON to this file")

	return cmd
}

func runExport(opts *ExportOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		dump, err := sys.Export(opts.actor())
		if err != nil {
			return fail(f, "export", err)
		}

		if opts.Output != "" {
			data, err := json.MarshalIndent(dump, "", "  ")
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode export", err)
			}
			if err := os.WriteFile(opts.Output, append(data, '\n'), 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write export", err)
			}
			f.VerboseLog("wrote %d bytes to %s", len(data)+1, opts.Output)
			return f.Result(
				ExportSummary{Path: opts.Output, Patterns: len(dump.Patterns), Edges: len(dump.Edges)},
				fmt.Sprintf("Exported %d patterns and %d relationships to %s", len(dump.Patterns), len(dump.Edges), opts.Output),
			)
		}

		var text strings.Builder
		tw := tabwriter.NewWriter(&text, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tFIELD\tSTATUS\tSCORE\tPAYLOAD")
		for _, p := range dump.Patterns {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n", p.ID, p.Field, p.Status, p.ImpactScore, p.Payload)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "EDGE\tSOURCE\tKIND\tTARGET\tWEIGHT")
		for _, e := range dump.Edges {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\n", e.ID, e.Source, e.Kind, e.Target, e.Weight)
		}
		tw.Flush()

		return f.Result(dump, strings.TrimRight(text.String(), "\n"))
	})
}

func toKinds(ss []string) []graph.Kind {
	kinds := make([]graph.Kind, 0, len(ss))
	for _, s := range ss {
		kinds = append(kinds, graph.Kind(s))
	}
	return kinds
}

func joinIDs(ids []pattern.ID) string {
	if len(ids) == 0 {
		return "-"
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = id.String()
	}
	return strings.Join(parts, ",")
}
