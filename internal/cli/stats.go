package cli

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/privilege"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize patterns, relationships, tasks and specialists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
				st := sys.Stats()
				return f.Result(st, describeStats(st))
			})
		},
	}
}

func describeStats(st dojo.Stats) string {
	var b strings.Builder

	b.WriteString("patterns:\n")
	for _, field := range slices.Sorted(maps.Keys(st.Patterns)) {
		fs := st.Patterns[field]
		fmt.Fprintf(&b, "  %-20s %d validated, %d rejected\n", field, fs.Validated, fs.Rejected)
	}

	fmt.Fprintf(&b, "relationships: %d\n", st.Graph.Edges)
	for _, kind := range slices.Sorted(maps.Keys(st.Graph.ByKind)) {
		fmt.Fprintf(&b, "  %-20s %d\n", kind, st.Graph.ByKind[kind])
	}

	fmt.Fprintf(&b, "queue depth: %d\n", st.Arena.QueueDepth)
	b.WriteString("tasks:\n")
	for _, state := range slices.Sorted(maps.Keys(st.Arena.Tasks)) {
		fmt.Fprintf(&b, "  %-20s %d\n", state, st.Arena.Tasks[state])
	}
	b.WriteString("specialists:")
	for _, state := range slices.Sorted(maps.Keys(st.Arena.Specialists)) {
		fmt.Fprintf(&b, "\n  %-20s %d", state, st.Arena.Specialists[state])
	}
	return b.String()
}

// CapabilitiesOptions holds flags for the capabilities command.
type CapabilitiesOptions struct {
	*RootOptions
	Level string
}

// NewCapabilitiesCommand creates the capabilities command.
func NewCapabilitiesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CapabilitiesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "capabilities",
		Short: "List what a privilege level may do",
		Long: `List the actions a privilege level may and may not perform. Defaults to
the --actor level.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCapabilities(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Level, "level", "", "privilege level to report (default: --actor)")

	return cmd
}

func runCapabilities(opts *CapabilitiesOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	level := opts.actor()
	if opts.Level != "" {
		parsed, err := privilege.ParseLevel(opts.Level)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --level", err)
		}
		level = parsed
	}

	c := privilege.CapabilitiesOf(level)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", c.Level)
	for _, a := range c.Allowed {
		fmt.Fprintf(&b, "  allowed  %s\n", a)
	}
	for _, a := range c.Blocked {
		fmt.Fprintf(&b, "  blocked  %s\n", a)
	}
	return f.Result(c, strings.TrimRight(b.String(), "\n"))
}
