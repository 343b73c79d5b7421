package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/dojo"
)

// NewTrainCommand creates the train command.
func NewTrainCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train <domain>",
		Short: "Train a specialist for a domain",
		Long: `Spawn a specialist for a domain, train it on the domain's applicable
patterns and benchmark it.

A desktop actor's specialist is deployed once its benchmark passes. A
sandboxed actor's specialist halts at benchmarking until "dojo deploy".

Examples:
  dojo train algebra
  dojo train algebra+geometry --actor desktop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrain(rootOpts, args[0], cmd)
		},
	}
}

func runTrain(opts *RootOptions, domain string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		id, err := sys.Train(ctx, opts.actor(), domain)
		if err != nil {
			return fail(f, "train", err)
		}
		return showSpecialist(ctx, f, sys, id)
	})
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <specialist>",
		Short: "Deploy a benchmarked specialist",
		Long: `Promote a specialist halted at benchmarking to deployed.

Deploying requires desktop privilege.

Example:
  dojo deploy 0190a6f2-... --actor desktop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpecialistOp(rootOpts, "deploy", args[0], cmd, func(ctx context.Context, sys *dojo.System, id arena.SpecialistID) error {
				return sys.Deploy(ctx, rootOpts.actor(), id)
			})
		},
	}
}

// NewBenchmarkCommand creates the benchmark command.
func NewBenchmarkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "benchmark <specialist>",
		Short: "Re-run a halted specialist's benchmark",
		Long: `Re-run the benchmark of a specialist halted at benchmarking. A regression
below the minimum compression ratio retires it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpecialistOp(rootOpts, "benchmark", args[0], cmd, func(ctx context.Context, sys *dojo.System, id arena.SpecialistID) error {
				return sys.Benchmark(ctx, rootOpts.actor(), id)
			})
		},
	}
}

// NewRetireCommand creates the retire command.
func NewRetireCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retire <specialist>",
		Short: "Retire a specialist",
		Long: `Retire a benchmarking or deployed specialist. A request made while a step
is running is recorded and applied when the step ends.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpecialistOp(rootOpts, "retire", args[0], cmd, func(ctx context.Context, sys *dojo.System, id arena.SpecialistID) error {
				return sys.Retire(ctx, id)
			})
		},
	}
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <specialist>",
		Short: "Show a specialist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSpecialistOp(rootOpts, "status", args[0], cmd, func(context.Context, *dojo.System, arena.SpecialistID) error {
				return nil
			})
		},
	}
}

func runSpecialistOp(opts *RootOptions, op, idArg string, cmd *cobra.Command, fn func(context.Context, *dojo.System, arena.SpecialistID) error) error {
	f := opts.formatter(cmd)
	id := arena.SpecialistID(idArg)

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		if err := fn(ctx, sys, id); err != nil {
			return fail(f, op, err)
		}
		return showSpecialist(ctx, f, sys, id)
	})
}

func showSpecialist(ctx context.Context, f *OutputFormatter, sys *dojo.System, id arena.SpecialistID) error {
	sp, err := sys.Specialist(ctx, id)
	if err != nil {
		return fail(f, "status", err)
	}
	return f.Result(sp, describeSpecialist(sp))
}

func describeSpecialist(sp arena.Specialist) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s [%s]\n", sp.ID, sp.State, sp.Domain)
	fmt.Fprintf(&b, "  privilege:   %s\n", sp.PrivilegeLevel)
	fmt.Fprintf(&b, "  compression: %.2f\n", sp.CompressionRatio)
	fmt.Fprintf(&b, "  patterns:    %s", joinIDs(sp.PatternRefs))
	if sp.AwaitingDeploy() {
		b.WriteString("\n  awaiting deploy")
	}
	if sp.RetirePending {
		b.WriteString("\n  retire pending")
	}
	return b.String()
}

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Domain string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List specialists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Domain, "domain", "", "only list specialists of this domain")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		specialists := sys.Arena.Specialists(opts.Domain)

		var text strings.Builder
		tw := tabwriter.NewWriter(&text, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tDOMAIN\tSTATE\tPRIVILEGE\tRATIO\tPATTERNS")
		for _, sp := range specialists {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
				sp.ID, sp.Domain, sp.State, sp.PrivilegeLevel, sp.CompressionRatio, joinIDs(sp.PatternRefs))
		}
		tw.Flush()

		return f.Result(specialists, strings.TrimRight(text.String(), "\n"))
	})
}
