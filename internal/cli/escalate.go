package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/privilege"
)

// NewEscalateCommand creates the escalate command group.
func NewEscalateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escalate",
		Short: "Request and approve specialist privilege escalations",
		Long: `A specialist runs at the privilege level it was trained or deployed at.
Raising it takes two steps: any actor may request the escalation, and a
desktop actor approves it. Both steps are audited.

Examples:
  dojo escalate request 0190f1c2-7d3e-7b4a-9c1d-2f3e4a5b6c7d --reason "needs file access"
  dojo escalate approve 0190f1c3-0a1b-7c2d-8e3f-4a5b6c7d8e9f --actor desktop`,
	}

	cmd.AddCommand(newEscalateRequestCommand(rootOpts))
	cmd.AddCommand(newEscalateApproveCommand(rootOpts))

	return cmd
}

func newEscalateRequestCommand(rootOpts *RootOptions) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "request <specialist>",
		Short: "Ask for a specialist to run at desktop privilege",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
				e, err := sys.RequestEscalation(ctx, rootOpts.actor(), arena.SpecialistID(args[0]), reason)
				if err != nil {
					return fail(f, "escalate request", err)
				}
				return f.Result(e, describeEscalation(e))
			})
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "why the specialist needs the higher level")

	return cmd
}

func newEscalateApproveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <request>",
		Short: "Approve a pending escalation (desktop only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
				e, err := sys.ApproveEscalation(ctx, rootOpts.actor(), args[0])
				if err != nil {
					return fail(f, "escalate approve", err)
				}
				return f.Result(e, describeEscalation(e))
			})
		},
	}
}

func describeEscalation(e privilege.Escalation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", e.ID, e.State)
	fmt.Fprintf(&b, "  specialist: %s\n", e.Subject)
	fmt.Fprintf(&b, "  level:      %s -> %s", e.From, e.To)
	if e.Reason != "" {
		fmt.Fprintf(&b, "\n  reason:     %s", e.Reason)
	}
	if e.ApprovedBy != "" {
		fmt.Fprintf(&b, "\n  approved by %s", e.ApprovedBy)
	}
	return b.String()
}
