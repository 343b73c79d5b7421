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

// SubmitOptions holds flags for the submit command.
type SubmitOptions struct {
	*RootOptions
	Priority    string
	Description string
}

// NewSubmitCommand creates the submit command.
func NewSubmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SubmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "submit <domain>",
		Short: "Queue a training task",
		Long: `Queue a task asking for a specialist for a domain. Tasks run in submission
order per domain when "dojo serve" or "dojo work" processes the queue.
Priority is recorded but never reorders tasks.

Examples:
  dojo submit algebra -d "factor quadratics"
  dojo submit calculus --priority high --actor desktop`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "task description")
	cmd.Flags().StringVarP(&opts.Priority, "priority", "p", string(arena.PriorityMedium), "task priority (high|medium|low)")

	return cmd
}

func runSubmit(opts *SubmitOptions, domain string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	return opts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		id, err := sys.Arena.Submit(ctx, arena.TaskRequest{
			Description: opts.Description,
			Domain:      domain,
			Privilege:   opts.actor(),
			Priority:    arena.Priority(opts.Priority),
		})
		if err != nil {
			return fail(f, "submit", err)
		}
		return showTask(ctx, f, sys, id)
	})
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <task>",
		Short: "Cancel a queued task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			id := arena.TaskID(args[0])
			return rootOpts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
				if err := sys.Arena.Cancel(ctx, id); err != nil {
					return fail(f, "cancel", err)
				}
				return showTask(ctx, f, sys, id)
			})
		},
	}
}

// NewTaskCommand creates the task command.
func NewTaskCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "task <task>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
				return showTask(ctx, f, sys, arena.TaskID(args[0]))
			})
		},
	}
}

func showTask(ctx context.Context, f *OutputFormatter, sys *dojo.System, id arena.TaskID) error {
	t, err := sys.Task(ctx, id)
	if err != nil {
		return fail(f, "task", err)
	}
	return f.Result(t, describeTask(t))
}

func describeTask(t arena.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s [%s] priority=%s privilege=%s", t.ID, t.State, t.Domain, t.Priority, t.RequestedPrivilege)
	if t.Description != "" {
		fmt.Fprintf(&b, "\n  description: %s", t.Description)
	}
	if t.SpecialistID != "" {
		fmt.Fprintf(&b, "\n  specialist:  %s", t.SpecialistID)
	}
	if t.Error != "" {
		fmt.Fprintf(&b, "\n  error:       %s", t.Error)
	}
	return b.String()
}

// NewTasksCommand creates the tasks command.
func NewTasksCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List tasks in submission order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			return rootOpts.withSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
				tasks := sys.Arena.Tasks()

				var text strings.Builder
				tw := tabwriter.NewWriter(&text, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDOMAIN\tSTATE\tPRIORITY\tSPECIALIST\tDESCRIPTION")
				for _, t := range tasks {
					specialist := string(t.SpecialistID)
					if specialist == "" {
						specialist = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
						t.ID, t.Domain, t.State, t.Priority, specialist, t.Description)
				}
				tw.Flush()

				return f.Result(tasks, strings.TrimRight(text.String(), "\n"))
			})
		},
	}
}

// WorkResult summarizes one drain of the queue.
type WorkResult struct {
	Processed []WorkEntry `json:"processed"`
	Completed int         `json:"completed"`
	Failed    int         `json:"failed"`
}

// WorkEntry reports one processed task.
type WorkEntry struct {
	Task       arena.TaskID       `json:"task"`
	Domain     string             `json:"domain"`
	State      arena.TaskState    `json:"state"`
	Specialist arena.SpecialistID `json:"specialist,omitempty"`
	Reused     bool               `json:"reused"`
	Error      string             `json:"error,omitempty"`
}

// NewWorkCommand creates the work command.
func NewWorkCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "work",
		Short: "Process queued tasks until the queue is empty",
		Long: `Process queued tasks one at a time until none is ready, then exit.

Use "dojo serve" to keep workers running.

Exit codes:
  0 - Every processed task completed
  1 - One or more tasks failed
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWork(rootOpts, cmd)
		},
	}
}

func runWork(opts *RootOptions, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	return opts.withWorkerSystem(cmd, func(ctx context.Context, sys *dojo.System) error {
		result := WorkResult{Processed: []WorkEntry{}}
		var text strings.Builder

		for {
			out, err := sys.Arena.ProcessNext(ctx)
			if out == nil {
				if err != nil {
					return fail(f, "work", err)
				}
				// A task settled elsewhere yields no outcome; keep going
				// while anything is still waiting.
				if sys.Arena.Stats().QueueDepth > 0 {
					continue
				}
				break
			}

			entry := WorkEntry{
				Task:   out.Task.ID,
				Domain: out.Task.Domain,
				State:  out.Task.State,
				Reused: out.Reused,
			}
			if out.Specialist != nil {
				entry.Specialist = out.Specialist.ID
			}
			if err != nil {
				entry.Error = err.Error()
				result.Failed++
			} else {
				result.Completed++
			}
			result.Processed = append(result.Processed, entry)
			f.VerboseLog("processed %s: %s", entry.Task, entry.State)

			fmt.Fprintf(&text, "%s [%s] %s", entry.Task, entry.Domain, entry.State)
			if entry.Specialist != "" {
				verb := "trained"
				if entry.Reused {
					verb = "reused"
				}
				fmt.Fprintf(&text, " (%s %s)", verb, entry.Specialist)
			}
			if entry.Error != "" {
				fmt.Fprintf(&text, ": %s", entry.Error)
			}
			text.WriteString("\n")
		}

		fmt.Fprintf(&text, "%d completed, %d failed", result.Completed, result.Failed)
		if err := f.Result(result, text.String()); err != nil {
			return err
		}
		if result.Failed > 0 {
			return &ExitError{
				Code:     ExitFailure,
				Message:  fmt.Sprintf("%d tasks failed", result.Failed),
				Reported: true,
			}
		}
		return nil
	})
}
