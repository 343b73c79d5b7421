package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/notify"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Count int
}

// SpecialistState is the last published state of one specialist.
type SpecialistState struct {
	SpecialistID string `json:"specialist_id"`
	State        string `json:"state"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch [specialist...]",
		Short: "Follow specialist lifecycle events from Redis",
		Long: `Follow the lifecycle events a running dojo publishes to Redis
(notify.redis_addr and notify.instance must be configured).

With specialist ids, their last published state is printed first and only
their events are followed. Pub/sub delivery is at most once; the printed
state is the authoritative one.

Examples:
  dojo watch --config dojo.yaml
  dojo watch 0190f1c2-7d3e-7b4a-9c1d-2f3e4a5b6c7d --count 3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args, cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "exit after this many events (0 follows until interrupted)")

	return cmd
}

func runWatch(opts *WatchOptions, ids []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if cfg.Notify.RedisAddr == "" {
		return NewExitError(ExitCommandError, "notify.redis_addr is not configured")
	}

	pub, err := dojo.ConnectRedis(ctx, cfg.Notify)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect to Redis", err)
	}
	defer pub.Close()

	// Subscribe before reading states so no transition falls in between.
	sub, err := pub.Subscribe(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to subscribe", err)
	}
	defer sub.Close()

	for _, id := range ids {
		state, err := pub.State(ctx, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read state", err)
		}
		text := fmt.Sprintf("%s %s", id, state)
		if state == "" {
			text = fmt.Sprintf("%s (no events yet)", id)
		}
		if err := f.Result(SpecialistState{SpecialistID: id, State: state}, text); err != nil {
			return err
		}
	}

	slog.Debug("watching lifecycle events", "instance", cfg.Notify.Instance, "specialists", len(ids))

	seen := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-sub.Errors():
			if ok {
				slog.Warn("skipping undecodable event", "error", err)
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return NewExitError(ExitCommandError, "subscription closed")
			}
			if len(ids) > 0 && !slices.Contains(ids, ev.SpecialistID) {
				continue
			}
			if err := f.Result(ev, describeEvent(ev)); err != nil {
				return err
			}
			seen++
			if opts.Count > 0 && seen >= opts.Count {
				return nil
			}
		}
	}
}

func describeEvent(ev notify.StateChanged) string {
	return fmt.Sprintf("#%d %s [%s] %s -> %s", ev.Seq, ev.SpecialistID, ev.Domain, ev.From, ev.To)
}
