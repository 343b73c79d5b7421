package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/dojo/internal/arena"
	"github.com/roach88/dojo/internal/config"
	"github.com/roach88/dojo/internal/dojo"
	"github.com/roach88/dojo/internal/pattern"
	"github.com/roach88/dojo/internal/privilege"
)

// loadConfig reads --config (or the defaults) and applies --db.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.Config != "" {
		loaded, err := config.Load(o.Config)
		if err != nil {
			return config.Config{}, err
		}
		cfg = *loaded
	}
	if o.DB != "" {
		cfg.Store.Path = o.DB
	}
	return cfg, nil
}

// openSystem loads the configuration and opens the dojo. The caller closes
// the returned System.
//
// Only processes that run workers repair state left behind by an unclean
// shutdown. Every other command attaches to the store as it is, so it does
// not fail work a running server has in flight.
func (o *RootOptions) openSystem(ctx context.Context, repair bool) (*dojo.System, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}

	open := o.Open
	if open == nil {
		open = dojo.Open
	}

	var opts []dojo.Option
	if !repair {
		opts = append(opts, dojo.WithoutRepair())
	}

	slog.Debug("opening dojo", "db", cfg.Store.Path, "repair", repair)
	sys, err := open(ctx, cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open dojo", err)
	}
	return sys, nil
}

// withSystem attaches to the dojo, runs fn and closes it again.
func (o *RootOptions) withSystem(cmd *cobra.Command, fn func(ctx context.Context, sys *dojo.System) error) error {
	return o.runSystem(cmd, false, fn)
}

// withWorkerSystem is withSystem for commands that process tasks: the
// dojo is restored with repairs first.
func (o *RootOptions) withWorkerSystem(cmd *cobra.Command, fn func(ctx context.Context, sys *dojo.System) error) error {
	return o.runSystem(cmd, true, fn)
}

func (o *RootOptions) runSystem(cmd *cobra.Command, repair bool, fn func(ctx context.Context, sys *dojo.System) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	sys, err := o.openSystem(ctx, repair)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sys.Close(); closeErr != nil {
			slog.Error("error closing dojo", "error", closeErr)
		}
	}()

	return fn(ctx, sys)
}

// actor returns the validated --actor level.
func (o *RootOptions) actor() privilege.Level {
	level, err := privilege.ParseLevel(o.Actor)
	if err != nil {
		// PersistentPreRunE rejects bad levels before any command runs.
		return privilege.Sandboxed
	}
	return level
}

// formatter builds an OutputFormatter bound to the command's writers.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// fail reports err through f and returns the matching exit error. Refused
// requests exit with ExitFailure; anything the dojo could not do exits with
// ExitCommandError.
func fail(f *OutputFormatter, op string, err error) error {
	code := dojo.ErrorCode(err)
	if outErr := f.Error(code, err.Error(), errorDetails(err)); outErr != nil {
		return WrapExitError(ExitCommandError, "failed to write output", outErr)
	}

	exit := ExitCommandError
	if dojo.IsUserError(err) {
		exit = ExitFailure
	}
	return &ExitError{Code: exit, Message: fmt.Sprintf("%s failed", op), Err: err, Reported: true}
}

// errorDetails extracts the ids a caller needs to act on a refusal.
func errorDetails(err error) any {
	details := map[string]string{}

	var ve *pattern.ValidationError
	if errors.As(err, &ve) {
		if ve.ExistingID != 0 {
			details["existing_id"] = ve.ExistingID.String()
		}
		if ve.RejectedID != 0 {
			details["rejected_id"] = ve.RejectedID.String()
		}
	}

	var ae *arena.Error
	if errors.As(err, &ae) {
		if ae.ExistingID != "" {
			details["existing_id"] = string(ae.ExistingID)
		}
		if ae.SpecialistID != "" {
			details["specialist_id"] = string(ae.SpecialistID)
		}
		if ae.TaskID != "" {
			details["task_id"] = string(ae.TaskID)
		}
	}

	if len(details) == 0 {
		return nil
	}
	return details
}
