package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/dojo/internal/mcptools"
	"github.com/roach88/dojo/internal/metrics"
)

// shutdownTimeout bounds the metrics server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	NoMCP       bool
	MetricsAddr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run arena workers and the MCP server",
		Long: `Run the arena's workers against the task queue and expose the dojo as MCP
tools over stdio.

Prometheus metrics are served on metrics.addr (or --metrics-addr) when set.
The server stops on SIGINT/SIGTERM or when the MCP client disconnects;
queued tasks stay queued and are restored on the next start.

Tasks queued with "dojo submit" from another process are picked up every
arena.poll_interval, and tasks cancelled elsewhere are withdrawn.

MCP client configuration:
  {"mcpServers": {"dojo": {"command": "dojo", "args": ["serve"]}}}

Examples:
  dojo serve --config dojo.yaml
  dojo serve --no-mcp --metrics-addr 127.0.0.1:9464 --verbose`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoMCP, "no-mcp", false, "only run workers; do not serve MCP on stdio")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	// Long-running: log lifecycle at info unless verbose asked for more.
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	sys, err := opts.openSystem(ctx, true)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := sys.Close(); closeErr != nil {
			slog.Error("error closing dojo", "error", closeErr)
		}
	}()

	if !sys.Recovery.Clean() {
		slog.Warn("recovered from unclean shutdown",
			"interrupted_specialists", sys.Recovery.InterruptedSpecialists,
			"interrupted_tasks", sys.Recovery.InterruptedTasks)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sys.Run(gctx)
	})

	// Tasks submitted by other processes reach this queue through the store.
	g.Go(func() error {
		return sys.Poll(gctx)
	})

	metricsAddr := opts.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = sys.Config.Metrics.Addr
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			slog.Info("metrics listening", "addr", metricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if !opts.NoMCP {
		mcpServer := mcptools.NewServer(sys, Version)
		stdio := server.NewStdioServer(mcpServer)

		g.Go(func() error {
			slog.Info("mcp server listening on stdio")
			err := stdio.Listen(gctx, cmd.InOrStdin(), cmd.OutOrStdout())
			// The client went away: stop the workers too.
			cancel()
			return err
		})
	}

	slog.Info("dojo serving",
		"db", sys.Config.Store.Path,
		"workers", sys.Config.Arena.Workers,
		"poll_interval", sys.Config.Arena.PollInterval.Std(),
		"mcp", !opts.NoMCP)

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitCommandError, "serve failed", err)
	}

	slog.Info("dojo stopped")
	return nil
}
