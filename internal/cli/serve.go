package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/sieve/internal/config"
	"github.com/roach88/sieve/internal/server"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve queries over HTTP",
		Long: `Serve the configured queries over HTTP until interrupted.

URL query parameters are the raw parameter payload, so
GET /queries/posts?q=hello&author=kevin,ada runs the posts query exactly
as "sieve run posts q=hello author=kevin,ada" would. Every request is
recorded in the run log.

Routes:
  GET  /healthz
  GET  /queries
  GET  /queries/{name}
  GET  /queries/{name}/count
  GET  /runs
  GET  /runs/{id}
  POST /runs/{id}/replay

Examples:
  sieve serve
  sieve serve --listen :9090 --database ./app.db --queries ./queries`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "listen", config.DefaultListen, "address to listen on")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	formatter, err := opts.formatter(cmd)
	if err != nil {
		return err
	}

	addr := opts.Addr
	if opts.Listen != "" {
		addr = opts.Listen
	}

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := opts.logger(cmd)
	ws, err := openWorkspace(ctx, opts.RootOptions, formatter, logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := ws.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	srv := server.New(server.Config{Service: ws.service, Addr: addr, Logger: logger})
	logger.Info("server starting",
		"addr", addr,
		"database", opts.Database,
		"queries", ws.registry.Len(),
	)

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "server error", err)
	}

	logger.Info("server stopped gracefully")
	return nil
}
