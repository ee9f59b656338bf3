package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/resquel/internal/compiler"
	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/server"
)

const shutdownTimeout = 10 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	ConfigPath string
	LogFormat  string // "text" | "json"
	Listen     string // overrides apiListen when set

	// TraceIDs allows overriding the request id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	TraceIDs engine.TraceIDGenerator

	// Ready, when set, receives the server address once it is listening.
	Ready func(addr string)
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return newServeCommand(&ServeOptions{RootOptions: rootOpts})
}

func newServeCommand(opts *ServeOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the configured routes over HTTP",
		Long: `Start the HTTP server for the routes declared in a config file.

The config's inline routes and the CUE routes in its routesDir are
validated, the database connection is opened and pinged, and the server
listens on apiListen until interrupted.

Exit codes:
  0 - Stopped by signal
  1 - Server error
  2 - Invalid config or routes, database unreachable

Example:
  resquel serve --config ./resquel.yaml
  resquel serve -c ./resquel.yaml --listen 0.0.0.0:8080 --log-format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "resquel.yaml", "path to config file")
	cmd.Flags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "listen address (overrides apiListen)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		if errors.Is(err, config.ErrNotFound) {
			return WrapExitError(ExitCommandError, "config not found", err)
		}
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Listen != "" {
		cfg.APIListen = opts.Listen
	}

	logger, err := newLogger(cmd.ErrOrStderr(), opts.LogFormat, opts.Verbose || cfg.Debug)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if errs := compiler.Validate(cfg.Routes, opts.hookSet()); len(errs) > 0 {
		for _, e := range errs {
			logger.Error("invalid route", "code", e.Code, "field", e.Field, "error", e.Message)
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid routes: %d error(s), first: %s", len(errs), errs[0].Error()))
	}
	logger.Info("routes loaded", "count", len(cfg.Routes), "routes_dir", cfg.RoutesDir)

	conn, err := openDatabase(cfg.DB)
	if err != nil {
		logger.Error("database unavailable", "driver", cfg.DB.Driver, "error", err)
		return err
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	logger.Info("database ready", "driver", conn.Driver())

	srv, err := server.NewServer(cfg, cfg.Routes, server.Deps{
		Connector: conn,
		Hooks:     opts.Hooks,
		Logger:    logger,
		TraceIDs:  opts.TraceIDs,
	})
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build server", err)
	}

	// Use command's context if available (for testing), otherwise create one
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
			logger.Info("shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	ln, err := listen(ctx, srv.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	addr := ln.Addr().String()
	logger.Info("resquel listening", "addr", addr)
	if opts.Ready != nil {
		opts.Ready(addr)
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server stopped", err)
		}
	case <-ctx.Done():
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return WrapExitError(ExitFailure, "server stopped", err)
		}
	}

	logger.Info("server stopped gracefully")
	return nil
}

// newLogger builds the process logger. Debug level is enabled by --verbose
// or the config's debug flag.
// openDatabase opens the configured connector. Connection failures carry
// ErrCodeConnection in the exit error message.
func openDatabase(db config.DBConfig) (dialect.Connector, error) {
	conn, err := dialect.Open(db)
	if err == nil {
		return conn, nil
	}
	if dialect.IsConnectionError(err) {
		return nil, WrapExitError(ExitCommandError, ErrCodeConnection+": failed to open database", err)
	}
	return nil, WrapExitError(ExitCommandError, "failed to open database", err)
}

func newLogger(w io.Writer, format string, debug bool) (*slog.Logger, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, hopts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, hopts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q: must be text or json", format)
	}
}

func listen(ctx context.Context, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, "tcp", addr)
}
