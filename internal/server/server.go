package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/roach88/resquel/internal/config"
	"github.com/roach88/resquel/internal/dialect"
	"github.com/roach88/resquel/internal/engine"
	"github.com/roach88/resquel/internal/route"
)

// Deps are the collaborators a server is built from. Connector is
// required; everything else has a default.
type Deps struct {
	Connector dialect.Connector
	Hooks     *Registry
	Logger    *slog.Logger
	TraceIDs  engine.TraceIDGenerator
	Observer  Observer
}

// NewHandler builds the HTTP handler serving routes plus GET /health.
//
// Route hooks are bound from deps.Hooks. Duplicate or conflicting route
// patterns are an error.
func NewHandler(cfg config.Config, routes []route.Spec, deps Deps) (http.Handler, error) {
	if deps.Connector == nil {
		return nil, fmt.Errorf("server: connector is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hooks := deps.Hooks
	if hooks == nil {
		hooks = NewRegistry()
	}

	exec := engine.NewExecutor(deps.Connector,
		engine.WithPolicy(cfg.FailurePolicy),
		engine.WithLogger(logger),
	)
	ctrl := NewController(exec, deps.TraceIDs, logger, deps.Observer)

	mux := http.NewServeMux()
	if err := register(mux, "GET /health", healthHandler(deps.Connector)); err != nil {
		return nil, err
	}
	for i, spec := range routes {
		bound, err := hooks.Bind(spec)
		if err != nil {
			return nil, err
		}
		pattern, err := bound.MuxPattern()
		if err != nil {
			return nil, fmt.Errorf("route %d: %w", i, err)
		}
		if err := register(mux, pattern, ctrl.Handler(bound)); err != nil {
			return nil, fmt.Errorf("route %d (%s): %w", i, bound, err)
		}
		logger.Debug("route registered", "index", i, "route", bound.String(), "pattern", pattern)
	}
	if err := register(mux, "/", http.HandlerFunc(notFoundHandler)); err != nil {
		return nil, err
	}

	var h http.Handler = mux
	h = MethodOverride(h)
	h = Auth(cfg.Auth, h)
	h = Logging(logger, h)
	return h, nil
}

// NewServer builds an *http.Server listening on cfg.APIListen.
func NewServer(cfg config.Config, routes []route.Spec, deps Deps) (*http.Server, error) {
	addr := strings.TrimSpace(cfg.APIListen)
	if err := config.ValidateListenAddr(addr); err != nil {
		return nil, err
	}

	handler, err := NewHandler(cfg, routes, deps)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}, nil
}

// register adds a pattern to mux, turning ServeMux's conflict panic into an
// error.
func register(mux *http.ServeMux, pattern string, h http.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("register %q: %v", pattern, r)
		}
	}()
	mux.Handle(pattern, h)
	return nil
}

func healthHandler(conn dialect.Connector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		if err := conn.Ping(ctx); err != nil {
			WriteError(w, http.StatusServiceUnavailable, "Database connection failed", "DB_UNAVAILABLE", "")
			return
		}
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "driver": string(conn.Driver())})
	}
}

func notFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteError(w, http.StatusNotFound, "Not found", "NOT_FOUND", r.URL.Query().Get("requestId"))
}
