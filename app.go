package recce

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DataRecce/recce-sub014/pkg/lineage"
	"github.com/DataRecce/recce-sub014/pkg/query"
	"github.com/DataRecce/recce-sub014/pkg/router"
	"github.com/DataRecce/recce-sub014/pkg/server"
	"github.com/DataRecce/recce-sub014/pkg/slot"
)

// Default slot names.
const (
	SlotLineage = "lineage"
	SlotQuery   = "query"
)

// DefaultSlots declares the standard review shell: the demo lineage graph
// on /lineage and an empty query scratchpad on /query.
func DefaultSlots() []Declaration {
	return []Declaration{
		{
			Name:  SlotLineage,
			Route: "/lineage",
			Build: func() (slot.View, error) {
				return lineage.New(lineage.DemoGraph())
			},
		},
		{
			Name:  SlotQuery,
			Route: "/query",
			Build: func() (slot.View, error) {
				return query.New(), nil
			},
		},
	}
}

// App is the assembled review shell: the session server, the route table,
// the declared slots, and the HTTP surface that serves the shell page and
// the WebSocket endpoint.
type App struct {
	config Config
	logger *slog.Logger
	server *server.Server

	httpServer *http.Server
}

// New assembles an App from the config. Slot declarations are validated
// here: duplicate slot names, conflicting route patterns, or alias routes
// naming unknown slots are configuration errors and fail construction.
func New(cfg Config) (*App, error) {
	cfg = cfg.withDefaults()

	srv := server.New(cfg.buildServerConfig(), cfg.Logger)
	if err := srv.Declare(cfg.Slots...); err != nil {
		return nil, fmt.Errorf("recce: slot declarations: %w", err)
	}

	declared := make(map[string]bool, len(cfg.Slots))
	for _, d := range cfg.Slots {
		declared[d.Name] = true
	}
	for pattern, name := range cfg.Routes {
		if !declared[name] {
			return nil, fmt.Errorf("recce: route %q names undeclared slot %q", pattern, name)
		}
		if err := srv.Router().Bind(pattern, name); err != nil {
			return nil, fmt.Errorf("recce: extra routes: %w", err)
		}
	}

	srv.Use(cfg.Middleware...)

	app := &App{
		config: cfg,
		logger: cfg.Logger.With("component", "app"),
		server: srv,
	}
	app.registerEventHandlers()
	return app, nil
}

// Server returns the underlying session server.
func (a *App) Server() *server.Server {
	return a.server
}

// Router returns the route table, for inspection or extra bindings before
// the app starts serving.
func (a *App) Router() *router.Router {
	return a.server.Router()
}

// Logger returns the app's base logger.
func (a *App) Logger() *slog.Logger {
	return a.config.Logger
}

// ServeHTTP dispatches between the WebSocket endpoint, the health
// endpoint, and the shell page.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == a.config.WebSocketPath:
		a.server.HandleWebSocket(w, r)
	case r.URL.Path == "/healthz":
		a.serveHealth(w, r)
	default:
		a.serveShell(w, r)
	}
}

// serveHealth reports liveness and the connected session count.
func (a *App) serveHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":   "ok",
		"sessions": a.server.SessionCount(),
	})
}

// Run listens on the configured address and blocks until the listener
// fails or the process receives SIGINT or SIGTERM, then shuts down
// gracefully.
func (a *App) Run() error {
	httpSrv := &http.Server{
		Addr:              a.config.Addr,
		Handler:           a,
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", "address", a.config.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return err
	case received := <-sig:
		a.logger.Info("shutting down", "signal", received.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Shutdown(ctx)
}

// Shutdown closes every session, flushes detached snapshots, and stops the
// HTTP listener. Safe to call more than once.
func (a *App) Shutdown(ctx context.Context) error {
	srvErr := a.server.Shutdown(ctx)

	var httpErr error
	if a.httpServer != nil {
		httpErr = a.httpServer.Shutdown(ctx)
	}

	if srvErr != nil {
		return srvErr
	}
	return httpErr
}
