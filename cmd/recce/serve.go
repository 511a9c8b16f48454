package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	_ "github.com/mattn/go-sqlite3"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	recce "github.com/DataRecce/recce-sub014"
	"github.com/DataRecce/recce-sub014/internal/config"
	"github.com/DataRecce/recce-sub014/pkg/middleware"
	"github.com/DataRecce/recce-sub014/pkg/state"
)

func serveCmd() *cobra.Command {
	var (
		addr       string
		configPath string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the review shell server",
		Long: `Serve starts the review shell: the shell page, the WebSocket session
endpoint, /healthz, and /metrics.

Configuration comes from recce.json (found by walking up from the current
directory, or given with --config); flags override the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(addr, configPath, verbose)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (overrides recce.json)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to recce.json")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runServe(addr, configPath string, verbose bool) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Addr = addr
	}

	store, storeDesc, err := buildStore(cfg)
	if err != nil {
		return err
	}

	appCfg, err := buildAppConfig(cfg, store, logger)
	if err != nil {
		return err
	}

	app, err := recce.New(appCfg)
	if err != nil {
		return err
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.Handle("/*", app)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	success("recce %s", version)
	info("address:   %s", cfg.Addr)
	info("snapshots: %s", storeDesc)
	if cfg.Metrics.Enabled {
		info("metrics:   %s/metrics", cfg.Addr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	appErr := app.Shutdown(shutdownCtx)
	httpErr := httpSrv.Shutdown(shutdownCtx)
	if appErr != nil {
		return appErr
	}
	return httpErr
}

// loadConfig resolves the effective recce.json: an explicit path, the
// nearest file walking up from the working directory, or pure defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, dir, err := config.Find(wd)
	if err != nil {
		warn("no %s found, serving the demo shell on defaults", config.ConfigFileName)
		return config.New(), nil
	}
	info("config:    %s", dir+"/"+config.ConfigFileName)
	return cfg, nil
}

// buildStore constructs the snapshot store the config selects.
func buildStore(cfg *config.Config) (recce.Store, string, error) {
	switch cfg.Snapshot.Backend {
	case "", config.BackendMemory:
		return state.NewMemoryStore(), "memory", nil

	case config.BackendSQLite:
		db, err := sql.Open("sqlite3", cfg.Snapshot.Path)
		if err != nil {
			return nil, "", fmt.Errorf("open sqlite store: %w", err)
		}
		store := state.NewSQLStore(db, state.WithSQLDialect(state.DialectSQLite))
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := store.CreateTable(ctx); err != nil {
			return nil, "", fmt.Errorf("create snapshot table: %w", err)
		}
		return store, "sqlite " + cfg.Snapshot.Path, nil

	case config.BackendS3:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.Snapshot.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.Snapshot.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, "", fmt.Errorf("load aws config: %w", err)
		}
		client := s3.NewFromConfig(awsCfg)
		store := state.NewS3Store(client, cfg.Snapshot.Bucket,
			state.WithS3Prefix(cfg.Snapshot.Prefix))
		return store, "s3 " + cfg.Snapshot.Bucket, nil

	default:
		return nil, "", fmt.Errorf("unknown snapshot backend %q", cfg.Snapshot.Backend)
	}
}

// buildAppConfig translates the file config into the application config.
func buildAppConfig(cfg *config.Config, store recce.Store, logger *slog.Logger) (recce.Config, error) {
	appCfg := recce.Config{
		Addr:     cfg.Addr,
		Logger:   logger,
		Snapshot: recce.SnapshotConfig{Store: store},
		Limits: recce.LimitsConfig{
			MaxSessions:      cfg.Limits.MaxSessions,
			MaxSessionsPerIP: cfg.Limits.MaxSessionsPerIP,
		},
		Security: recce.SecurityConfig{
			TrustedProxies: cfg.Security.TrustedProxies,
		},
	}

	rw, err := cfg.ResumeWindow()
	if err != nil {
		return recce.Config{}, err
	}
	appCfg.Session.ResumeWindow = rw

	idle, err := cfg.IdleTimeout()
	if err != nil {
		return recce.Config{}, err
	}
	appCfg.Session.IdleTimeout = idle

	if cfg.Security.CSRFSecretEnv != "" {
		secret := os.Getenv(cfg.Security.CSRFSecretEnv)
		if secret == "" {
			return recce.Config{}, fmt.Errorf("csrf secret env %s is empty", cfg.Security.CSRFSecretEnv)
		}
		appCfg.Security.CSRFSecret = []byte(secret)
	}

	if cfg.Metrics.Enabled {
		appCfg.Middleware = append(appCfg.Middleware,
			middleware.Prometheus(middleware.WithNamespace(cfg.Metrics.Namespace)))
	}
	appCfg.Middleware = append(appCfg.Middleware, middleware.OpenTelemetry())

	return appCfg, nil
}
