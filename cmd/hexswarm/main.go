package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hexswarm/hexswarm/internal/adapter/cliagent"
	_ "github.com/hexswarm/hexswarm/internal/adapter/coordinator"
	"github.com/hexswarm/hexswarm/internal/adapter/filestore"
	hxhttp "github.com/hexswarm/hexswarm/internal/adapter/http"
	"github.com/hexswarm/hexswarm/internal/adapter/ledgerfile"
	hxmcp "github.com/hexswarm/hexswarm/internal/adapter/mcp"
	hxnats "github.com/hexswarm/hexswarm/internal/adapter/nats"
	"github.com/hexswarm/hexswarm/internal/adapter/natskv"
	"github.com/hexswarm/hexswarm/internal/adapter/notifydir"
	hxotel "github.com/hexswarm/hexswarm/internal/adapter/otel"
	"github.com/hexswarm/hexswarm/internal/adapter/ristretto"
	"github.com/hexswarm/hexswarm/internal/adapter/sqlite"
	"github.com/hexswarm/hexswarm/internal/adapter/tiered"
	"github.com/hexswarm/hexswarm/internal/adapter/ws"
	"github.com/hexswarm/hexswarm/internal/config"
	"github.com/hexswarm/hexswarm/internal/logger"
	"github.com/hexswarm/hexswarm/internal/middleware"
	"github.com/hexswarm/hexswarm/internal/port/broadcast"
	"github.com/hexswarm/hexswarm/internal/port/cache"
	"github.com/hexswarm/hexswarm/internal/port/executor"
	"github.com/hexswarm/hexswarm/internal/port/notifier"
	"github.com/hexswarm/hexswarm/internal/procpool"
	"github.com/hexswarm/hexswarm/internal/resilience"
	"github.com/hexswarm/hexswarm/internal/secrets"
	"github.com/hexswarm/hexswarm/internal/service"
)

const (
	pruneInterval   = time.Hour
	limiterCleanup  = time.Minute
	limiterMaxIdle  = 10 * time.Minute
	shutdownTimeout = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"agent", cfg.Agent.Name,
		"task_dir", cfg.Storage.TaskDir,
		"mcp_transport", cfg.Server.MCPTransport,
		"http_port", cfg.Server.HTTPPort,
		"nats", cfg.NATS.URL != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Observability ---

	shutdownOtel, err := hxotel.Setup(ctx, hxotel.Options{
		ServiceName:    cfg.Logging.Service,
		ServiceVersion: cfg.Agent.Version,
		Endpoint:       cfg.Otel.Endpoint,
		Insecure:       cfg.Otel.Insecure,
		SampleRate:     cfg.Otel.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("otel shutdown", "error", err)
		}
	}()
	metrics, err := hxotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Storage ---

	store, err := filestore.New(cfg.Storage.TaskDir, filestore.Options{
		LockAttempts:       cfg.Storage.LockAttempts,
		LockInitialBackoff: cfg.Storage.LockInitialBackoff,
		LockMaxBackoff:     cfg.Storage.LockMaxBackoff,
	})
	if err != nil {
		return fmt.Errorf("task store: %w", err)
	}

	tracker, err := service.NewResourceTracker(ctx, ledgerfile.New(cfg.Resources.LedgerPath), service.ResourceConfig{
		ContextLimits: cfg.Resources.ContextLimits,
		Budgets:       cfg.Resources.Budgets,
		Capabilities:  cfg.Resources.Capabilities,
	})
	if err != nil {
		return fmt.Errorf("resource tracker: %w", err)
	}

	perf := service.NewPerformanceService(nil)
	if cfg.Performance.DBPath != "" {
		db, err := sqlite.Open(ctx, cfg.Performance.DBPath)
		if err != nil {
			return fmt.Errorf("performance db: %w", err)
		}
		defer func() { _ = db.Close() }()
		perf = service.NewPerformanceService(db)
		slog.Info("performance db ready", "path", cfg.Performance.DBPath)
	}

	inbox, err := notifydir.New(cfg.Notifications.Dir)
	if err != nil {
		return fmt.Errorf("notification inbox: %w", err)
	}

	// --- NATS (optional) ---

	breaker := resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout)
	hub := ws.NewHub(cfg.Server.CORSOrigin)
	defer hub.Close()

	notifiers := notifier.Fanout{inbox}
	broadcasters := broadcast.Fanout{hub}
	var l2 cache.Cache
	var queue *hxnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = hxnats.Connect(ctx, cfg.NATS.URL, cfg.Agent.Name)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() {
			if err := queue.Drain(); err != nil {
				slog.Warn("nats drain", "error", err)
			}
		}()
		notifiers = append(notifiers, hxnats.NewCompletionPublisher(queue, breaker))
		broadcasters = append(broadcasters, hxnats.NewStatusPublisher(queue, breaker))

		kv, err := natskv.Open(ctx, queue.JetStream(), cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		l2 = kv
		slog.Info("nats connected", "url", cfg.NATS.URL)
	}

	// --- Cache ---

	l1, err := ristretto.New(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer l1.Close()
	readCache := tiered.New(l1, l2, cfg.Cache.L1TTL, breaker)

	// --- Executor ---

	vault, err := secrets.NewVault(secrets.Chain(
		secrets.EnvLoader(cfg.Executor.SecretEnv...),
		secrets.FileLoader(cfg.Executor.SecretsFile),
	))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}
	pool := procpool.New(cfg.Executor.MaxConcurrent)
	cliagent.Register(pool, vault)

	exec, err := executor.New(cfg.Agent.Name, map[string]string{
		"name":    cfg.Agent.Name,
		"cli":     cfg.Executor.CLI,
		"args":    strings.Join(cfg.Executor.Args, " "),
		"workdir": cfg.Executor.WorkDir,
	})
	if err != nil {
		return fmt.Errorf("executor (available: %s): %w", strings.Join(executor.Available(), ", "), err)
	}

	// --- Orchestrator ---

	orch := service.NewOrchestrator(service.OrchestratorConfig{
		Agent:          cfg.Agent.Name,
		DID:            cfg.Agent.DID,
		Version:        cfg.Agent.Version,
		Fallback:       cfg.Agent.Fallback,
		Capabilities:   cfg.AgentCapabilities(),
		DefaultTimeout: cfg.Executor.DefaultTimeout,
	}, store, exec, tracker)
	orch.SetVerifier(service.NewAllowlistVerifier(cfg.Auth.AllowedDIDs))
	orch.SetRecordCache(cache.NewRecords(readCache, cfg.Cache.L2TTL))
	orch.SetNotifier(notifiers)
	orch.SetInbox(inbox)
	orch.SetPerformance(perf)
	orch.SetBroadcaster(broadcasters)
	orch.SetMetrics(metrics)

	repaired, err := orch.Reconcile(ctx)
	if err != nil {
		// Unreadable records are reported but do not block start-up.
		slog.Warn("reconciliation incomplete", "repaired", repaired, "error", err)
	}

	if queue != nil {
		relay := service.NewNotificationRelay(queue, inbox, cfg.Agent.Name)
		cancelRelay, err := relay.Start(ctx)
		if err != nil {
			return fmt.Errorf("completion relay: %w", err)
		}
		defer cancelRelay()
	}

	// --- Serve ---

	g, gctx := errgroup.WithContext(ctx)

	mcpSrv := hxmcp.NewServer(hxmcp.ServerConfig{
		Name:      cfg.Agent.Name,
		Version:   cfg.Agent.Version,
		Transport: cfg.Server.MCPTransport,
		Addr:      cfg.Server.MCPAddr,
		Token:     cfg.Server.MCPToken,
	}, orch)
	g.Go(func() error {
		// A closed stdio stream means the client is gone; stop everything.
		defer stop()
		return mcpSrv.Serve(gctx)
	})

	if cfg.Server.HTTPPort != "" {
		limiter := middleware.NewRateLimiter(cfg.Server.SubmitRate, cfg.Server.SubmitBurst)
		g.Go(func() error {
			limiter.RunCleanup(gctx, limiterCleanup, limiterMaxIdle)
			return nil
		})
		router := hxhttp.NewRouter(&hxhttp.Handlers{Tasks: orch}, hxhttp.RouterOptions{
			ServiceName:    cfg.Logging.Service,
			CORSOrigin:     cfg.Server.CORSOrigin,
			Limiter:        limiter,
			Idempotency:    readCache,
			IdempotencyTTL: cfg.Server.IdempotencyTTL,
			WebSocket:      hub.HandleWS,
		})
		g.Go(func() error { return serveHTTP(gctx, ":"+cfg.Server.HTTPPort, router) })
	}

	g.Go(func() error {
		service.RunPruner(gctx, inbox, cfg.Notifications.Retention, pruneInterval)
		return nil
	})

	g.Go(func() error {
		reloadOnHangup(gctx, vault)
		return nil
	})

	slog.Info("hexswarm agent ready", "agent", cfg.Agent.Name, "executor", exec.Name())
	err = g.Wait()
	slog.Info("hexswarm agent stopped")
	return err
}

// serveHTTP runs the REST API until ctx is done. Submissions block until
// the task finishes, so there is no write timeout.
func serveHTTP(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// reloadOnHangup re-reads executor secrets on SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, vault *secrets.Vault) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			if err := vault.Reload(); err != nil {
				slog.Error("secrets reload failed", "error", err)
				continue
			}
			slog.Info("secrets reloaded", "keys", len(vault.Keys()))
		}
	}
}
