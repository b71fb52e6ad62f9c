// Command enclave runs the quorum key custodian: it loads its
// configuration, wires the attestor, phase machine, and handle store
// into an executor, and hands the executor to a coordinator that serves
// the protocol socket and supervises the pivot binary. Lifecycle style
// (serverManager struct, slog setup, signal-driven graceful shutdown)
// grounded on control-plane/cmd/popsigner-lite/main.go.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DRGroveSoftwareLLC/qos/internal/attest"
	"github.com/DRGroveSoftwareLLC/qos/internal/config"
	"github.com/DRGroveSoftwareLLC/qos/internal/coordinator"
	"github.com/DRGroveSoftwareLLC/qos/internal/executor"
	"github.com/DRGroveSoftwareLLC/qos/internal/handles"
	"github.com/DRGroveSoftwareLLC/qos/internal/metrics"
	"github.com/DRGroveSoftwareLLC/qos/internal/transport"
)

const shutdownTimeout = 10 * time.Second

// serverManager owns every long-lived component the process runs:
// the protocol listener (via the coordinator), and the metrics HTTP
// server, both reporting fatal errors onto the same channel.
type serverManager struct {
	logger         *slog.Logger
	cfg            *config.Config
	coordinator    *coordinator.Coordinator
	metricsSrv     *http.Server
	serverErrors   chan error
	shutdownCancel context.CancelFunc
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Log)
	logger.Info("starting enclave", slog.String("socket", cfg.Socket.Address))

	sm := &serverManager{
		logger:       logger,
		cfg:          cfg,
		serverErrors: make(chan error, 2),
	}

	if err := sm.run(); err != nil {
		logger.Error("enclave exited with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func (sm *serverManager) run() error {
	if err := sm.setup(); err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	sm.start()
	return sm.waitForShutdown()
}

func setupLogger(cfg config.LogConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func (sm *serverManager) setup() error {
	h := handles.New(sm.cfg.Handles.RootDir)
	if err := os.MkdirAll(sm.cfg.Handles.RootDir, 0o700); err != nil {
		return fmt.Errorf("create handles root: %w", err)
	}

	attestor, err := attest.New(sm.cfg.Attestor.Mode, sm.cfg.Attestor.ModuleID)
	if err != nil {
		return fmt.Errorf("construct attestor: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	exec := executor.New(h, attestor, sm.logger.With(slog.String("component", "executor"))).WithMetrics(m)

	ln, err := net.Listen(sm.cfg.Socket.Network, sm.cfg.Socket.Address)
	if err != nil {
		return fmt.Errorf("listen on %s %s: %w", sm.cfg.Socket.Network, sm.cfg.Socket.Address, err)
	}

	srv := transport.NewServer(ln, exec.Handle, sm.logger.With(slog.String("component", "transport")))
	srv.MaxFrameSize = sm.cfg.Socket.MaxFrameSize
	srv.PanicResponse = exec.PanicResponse

	sm.coordinator = coordinator.New(srv, h, sm.logger.With(slog.String("component", "coordinator"))).WithMetrics(m)

	if sm.cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(sm.cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		sm.metricsSrv = &http.Server{Addr: sm.cfg.Metrics.Address, Handler: mux}
	}

	return nil
}

func (sm *serverManager) start() {
	ctx, cancel := context.WithCancel(context.Background())
	sm.shutdownCancel = cancel

	go func() {
		if err := sm.coordinator.Execute(ctx); err != nil && err != context.Canceled {
			sm.serverErrors <- fmt.Errorf("coordinator: %w", err)
		}
	}()

	if sm.metricsSrv != nil {
		go func() {
			sm.logger.Info("starting metrics server", slog.String("address", sm.metricsSrv.Addr))
			if err := sm.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				sm.serverErrors <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}
}

func (sm *serverManager) waitForShutdown() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		sm.logger.Info("received shutdown signal")
	case err := <-sm.serverErrors:
		sm.logger.Error("server error", slog.String("error", err.Error()))
		sm.shutdownCancel()
		return err
	}

	sm.shutdownCancel()
	return sm.shutdown()
}

func (sm *serverManager) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	if sm.metricsSrv != nil {
		if err := sm.metricsSrv.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("metrics shutdown: %w", err)
		}
	}

	sm.logger.Info("enclave stopped")
	return shutdownErr
}
