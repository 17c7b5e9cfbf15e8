// Package main runs the agentmux supervisor: it recovers persisted agent
// records, then serves the spawn/status/stop/tasks tools over MCP stdio and,
// when a port is configured, over SSE and streamable HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentmux/agentmux/internal/common/config"
	"github.com/agentmux/agentmux/internal/common/logger"
	"github.com/agentmux/agentmux/internal/common/tracing"
	"github.com/agentmux/agentmux/internal/events/bus"
	"github.com/agentmux/agentmux/internal/manager"
	"github.com/agentmux/agentmux/internal/mcpserver"
	"github.com/agentmux/agentmux/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agentmux: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer log.Sync()
	logger.SetDefault(log)

	// SIGTERM/SIGINT cancel the root context; SIGPIPE is noise from closed
	// client pipes on the stdio transport.
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	signal.Ignore(syscall.SIGPIPE)

	log.Info("starting agentmux supervisor")

	var eventBus bus.EventBus
	if cfg.Bus.URL != "" {
		log.Info("connecting to NATS", zap.String("url", cfg.Bus.URL))
		eventBus, err = bus.NewNATSEventBus(cfg.Bus, log)
		if err != nil {
			return fmt.Errorf("connect event bus: %w", err)
		}
	} else {
		eventBus = bus.NewMemoryEventBus(log)
	}
	defer eventBus.Close()

	// Operator-visible lifecycle log lines driven off the bus.
	if _, err := eventBus.Subscribe("agent.*", func(_ context.Context, n *bus.Notification) error {
		log.Info("agent lifecycle event", zap.String("subject", n.Type), zap.Any("data", n.Data))
		return nil
	}); err != nil {
		log.Warn("subscribe lifecycle events", zap.Error(err))
	}

	root := cfg.Store.Dir
	if root == "" {
		root = store.ResolveRoot(log)
	}
	st, err := store.New(root, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	log.Info("event store ready", zap.String("root", st.Root()))

	mgr := manager.New(cfg.Manager, st, eventBus, log)
	if err := mgr.Recover(); err != nil {
		return fmt.Errorf("recover agent records: %w", err)
	}

	srv := mcpserver.New(mgr, cfg.Server.Port, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ServeStdio(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio transport: %w", err)
		}
		return nil
	})

	var httpSrv *http.Server
	if cfg.Server.Port > 0 {
		gin.SetMode(gin.ReleaseMode)
		router := gin.New()
		router.Use(gin.Recovery())
		srv.RegisterRoutes(router)

		httpSrv = &http.Server{
			Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler: router,
		}
		g.Go(func() error {
			log.Info("serving MCP over HTTP", zap.String("addr", httpSrv.Addr))
			if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http transport: %w", err)
			}
			return nil
		})
	}

	<-gctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if httpSrv != nil {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("shutdown http server", zap.Error(err))
		}
	}
	if err := srv.Close(shutdownCtx); err != nil {
		log.Warn("close MCP server", zap.Error(err))
	}
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown manager", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown tracing", zap.Error(err))
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("agentmux stopped")
	return nil
}
