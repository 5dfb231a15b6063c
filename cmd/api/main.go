package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	companion "github.com/onkernel/workspace-companion"
	"github.com/onkernel/workspace-companion/cmd/api/api"
	"github.com/onkernel/workspace-companion/cmd/config"
	"github.com/onkernel/workspace-companion/lib/files"
	"github.com/onkernel/workspace-companion/lib/fswatch"
	"github.com/onkernel/workspace-companion/lib/logger"
	"github.com/onkernel/workspace-companion/lib/terminal"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const shutdownTimeout = 10 * time.Second

func main() {
	// Load configuration from environment variables
	config, err := config.Load()
	if err != nil {
		logger.New(os.Stderr, "info", "text").Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	slogger := logger.New(os.Stdout, config.LogLevel, config.LogFormat)
	slogger.Info("server configuration", "config", config)

	// context cancellation on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := companion.LoadOpenAPI(ctx); err != nil {
		slogger.Error("embedded openapi document is invalid", "err", err)
		os.Exit(1)
	}

	store, err := files.New(config.RootDir, config.MaxReadBytes)
	if err != nil {
		slogger.Error("invalid root directory", "root", config.RootDir, "err", err)
		os.Exit(1)
	}
	root := store.Root()

	ln, err := net.Listen("tcp", config.Addr())
	if err != nil {
		slogger.Error("failed to bind listener", "addr", config.Addr(), "err", err)
		os.Exit(1)
	}

	broadcaster := fswatch.New(root, slogger)
	if err := broadcaster.Start(); err != nil {
		// the API keeps working without change notifications
		slogger.Error("file watcher failed to start", "root", root, "err", err)
	}

	terminals := terminal.NewManager(terminal.Config{
		Shell: config.TerminalShell,
		Dir:   root,
		Cols:  config.TerminalCols,
		Rows:  config.TerminalRows,
	}, slogger)

	apiService := api.New(store, broadcaster, terminals, api.Options{
		Version:        version,
		AllowedOrigins: config.AllowedOrigins,
		MaxBodyBytes:   config.MaxReadBytes*4/3 + 1<<20,
	})

	srv := &http.Server{
		Handler:           apiService.Handler(slogger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slogger.Info("http server starting", "addr", ln.Addr().String(), "root", root, "version", version)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogger.Error("http server failed", "err", err)
			stop()
		}
	}()

	// graceful shutdown
	<-ctx.Done()
	slogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiService.Shutdown(shutdownCtx); err != nil {
		slogger.Error("failed to close sockets", "err", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slogger.Error("server failed to shutdown", "err", err)
	}
	slogger.Info("server stopped")
}
