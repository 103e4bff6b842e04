// Package main provides the localhost server for desktop platforms.
// Desktop shells talk to the offline core via REST/WebSocket on 127.0.0.1:8090.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smarttourjo/core/internal/app"
	"github.com/smarttourjo/core/internal/config"
	"github.com/smarttourjo/core/internal/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("SMARTTOUR_CONFIG"), "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		logging.Error("Desktop server failed", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	a, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := NewWSHub()
	defer hub.Close()
	a.Engine.SetEventHandler(hub.BroadcastSyncEvent)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Desktop.Addr,
		Handler:           newRouter(a, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("Desktop server starting", map[string]interface{}{"addr": cfg.Desktop.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Info("Desktop server shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
