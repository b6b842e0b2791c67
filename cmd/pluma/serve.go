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

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harunnryd/pluma/pkg/pluma"
	"github.com/harunnryd/pluma/pkg/runner"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, websocket gateway and reminder scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides server.addr)")
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	logger := pluma.SetDefaultLogger(cfg.LogLevel, cfg.LogFormat)

	c, err := pluma.New(cfg, pluma.Options{Logger: logger})
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	lifecycle := runner.NewLifecycleRunner(runner.Options{
		Drainer: runner.DrainerFunc(c.Drain),
		Timeout: time.Duration(cfg.Server.DrainTimeoutMS) * time.Millisecond,
		Banner:  os.Stdout,
		Version: pluma.Version,
		Hooks: runner.Hooks{
			OnStart: func() { logger.Info("pluma_serving", "addr", cfg.Server.Addr, "ws_path", cfg.Server.WSPath) },
			OnStop:  func() { logger.Info("pluma_stopped") },
		},
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error { return c.Reminders().Run(gctx) })
	g.Go(func() error {
		drainErr := lifecycle.Run(gctx)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return drainErr
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
