package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/creastat/chatguard/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the session reaper and the observability endpoints",
	Long: `Run the session reaper on its configured interval and, when metrics are
enabled, serve /metrics, /health and /ready until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.log.Info().
		Str("version", version).
		Str("store", a.cfg.Store.Driver).
		Int("max_messages", a.cfg.Session.MaxMessages).
		Msg("chatguard starting")

	done := make(chan struct{})
	go func() {
		defer close(done)
		a.newReaper().Run(ctx)
	}()

	errCh := make(chan error, 1)
	var obs *server.ObservabilityServer
	if a.cfg.Metrics.Enabled {
		obs = server.NewObservabilityServer(a.cfg.Metrics.Port, a.registry, a.ready, a.log)
		go func() {
			errCh <- obs.Start()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		stop()
	}

	if obs != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := obs.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, err)
		}
	}

	<-done
	a.log.Info().Msg("chatguard stopped")
	return runErr
}

func (a *app) ready(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	_, err := a.store.CountSessions(ctx)
	return err
}
