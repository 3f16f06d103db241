package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpserver "github.com/fyrsmithlabs/ragstore/internal/http"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the store over HTTP",
		Long: `Start the HTTP API and block until interrupted. The store is saved on
shutdown when a directory is configured.

Endpoints:
  GET    /health
  GET    /metrics
  POST   /api/v1/nodes
  GET    /api/v1/nodes/:id
  DELETE /api/v1/nodes/:id
  POST   /api/v1/query
  POST   /api/v1/search
  POST   /api/v1/persist`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(a *app) error {
				cfg := &httpserver.Config{Host: a.cfg.Server.Host, Port: a.cfg.Server.Port}
				if host != "" {
					cfg.Host = host
				}
				if port != 0 {
					cfg.Port = port
				}
				return serve(cmd.Context(), a, cfg)
			})
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVar(&port, "port", 0, "listen port (overrides server.port)")
	return cmd
}

// serve runs the server until ctx is cancelled, then shuts it down and saves
// the store.
func serve(ctx context.Context, a *app, cfg *httpserver.Config) error {
	zl := a.logger.Underlying().Named("http")
	metrics := httpserver.NewHTTPMetrics(a.telemetry.MeterProvider(), zl)

	srv, err := httpserver.NewServer(a.store, zl, metrics, cfg)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn(shutdownCtx, "http shutdown", zap.Error(err))
	}

	if a.cfg.Store.Dir != "" {
		if err := a.store.Persist(shutdownCtx, ""); err != nil {
			return err
		}
	}
	return nil
}
