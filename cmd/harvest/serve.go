package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/use-agent/harvest/api"
	"github.com/use-agent/harvest/api/handler"
	"github.com/use-agent/harvest/config"
)

var serveAddr string

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default $HARVEST_HOST:$HARVEST_PORT)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		initLogger(cfg.Log)
		slog.Info("harvest starting",
			"host", cfg.Server.Host,
			"port", cfg.Server.Port,
			"mode", cfg.Server.Mode,
			"maxRenders", cfg.Browser.MaxRenders,
			"model", cfg.LLM.Model,
		)
		if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
			slog.Warn("auth enabled but HARVEST_API_KEYS is empty; API is open")
		}

		ctx := cmd.Context()
		c, err := buildComponents(ctx, cfg)
		if err != nil {
			return err
		}
		// The browser is closed after the server drains.
		defer c.Close()

		router := api.NewRouter(api.Deps{
			Browser:   c.renderer,
			NewRunner: func() handler.Runner { return c.newPipeline() },
			Runs:      c.sink,
			StartTime: time.Now(),
		}, cfg)

		addr := serveAddr
		if addr == "" {
			addr = fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			slog.Info("HTTP server listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("HTTP server: %w", err)
			}
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		}

		// Give in-flight requests 5 seconds to complete.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server forced shutdown", "error", err)
		} else {
			slog.Info("HTTP server drained gracefully")
		}
		slog.Info("harvest stopped")
		return nil
	},
}
