package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	sqliteadapter "github.com/ericfisherdev/qamint/internal/adapter/driven/sqlite"
	httphandler "github.com/ericfisherdev/qamint/internal/adapter/driving/http"
	"github.com/ericfisherdev/qamint/internal/config"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve runs, allocation ledgers and mined issues as a read-only JSON API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				a.cfg.ListenAddr = addr
			}
			db, err := a.database()
			if err != nil {
				return err
			}

			h := httphandler.NewHandler(sqliteadapter.NewRunRepo(db), sqliteadapter.NewIssueRepo(db), slog.Default())
			srv := &http.Server{
				Addr:              a.cfg.ListenAddr,
				Handler:           httphandler.NewServeMux(h, slog.Default()),
				ReadHeaderTimeout: 5 * time.Second,
				ReadTimeout:       10 * time.Second,
				WriteTimeout:      30 * time.Second,
				IdleTimeout:       120 * time.Second,
			}
			return serve(cmd.Context(), srv)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", config.DefaultListenAddr, "listen address (overrides QAMINT_LISTEN_ADDR)")
	return cmd
}

// serve runs srv until ctx is cancelled, then drains it.
func serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", srv.Addr)
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
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
	return nil
}
