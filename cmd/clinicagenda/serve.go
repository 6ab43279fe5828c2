package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/clinicagenda/internal/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the dashboard API.",
		Action: func(c *cli.Context) error {
			d, err := newDeps(c)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := c.Context
			if err := d.syncer.Initialize(ctx); err != nil {
				// The dashboard shows the failure, keep serving it.
				d.logger.Error("Calendar provider unavailable", "error", err)
			}

			var callback http.Handler
			if d.google != nil {
				callback = d.google
			}

			srv := &http.Server{
				Addr:              d.cfg.ListenAddr,
				Handler:           server.New(ctx, d.syncer, d.logger, callback),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				d.logger.Info("Listening", "addr", srv.Addr, "provider", d.cfg.Provider)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			d.logger.Info("Shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
