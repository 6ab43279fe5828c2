package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/clinicagenda/internal/syncer"
)

func configureCommand() *cli.Command {
	return &cli.Command{
		Name:  "configure",
		Usage: "Give access to the calendars and store the token.",
		Action: func(c *cli.Context) error {
			d, err := newDeps(c)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := c.Context
			w := c.App.Writer

			if err := d.syncer.Initialize(ctx); err != nil {
				return err
			}

			var serveErr <-chan error
			if d.google != nil {
				var stop func()
				stop, serveErr = d.google.ListenCallback(d.cfg.ListenAddr)
				defer stop()
			}
			if err := requestToken(ctx, d.syncer, w, serveErr); err != nil {
				return err
			}

			snap := d.syncer.Snapshot()
			if snap.State != syncer.StateAuthenticated {
				return fmt.Errorf("not connected: %s", snap.Error)
			}
			if snap.Error != "" {
				fmt.Fprintf(w, "Connected, but fetching calendars failed: %s\n", snap.Error)
				return nil
			}

			fmt.Fprintf(w, "Token saved! %d calendar(s) available:\n", len(snap.UserCalendars))
			for _, cal := range snap.UserCalendars {
				fmt.Fprintf(w, "  %-30s %s\n", cal.Name, cal.ID)
			}
			return nil
		},
	}
}

type tokenRequester interface {
	Subscribe(func(syncer.Snapshot)) func()
	RequestToken(context.Context) error
}

// requestToken runs a token request, printing the consent URL when the
// provider asks for one. A failure on serveErr aborts the request.
func requestToken(ctx context.Context, s tokenRequester, w io.Writer, serveErr <-chan error) error {
	urls := make(chan string, 1)
	unsubscribe := s.Subscribe(func(snap syncer.Snapshot) {
		if snap.AuthURL == "" {
			return
		}
		select {
		case urls <- snap.AuthURL:
		default:
		}
	})
	defer unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.RequestToken(ctx)
	}()

	for {
		select {
		case authURL := <-urls:
			fmt.Fprintf(w, "\nGo to the following link in your browser\n%s\n", authURL)
		case err := <-serveErr:
			cancel()
			<-done
			return err
		case err := <-done:
			return err
		}
	}
}
