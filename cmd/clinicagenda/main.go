package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	app := &cli.App{
		Name:  "clinicagenda",
		Usage: "Keep the clinic dashboard in sync with the professionals' calendars.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file (default ./clinicagenda.toml or ~/.config/clinicagenda/clinicagenda.toml)"},
			&cli.StringFlag{Name: "db", Usage: "sqlite database file"},
			&cli.StringFlag{Name: "addr", Usage: "address the dashboard API listens on"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "same as --log-level=debug"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			configureCommand(),
			refreshCommand(),
			revokeCommand(),
		},
	}

	if err := app.RunContext(ctx, os.Args); err != nil {
		slog.Error("Application failed", "error", err)
		os.Exit(1)
	}
}
