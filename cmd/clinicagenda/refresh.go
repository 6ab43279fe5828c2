package main

import (
	"fmt"
	"io"

	"github.com/urfave/cli/v2"

	"github.com/guilherme-santos/clinicagenda/internal"
	"github.com/guilherme-santos/clinicagenda/internal/syncer"
)

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Fetch the upcoming appointments of every calendar and print them.",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "hide", Usage: "calendar id to leave out (repeatable)"},
			&cli.IntFlag{Name: "days", Usage: "how many days ahead to fetch"},
			&cli.GenericFlag{Name: "from", Usage: "first day to fetch (YYYY-MM-DD), today by default", Value: &internal.Date{}},
		},
		Action: func(c *cli.Context) error {
			d, err := newDeps(c)
			if err != nil {
				return err
			}
			defer d.Close()

			if days := c.Int("days"); days > 0 {
				d.syncer.DaysAhead = days
			}
			if from, ok := c.Generic("from").(*internal.Date); ok && !from.IsZero() {
				d.syncer.From = *from
			}

			ctx := c.Context
			if err := d.syncer.Initialize(ctx); err != nil {
				return err
			}
			if d.syncer.State() != syncer.StateAuthenticated {
				return fmt.Errorf("%w, run configure first", internal.ErrNotAuthenticated)
			}
			// Initialize already refreshed, report what it found.
			if msg := d.syncer.Snapshot().Error; msg != "" {
				return fmt.Errorf("refreshing: %s", msg)
			}

			snap := d.syncer.Snapshot()
			for _, id := range c.StringSlice("hide") {
				if internal.CalendarByID(snap.UserCalendars, id) == nil {
					return fmt.Errorf("unknown calendar %q", id)
				}
				d.syncer.Toggle(id)
			}
			printSnapshot(c.App.Writer, d.syncer.Snapshot())
			return nil
		},
	}
}

func printSnapshot(w io.Writer, snap syncer.Snapshot) {
	for _, cal := range snap.UserCalendars {
		fmt.Fprintf(w, "%s %s (%s)\n", cal.Color, cal.Name, cal.ID)
	}
	fmt.Fprintln(w)

	var day string
	for _, e := range snap.Events {
		if d := e.StartsAt.Local().Format(internal.DateFormat); d != day {
			day = d
			fmt.Fprintf(w, "%s\n", day)
		}
		fmt.Fprintf(w, "  %s-%s  %-40s %-10s %s\n",
			e.StartsAt.Local().Format("15:04"),
			e.EndsAt.Local().Format("15:04"),
			e.Summary(),
			e.Status,
			e.CalendarID,
		)
	}
	if len(snap.Pending) > 0 {
		fmt.Fprintf(w, "\n%d pending appointment(s) not on any calendar\n", len(snap.Pending))
	}
}
