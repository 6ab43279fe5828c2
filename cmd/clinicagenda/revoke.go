package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func revokeCommand() *cli.Command {
	return &cli.Command{
		Name:  "revoke",
		Usage: "Revoke the stored token and forget it.",
		Action: func(c *cli.Context) error {
			d, err := newDeps(c)
			if err != nil {
				return err
			}
			defer d.Close()

			ctx := c.Context
			if err := d.syncer.Initialize(ctx); err != nil {
				return err
			}
			if err := d.syncer.Revoke(ctx); err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, "Token revoked.")
			return nil
		},
	}
}
