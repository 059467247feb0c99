// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/cosmos-pm/cosmos"
	"github.com/spf13/cobra"
)

func (e *env) initCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write the default config and an empty ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cosmos.Init(e.v.GetString("root"), e.logger)
		},
	}
}

func (e *env) addGalaxyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "add-galaxy <name> <url>",
		Short: "Add a galaxy to the config",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			if err := c.AddGalaxy(args[0], args[1]); err != nil {
				return err
			}
			if !cosmos.IsLocalURL(args[1]) {
				fmt.Fprintln(e.stdout, "run `cosmos sync` to fetch the galaxy data")
			}
			return nil
		},
	}
}

func (e *env) removeGalaxyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove-galaxy <name>",
		Short: "Remove a galaxy from the config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			return c.RemoveGalaxy(args[0])
		},
	}
}

func (e *env) listGalaxiesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list-galaxies",
		Short: "List configured galaxies in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "GALAXY\tLOCATOR\tLAST SYNC")
			for _, ref := range c.ListGalaxies() {
				synced := "-"
				if cosmos.IsLocalURL(ref.URL) {
					synced = "local"
				} else if level, t, ok := c.LastSync(ref.Name); ok {
					synced = fmt.Sprintf("%s (%s)", t.Format(time.RFC3339), level)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", ref.Name, ref.URL, synced)
			}
			return w.Flush()
		},
	}
}
