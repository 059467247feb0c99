// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"

	"github.com/cosmos-pm/cosmos"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

const installLongHelp = `
Install a star, or every member of a constellation, together with all
dependencies the ledger does not already satisfy. Galaxies are consulted
in priority order and the first matching star wins.

Constellation members are "name" or "name@constraint".
`

func (e *env) installCommand() *cobra.Command {
	var constellation string
	cmd := &cobra.Command{
		Use:   "install [name]",
		Short: "Install a star or constellation",
		Long:  installLongHelp,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 0) == (constellation == "") {
				return errors.New("provide either a star name or --constellation")
			}
			c, err := e.ctx()
			if err != nil {
				return err
			}
			if constellation != "" {
				return c.InstallConstellation(cmd.Context(), constellation)
			}
			return c.Install(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&constellation, "constellation", "", "path to a constellation file (.toml, .yaml)")
	return cmd
}

func (e *env) uninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall <name>",
		Short: "Uninstall a star and remove the files it owns",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			return c.Uninstall(cmd.Context(), args[0])
		},
	}
}

func (e *env) updateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update <name>",
		Short: "Install the newest available version of a star",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			updated, err := c.Update(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !updated {
				fmt.Fprintf(e.stdout, "%s is already up to date\n", args[0])
			}
			return nil
		},
	}
}

func (e *env) syncCommand() *cobra.Command {
	var stars, full bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the cache of remote galaxies",
		Long: `
Refresh the cached catalog of every remote galaxy. --stars also mirrors
every star descriptor; --full also downloads and verifies artifacts.
Local galaxies are always skipped.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level := cosmos.SyncMetaOnly
			switch {
			case full:
				level = cosmos.SyncFull
			case stars:
				level = cosmos.SyncWithStars
			}
			c, err := e.ctx()
			if err != nil {
				return err
			}
			if err := c.SyncAll(cmd.Context(), level); err != nil {
				return err
			}
			fmt.Fprintln(e.stdout, "sync complete")
			return nil
		},
	}
	cmd.Flags().BoolVar(&stars, "stars", false, "also mirror star descriptors")
	cmd.Flags().BoolVar(&full, "full", false, "also mirror star artifacts")
	cmd.MarkFlagsMutuallyExclusive("stars", "full")
	return cmd
}
