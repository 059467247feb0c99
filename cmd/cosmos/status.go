// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/cosmos-pm/cosmos"
	"github.com/spf13/cobra"
)

func (e *env) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List installed stars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			installed, err := c.Status()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "STAR\tVERSION\tFILES")
			for _, s := range installed {
				fmt.Fprintf(w, "%s\t%s\t%d\n", s.Name, s.Version, len(s.Files))
			}
			return w.Flush()
		},
	}
}

func (e *env) showCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show details of a star",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			s, g, err := c.Show(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Name:\t%s\n", s.Name)
			fmt.Fprintf(w, "Version:\t%s\n", s.Version)
			fmt.Fprintf(w, "Type:\t%s\n", s.EffectiveType())
			fmt.Fprintf(w, "Galaxy:\t%s\n", g.Name)
			if s.Description != "" {
				fmt.Fprintf(w, "Description:\t%s\n", s.Description)
			}
			if s.License != "" {
				fmt.Fprintf(w, "License:\t%s\n", s.License)
			}
			if deps := s.SortedDependencies(); len(deps) > 0 {
				fmt.Fprintln(w, "Dependencies:")
				for _, d := range deps {
					fmt.Fprintf(w, "\t%s %s\n", d.Name, d.Constraint)
				}
			}
			return w.Flush()
		},
	}
}

func (e *env) searchCommand() *cobra.Command {
	var prefix bool
	cmd := &cobra.Command{
		Use:   "search <term>",
		Short: "Search stars by name or description",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := e.ctx()
			if err != nil {
				return err
			}
			var matches []cosmos.Match
			if prefix {
				galaxies, err := cosmos.LoadAll(cmd.Context(), c)
				if err != nil {
					return err
				}
				matches = cosmos.NewIndex(galaxies).Prefix(args[0])
			} else if matches, err = c.Search(cmd.Context(), args[0]); err != nil {
				return err
			}

			w := tabwriter.NewWriter(e.stdout, 0, 4, 2, ' ', 0)
			for _, m := range matches {
				fmt.Fprintf(w, "%s\t%s\t(%s)\t%s\n", m.Star.Name, m.Star.Version, m.Galaxy.Name, m.Star.Description)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&prefix, "prefix", false, "match star names by prefix only")
	return cmd
}
