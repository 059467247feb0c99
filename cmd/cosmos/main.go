// Copyright 2016 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command cosmos is an offline-first package manager.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/cosmos-pm/cosmos"
	"github.com/cosmos-pm/cosmos/log"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

func main() {
	c := &Config{
		Args:   os.Args,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
	os.Exit(c.Run())
}

// A Config specifies a full configuration for a cosmos execution.
type Config struct {
	Args           []string  // Command-line arguments, starting with the program name.
	Stdout, Stderr io.Writer // Output and log streams
}

// Run executes a configuration and returns an exit code.
func (c *Config) Run() (exitCode int) {
	e := &env{
		v:      viper.New(),
		stdout: c.Stdout,
		stderr: c.Stderr,
	}
	e.v.SetEnvPrefix(cosmos.EnvPrefix)
	e.v.AutomaticEnv()

	root := e.rootCommand()
	root.SetArgs(c.Args[1:])
	root.SetOut(c.Stdout)
	root.SetErr(c.Stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(c.Stderr, "cosmos: %v\n", err)
		return 1
	}
	return 0
}

// env carries the state shared by every command of one execution.
type env struct {
	v       *viper.Viper
	stdout  io.Writer
	stderr  io.Writer
	logger  *logrus.Logger
	metrics *cosmos.Metrics
}

func (e *env) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cosmos",
		Short:         "A minimal, offline-first package manager",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			e.logger = log.New(e.stderr, e.v.GetBool("verbose"))
			e.metrics = cosmos.NewMetrics()
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if path := e.v.GetString("metrics_file"); path != "" {
				return e.metrics.WriteTextfile(path)
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.String("root", "/", "system root holding the config and ledger; overrides install_dir")
	pf.Bool("offline", false, "use only local galaxies and cached data")
	pf.BoolP("verbose", "v", false, "enable verbose logging")
	pf.String("metrics-file", "", "write operation metrics to this file in textfile format")
	e.v.BindPFlag("root", pf.Lookup("root"))
	e.v.BindPFlag("offline", pf.Lookup("offline"))
	e.v.BindPFlag("verbose", pf.Lookup("verbose"))
	e.v.BindPFlag("metrics_file", pf.Lookup("metrics-file"))

	root.AddCommand(
		e.installCommand(),
		e.uninstallCommand(),
		e.updateCommand(),
		e.statusCommand(),
		e.syncCommand(),
		e.showCommand(),
		e.searchCommand(),
		e.initCommand(),
		e.addGalaxyCommand(),
		e.removeGalaxyCommand(),
		e.listGalaxiesCommand(),
	)
	return root
}

// ctx loads the configuration under the selected root. An explicit root
// also becomes the install directory.
func (e *env) ctx() (*cosmos.Ctx, error) {
	root := e.v.GetString("root")
	c, err := cosmos.NewCtx(root, e.logger)
	if err != nil {
		return nil, err
	}
	if e.v.IsSet("root") {
		c.Config.InstallDir = root
	}
	c.Offline = e.v.GetBool("offline")
	c.Metrics = e.metrics
	c.Tracer = otel.Tracer("github.com/cosmos-pm/cosmos")
	return c, nil
}
