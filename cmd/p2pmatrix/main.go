// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/p2pmatrix/lib/config"
	"github.com/bureau-foundation/p2pmatrix/lib/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	// Handle --version before dispatch to match other binaries.
	if len(args) > 0 && args[0] == "--version" {
		version.Print("p2pmatrix")
		return nil
	}
	a := &app{ctx: ctx, stdin: stdin, stdout: stdout, stderr: stderr}
	return a.root().execute(stderr, args)
}

// app carries the process streams and the flags every leaf command
// shares.
type app struct {
	ctx    context.Context
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	configPath string
	verbose    bool
}

func (a *app) root() *command {
	return &command{
		name:    "p2pmatrix",
		summary: "Inspect p2pmatrix client state and send Matrix requests",
		subcommands: []*command{
			a.initCommand(),
			a.stateCommand(),
			a.sessionCommand(),
			a.sendCommand(),
		},
	}
}

// newFlagSet returns a flag set carrying --config and --verbose.
func (a *app) newFlagSet(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&a.configPath, "config", "", "path to p2pmatrix.yaml (default: $P2PMATRIX_CONFIG)")
	flagSet.BoolVarP(&a.verbose, "verbose", "v", false, "log debug records")
	return flagSet
}

// loadConfig reads and validates the configuration named by --config,
// falling back to P2PMATRIX_CONFIG.
func (a *app) loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (a *app) logger() *slog.Logger {
	return newCommandLogger(a.stderr, a.verbose)
}

func noArguments(args []string) error {
	if len(args) > 0 {
		return usagef("unexpected argument: %s", args[0])
	}
	return nil
}
