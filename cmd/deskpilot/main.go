// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// deskpilot drives a remote desktop with a language model. It keeps
// one VNC session per target id, lowers the model's computer-tool
// calls into pointer and key events, and records every turn in the
// chat store.
//
// Subcommands:
//
//	deskpilot run --task TASK.jsonc [--target ID] [--prompt TEXT]
//	deskpilot screenshot --target ID [--history]
//	deskpilot action --target ID '{"action":"left_click","coordinate":[10,20]}'
//	deskpilot version
//
// Every subcommand reads the YAML configuration named by --config or
// DESKPILOT_CONFIG.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/deskpilot/lib/process"
	"github.com/bureau-foundation/deskpilot/lib/version"
)

const binaryName = "deskpilot"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], streams{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}, defaultDependencies())
	stop()
	if err != nil {
		process.Fatal(err)
	}
}

// streams are the process's standard files. stdin is a file so the
// password prompt can put it in raw mode.
type streams struct {
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, args []string, stdio streams, deps dependencies) error
}

func commands() []command {
	return []command{
		{name: "run", summary: "run one agent turn against a target", run: runTurn},
		{name: "screenshot", summary: "capture a target's screen and print its descriptor", run: runScreenshot},
		{name: "action", summary: "execute one computer-tool action on a target", run: runAction},
		{name: "version", summary: "print version information", run: runVersion},
	}
}

func run(ctx context.Context, args []string, stdio streams, deps dependencies) error {
	if len(args) == 0 {
		printUsage(stdio.stderr)
		return &process.ExitError{Code: 1}
	}

	switch args[0] {
	case "--version":
		version.Fprint(stdio.stdout, binaryName)
		return nil
	case "help", "-h", "--help":
		printUsage(stdio.stdout)
		return nil
	}

	for _, candidate := range commands() {
		if candidate.name == args[0] {
			return candidate.run(ctx, args[1:], stdio, deps)
		}
	}
	printUsage(stdio.stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, "Usage: %s <command> [flags]\n\nCommands:\n", binaryName)
	for _, candidate := range commands() {
		fmt.Fprintf(w, "  %-12s %s\n", candidate.name, candidate.summary)
	}
	fmt.Fprintf(w, "\nRun '%s <command> --help' for the flags of a command.\n", binaryName)
}

func runVersion(_ context.Context, _ []string, stdio streams, _ dependencies) error {
	version.Fprint(stdio.stdout, binaryName)
	return nil
}

// commonFlags are shared by the subcommands that talk to a desktop.
type commonFlags struct {
	configPath  string
	target      string
	debug       bool
	askPassword bool
	memory      bool
}

func (flags *commonFlags) add(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&flags.configPath, "config", "", "path to deskpilot.yaml (default: $DESKPILOT_CONFIG)")
	flagSet.StringVar(&flags.target, "target", "", "target id of the remote desktop session")
	flagSet.BoolVar(&flags.debug, "debug", false, "log at debug level")
	flagSet.BoolVar(&flags.askPassword, "ask-password", false, "read the VNC password from the terminal")
	flagSet.BoolVar(&flags.memory, "memory", false, "keep the chat transcript in memory instead of the database")
	flagSet.BoolP("help", "h", false, "show help")
}

// parseFlags parses args into flagSet. It returns done when help was
// printed and the command should return without doing anything.
func parseFlags(flagSet *pflag.FlagSet, args []string, stdio streams) (done bool, err error) {
	flagSet.SetOutput(stdio.stderr)
	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			printCommandHelp(stdio.stdout, flagSet)
			return true, nil
		}
		return false, err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printCommandHelp(stdio.stdout, flagSet)
		return true, nil
	}
	return false, nil
}

func printCommandHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, "Usage: %s %s [flags]\n\nFlags:\n", binaryName, flagSet.Name())
	fmt.Fprint(w, flagSet.FlagUsages())
}
