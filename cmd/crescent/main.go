package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/term"
)

// Version information - set via ldflags during build
var (
	version   = "0.1.0-dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// cli carries the process streams so commands can be run from tests.
type cli struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
	isTTY  func() bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{ctx: ctx, stdout: stdout, stderr: stderr, isTTY: isInteractiveTerminal}
	return c.dispatchSubcommand(args)
}

func (c *cli) dispatchSubcommand(args []string) int {
	if len(args) == 0 {
		c.printHelp(c.stderr)
		return exitUsage
	}
	switch args[0] {
	case "--version", "-v", "version":
		c.printVersion()
		return exitOK
	case "--help", "-h", "help":
		c.printHelp(c.stdout)
		return exitOK
	case "find":
		return c.runCommand(c.runFindCommand, args[1:])
	case "find-all":
		return c.runCommand(c.runFindAllCommand, args[1:])
	case "await-absent":
		return c.runCommand(c.runAwaitAbsentCommand, args[1:])
	case "describe":
		return c.runCommand(c.runDescribeCommand, args[1:])
	default:
		fmt.Fprintf(c.stderr, "Error: unknown command %q\n\n", args[0])
		c.printHelp(c.stderr)
		return exitUsage
	}
}

func (c *cli) runCommand(handler func([]string) error, args []string) int {
	err := handler(args)
	if err == nil {
		return exitOK
	}
	if errors.Is(err, flag.ErrHelp) {
		return exitOK
	}
	var done reported
	if !errors.As(err, &done) {
		fmt.Fprintf(c.stderr, "Error: %v\n", err)
	}
	return exitCodeForError(err)
}

func (c *cli) printHelp(w io.Writer) {
	fmt.Fprintln(w, "crescent - stabilized element lookups for browser UI tests")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  crescent <command> [flags] <locator>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "COMMANDS:")
	fmt.Fprintln(w, "  find <locator>          Wait for one element (--visible, --optional)")
	fmt.Fprintln(w, "  find-all <locator>      Wait until the set of matches stops changing")
	fmt.Fprintln(w, "  await-absent <locator>  Wait until nothing matches for a full stability window")
	fmt.Fprintln(w, "  describe                Print the effective wait policy")
	fmt.Fprintln(w, "  version                 Print version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "SOURCES:")
	fmt.Fprintln(w, "  --file <path|->         Static HTML file or stdin (--watch reloads on change)")
	fmt.Fprintln(w, "  --url <url>             Fetch over HTTP, or navigate with --chrome")
	fmt.Fprintln(w, "  --chrome                Live Chrome over the DevTools protocol")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'crescent <command> -h' for all flags.")
}

func (c *cli) printVersion() {
	fmt.Fprintf(c.stdout, "crescent %s\n", version)
	if commit != "unknown" {
		fmt.Fprintf(c.stdout, "  Commit:     %s\n", commit)
	}
	if buildDate != "unknown" {
		fmt.Fprintf(c.stdout, "  Built:      %s\n", buildDate)
	}
	fmt.Fprintf(c.stdout, "  Go version: %s\n", runtime.Version())
}

func isInteractiveTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
