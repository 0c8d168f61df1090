// Package main implements the riptide CLI: extract, crawl, tables, health,
// validate, system-check, cache, and metrics subcommands over a single
// embedded *riptide.Engine.
//
// Usage:
//
//	riptide extract <url> [--strategy css|regex|...] [--output json|table|text]
//	riptide crawl <url>... [--strategy NAME] [--tenant ID] [--output json|table|text]
//	riptide tables <url>
//	riptide health [--output json|table|text]
//	riptide validate
//	riptide system-check
//	riptide cache status|clear
//	riptide metrics export
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	flag "github.com/spf13/pflag"
)

// exit codes: 0 success, 1 operation error, 2 usage error.
const (
	exitOK = 0
	exitError = 1
	exitUsage = 2
)

var (
	version = "dev"
	commit = "unknown"
)

// globalFlags holds flags valid before the subcommand name, the same shape
// vjache-cie/cmd/cie/main.go uses for its GlobalFlags struct.
type globalFlags struct {
	output string
	quiet bool
	version bool
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	var g globalFlags
	fs := flag.NewFlagSet("riptide", flag.ContinueOnError)
	fs.StringVar(&g.output, "output", "text", "Output format: json|table|text")
	fs.BoolVarP(&g.quiet, "quiet", "q", false, "Suppress non-essential output")
	fs.BoolVarP(&g.version, "version", "V", false, "Show version and exit")
	// Subcommand-specific flags (e.g. `crawl --strategy`) must not be
	// rejected by this top-level parser, so stop at the first positional
	// argument exactly as vjache-cie/cmd/cie/main.go does.
	fs.SetInterspersed(false)
	fs.Usage = usage

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if g.version {
		fmt.Printf("riptide version %s (%s)\n", version, commit)
		return exitOK
	}

	switch g.output {
	case "json", "table", "text":
	default:
		fmt.Fprintf(os.Stderr, "unknown --output %q: must be json, table, or text\n", g.output)
		return exitUsage
	}

	rest := fs.Args()
	if len(rest) == 0 {
		usage()
		return exitUsage
	}

	ctx, cancel := signalContext()
	defer cancel()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "extract":
		return runExtract(ctx, cmdArgs, g)
	case "crawl":
		return runCrawl(ctx, cmdArgs, g)
	case "tables":
		return runTables(ctx, cmdArgs, g)
	case "health":
		return runHealth(ctx, cmdArgs, g)
	case "validate":
		return runValidate(ctx, cmdArgs, g)
	case "system-check":
		return runSystemCheck(ctx, cmdArgs, g)
	case "cache":
		return runCache(ctx, cmdArgs, g)
	case "metrics":
		return runMetrics(ctx, cmdArgs, g)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `riptide - web crawl and extraction platform

Usage:
 riptide <command> [options]

Commands:
 extract <url> Extract a single page
 crawl <url>... Crawl and extract a seed list
 tables <url> Extract tabular content from a page
 health Report subsystem health
 validate Validate the engine can start with the active config
 system-check Run startup diagnostics and exit
 cache status|clear Inspect or clear the response cache
 metrics export Print current metrics once and exit

Global Options:
 --output json|table|text Output format (default "text")
 -q, --quiet Suppress non-essential output
 -V, --version Show version and exit

Exit codes:
 0 success
 1 operation error
 2 usage error
`)
}

// signalContext returns a context canceled on the first SIGINT and forces
// exit on a second, the same double-Ctrl-C pattern
// cli/cmd/ariadne/main.go uses.
func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "signal received; shutting down...")
		cancel()
		<-sigCh
		fmt.Fprintln(os.Stderr, "second signal received; forcing exit")
		os.Exit(130)
	}()
	return ctx, cancel
}
