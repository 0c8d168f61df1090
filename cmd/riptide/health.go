package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"riptide/internal/telemetry"
)

func runHealth(ctx context.Context, args []string, g globalFlags) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	eng, err := buildEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer func() { _ = eng.Stop() }()

	snap := eng.Snapshot(ctx)
	if g.output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(snap)
	} else {
		fmt.Printf("status: %s\n", snap.Health.Overall)
		for _, p := range snap.Health.Probes {
			fmt.Printf("  %-12s %-10s %s\n", p.Name, p.Status, p.Detail)
		}
		fmt.Printf("cache: %d hits, %d misses, %d evictions\n", snap.Cache.Hits, snap.Cache.Misses, snap.Cache.Evictions)
	}
	if snap.Health.Overall == telemetry.StatusUnhealthy {
		return exitError
	}
	return exitOK
}
