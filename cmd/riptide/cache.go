package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// runCache dispatches `riptide cache status` and `riptide cache clear`.
// Both operate on a freshly constructed Engine's cache, which is only
// useful against a long-lived process sharing the same backing store;
// against this CLI's default in-memory C4 cache, status will always
// report empty and clear always finds nothing to evict.
func runCache(ctx context.Context, args []string, g globalFlags) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: riptide cache status|clear")
		return exitUsage
	}

	eng, err := buildEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer func() { _ = eng.Stop() }()

	snap := eng.Snapshot(ctx)
	switch args[0] {
	case "status":
		if g.output == "json" {
			_ = json.NewEncoder(os.Stdout).Encode(snap.Cache)
		} else {
			fmt.Printf("hits: %d  misses: %d  evictions: %d  bytes: %d\n",
				snap.Cache.Hits, snap.Cache.Misses, snap.Cache.Evictions, snap.Cache.Bytes)
		}
		return exitOK
	case "clear":
		eng.Cache().Clear()
		fmt.Println("cache cleared")
		return exitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown cache subcommand %q\n", args[0])
		return exitUsage
	}
}
