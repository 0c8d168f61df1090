package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"riptide/internal/pipeline"
	"riptide/models"
)

func runExtract(ctx context.Context, args []string, g globalFlags) int {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	strategy := fs.String("strategy", "", "Force a single strategy: css|regex|jsonld|ics|pdf|wasm|llm")
	tenant := fs.String("tenant", "cli", "Tenant ID to attribute this call to")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: riptide extract <url> [options]")
		return exitUsage
	}
	url := fs.Arg(0)

	eng, err := buildEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer func() { _ = eng.Stop() }()

	res := eng.Extract(ctx, *tenant, url, models.CrawlOptions{Strategy: *strategy})
	if res.Err != nil {
		printExtractError(g, res.URL, res.Err)
		return exitError
	}
	printExtractResult(g, res)
	return exitOK
}

func printExtractError(g globalFlags, url string, err error) {
	if g.output == "json" {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"url": url, "error": err.Error()})
		return
	}
	fmt.Fprintf(os.Stderr, "extract %s: %v\n", url, err)
}

func printExtractResult(g globalFlags, res pipeline.Result) {
	switch g.output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(map[string]any{
			"url":               res.URL,
			"title":             res.Artifact.Extraction.Title,
			"strategy_used":     res.Artifact.Extraction.StrategyName,
			"quality_score":     res.Artifact.Extraction.QualityScore,
			"content":           res.Artifact.Extraction.Text,
			"extraction_time_ms": res.Artifact.PhaseTimings.Total(),
			"from_cache":        res.FromCache,
			"degraded":          res.Degraded,
		})
	case "table":
		fmt.Printf("%-40s %-10s %-8s %s\n", "URL", "STRATEGY", "QUALITY", "TITLE")
		fmt.Printf("%-40s %-10s %-8.2f %s\n", res.URL, res.Artifact.Extraction.StrategyName, res.Artifact.Extraction.QualityScore, res.Artifact.Extraction.Title)
	default:
		fmt.Printf("%s\n", res.URL)
		fmt.Printf("  strategy: %s  quality: %.2f  cached: %v  degraded: %v\n",
			res.Artifact.Extraction.StrategyName, res.Artifact.Extraction.QualityScore, res.FromCache, res.Degraded)
		fmt.Printf("  title: %s\n", res.Artifact.Extraction.Title)
		fmt.Println(res.Artifact.Extraction.Text)
	}
}
