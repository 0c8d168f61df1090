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

func runCrawl(ctx context.Context, args []string, g globalFlags) int {
	fs := flag.NewFlagSet("crawl", flag.ContinueOnError)
	strategy := fs.String("strategy", "", "Force a single strategy: css|regex|jsonld|ics|pdf|wasm|llm")
	tenant := fs.String("tenant", "cli", "Tenant ID to attribute this call to")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: riptide crawl <url>... [options]")
		return exitUsage
	}
	urls := fs.Args()

	eng, err := buildEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer func() { _ = eng.Stop() }()

	opts := models.CrawlOptions{Strategy: *strategy}
	results := make([]pipeline.Result, 0, len(urls))
	failed := 0
	for res := range eng.Crawl(ctx, *tenant, urls, opts) {
		if res.Err != nil {
			failed++
		}
		results = append(results, res)
	}

	printCrawlResults(g, results)
	if failed > 0 && failed == len(results) {
		return exitError
	}
	return exitOK
}

func printCrawlResults(g globalFlags, results []pipeline.Result) {
	if g.output == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(results)
		return
	}
	if g.output == "table" {
		fmt.Printf("%-40s %-10s %-8s %s\n", "URL", "STRATEGY", "QUALITY", "ERROR")
	}
	for _, res := range results {
		if res.Err != nil {
			fmt.Printf("%-40s %-10s %-8s %v\n", res.URL, "-", "-", res.Err)
			continue
		}
		fmt.Printf("%-40s %-10s %-8.2f\n", res.URL, res.Artifact.Extraction.StrategyName, res.Artifact.Extraction.QualityScore)
	}
}
