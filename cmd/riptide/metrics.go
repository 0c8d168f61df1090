package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
)

// runMetrics dispatches `riptide metrics export`. It renders the same
// Prometheus exposition /metrics serves over HTTP, captured through
// httptest.NewRecorder rather than actually binding a listener, since a
// one-shot CLI invocation has no server loop to attach to.
func runMetrics(ctx context.Context, args []string, g globalFlags) int {
	if len(args) == 0 || args[0] != "export" {
		fmt.Fprintln(os.Stderr, "usage: riptide metrics export")
		return exitUsage
	}

	eng, err := buildEngine()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	defer func() { _ = eng.Stop() }()

	mh, ok := eng.Telemetry().Metrics.(interface{ MetricsHandler() http.Handler })
	if !ok {
		fmt.Fprintln(os.Stderr, "active metrics backend has no exposition endpoint")
		return exitError
	}

	rec := httptest.NewRecorder()
	mh.MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	os.Stdout.Write(rec.Body.Bytes())
	return exitOK
}
