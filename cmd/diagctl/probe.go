package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

var (
	probeConcurrency int
	probeTimeout     time.Duration
	probeSummaryOnly bool
)

var probeCmd = &cobra.Command{
	Use:   "probe URL...",
	Short: "GET each URL through an instrumented client and print the diagnostics",
	Long: `Issue one GET per URL through an HTTP client instrumented by the engine,
then print the full diagnostics export (or only the summary). Every failed
request is also submitted as an error report to the configured sink.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := openEngine(cmd)
		if err != nil {
			return err
		}
		defer e.Close()

		failed := probeURLs(cmd.Context(), e, args)

		var out any = e.ExportDiagnostics()
		if probeSummaryOnly {
			out = e.RefreshSummary()
		}
		if err := render(cmd.OutOrStdout(), out); err != nil {
			return err
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d requests failed", failed, len(args))
		}
		return nil
	},
}

func init() {
	probeCmd.Flags().IntVar(&probeConcurrency, "concurrency", 4, "Maximum requests in flight")
	probeCmd.Flags().DurationVar(&probeTimeout, "timeout", 10*time.Second, "Per-request timeout")
	probeCmd.Flags().BoolVar(&probeSummaryOnly, "summary", false, "Print only the summary")
	rootCmd.AddCommand(probeCmd)
}

// probeURLs fetches every URL and returns how many failed.
func probeURLs(ctx context.Context, e *diag.Engine, urls []string) int {
	client := e.HTTPClient(&http.Client{Timeout: probeTimeout})

	var failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(max(probeConcurrency, 1))
	for _, u := range urls {
		g.Go(func() error {
			stop := e.Measure(diag.APIOperation(u))
			err := fetch(ctx, client, u)
			stop()
			if err != nil {
				failed.Add(1)
				e.Log(diag.LevelError, "probe", err.Error(), map[string]any{"url": u})
				if _, rerr := e.ReportError(ctx, err, diag.ReportContext{Component: "diagctl", Action: "probe", URL: u}); rerr != nil {
					e.Log(diag.LevelWarn, "probe", "report not delivered", map[string]any{"error": rerr.Error()})
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return int(failed.Load())
}

func fetch(ctx context.Context, client *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request for %s: %w", url, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return nil
}
