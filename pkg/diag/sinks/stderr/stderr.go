// Package stderr provides a sink that prints reports in a human-readable
// format. Useful during development.
package stderr

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// Option configures the stderr sink.
type Option func(*stderrSink)

// WithVerbose adds stack traces and the attached log tail to the output.
func WithVerbose() Option {
	return func(s *stderrSink) {
		s.verbose = true
	}
}

// WithWriter redirects output, mainly for tests. Defaults to os.Stderr.
func WithWriter(w io.Writer) Option {
	return func(s *stderrSink) {
		s.w = w
	}
}

type stderrSink struct {
	mu      sync.Mutex
	w       io.Writer
	verbose bool
}

// NewStderrSink creates a sink that writes to stderr.
func NewStderrSink(opts ...Option) diag.Sink {
	s := &stderrSink{w: os.Stderr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Write prints one header line and indented detail lines:
//
//	[DIAG] 2025-01-26T15:04:05Z *errors.errorString in CartPanel/submit at /checkout
//	        Message: payment declined
//	        Fingerprint: 3f2a...
func (s *stderrSink) Write(ctx context.Context, report diag.ErrorReport) error {
	var b strings.Builder

	errType := report.Error.Type
	if errType == "" {
		errType = "error"
	}
	fmt.Fprintf(&b, "[DIAG] %s %s", report.Timestamp.Format("2006-01-02T15:04:05Z07:00"), errType)
	if where := location(report.Context); where != "" {
		fmt.Fprintf(&b, " in %s", where)
	}
	if report.Context.URL != "" {
		fmt.Fprintf(&b, " at %s", report.Context.URL)
	}
	b.WriteByte('\n')

	if report.Error.Message != "" {
		fmt.Fprintf(&b, "        Message: %s\n", report.Error.Message)
	}
	if report.Fingerprint != "" {
		fmt.Fprintf(&b, "        Fingerprint: %s\n", report.Fingerprint)
	}
	if contextID, ok := diag.ContextIDFromContext(ctx); ok {
		fmt.Fprintf(&b, "        Context: %d\n", contextID)
	}

	if s.verbose {
		if report.Error.Stack != "" {
			b.WriteString("        Stack trace:\n")
			for _, line := range strings.Split(report.Error.Stack, "\n") {
				fmt.Fprintf(&b, "          %s\n", line)
			}
		}
		if len(report.Logs) > 0 {
			fmt.Fprintf(&b, "        Recent logs (%d):\n", len(report.Logs))
			for _, entry := range report.Logs {
				fmt.Fprintf(&b, "          %s %-5s [%s] %s\n",
					entry.Timestamp.Format("15:04:05.000"), strings.ToUpper(string(entry.Level)), entry.Module, entry.Message)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, b.String())
	return err
}

func location(rc diag.ReportContext) string {
	switch {
	case rc.Component != "" && rc.Action != "":
		return rc.Component + "/" + rc.Action
	case rc.Component != "":
		return rc.Component
	default:
		return rc.Action
	}
}

// Flush is a no-op; every Write is unbuffered.
func (s *stderrSink) Flush(ctx context.Context) error {
	return nil
}

// Close is a no-op. os.Stderr is never closed.
func (s *stderrSink) Close() error {
	return nil
}
