// Package noop provides a sink that discards every report. BuildSink falls
// back to it when no destination is configured.
package noop

import (
	"context"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

type noopSink struct{}

// NewNoopSink creates a sink whose methods do nothing and return nil.
func NewNoopSink() diag.Sink {
	return noopSink{}
}

func (noopSink) Write(context.Context, diag.ErrorReport) error { return nil }

func (noopSink) Flush(context.Context) error { return nil }

func (noopSink) Close() error { return nil }
