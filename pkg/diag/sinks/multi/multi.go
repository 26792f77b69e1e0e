// Package multi provides a sink that fans reports out to several sinks.
package multi

import (
	"context"
	"errors"
	"fmt"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// Named pairs a sink with a name used to label its errors.
type Named struct {
	Name string
	Sink diag.Sink
}

type multiSink struct {
	sinks []Named
}

// NewMultiSink creates a sink that writes every report to each sink in order.
// Nil sinks are skipped.
func NewMultiSink(sinks ...diag.Sink) diag.Sink {
	named := make([]Named, 0, len(sinks))
	for i, s := range sinks {
		named = append(named, Named{Name: fmt.Sprintf("sink %d", i), Sink: s})
	}
	return NewNamed(named...)
}

// NewNamed is NewMultiSink with caller-chosen names, so a joined error reads
// "sentry: ..." rather than "sink 1: ...".
func NewNamed(sinks ...Named) diag.Sink {
	kept := make([]Named, 0, len(sinks))
	for _, s := range sinks {
		if s.Sink != nil {
			kept = append(kept, s)
		}
	}
	return &multiSink{sinks: kept}
}

// Write calls every sink even when some fail. Failures are joined.
func (m *multiSink) Write(ctx context.Context, report diag.ErrorReport) error {
	return m.each(func(s diag.Sink) error { return s.Write(ctx, report) })
}

func (m *multiSink) Flush(ctx context.Context) error {
	return m.each(func(s diag.Sink) error { return s.Flush(ctx) })
}

func (m *multiSink) Close() error {
	return m.each(func(s diag.Sink) error { return s.Close() })
}

func (m *multiSink) each(fn func(diag.Sink) error) error {
	var errs []error
	for _, s := range m.sinks {
		if err := fn(s.Sink); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}
