package noop

import (
	"context"
	"testing"
	"time"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

func TestNoopSink_ImplementsSinkInterface(t *testing.T) {
	var _ diag.Sink = NewNoopSink()
}

func TestNoopSink_AllMethodsReturnNil(t *testing.T) {
	sink := NewNoopSink()
	report := diag.ErrorReport{ID: "rep-1", Timestamp: time.Now()}

	if err := sink.Write(context.Background(), report); err != nil {
		t.Errorf("Write returned error: %v", err)
	}
	if err := sink.Flush(context.Background()); err != nil {
		t.Errorf("Flush returned error: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close returned error: %v", err)
	}
}

func TestNoopSink_UsableAsEngineSink(t *testing.T) {
	engine := diag.New(diag.WithSink(NewNoopSink()))
	defer engine.Close()

	if _, err := engine.ReportError(context.Background(), context.Canceled, diag.ReportContext{}); err != nil {
		t.Errorf("ReportError = %v", err)
	}
}
