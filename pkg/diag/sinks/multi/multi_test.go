package multi

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// mockSink tracks calls and can return errors.
type mockSink struct {
	mu       sync.Mutex
	reports  []diag.ErrorReport
	writeErr error
	flushErr error
	closeErr error
	flushed  bool
	closed   bool
}

func (s *mockSink) Write(ctx context.Context, report diag.ErrorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	s.reports = append(s.reports, report)
	return nil
}

func (s *mockSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed = true
	return s.flushErr
}

func (s *mockSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *mockSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func TestMultiSink_ImplementsSinkInterface(t *testing.T) {
	var _ diag.Sink = NewMultiSink()
}

func TestMultiSink_WritesToAll(t *testing.T) {
	a, b := &mockSink{}, &mockSink{}
	sink := NewMultiSink(a, nil, b)

	if err := sink.Write(context.Background(), diag.ErrorReport{ID: "r1"}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if a.count() != 1 || b.count() != 1 {
		t.Errorf("counts = %d, %d; want 1, 1", a.count(), b.count())
	}
}

func TestMultiSink_ContinuesAfterError(t *testing.T) {
	errA := errors.New("a failed")
	a := &mockSink{writeErr: errA}
	b := &mockSink{}
	sink := NewNamed(Named{Name: "webhook", Sink: a}, Named{Name: "cxdb", Sink: b})

	err := sink.Write(context.Background(), diag.ErrorReport{ID: "r1"})
	if !errors.Is(err, errA) {
		t.Errorf("err = %v, want to wrap %v", err, errA)
	}
	if !strings.Contains(err.Error(), "webhook: a failed") {
		t.Errorf("err = %q, want sink name prefix", err)
	}
	if b.count() != 1 {
		t.Error("second sink should still receive the report")
	}
}

func TestMultiSink_JoinsAllErrors(t *testing.T) {
	errA, errB := errors.New("a"), errors.New("b")
	a := &mockSink{flushErr: errA, closeErr: errA}
	b := &mockSink{flushErr: errB, closeErr: errB}
	sink := NewMultiSink(a, b)

	err := sink.Flush(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Flush err = %v, want both", err)
	}
	err = sink.Close()
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("Close err = %v, want both", err)
	}
	if !a.flushed || !b.flushed || !a.closed || !b.closed {
		t.Error("every sink should be flushed and closed")
	}
}

func TestMultiSink_Empty(t *testing.T) {
	sink := NewMultiSink()
	if err := sink.Write(context.Background(), diag.ErrorReport{}); err != nil {
		t.Errorf("Write = %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("Close = %v", err)
	}
}
