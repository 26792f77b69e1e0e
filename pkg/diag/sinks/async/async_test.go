package async

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// slowSink records reports after an optional delay.
type slowSink struct {
	mu       sync.Mutex
	reports  []diag.ErrorReport
	delay    time.Duration
	writeErr error
	closed   bool
	block    chan struct{}
}

func (s *slowSink) Write(ctx context.Context, report diag.ErrorReport) error {
	if s.block != nil {
		<-s.block
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *slowSink) Flush(ctx context.Context) error { return nil }

func (s *slowSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *slowSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.reports))
	for i, r := range s.reports {
		ids[i] = r.ID
	}
	return ids
}

func TestAsyncSink_ImplementsSinkInterface(t *testing.T) {
	var _ diag.Sink = NewAsyncSink(&slowSink{})
}

func TestAsyncSink_Write_ReturnsImmediately(t *testing.T) {
	inner := &slowSink{delay: 100 * time.Millisecond}
	sink := NewAsyncSink(inner, WithQueueSize(10))
	defer sink.Close()

	start := time.Now()
	if err := sink.Write(context.Background(), diag.ErrorReport{ID: "r1"}); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Write took %v, should not wait for the inner sink", elapsed)
	}
}

func TestAsyncSink_FlushDeliversAll(t *testing.T) {
	inner := &slowSink{delay: time.Millisecond}
	sink := NewAsyncSink(inner, WithQueueSize(100))
	defer sink.Close()

	for i := 0; i < 20; i++ {
		_ = sink.Write(context.Background(), diag.ErrorReport{ID: string(rune('a' + i))})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if got := len(inner.ids()); got != 20 {
		t.Errorf("delivered %d reports, want 20", got)
	}
}

func TestAsyncSink_DropsOldest_WhenQueueFull(t *testing.T) {
	inner := &slowSink{block: make(chan struct{})}
	var dropped atomic.Int32
	sink := NewAsyncSink(inner,
		WithQueueSize(2),
		WithOnDropped(func(n int) { dropped.Add(int32(n)) }),
	)

	// r0 is taken by the drain goroutine and blocks there
	_ = sink.Write(context.Background(), diag.ErrorReport{ID: "r0"})
	time.Sleep(50 * time.Millisecond)
	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		_ = sink.Write(context.Background(), diag.ErrorReport{ID: id})
	}
	close(inner.block)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	_ = sink.Close()

	if dropped.Load() != 2 {
		t.Errorf("dropped = %d, want 2", dropped.Load())
	}
	ids := inner.ids()
	if len(ids) != 3 || ids[0] != "r0" || ids[1] != "r3" || ids[2] != "r4" {
		t.Errorf("delivered %v, want [r0 r3 r4]", ids)
	}
}

func TestAsyncSink_FlushRespectsContext(t *testing.T) {
	inner := &slowSink{block: make(chan struct{})}
	sink := NewAsyncSink(inner)
	defer func() {
		close(inner.block)
		sink.Close()
	}()

	_ = sink.Write(context.Background(), diag.ErrorReport{ID: "r1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sink.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush err = %v, want deadline exceeded", err)
	}
}

func TestAsyncSink_CloseDrainsAndRejects(t *testing.T) {
	inner := &slowSink{}
	sink := NewAsyncSink(inner)

	_ = sink.Write(context.Background(), diag.ErrorReport{ID: "r1"})
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(inner.ids()) != 1 {
		t.Error("Close should deliver queued reports")
	}
	if !inner.closed {
		t.Error("inner sink not closed")
	}
	if err := sink.Write(context.Background(), diag.ErrorReport{ID: "r2"}); !errors.Is(err, diag.ErrClosed) {
		t.Errorf("Write after Close = %v, want ErrClosed", err)
	}
	if err := sink.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestAsyncSink_InnerErrorsAreSwallowed(t *testing.T) {
	inner := &slowSink{writeErr: errors.New("down")}
	sink := NewAsyncSink(inner)
	defer sink.Close()

	if err := sink.Write(context.Background(), diag.ErrorReport{ID: "r1"}); err != nil {
		t.Errorf("Write = %v, want nil", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sink.Flush(ctx); err != nil {
		t.Errorf("Flush = %v", err)
	}
}
