// Package async provides a sink wrapper with a bounded queue so report
// delivery never blocks the caller. The oldest queued report is dropped
// when the queue is full.
package async

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// Option configures the async sink.
type Option func(*config)

type config struct {
	queueSize    int
	writeTimeout time.Duration
	onDropped    func(count int)
	logger       *slog.Logger
}

// WithQueueSize sets the maximum number of queued reports (default: 256).
func WithQueueSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.queueSize = size
		}
	}
}

// WithWriteTimeout bounds each background write to the inner sink (default: 10s).
func WithWriteTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.writeTimeout = d
		}
	}
}

// WithOnDropped sets a callback invoked when reports are dropped on overflow.
func WithOnDropped(fn func(count int)) Option {
	return func(c *config) {
		c.onDropped = fn
	}
}

// WithLogger sets the logger for failed background writes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

type asyncSink struct {
	inner        diag.Sink
	queue        chan diag.ErrorReport
	writeTimeout time.Duration
	onDropped    func(count int)
	logger       *slog.Logger

	// pending counts reports accepted by Write and not yet delivered or dropped
	pending atomic.Int64

	closeMu   sync.RWMutex
	closed    bool
	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewAsyncSink wraps inner with a bounded queue drained by one goroutine.
// Write returns immediately. Failed background writes are logged and dropped.
func NewAsyncSink(inner diag.Sink, opts ...Option) diag.Sink {
	cfg := &config{
		queueSize:    256,
		writeTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	s := &asyncSink{
		inner:        inner,
		queue:        make(chan diag.ErrorReport, cfg.queueSize),
		writeTimeout: cfg.writeTimeout,
		onDropped:    cfg.onDropped,
		logger:       cfg.logger,
		done:         make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *asyncSink) run() {
	defer s.wg.Done()
	for {
		select {
		case report := <-s.queue:
			s.deliver(report)
		case <-s.done:
			for {
				select {
				case report := <-s.queue:
					s.deliver(report)
				default:
					return
				}
			}
		}
	}
}

func (s *asyncSink) deliver(report diag.ErrorReport) {
	defer s.pending.Add(-1)

	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.inner.Write(ctx, report); err != nil {
		s.logger.Warn("diag: async sink write failed",
			slog.String("report_id", report.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Write enqueues a report. When the queue is full the oldest queued
// report is dropped to make room.
func (s *asyncSink) Write(ctx context.Context, report diag.ErrorReport) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed {
		return diag.ErrClosed
	}

	s.pending.Add(1)
	for {
		select {
		case s.queue <- report:
			return nil
		default:
		}
		select {
		case <-s.queue:
			s.pending.Add(-1)
			s.dropped(1)
		default:
			// the drain goroutine emptied a slot; retry the send
		}
	}
}

func (s *asyncSink) dropped(n int) {
	if s.onDropped != nil {
		s.onDropped(n)
	}
}

// Flush waits until every accepted report has been delivered or dropped,
// then flushes the inner sink.
func (s *asyncSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for s.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return s.inner.Flush(ctx)
}

// Close delivers what is queued, stops the drain goroutine and closes the
// inner sink.
func (s *asyncSink) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		s.closeMu.Unlock()

		close(s.done)
		s.wg.Wait()
		err = s.inner.Close()
	})
	return err
}
