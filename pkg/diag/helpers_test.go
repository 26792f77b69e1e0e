package diag

import (
	"context"
	"sync"
	"time"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// captureSink records every report written to it.
type captureSink struct {
	mu       sync.Mutex
	reports  []ErrorReport
	writeErr error
	flushes  int
	closed   bool
}

func (s *captureSink) Write(ctx context.Context, report ErrorReport) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report)
	return nil
}

func (s *captureSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *captureSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *captureSink) getReports() []ErrorReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]ErrorReport, len(s.reports))
	copy(result, s.reports)
	return result
}

func (s *captureSink) flushCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushes
}

// stubSource is a scriptable InstrumentationSource and ConnectivitySource.
type stubSource struct {
	mu sync.Mutex

	longTaskErr     error
	navigationErr   error
	connectivityErr error
	navigation      *NavigationTiming

	longTaskFn     func(LongTask)
	connectivityFn func(bool)
	stops          int
}

func (s *stubSource) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
}

func (s *stubSource) OnLongTask(fn func(LongTask)) (func(), error) {
	if s.longTaskErr != nil {
		return nil, s.longTaskErr
	}
	s.mu.Lock()
	s.longTaskFn = fn
	s.mu.Unlock()
	return s.stop, nil
}

func (s *stubSource) OnNavigationTiming(fn func(NavigationTiming)) (func(), error) {
	if s.navigationErr != nil {
		return nil, s.navigationErr
	}
	if s.navigation != nil {
		fn(*s.navigation)
	}
	return s.stop, nil
}

func (s *stubSource) OnConnectivityChange(fn func(bool)) (func(), error) {
	if s.connectivityErr != nil {
		return nil, s.connectivityErr
	}
	s.mu.Lock()
	s.connectivityFn = fn
	s.mu.Unlock()
	return s.stop, nil
}

func (s *stubSource) emitLongTask(task LongTask) {
	s.mu.Lock()
	fn := s.longTaskFn
	s.mu.Unlock()
	if fn != nil {
		fn(task)
	}
}

func (s *stubSource) emitConnectivity(online bool) {
	s.mu.Lock()
	fn := s.connectivityFn
	s.mu.Unlock()
	if fn != nil {
		fn(online)
	}
}

func (s *stubSource) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}
