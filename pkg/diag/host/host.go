// Package host provides InstrumentationSource and ConnectivitySource
// implementations for server and CLI processes.
//
// Long tasks are detected as scheduler lag: a goroutine expects to wake at a
// fixed interval and reports every wake-up that arrives late by more than
// the threshold. The initial navigation timing is the time from process
// start to the moment the observer is installed, which is normally when the
// engine is initialized.
package host

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

const (
	// DefaultLagInterval is how often the lag detector expects to wake.
	DefaultLagInterval = 20 * time.Millisecond

	// DefaultLagThreshold is the lateness reported as a long task.
	DefaultLagThreshold = 50 * time.Millisecond

	// LagTaskName names long tasks reported by the lag detector.
	LagTaskName = "scheduler-lag"
)

// Option configures a Source.
type Option func(*Source)

// WithLagInterval sets the detector wake-up interval.
func WithLagInterval(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLagThreshold sets the minimum lateness reported.
func WithLagThreshold(d time.Duration) Option {
	return func(s *Source) {
		if d > 0 {
			s.threshold = d
		}
	}
}

// WithClock replaces the clock used to measure lag and startup time.
func WithClock(now func() time.Time) Option {
	return func(s *Source) {
		s.now = now
	}
}

// WithProcessStart replaces the lookup of the process start time.
func WithProcessStart(fn func() (time.Time, error)) Option {
	return func(s *Source) {
		s.processStart = fn
	}
}

// Source observes the current process.
type Source struct {
	interval     time.Duration
	threshold    time.Duration
	now          func() time.Time
	processStart func() (time.Time, error)
}

var _ diag.InstrumentationSource = (*Source)(nil)

// New creates a Source for the current process.
func New(opts ...Option) *Source {
	s := &Source{
		interval:     DefaultLagInterval,
		threshold:    DefaultLagThreshold,
		now:          time.Now,
		processStart: currentProcessStart,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func currentProcessStart() (time.Time, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return time.Time{}, fmt.Errorf("inspect process: %w", err)
	}
	ms, err := p.CreateTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("process create time: %w", err)
	}
	return time.UnixMilli(ms), nil
}

// OnLongTask starts the lag detector. stop blocks until it has exited.
func (s *Source) OnLongTask(fn func(diag.LongTask)) (stop func(), err error) {
	if fn == nil {
		return nil, errors.New("host: nil long task callback")
	}
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.detectLag(fn, done)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			wg.Wait()
		})
	}, nil
}

func (s *Source) detectLag(fn func(diag.LongTask), done <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := s.now()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}
		now := s.now()
		if lag := now.Sub(last) - s.interval; lag >= s.threshold {
			fn(diag.LongTask{
				Duration:  lag,
				StartTime: last.Add(s.interval),
				Name:      LagTaskName,
			})
		}
		last = now
	}
}

// OnNavigationTiming reports the time from process start to now once,
// synchronously. The returned stop is a no-op.
func (s *Source) OnNavigationTiming(fn func(diag.NavigationTiming)) (stop func(), err error) {
	started, err := s.processStart()
	if err != nil {
		return nil, err
	}
	d := s.now().Sub(started)
	if d < 0 {
		d = 0
	}
	fn(diag.NavigationTiming{Duration: d})
	return func() {}, nil
}
