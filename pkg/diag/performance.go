// performance.go records page, component and API durations and long tasks.

package diag

import (
	"sync"
	"time"
)

const (
	// MaxDurationSamples caps the samples kept per page, component or API key.
	MaxDurationSamples = 50

	// MaxLongTasks caps the long task list.
	MaxLongTasks = 100
)

// PerformanceMonitor aggregates duration samples. Safe for concurrent use.
type PerformanceMonitor struct {
	mu         sync.Mutex
	pageLoads  *samples
	components *samples
	apiCalls   *samples
	longTasks  *ring[LongTask]
}

// NewPerformanceMonitor creates an empty monitor.
func NewPerformanceMonitor() *PerformanceMonitor {
	return &PerformanceMonitor{
		pageLoads:  newSamples(MaxDurationSamples),
		components: newSamples(MaxDurationSamples),
		apiCalls:   newSamples(MaxDurationSamples),
		longTasks:  newRing[LongTask](MaxLongTasks),
	}
}

func (p *PerformanceMonitor) RecordPageLoad(page string, d time.Duration) {
	p.add(p.pageLoads, page, d)
}

func (p *PerformanceMonitor) RecordComponentRender(component string, d time.Duration) {
	p.add(p.components, component, d)
}

func (p *PerformanceMonitor) RecordAPICall(endpoint string, d time.Duration) {
	p.add(p.apiCalls, endpoint, d)
}

func (p *PerformanceMonitor) add(s *samples, key string, d time.Duration) {
	p.mu.Lock()
	s.Add(key, millis(d))
	p.mu.Unlock()
}

// AddLongTask appends a long task, evicting the oldest once MaxLongTasks is reached.
func (p *PerformanceMonitor) AddLongTask(task LongTask) {
	p.mu.Lock()
	p.longTasks.Push(task)
	p.mu.Unlock()
}

// Reset drops every sample and long task.
func (p *PerformanceMonitor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pageLoads.Reset()
	p.components.Reset()
	p.apiCalls.Reset()
	p.longTasks.Reset()
}

// Snapshot returns a copy of the collected metrics.
func (p *PerformanceMonitor) Snapshot() PerformanceMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PerformanceMetrics{
		PageLoads:        p.pageLoads.Snapshot(),
		ComponentRenders: p.components.Snapshot(),
		APICalls:         p.apiCalls.Snapshot(),
		LongTasks:        p.longTasks.Items(),
	}
}

func (p *PerformanceMonitor) longTaskCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.longTasks.Len()
}
