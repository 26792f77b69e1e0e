// ring.go provides the bounded FIFO buffer behind every capped collection.

package diag

import "time"

// ring is a bounded ring buffer that evicts the oldest item once full.
// It is not safe for concurrent use; owners guard it with their own mutex.
type ring[T any] struct {
	items    []T
	maxSize  int
	writeIdx int
}

func newRing[T any](maxSize int) *ring[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &ring[T]{maxSize: maxSize}
}

// Push appends item, evicting the oldest item if the buffer is full.
// Reports whether an item was evicted.
func (r *ring[T]) Push(item T) bool {
	if len(r.items) < r.maxSize {
		r.items = append(r.items, item)
		return false
	}
	// writeIdx points at the oldest item
	r.items[r.writeIdx] = item
	r.writeIdx = (r.writeIdx + 1) % r.maxSize
	return true
}

// Items returns a copy of the buffered items, oldest first.
func (r *ring[T]) Items() []T {
	result := make([]T, len(r.items))
	if len(r.items) < r.maxSize {
		copy(result, r.items)
		return result
	}
	n := copy(result, r.items[r.writeIdx:])
	copy(result[n:], r.items[:r.writeIdx])
	return result
}

// Last returns a copy of the newest n items, oldest first.
func (r *ring[T]) Last(n int) []T {
	all := r.Items()
	if n >= len(all) {
		return all
	}
	if n <= 0 {
		return []T{}
	}
	return all[len(all)-n:]
}

func (r *ring[T]) Len() int { return len(r.items) }

// Reset drops every item.
func (r *ring[T]) Reset() {
	r.items = nil
	r.writeIdx = 0
}

// Resize changes the capacity, keeping the newest items.
func (r *ring[T]) Resize(maxSize int) {
	if maxSize < 1 {
		maxSize = 1
	}
	kept := r.Last(maxSize)
	r.maxSize = maxSize
	r.items = kept
	r.writeIdx = 0
}

// Retain keeps only the items for which keep returns true, preserving order.
// Returns the number of items removed.
func (r *ring[T]) Retain(keep func(T) bool) int {
	all := r.Items()
	kept := all[:0]
	for _, item := range all {
		if keep(item) {
			kept = append(kept, item)
		}
	}
	removed := len(all) - len(kept)
	r.items = kept
	r.writeIdx = 0
	return removed
}

// samples keeps a capped list of duration samples per key.
type samples struct {
	perKey  int
	buckets map[string]*ring[float64]
}

func newSamples(perKey int) *samples {
	return &samples{perKey: perKey, buckets: make(map[string]*ring[float64])}
}

func (s *samples) Add(key string, v float64) {
	b, ok := s.buckets[key]
	if !ok {
		b = newRing[float64](s.perKey)
		s.buckets[key] = b
	}
	b.Push(v)
}

// Snapshot copies every bucket, oldest sample first.
func (s *samples) Snapshot() map[string][]float64 {
	out := make(map[string][]float64, len(s.buckets))
	for k, b := range s.buckets {
		out[k] = b.Items()
	}
	return out
}

// Sum returns the total and count across every bucket.
func (s *samples) Sum() (float64, int) {
	var total float64
	var count int
	for _, b := range s.buckets {
		for _, v := range b.Items() {
			total += v
			count++
		}
	}
	return total, count
}

func (s *samples) Reset() {
	s.buckets = make(map[string]*ring[float64])
}

// millis converts d to fractional milliseconds.
func millis(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}
