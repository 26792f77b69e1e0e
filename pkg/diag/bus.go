// bus.go implements the synchronous publish/subscribe primitive every
// component emits through.

package diag

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// EventType names an event published on the EventBus.
type EventType string

const (
	// EventLog is emitted for every appended log entry. Payload: LogEntry.
	EventLog EventType = "log"

	// EventLogsCleared is emitted after ClearLogs. Payload: nil.
	EventLogsCleared EventType = "logsCleared"

	// EventNetworkStatusChange is emitted on connectivity transitions. Payload: bool (online).
	EventNetworkStatusChange EventType = "networkStatusChange"

	// EventError is emitted for captured panics. Payload: CapturedError.
	EventError EventType = "error"

	// EventUnhandledRejection is emitted for unhandled async errors. Payload: CapturedError.
	EventUnhandledRejection EventType = "unhandledRejection"

	// EventSummaryUpdated is emitted after the summary is recomputed. Payload: Summary.
	EventSummaryUpdated EventType = "summaryUpdated"
)

// Handler receives the payload of an event.
type Handler func(payload any)

type subscription struct {
	id int
	fn Handler
}

// EventBus dispatches events synchronously, in registration order.
// A panicking handler is recovered and logged; it never stops dispatch to the
// remaining handlers and never reaches the emitter.
type EventBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[EventType][]subscription
	logger *slog.Logger
}

// NewEventBus creates an empty bus. A nil logger uses slog.Default().
func NewEventBus(logger *slog.Logger) *EventBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		subs:   make(map[EventType][]subscription),
		logger: logger,
	}
}

// Subscribe registers fn for event and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *EventBus) Subscribe(event EventType, fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(event, id) })
	}
}

func (b *EventBus) remove(event EventType, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[event]
	for i, s := range subs {
		if s.id == id {
			// copy so in-flight Emit snapshots stay intact
			next := make([]subscription, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.subs[event] = next
			return
		}
	}
}

// Emit invokes every handler registered for event with payload.
// Handlers run on the caller's goroutine without the bus lock held.
func (b *EventBus) Emit(event EventType, payload any) {
	b.mu.Lock()
	subs := b.subs[event]
	b.mu.Unlock()

	for _, s := range subs {
		b.dispatch(event, s.fn, payload)
	}
}

func (b *EventBus) dispatch(event EventType, fn Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("diag: event subscriber panicked",
				slog.String("event", string(event)),
				slog.String("panic", fmt.Sprint(r)),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	fn(payload)
}

// Len returns the number of handlers registered for event.
func (b *EventBus) Len(event EventType) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[event])
}

// Clear removes every subscriber.
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[EventType][]subscription)
}
