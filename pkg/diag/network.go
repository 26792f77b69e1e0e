// network.go records outbound request latency and failures, websocket
// reconnects and connectivity transitions.

package diag

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// MaxLatencySamples caps the latency samples kept per simplified path.
	MaxLatencySamples = 100

	// MaxFailedRequests caps the failed request list.
	MaxFailedRequests = 100
)

// SimplifyPath reduces a URL to its route path, stripping scheme, host, query
// string and fragment. The result is used as an aggregation key so that query
// values never reach the keys.
func SimplifyPath(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if u.Path == "" {
			if u.Opaque != "" {
				return u.Opaque
			}
			return "/"
		}
		return u.Path
	}

	// unparseable: cut at the first query or fragment marker
	path := rawURL
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	if i := strings.Index(path, "://"); i >= 0 {
		path = path[i+3:]
		if j := strings.Index(path, "/"); j >= 0 {
			path = path[j:]
		} else {
			path = "/"
		}
	}
	if path == "" {
		return "/"
	}
	return path
}

// NetworkMonitor aggregates network call outcomes. Safe for concurrent use.
type NetworkMonitor struct {
	mu         sync.Mutex
	latency    *samples
	failed     *ring[FailedRequest]
	reconnects int
	online     bool
	lastChange *time.Time

	logs *LogStore
	bus  *EventBus
	now  func() time.Time
}

// NewNetworkMonitor creates a monitor that logs through logs and publishes
// connectivity changes on bus. The initial state is online.
func NewNetworkMonitor(logs *LogStore, bus *EventBus, now func() time.Time) *NetworkMonitor {
	if now == nil {
		now = time.Now
	}
	return &NetworkMonitor{
		latency: newSamples(MaxLatencySamples),
		failed:  newRing[FailedRequest](MaxFailedRequests),
		online:  true,
		logs:    logs,
		bus:     bus,
		now:     now,
	}
}

// RecordAPILatency stores a latency sample under the simplified path of rawURL.
func (m *NetworkMonitor) RecordAPILatency(rawURL string, d time.Duration) {
	key := SimplifyPath(rawURL)
	m.mu.Lock()
	m.latency.Add(key, millis(d))
	m.mu.Unlock()
}

// RecordFailedRequest stores a failed call and logs it at warn level.
// status is 0 when the call itself failed.
func (m *NetworkMonitor) RecordFailedRequest(rawURL, method string, status int, errMsg string) {
	req := FailedRequest{
		URL:       SimplifyPath(rawURL),
		Method:    strings.ToUpper(method),
		Status:    status,
		Timestamp: m.now(),
		Error:     errMsg,
	}

	m.mu.Lock()
	m.failed.Push(req)
	m.mu.Unlock()

	data := map[string]any{
		"url":    req.URL,
		"method": req.Method,
		"status": req.Status,
	}
	if errMsg != "" {
		data["error"] = errMsg
	}
	m.logs.Log(LevelWarn, "network", fmt.Sprintf("request failed: %s %s", req.Method, req.URL), data)
}

// RecordWsReconnect increments the websocket reconnect counter.
func (m *NetworkMonitor) RecordWsReconnect() {
	m.mu.Lock()
	m.reconnects++
	count := m.reconnects
	m.mu.Unlock()

	m.logs.Log(LevelInfo, "network", "websocket reconnected", map[string]any{"reconnects": count})
}

// SetOnline records a connectivity transition. Repeating the current state is
// ignored; a transition updates the change time and emits
// EventNetworkStatusChange.
func (m *NetworkMonitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	ts := m.now()
	m.lastChange = &ts
	m.mu.Unlock()

	if online {
		m.logs.Log(LevelInfo, "network", "network connection restored", nil)
	} else {
		m.logs.Log(LevelWarn, "network", "network connection lost", nil)
	}
	m.bus.Emit(EventNetworkStatusChange, online)
}

// Online reports the last known connectivity state.
func (m *NetworkMonitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Snapshot returns a copy of the collected network diagnostics.
func (m *NetworkMonitor) Snapshot() NetworkDiagnostics {
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *time.Time
	if m.lastChange != nil {
		ts := *m.lastChange
		last = &ts
	}
	return NetworkDiagnostics{
		APILatency:            m.latency.Snapshot(),
		FailedRequests:        m.failed.Items(),
		WSReconnects:          m.reconnects,
		LastNetworkChangeTime: last,
		Online:                m.online,
	}
}

func (m *NetworkMonitor) stats() (latencySum float64, latencyCount, failed, reconnects int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latencySum, latencyCount = m.latency.Sum()
	return latencySum, latencyCount, m.failed.Len(), m.reconnects
}
