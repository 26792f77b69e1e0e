// types.go defines the data model shared by the diagnostics components.

package diag

import "time"

// LogEntry is one structured, leveled log record.
// Entries are immutable once created; Data is copied at intake.
type LogEntry struct {
	// ID is a unique identifier for this entry (UUID).
	ID string `json:"id"`

	// Timestamp is when the entry was recorded, from the engine clock.
	Timestamp time.Time `json:"timestamp"`

	Level   Level  `json:"level"`
	Message string `json:"message"`

	// Module tags the subsystem that produced the entry.
	Module string `json:"module"`

	// Data is an optional structured payload.
	Data map[string]any `json:"data,omitempty"`

	// Stack is the optional stack trace for captured failures.
	Stack string `json:"stack,omitempty"`
}

// StorageUsage is the estimated footprint of each storage area in bytes.
type StorageUsage struct {
	Local   int `json:"local"`
	Session int `json:"session"`
}

// MemoryUsage captures heap counters at snapshot time.
type MemoryUsage struct {
	// UsedHeap is the number of bytes of allocated heap objects.
	UsedHeap uint64 `json:"usedHeap"`

	// TotalHeap is the number of bytes of heap obtained from the OS.
	TotalHeap uint64 `json:"totalHeap"`

	// HeapLimit is the Go memory limit or, when unset, the total system memory.
	// Zero when neither is known.
	HeapLimit uint64 `json:"heapLimit"`
}

// SystemInfo is a point-in-time snapshot of the host and runtime environment.
// It is computed fresh on every call and never cached.
type SystemInfo struct {
	AppVersion       string       `json:"appVersion"`
	UserAgent        string       `json:"userAgent"`
	Platform         string       `json:"platform"`
	Language         string       `json:"language"`
	ScreenResolution string       `json:"screenResolution"`
	TimeZone         string       `json:"timeZone"`
	StorageUsage     StorageUsage `json:"storageUsage"`
	MemoryUsage      *MemoryUsage `json:"memoryUsage,omitempty"`

	GoVersion    string `json:"goVersion"`
	Hostname     string `json:"hostname"`
	NumGoroutine int    `json:"numGoroutine"`
	UptimeMs     int64  `json:"uptimeMs"`
}

// FailedRequest records one outbound call that failed or returned a non-2xx status.
type FailedRequest struct {
	// URL is the simplified path of the request (no host, query or fragment).
	URL    string `json:"url"`
	Method string `json:"method"`

	// Status is the HTTP status code, or 0 when the call itself failed.
	Status    int       `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// NetworkDiagnostics is a snapshot of the network monitor.
type NetworkDiagnostics struct {
	// APILatency maps a simplified path to its latency samples in milliseconds,
	// oldest first.
	APILatency     map[string][]float64 `json:"apiLatency"`
	FailedRequests []FailedRequest      `json:"failedRequests"`
	WSReconnects   int                  `json:"wsReconnects"`

	// LastNetworkChangeTime is nil until the first connectivity transition.
	LastNetworkChangeTime *time.Time `json:"lastNetworkChangeTime"`
	Online                bool       `json:"online"`
}

// LongTask is one unit of work that exceeded the host's long-task threshold.
type LongTask struct {
	Duration  time.Duration `json:"duration"`
	StartTime time.Time     `json:"startTime"`
	Name      string        `json:"name,omitempty"`
}

// NavigationTiming describes how long the initial route took to become ready.
type NavigationTiming struct {
	Name     string        `json:"name"`
	Duration time.Duration `json:"duration"`
}

// PerformanceMetrics is a snapshot of the performance monitor.
// Duration samples are in milliseconds, oldest first.
type PerformanceMetrics struct {
	PageLoads        map[string][]float64 `json:"pageLoads"`
	ComponentRenders map[string][]float64 `json:"componentRenders"`
	APICalls         map[string][]float64 `json:"apiCalls"`
	LongTasks        []LongTask           `json:"longTasks"`
}

// ErrorInfo describes the error carried by an ErrorReport.
type ErrorInfo struct {
	Message string `json:"message"`
	Stack   string `json:"stack"`
	Type    string `json:"type"`
}

// ReportContext is the caller-supplied context of an ErrorReport.
type ReportContext struct {
	URL       string `json:"url"`
	Component string `json:"component,omitempty"`
	Action    string `json:"action,omitempty"`
	UserInput string `json:"userInput,omitempty"`
}

// ErrorReport is a point-in-time bundle of an error, its context, a system
// snapshot and the most recent log entries. It is a value object: later
// mutations of the live log buffer never change a returned report.
type ErrorReport struct {
	// ID is a unique identifier for this report (UUID).
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Fingerprint is a hash for grouping similar reports.
	Fingerprint string `json:"fingerprint"`

	Error      ErrorInfo     `json:"error"`
	Context    ReportContext `json:"context"`
	SystemInfo SystemInfo    `json:"systemInfo"`

	// Logs holds at most MaxReportLogs entries, oldest first.
	Logs []LogEntry `json:"logs"`
}

// Summary holds derived statistics over the collected diagnostics.
type Summary struct {
	// RecentErrors counts error-level log entries from the last 24 hours.
	RecentErrors   int `json:"recentErrors"`
	FailedRequests int `json:"failedRequests"`

	// AvgAPILatency is the mean of all stored latency samples in milliseconds,
	// or nil when there are none.
	AvgAPILatency *float64 `json:"avgApiLatency"`
	LongTasks     int      `json:"longTasks"`
	WSReconnects  int      `json:"wsReconnects"`

	ComputedAt time.Time `json:"computedAt"`
}

// Export is the full diagnostics snapshot returned by ExportDiagnostics.
type Export struct {
	ExportedAt  time.Time          `json:"exportedAt"`
	SystemInfo  SystemInfo         `json:"systemInfo"`
	Logs        []LogEntry         `json:"logs"`
	Performance PerformanceMetrics `json:"performance"`
	Network     NetworkDiagnostics `json:"network"`
	Summary     Summary            `json:"summary"`
}
