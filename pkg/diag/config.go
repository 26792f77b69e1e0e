// config.go defines the options recognized by Initialize.

package diag

import "time"

const (
	// DefaultLogRetentionDays is the age cutoff applied at Initialize.
	DefaultLogRetentionDays = 7

	// DefaultSummaryInterval is how often the summary is recomputed.
	DefaultSummaryInterval = 60 * time.Second

	// DefaultInitialRoute keys the navigation timing recorded at startup.
	DefaultInitialRoute = "/"
)

// Config controls an Engine. Use DefaultConfig and override fields; the zero
// value disables both monitors.
type Config struct {
	// LogLevels is the set of levels accepted by Log. Empty accepts every level.
	LogLevels []Level

	// LogRetentionDays drops older entries once at Initialize.
	LogRetentionDays int

	// EnablePerformanceMonitoring starts the long-task and navigation observers.
	EnablePerformanceMonitoring bool

	// EnableNetworkMonitoring turns on recording in the HTTP transport.
	EnableNetworkMonitoring bool

	// MaxLogEntries caps the log buffer.
	MaxLogEntries int

	// ErrorReportingEndpoint is an optional destination for reports. The
	// engine does not deliver to it itself; see diagconfig.BuildSink.
	ErrorReportingEndpoint string

	// SummaryInterval is the period of the summary recompute timer.
	SummaryInterval time.Duration

	// AppVersion is reported in SystemInfo.
	AppVersion string

	// InitialRoute keys the startup navigation timing in PageLoads.
	InitialRoute string
}

// DefaultConfig returns a configuration with every monitor enabled.
func DefaultConfig() Config {
	return Config{
		LogLevels:                   append([]Level{}, AllLevels...),
		LogRetentionDays:            DefaultLogRetentionDays,
		EnablePerformanceMonitoring: true,
		EnableNetworkMonitoring:     true,
		MaxLogEntries:               DefaultMaxLogEntries,
		SummaryInterval:             DefaultSummaryInterval,
		InitialRoute:                DefaultInitialRoute,
	}
}

// Normalize clamps out-of-range values to their defaults and drops unknown
// levels. It never fails.
func (c Config) Normalize() Config {
	if c.MaxLogEntries <= 0 {
		c.MaxLogEntries = DefaultMaxLogEntries
	}
	if c.LogRetentionDays <= 0 {
		c.LogRetentionDays = DefaultLogRetentionDays
	}
	if c.SummaryInterval <= 0 {
		c.SummaryInterval = DefaultSummaryInterval
	}
	if c.InitialRoute == "" {
		c.InitialRoute = DefaultInitialRoute
	}

	levels := make([]Level, 0, len(c.LogLevels))
	seen := make(levelSet)
	for _, l := range c.LogLevels {
		if l.Valid() && !seen.has(l) {
			seen[l] = struct{}{}
			levels = append(levels, l)
		}
	}
	if len(levels) == 0 {
		levels = append(levels, AllLevels...)
	}
	c.LogLevels = levels
	return c
}
