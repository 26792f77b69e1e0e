// engine.go provides the Engine facade, the single integration surface for
// instrumented collaborators and the panels that render diagnostics.

package diag

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// State is the lifecycle state of an Engine.
type State int

const (
	StateUninitialized State = iota
	StateInitialized
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateDisposed:
		return "disposed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Option configures an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	logger          *slog.Logger
	now             func() time.Time
	sink            Sink
	scrubber        *Scrubber
	instrumentation InstrumentationSource
	connectivity    ConnectivitySource
	hostInfo        HostInfo
	local           StorageArea
	session         StorageArea
	appName         string
	flushTimeout    time.Duration
}

// WithLogger sets the logger used for the engine's own failures, such as a
// panicking subscriber or a sink that rejects a report. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) {
		o.logger = logger
	}
}

// WithClock replaces the wall clock used for every timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *engineOptions) {
		o.now = now
	}
}

// WithSink sets the destination for ReportError.
func WithSink(sink Sink) Option {
	return func(o *engineOptions) {
		o.sink = sink
	}
}

// WithScrubber scrubs reports with a custom configuration before delivery.
func WithScrubber(cfg ScrubberConfig) Option {
	return func(o *engineOptions) {
		o.scrubber = NewScrubber(cfg)
	}
}

// WithDefaultScrubbing enables scrubbing with production-safe defaults.
func WithDefaultScrubbing() Option {
	return func(o *engineOptions) {
		o.scrubber = NewScrubber(DefaultScrubberConfig())
	}
}

// WithInstrumentation sets the host adapter observed when performance
// monitoring is enabled.
func WithInstrumentation(src InstrumentationSource) Option {
	return func(o *engineOptions) {
		o.instrumentation = src
	}
}

// WithConnectivity sets the source of online/offline transitions.
func WithConnectivity(src ConnectivitySource) Option {
	return func(o *engineOptions) {
		o.connectivity = src
	}
}

// WithHostInfo overrides detected environment facts in SystemInfo.
func WithHostInfo(info HostInfo) Option {
	return func(o *engineOptions) {
		o.hostInfo = info
	}
}

// WithStorage registers the storage areas whose footprint SystemInfo reports.
func WithStorage(local, session StorageArea) Option {
	return func(o *engineOptions) {
		o.local = local
		o.session = session
	}
}

// WithAppName sets the product token of the generated user agent.
func WithAppName(name string) Option {
	return func(o *engineOptions) {
		o.appName = name
	}
}

// Engine aggregates diagnostics for one process. Create it once at startup
// and pass it to every collaborator. Safe for concurrent use.
type Engine struct {
	mu      sync.RWMutex
	state   State
	cfg     Config
	sysinfo *SystemInfoProvider
	stops   []func()
	done    chan struct{}
	wg      sync.WaitGroup

	opts      engineOptions
	startTime time.Time
	logger    *slog.Logger
	now       func() time.Time

	bus     *EventBus
	logs    *LogStore
	network *NetworkMonitor
	perf    *PerformanceMonitor

	summaryMu sync.RWMutex
	summary   Summary
}

// New creates an Uninitialized engine. Until Initialize is called it records
// with DefaultConfig but captures no panics and installs no observers.
func New(opts ...Option) *Engine {
	o := engineOptions{flushTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.sink == nil {
		o.sink = &noopSinkInternal{}
	}

	cfg := DefaultConfig().Normalize()
	bus := NewEventBus(o.logger)
	logs := NewLogStore(cfg.MaxLogEntries, cfg.LogLevels, bus, o.now)
	start := o.now()

	e := &Engine{
		cfg:       cfg,
		opts:      o,
		startTime: start,
		logger:    o.logger,
		now:       o.now,
		bus:       bus,
		logs:      logs,
		network:   NewNetworkMonitor(logs, bus, o.now),
		perf:      NewPerformanceMonitor(),
	}
	e.sysinfo = e.newSystemInfoProvider(cfg)
	e.summary = e.computeSummary()
	return e
}

func (e *Engine) newSystemInfoProvider(cfg Config) *SystemInfoProvider {
	return NewSystemInfoProvider(e.opts.appName, cfg.AppVersion, e.opts.hostInfo,
		e.opts.local, e.opts.session, e.startTime, e.now)
}

// Initialize applies cfg, purges entries older than the retention window and
// starts the summary timer and host observers. Calling it while already
// Initialized is a no-op. Calling it after Dispose starts a new cycle on the
// same buffers. Observers that fail to start are reported on the engine
// logger and recorded as error entries in module "diagnostics" when the
// error level is accepted; the engine continues without them.
//
// Observers are started without holding the engine lock, so a source may
// report synchronously and subscribers may call back into the engine.
func (e *Engine) Initialize(cfg Config) {
	cfg = cfg.Normalize()

	e.mu.Lock()
	if e.state == StateInitialized {
		e.mu.Unlock()
		return
	}
	e.state = StateInitialized
	e.cfg = cfg
	e.sysinfo = e.newSystemInfoProvider(cfg)

	e.logs.Configure(cfg.MaxLogEntries, cfg.LogLevels)
	cutoff := e.now().Add(-time.Duration(cfg.LogRetentionDays) * 24 * time.Hour)
	purged := e.logs.PurgeOlderThan(cutoff)

	e.stops = append(e.stops, e.bus.Subscribe(EventLog, func(payload any) {
		if entry, ok := payload.(LogEntry); ok && entry.Level == LevelError {
			e.RefreshSummary()
		}
	}))

	cycle := make(chan struct{})
	e.done = cycle
	e.wg.Add(1)
	go e.summaryLoop(cfg.SummaryInterval, cycle)
	e.mu.Unlock()

	if purged > 0 {
		e.logger.Debug("diag: purged expired log entries", slog.Int("count", purged))
	}

	stops, setupErrs := e.startSources(cfg)
	e.adoptStops(cycle, stops)

	for _, err := range setupErrs {
		e.logger.Error("diag: instrumentation setup failed", slog.String("error", err.Error()))
		e.logs.Log(LevelError, "diagnostics", "instrumentation setup failed", map[string]any{
			"error": err.Error(),
		})
	}
	e.RefreshSummary()
}

// startSources installs the configured observers and returns their stop
// functions. It must be called without holding e.mu.
func (e *Engine) startSources(cfg Config) (stops []func(), errs []error) {
	add := func(stop func(), err error, what string) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		} else if stop != nil {
			stops = append(stops, stop)
		}
	}

	if src := e.opts.instrumentation; cfg.EnablePerformanceMonitoring && src != nil {
		stop, err := src.OnLongTask(e.perf.AddLongTask)
		add(stop, err, "long task observer")

		route := cfg.InitialRoute
		stop, err = src.OnNavigationTiming(func(nt NavigationTiming) {
			key := route
			if nt.Name != "" {
				key = nt.Name
			}
			e.perf.RecordPageLoad(key, nt.Duration)
		})
		add(stop, err, "navigation observer")
	}
	if src := e.opts.connectivity; src != nil {
		stop, err := src.OnConnectivityChange(e.network.SetOnline)
		add(stop, err, "connectivity observer")
	}
	return stops, errs
}

// adoptStops registers stops with the cycle that started them. When that
// cycle has already been disposed the observers are stopped immediately.
func (e *Engine) adoptStops(cycle chan struct{}, stops []func()) {
	e.mu.Lock()
	if e.state == StateInitialized && e.done == cycle {
		e.stops = append(e.stops, stops...)
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}
}

func (e *Engine) summaryLoop(interval time.Duration, done <-chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			e.RefreshSummary()
		}
	}
}

// Dispose stops the summary timer and every observer, removes all
// subscribers and flushes the sink. It is safe to call more than once.
func (e *Engine) Dispose() {
	e.mu.Lock()
	if e.state != StateInitialized {
		e.mu.Unlock()
		return
	}
	e.state = StateDisposed
	stops := e.stops
	e.stops = nil
	done := e.done
	e.done = nil
	e.mu.Unlock()

	close(done)
	e.wg.Wait()
	for i := len(stops) - 1; i >= 0; i-- {
		stops[i]()
	}
	e.bus.Clear()

	ctx, cancel := context.WithTimeout(context.Background(), e.opts.flushTimeout)
	defer cancel()
	if err := e.opts.sink.Flush(ctx); err != nil {
		e.logger.Warn("diag: flushing sink on dispose failed", slog.String("error", err.Error()))
	}
}

// Close disposes the engine and closes its sink.
func (e *Engine) Close() error {
	e.Dispose()
	return e.opts.sink.Close()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Config returns the active, normalized configuration.
func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cfg := e.cfg
	cfg.LogLevels = append([]Level{}, e.cfg.LogLevels...)
	return cfg
}

func (e *Engine) initialized() bool {
	return e.State() == StateInitialized
}

func (e *Engine) networkActive() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateInitialized && e.cfg.EnableNetworkMonitoring
}

// Subscribe registers fn for event. See the Event* constants for payload types.
func (e *Engine) Subscribe(event EventType, fn Handler) (unsubscribe func()) {
	return e.bus.Subscribe(event, fn)
}

// Log records an entry if level is accepted and returns its ID, or "" when
// the level is filtered out.
func (e *Engine) Log(level Level, module, message string, data map[string]any) string {
	return e.logs.Log(level, module, message, data)
}

// Logs returns the buffered entries matching filter, oldest first.
func (e *Engine) Logs(filter LogFilter) []LogEntry {
	return e.logs.Filter(filter)
}

// ClearLogs empties the log buffer and emits EventLogsCleared.
func (e *Engine) ClearLogs() {
	e.logs.Clear()
	e.RefreshSummary()
}

// RecordAPILatency records a successful call's latency under its simplified path.
func (e *Engine) RecordAPILatency(rawURL string, d time.Duration) {
	e.network.RecordAPILatency(rawURL, d)
}

// RecordFailedRequest records a failed outbound call; status is 0 for transport errors.
func (e *Engine) RecordFailedRequest(rawURL, method string, status int, errMsg string) {
	e.network.RecordFailedRequest(rawURL, method, status, errMsg)
}

// RecordWsReconnect is called by socket clients after each successful reconnect.
func (e *Engine) RecordWsReconnect() {
	e.network.RecordWsReconnect()
}

// SetOnline reports a connectivity transition for hosts without a
// ConnectivitySource.
func (e *Engine) SetOnline(online bool) {
	e.network.SetOnline(online)
}

// Online reports the last known connectivity state.
func (e *Engine) Online() bool {
	return e.network.Online()
}

// RecordPageLoad records how long page took to load.
func (e *Engine) RecordPageLoad(page string, d time.Duration) {
	e.perf.RecordPageLoad(page, d)
}

// RecordComponentRender records a render duration for component.
func (e *Engine) RecordComponentRender(component string, d time.Duration) {
	e.perf.RecordComponentRender(component, d)
}

// RecordAPICall records an operation duration for endpoint.
func (e *Engine) RecordAPICall(endpoint string, d time.Duration) {
	e.perf.RecordAPICall(endpoint, d)
}

// ResetPerformanceMetrics drops every duration sample and long task.
func (e *Engine) ResetPerformanceMetrics() {
	e.perf.Reset()
	e.RefreshSummary()
}

// Transport wraps inner so every request is timed and its outcome recorded
// while the engine is Initialized with network monitoring enabled.
func (e *Engine) Transport(inner http.RoundTripper) http.RoundTripper {
	return NewTransport(inner, e.network, e.networkActive, e.now)
}

// HTTPClient returns a copy of base whose transport is instrumented.
// A nil base copies http.DefaultClient.
func (e *Engine) HTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = http.DefaultClient
	}
	client := *base
	client.Transport = e.Transport(base.Transport)
	return &client
}

// Measure starts timing op and returns a function that stops the timer,
// records the duration in the bucket for op.Kind and returns it. Calling the
// returned function again returns the same duration without recording.
func (e *Engine) Measure(op Operation) (stop func() time.Duration) {
	start := e.now()
	var once sync.Once
	var elapsed time.Duration
	return func() time.Duration {
		once.Do(func() {
			elapsed = e.now().Sub(start)
			e.recordOperation(op, elapsed)
		})
		return elapsed
	}
}

// MeasurePerformance is Measure for string-named operations routed by the
// "api:", "component:" and "page:" prefixes. Names without a known prefix are
// timed and logged but not recorded in any bucket.
func (e *Engine) MeasurePerformance(operationName string) (stop func() time.Duration) {
	op, ok := ParseOperation(operationName)
	if !ok {
		op = Operation{Name: operationName}
	}
	return e.Measure(op)
}

func (e *Engine) recordOperation(op Operation, d time.Duration) {
	switch op.Kind {
	case KindAPI:
		e.perf.RecordAPICall(op.Name, d)
	case KindComponent:
		e.perf.RecordComponentRender(op.Name, d)
	case KindPage:
		e.perf.RecordPageLoad(op.Name, d)
	}
	e.logs.Log(LevelDebug, "performance", fmt.Sprintf("%s took %.2fms", op.Name, millis(d)), map[string]any{
		"kind":       op.Kind.String(),
		"durationMs": millis(d),
	})
}

// GetSystemInfo returns a fresh system snapshot.
func (e *Engine) GetSystemInfo() SystemInfo {
	e.mu.RLock()
	provider := e.sysinfo
	e.mu.RUnlock()
	return provider.GetSystemInfo()
}

// Summary returns the last computed summary.
func (e *Engine) Summary() Summary {
	e.summaryMu.RLock()
	defer e.summaryMu.RUnlock()
	return e.summary
}

// RefreshSummary recomputes the summary, stores it and emits EventSummaryUpdated.
func (e *Engine) RefreshSummary() Summary {
	s := e.computeSummary()

	e.summaryMu.Lock()
	e.summary = s
	e.summaryMu.Unlock()

	e.bus.Emit(EventSummaryUpdated, s)
	return s
}

func (e *Engine) computeSummary() Summary {
	now := e.now()
	latencySum, latencyCount, failed, reconnects := e.network.stats()

	s := Summary{
		RecentErrors:   e.logs.countSince(LevelError, now.Add(-24*time.Hour)),
		FailedRequests: failed,
		LongTasks:      e.perf.longTaskCount(),
		WSReconnects:   reconnects,
		ComputedAt:     now,
	}
	if latencyCount > 0 {
		avg := latencySum / float64(latencyCount)
		s.AvgAPILatency = &avg
	}
	return s
}

// ExportDiagnostics returns a full snapshot of logs, metrics, network
// diagnostics, system info and a freshly computed summary.
func (e *Engine) ExportDiagnostics() Export {
	return Export{
		ExportedAt:  e.now(),
		SystemInfo:  e.GetSystemInfo(),
		Logs:        e.logs.Entries(),
		Performance: e.perf.Snapshot(),
		Network:     e.network.Snapshot(),
		Summary:     e.computeSummary(),
	}
}
