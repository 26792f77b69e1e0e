package diag

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	e := New(append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(e.Dispose)
	return e, clock
}

func TestEngine_Lifecycle(t *testing.T) {
	e, _ := newTestEngine(t)
	if e.State() != StateUninitialized {
		t.Fatalf("State = %v, want uninitialized", e.State())
	}

	e.Initialize(DefaultConfig())
	e.Initialize(Config{MaxLogEntries: 5})
	if e.State() != StateInitialized {
		t.Fatalf("State = %v, want initialized", e.State())
	}
	if e.Config().MaxLogEntries != DefaultMaxLogEntries {
		t.Error("second Initialize should be a no-op")
	}

	e.Dispose()
	e.Dispose()
	if e.State() != StateDisposed {
		t.Fatalf("State = %v, want disposed", e.State())
	}

	e.Initialize(Config{MaxLogEntries: 5})
	if e.State() != StateInitialized || e.Config().MaxLogEntries != 5 {
		t.Error("Initialize after Dispose should start a new cycle")
	}
}

func TestEngine_DisposeClearsSubscribersAndFlushes(t *testing.T) {
	sink := &captureSink{}
	e, _ := newTestEngine(t, WithSink(sink))
	e.Initialize(DefaultConfig())

	calls := 0
	e.Subscribe(EventLog, func(any) { calls++ })
	e.Dispose()
	e.Log(LevelInfo, "m", "after dispose", nil)

	if calls != 0 {
		t.Errorf("subscriber called %d times after Dispose", calls)
	}
	if sink.flushCount() != 1 {
		t.Errorf("sink flushed %d times, want 1", sink.flushCount())
	}
}

func TestEngine_CloseClosesSink(t *testing.T) {
	sink := &captureSink{}
	e, _ := newTestEngine(t, WithSink(sink))
	e.Initialize(DefaultConfig())

	if err := e.Close(); err != nil {
		t.Fatal(err)
	}
	if !sink.closed {
		t.Error("sink not closed")
	}
}

func TestEngine_RetentionPurgeAtInitialize(t *testing.T) {
	e, clock := newTestEngine(t)
	e.Log(LevelInfo, "m", "ancient", nil)
	clock.Advance(10 * 24 * time.Hour)
	e.Log(LevelInfo, "m", "recent", nil)

	e.Initialize(Config{LogRetentionDays: 7})

	if got := messages(e.Logs(LogFilter{})); len(got) != 1 || got[0] != "recent" {
		t.Errorf("Logs = %v, want [recent]", got)
	}
}

func TestEngine_LevelFiltering(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(Config{LogLevels: []Level{LevelError}})

	e.Log(LevelInfo, "m", "dropped", nil)
	e.Log(LevelError, "m", "kept", nil)

	if got := messages(e.Logs(LogFilter{})); len(got) != 1 || got[0] != "kept" {
		t.Errorf("Logs = %v, want [kept]", got)
	}
}

func TestEngine_SummaryRecentErrorsWindow(t *testing.T) {
	e, clock := newTestEngine(t)
	e.Initialize(DefaultConfig())

	e.Log(LevelError, "m", "old", nil)
	clock.Advance(25 * time.Hour)
	e.Log(LevelError, "m", "new", nil)
	e.Log(LevelWarn, "m", "not an error", nil)

	if got := e.Summary().RecentErrors; got != 1 {
		t.Errorf("RecentErrors = %d, want 1", got)
	}
}

func TestEngine_SummaryRecomputedOnErrorLog(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())

	var updates []Summary
	e.Subscribe(EventSummaryUpdated, func(p any) { updates = append(updates, p.(Summary)) })

	e.Log(LevelInfo, "m", "info", nil)
	if len(updates) != 0 {
		t.Errorf("info log triggered %d summary updates", len(updates))
	}

	e.Log(LevelError, "m", "failure", nil)
	if len(updates) != 1 || updates[0].RecentErrors != 1 {
		t.Errorf("updates = %+v, want one with RecentErrors=1", updates)
	}
}

func TestEngine_SummaryAggregates(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())

	if e.Summary().AvgAPILatency != nil {
		t.Error("AvgAPILatency should be nil without samples")
	}

	e.RecordAPILatency("/api/a", 10*time.Millisecond)
	e.RecordAPILatency("/api/b", 30*time.Millisecond)
	e.RecordFailedRequest("/api/c", "GET", 500, "")
	e.RecordWsReconnect()

	s := e.RefreshSummary()
	if s.AvgAPILatency == nil || *s.AvgAPILatency != 20 {
		t.Errorf("AvgAPILatency = %v, want 20", s.AvgAPILatency)
	}
	if s.FailedRequests != 1 || s.WSReconnects != 1 {
		t.Errorf("Summary = %+v", s)
	}
	if e.Summary() != s {
		t.Error("Summary() should return the last computed summary")
	}
}

func TestEngine_SummaryTimer(t *testing.T) {
	e := New()
	t.Cleanup(e.Dispose)

	updated := make(chan struct{}, 1)
	e.Subscribe(EventSummaryUpdated, func(any) {
		select {
		case updated <- struct{}{}:
		default:
		}
	})
	cfg := DefaultConfig()
	cfg.SummaryInterval = 10 * time.Millisecond
	e.Initialize(cfg)

	// drain the update emitted by Initialize itself
	<-updated
	select {
	case <-updated:
	case <-time.After(2 * time.Second):
		t.Fatal("summary timer did not fire")
	}
}

func TestEngine_ExportIsSnapshot(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())
	e.Log(LevelInfo, "m", "one", nil)
	e.RecordPageLoad("/", time.Millisecond)

	export := e.ExportDiagnostics()
	e.Log(LevelInfo, "m", "two", nil)
	e.RecordPageLoad("/", time.Millisecond)

	if len(export.Logs) != 1 {
		t.Errorf("export logs changed to %d", len(export.Logs))
	}
	if len(export.Performance.PageLoads["/"]) != 1 {
		t.Errorf("export page loads changed to %d", len(export.Performance.PageLoads["/"]))
	}
}

func TestEngine_ClearLogsThenExport(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())
	e.Log(LevelError, "m", "boom", nil)
	e.RecordAPILatency("/api/a", time.Millisecond)

	cleared := false
	e.Subscribe(EventLogsCleared, func(any) { cleared = true })
	e.ClearLogs()

	export := e.ExportDiagnostics()
	if !cleared {
		t.Error("EventLogsCleared not emitted")
	}
	if len(export.Logs) != 0 || export.Summary.RecentErrors != 0 {
		t.Errorf("export after ClearLogs: logs=%d recentErrors=%d", len(export.Logs), export.Summary.RecentErrors)
	}
	if len(export.Network.APILatency["/api/a"]) != 1 {
		t.Error("ClearLogs must not touch network diagnostics")
	}
}

func TestEngine_ResetPerformanceMetrics(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())
	e.RecordComponentRender("CartPanel", time.Millisecond)
	e.ResetPerformanceMetrics()

	if n := len(e.ExportDiagnostics().Performance.ComponentRenders); n != 0 {
		t.Errorf("ComponentRenders has %d keys after reset", n)
	}
}

func TestEngine_Measure(t *testing.T) {
	e, clock := newTestEngine(t)
	e.Initialize(DefaultConfig())

	stop := e.Measure(ComponentOperation("CartPanel"))
	clock.Advance(12 * time.Millisecond)
	if d := stop(); d != 12*time.Millisecond {
		t.Errorf("elapsed = %v", d)
	}
	clock.Advance(time.Second)
	if d := stop(); d != 12*time.Millisecond {
		t.Errorf("second stop = %v, want the first duration", d)
	}

	stop = e.MeasurePerformance("api:/orders")
	clock.Advance(5 * time.Millisecond)
	stop()

	stop = e.MeasurePerformance("unprefixed")
	stop()

	perf := e.ExportDiagnostics().Performance
	if got := perf.ComponentRenders["CartPanel"]; len(got) != 1 || got[0] != 12 {
		t.Errorf("ComponentRenders = %v, want [12]", got)
	}
	if got := perf.APICalls["/orders"]; len(got) != 1 || got[0] != 5 {
		t.Errorf("APICalls = %v, want [5]", got)
	}
	if len(perf.PageLoads) != 0 {
		t.Errorf("PageLoads = %v, unprefixed names must not be recorded", perf.PageLoads)
	}
}

func TestEngine_TransportOnlyWhileMonitoring(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, _ := newTestEngine(t)
	client := e.HTTPClient(nil)
	get := func() {
		resp, err := client.Get(srv.URL + "/api/x")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
	}

	get()
	if n := e.Summary().FailedRequests; n != 0 {
		t.Errorf("recorded %d failures before Initialize", n)
	}

	cfg := DefaultConfig()
	cfg.EnableNetworkMonitoring = false
	e.Initialize(cfg)
	get()
	if n := len(e.ExportDiagnostics().Network.FailedRequests); n != 0 {
		t.Errorf("recorded %d failures with monitoring disabled", n)
	}

	e.Dispose()
	e.Initialize(DefaultConfig())
	get()
	if n := len(e.ExportDiagnostics().Network.FailedRequests); n != 1 {
		t.Errorf("recorded %d failures, want 1", n)
	}
}

func TestEngine_HTTPClientCopiesBase(t *testing.T) {
	e, _ := newTestEngine(t)
	base := &http.Client{Timeout: 3 * time.Second}
	client := e.HTTPClient(base)

	if client == base || base.Transport != nil {
		t.Error("HTTPClient must not modify base")
	}
	if client.Timeout != base.Timeout {
		t.Errorf("Timeout = %v, want %v", client.Timeout, base.Timeout)
	}
}

func TestEngine_InstrumentationSources(t *testing.T) {
	src := &stubSource{navigation: &NavigationTiming{Duration: 800 * time.Millisecond}}
	e, _ := newTestEngine(t, WithInstrumentation(src), WithConnectivity(src))
	e.Initialize(Config{
		EnablePerformanceMonitoring: true,
		InitialRoute:                "/home",
	})

	src.emitLongTask(LongTask{Duration: 70 * time.Millisecond})
	src.emitConnectivity(false)

	export := e.ExportDiagnostics()
	if got := export.Performance.PageLoads["/home"]; len(got) != 1 || got[0] != 800 {
		t.Errorf("PageLoads[/home] = %v, want [800]", got)
	}
	if len(export.Performance.LongTasks) != 1 {
		t.Errorf("LongTasks = %d, want 1", len(export.Performance.LongTasks))
	}
	if e.Online() {
		t.Error("Online() = true after offline transition")
	}

	e.Dispose()
	if got := src.stopCount(); got != 3 {
		t.Errorf("stop called %d times, want 3", got)
	}
}

func TestEngine_PerformanceDisabledSkipsInstrumentation(t *testing.T) {
	src := &stubSource{navigation: &NavigationTiming{Duration: time.Second}}
	e, _ := newTestEngine(t, WithInstrumentation(src))
	cfg := DefaultConfig()
	cfg.EnablePerformanceMonitoring = false
	e.Initialize(cfg)

	if n := len(e.ExportDiagnostics().Performance.PageLoads); n != 0 {
		t.Errorf("PageLoads has %d keys with performance monitoring disabled", n)
	}
}

func TestEngine_SourceFailureDegrades(t *testing.T) {
	src := &stubSource{longTaskErr: errors.New("unsupported")}
	e, _ := newTestEngine(t, WithInstrumentation(src))
	e.Initialize(DefaultConfig())

	errs := e.Logs(LogFilter{Levels: []Level{LevelError}, Module: "diagnostics"})
	if len(errs) != 1 {
		t.Fatalf("error entries = %d, want 1", len(errs))
	}
	if e.State() != StateInitialized {
		t.Error("engine should stay initialized after an observer failure")
	}
}

func TestEngine_ConcurrentIntake(t *testing.T) {
	e := New()
	t.Cleanup(e.Dispose)
	e.Initialize(DefaultConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				e.Log(LevelInfo, "worker", fmt.Sprintf("%d-%d", i, j), nil)
				e.RecordAPILatency("/api/x", time.Millisecond)
				e.RecordComponentRender("C", time.Millisecond)
				_ = e.ExportDiagnostics()
			}
		}(i)
	}
	wg.Wait()

	if got := len(e.Logs(LogFilter{Module: "worker"})); got != 800 {
		t.Errorf("worker entries = %d, want 800", got)
	}
}

// inlineConnectivity reports offline from inside OnConnectivityChange, the
// way a host that knows its state up front would.
type inlineConnectivity struct{}

func (inlineConnectivity) OnConnectivityChange(fn func(bool)) (func(), error) {
	fn(false)
	return func() {}, nil
}

func TestEngine_InitializeWithSynchronousConnectivitySource(t *testing.T) {
	e, _ := newTestEngine(t, WithConnectivity(inlineConnectivity{}))
	var seen []State
	var mu sync.Mutex
	e.Subscribe(EventNetworkStatusChange, func(any) {
		s := e.State()
		_ = e.Config()
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		e.Initialize(DefaultConfig())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Initialize did not return")
	}

	if e.Online() {
		t.Error("Online() = true, want false after the inline report")
	}
	mu.Lock()
	if len(seen) != 1 {
		t.Errorf("status handler ran %d times, want 1", len(seen))
	}
	mu.Unlock()

	disposed := make(chan struct{})
	go func() {
		e.Dispose()
		close(disposed)
	}()
	select {
	case <-disposed:
	case <-time.After(5 * time.Second):
		t.Fatal("Dispose did not return")
	}
}

func TestEngine_SetupFailureReachesLoggerWhenErrorsFiltered(t *testing.T) {
	var buf bytes.Buffer
	src := &stubSource{longTaskErr: errors.New("unsupported")}
	e, _ := newTestEngine(t,
		WithInstrumentation(src),
		WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
	cfg := DefaultConfig()
	cfg.LogLevels = []Level{LevelWarn}
	e.Initialize(cfg)

	if got := e.Logs(LogFilter{Module: "diagnostics"}); len(got) != 0 {
		t.Errorf("diagnostics entries = %d, want 0 with error level filtered", len(got))
	}
	if !strings.Contains(buf.String(), "instrumentation setup failed") {
		t.Errorf("logger output = %q, want setup failure", buf.String())
	}
}
