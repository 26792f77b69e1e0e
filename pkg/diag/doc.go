// Package diag provides an in-process diagnostics engine that captures
// application logs, outbound network call outcomes, operation latencies and
// uncaught failures, keeps them in bounded in-memory buffers, and assembles
// error reports and summaries on demand.
//
// diag is designed to be constructed once at process start and passed by
// reference to every collaborator that instruments the application or
// renders its state. Nothing is persisted beyond process lifetime.
//
// # Core Components
//
//   - EventBus: synchronous publish/subscribe with per-subscriber isolation
//   - LogStore: bounded FIFO log buffer with level filtering and retention
//   - NetworkMonitor: request latency, failures, reconnects and connectivity
//   - PerformanceMonitor: page/component/API durations and long tasks
//   - SystemInfoProvider: fresh host and runtime facts on every call
//   - Engine: the facade that wires the above together
//   - Sink: destination for assembled error reports (see the sinks packages)
//
// # Quick Start
//
//	engine := diag.New(
//	    diag.WithSink(stderr.NewStderrSink()),
//	    diag.WithDefaultScrubbing(),
//	)
//	engine.Initialize(diag.DefaultConfig())
//	defer engine.Close()
//
//	client := engine.HTTPClient(http.DefaultClient)
//	engine.Log(diag.LevelInfo, "checkout", "cart loaded", nil)
//
// # Design Principles
//
//   - Instrumentation never aborts the caller: sink and source failures are logged
//   - Crash capture is never filtered by log level configuration
//   - Reports are value snapshots; later buffer mutations never change them
//   - The engine only observes failures; it never swallows a panic
package diag
