// Package sentry provides a sink that forwards error reports to Sentry.
package sentry

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/strongdm/ai-cxdb-diagnostics/pkg/diag"
)

// Capturer is the subset of *sentry.Hub the sink uses.
type Capturer interface {
	CaptureEvent(event *sentry.Event) *sentry.EventID
	Flush(timeout time.Duration) bool
}

// Option configures the sentry sink.
type Option func(*sentrySink)

// WithFlushTimeout bounds Close when the caller's Flush context has no deadline (default: 2s).
func WithFlushTimeout(d time.Duration) Option {
	return func(s *sentrySink) {
		if d > 0 {
			s.flushTimeout = d
		}
	}
}

// WithTags adds static tags to every event.
func WithTags(tags map[string]string) Option {
	return func(s *sentrySink) {
		for k, v := range tags {
			s.tags[k] = v
		}
	}
}

type sentrySink struct {
	hub          Capturer
	flushTimeout time.Duration
	tags         map[string]string

	mu     sync.RWMutex
	closed bool
}

// NewSentrySink creates a sink capturing through hub.
func NewSentrySink(hub Capturer, opts ...Option) diag.Sink {
	s := &sentrySink{
		hub:          hub,
		flushTimeout: 2 * time.Second,
		tags:         make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dial builds a dedicated hub for dsn, so the sink never touches the global
// sentry client.
func Dial(dsn, environment, release string, opts ...Option) (diag.Sink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
		Release:     release,
	})
	if err != nil {
		return nil, fmt.Errorf("sentry client: %w", err)
	}
	return NewSentrySink(sentry.NewHub(client, sentry.NewScope()), opts...), nil
}

func (s *sentrySink) Write(ctx context.Context, report diag.ErrorReport) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return diag.ErrClosed
	}
	if id := s.hub.CaptureEvent(s.event(ctx, report)); id == nil {
		return fmt.Errorf("sentry dropped report %s", report.ID)
	}
	return nil
}

func (s *sentrySink) event(ctx context.Context, report diag.ErrorReport) *sentry.Event {
	event := sentry.NewEvent()
	event.EventID = sentry.EventID(strings.ReplaceAll(report.ID, "-", ""))
	event.Level = sentry.LevelError
	event.Timestamp = report.Timestamp
	event.Message = report.Error.Message
	event.Release = report.SystemInfo.AppVersion
	if report.Fingerprint != "" {
		event.Fingerprint = []string{report.Fingerprint}
	}

	errType := report.Error.Type
	if errType == "" {
		errType = "error"
	}
	event.Exception = []sentry.Exception{{Type: errType, Value: report.Error.Message}}

	for k, v := range s.tags {
		event.Tags[k] = v
	}
	setTag(event.Tags, "component", report.Context.Component)
	setTag(event.Tags, "action", report.Context.Action)
	setTag(event.Tags, "url", report.Context.URL)
	setTag(event.Tags, "platform", report.SystemInfo.Platform)
	if id, ok := diag.ContextIDFromContext(ctx); ok {
		event.Tags["cxdb_context_id"] = fmt.Sprint(id)
	}

	event.Extra["report_id"] = report.ID
	if report.Error.Stack != "" {
		event.Extra["stack"] = report.Error.Stack
	}
	if report.Context.UserInput != "" {
		event.Extra["user_input"] = report.Context.UserInput
	}

	info := report.SystemInfo
	event.Contexts["diagnostics"] = sentry.Context{
		"user_agent":        info.UserAgent,
		"language":          info.Language,
		"time_zone":         info.TimeZone,
		"screen_resolution": info.ScreenResolution,
		"go_version":        info.GoVersion,
		"hostname":          info.Hostname,
		"goroutines":        info.NumGoroutine,
		"uptime_ms":         info.UptimeMs,
		"storage_local":     info.StorageUsage.Local,
		"storage_session":   info.StorageUsage.Session,
	}
	if m := info.MemoryUsage; m != nil {
		event.Contexts["memory"] = sentry.Context{
			"used_heap":  m.UsedHeap,
			"total_heap": m.TotalHeap,
			"heap_limit": m.HeapLimit,
		}
	}

	event.Breadcrumbs = make([]*sentry.Breadcrumb, 0, len(report.Logs))
	for _, entry := range report.Logs {
		event.Breadcrumbs = append(event.Breadcrumbs, &sentry.Breadcrumb{
			Type:      "default",
			Category:  entry.Module,
			Message:   entry.Message,
			Data:      entry.Data,
			Level:     breadcrumbLevel(entry.Level),
			Timestamp: entry.Timestamp,
		})
	}
	return event
}

func setTag(tags map[string]string, key, value string) {
	if value != "" {
		tags[key] = value
	}
}

func breadcrumbLevel(l diag.Level) sentry.Level {
	switch l {
	case diag.LevelDebug:
		return sentry.LevelDebug
	case diag.LevelWarn:
		return sentry.LevelWarning
	case diag.LevelError:
		return sentry.LevelError
	default:
		return sentry.LevelInfo
	}
}

// Flush waits for queued events until ctx's deadline, or the flush timeout
// when ctx has none.
func (s *sentrySink) Flush(ctx context.Context) error {
	timeout := s.flushTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}
	if !s.hub.Flush(timeout) {
		return fmt.Errorf("sentry flush timed out after %s", timeout)
	}
	return nil
}

// Close flushes pending events and rejects further writes.
func (s *sentrySink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.flushTimeout)
	defer cancel()
	return s.Flush(ctx)
}
