package diag

import (
	"errors"
	"strings"
	"testing"
	"time"
)

type stackErr struct{ msg, stack string }

func (e *stackErr) Error() string { return e.msg }
func (e *stackErr) Stack() string { return e.stack }

func TestRecover_RecordsAndRepanics(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())

	var captured CapturedError
	e.Subscribe(EventError, func(p any) { captured = p.(CapturedError) })

	var repanicked any
	func() {
		defer func() { repanicked = recover() }()
		func() {
			defer e.Recover()
			panic("test panic")
		}()
	}()

	if repanicked != "test panic" {
		t.Errorf("re-panicked with %v, want the original value", repanicked)
	}
	if captured.Message != "test panic" || captured.Type != "string" {
		t.Errorf("captured = %+v", captured)
	}

	entries := e.Logs(LogFilter{Levels: []Level{LevelError}})
	if len(entries) != 1 {
		t.Fatalf("error entries = %d, want 1", len(entries))
	}
	if entries[0].ID != captured.EntryID || entries[0].Module != "global" {
		t.Errorf("entry = %+v, want module global linked to the event", entries[0])
	}
	if !strings.Contains(entries[0].Stack, "goroutine") {
		t.Errorf("Stack = %q, want a goroutine trace", entries[0].Stack)
	}
}

func TestRecover_PanicWithError(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())
	boom := errors.New("boom")

	var captured CapturedError
	e.Subscribe(EventError, func(p any) { captured = p.(CapturedError) })

	func() {
		defer func() { _ = recover() }()
		defer e.Recover()
		panic(boom)
	}()

	if !errors.Is(captured, boom) {
		t.Errorf("captured %v does not wrap the panic error", captured)
	}
}

func TestRecover_NoPanic(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())

	func() {
		defer e.Recover()
	}()

	if n := len(e.Logs(LogFilter{Levels: []Level{LevelError}})); n != 0 {
		t.Error("Recover without a panic recorded an entry")
	}
}

func TestRecover_NotInitialized(t *testing.T) {
	e, _ := newTestEngine(t)

	func() {
		defer func() { _ = recover() }()
		defer e.Recover()
		panic("ignored")
	}()

	if n := len(e.Logs(LogFilter{})); n != 0 {
		t.Errorf("recorded %d entries before Initialize", n)
	}
}

func TestRecover_BypassesLevelFilter(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(Config{LogLevels: []Level{LevelDebug}})

	func() {
		defer func() { _ = recover() }()
		defer e.Recover()
		panic("filtered level")
	}()

	if n := len(e.Logs(LogFilter{Levels: []Level{LevelError}})); n != 1 {
		t.Errorf("error entries = %d, want 1", n)
	}
}

func TestCaptureRejection(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())

	var captured CapturedError
	e.Subscribe(EventUnhandledRejection, func(p any) { captured = p.(CapturedError) })

	e.CaptureRejection(&stackErr{msg: "timeout", stack: "main.fetch()"})
	e.CaptureRejection(nil)

	if captured.Message != "timeout" || captured.Stack != "main.fetch()" {
		t.Errorf("captured = %+v", captured)
	}
	if captured.Type != "*diag.stackErr" {
		t.Errorf("Type = %q", captured.Type)
	}
	entries := e.Logs(LogFilter{Levels: []Level{LevelError}})
	if len(entries) != 1 || !strings.Contains(entries[0].Message, "timeout") {
		t.Errorf("entries = %+v", entries)
	}
}

func TestGo_CapturesReturnedError(t *testing.T) {
	e, _ := newTestEngine(t)
	e.Initialize(DefaultConfig())

	done := make(chan CapturedError, 1)
	e.Subscribe(EventUnhandledRejection, func(p any) { done <- p.(CapturedError) })

	e.Go(func() error { return errors.New("background failure") })

	select {
	case c := <-done:
		if c.Message != "background failure" {
			t.Errorf("Message = %q", c.Message)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rejection not captured")
	}
}
