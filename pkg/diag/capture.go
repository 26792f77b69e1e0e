// capture.go provides the hooks that turn panics and unobserved errors into
// error-level log entries and bus events.

package diag

import (
	"errors"
	"fmt"
	"runtime/debug"
)

// CapturedError is the payload of EventError and EventUnhandledRejection.
type CapturedError struct {
	// Err is set for rejections and for panics whose value was an error.
	Err error

	// Recovered is the raw panic value. Nil for rejections.
	Recovered any

	Message string
	Type    string
	Stack   string

	// EntryID is the ID of the log entry recorded for the failure.
	EntryID string
}

func (c CapturedError) Error() string { return c.Message }

func (c CapturedError) Unwrap() error { return c.Err }

// stackTracer is implemented by errors that carry their own stack.
type stackTracer interface {
	Stack() string
}

// Recover records a panic in the deferring goroutine and then re-panics with
// the same value. It records only while the engine is Initialized.
//
//	func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
//	    defer engine.Recover()
//	    // ...
//	}
func (e *Engine) Recover() {
	r := recover()
	if r == nil {
		return
	}
	e.capturePanic(r, string(debug.Stack()))
	panic(r)
}

func (e *Engine) capturePanic(recovered any, stack string) {
	if !e.initialized() {
		return
	}
	captured := CapturedError{
		Recovered: recovered,
		Message:   formatRecovered(recovered),
		Type:      fmt.Sprintf("%T", recovered),
		Stack:     stack,
	}
	if err, ok := recovered.(error); ok {
		captured.Err = err
	}
	captured.EntryID = e.logs.logInternal(LevelError, "global", "uncaught panic: "+captured.Message, map[string]any{
		"type": captured.Type,
	}, stack)
	e.bus.Emit(EventError, captured)
}

// CaptureRejection records an error that no caller will observe, such as
// the result of a fire-and-forget goroutine. Nil errors are ignored.
func (e *Engine) CaptureRejection(err error) {
	if err == nil || !e.initialized() {
		return
	}
	captured := CapturedError{
		Err:     err,
		Message: err.Error(),
		Type:    errorType(err),
		Stack:   errorStack(err),
	}
	captured.EntryID = e.logs.logInternal(LevelError, "global", "unhandled rejection: "+captured.Message, map[string]any{
		"type": captured.Type,
	}, captured.Stack)
	e.bus.Emit(EventUnhandledRejection, captured)
}

// Go runs fn in a new goroutine. A returned error is passed to
// CaptureRejection and a panic is recorded before it propagates.
func (e *Engine) Go(fn func() error) {
	go func() {
		defer e.Recover()
		if err := fn(); err != nil {
			e.CaptureRejection(err)
		}
	}()
}

func formatRecovered(recovered any) string {
	if recovered == nil {
		return "<nil>"
	}
	if err, ok := recovered.(error); ok {
		return err.Error()
	}
	return fmt.Sprintf("%v", recovered)
}

func errorType(err error) string {
	var captured CapturedError
	if errors.As(err, &captured) && captured.Type != "" {
		return captured.Type
	}
	return fmt.Sprintf("%T", err)
}

// errorStack prefers a stack carried by err over the current one.
func errorStack(err error) string {
	var st stackTracer
	if errors.As(err, &st) {
		if s := st.Stack(); s != "" {
			return s
		}
	}
	var captured CapturedError
	if errors.As(err, &captured) && captured.Stack != "" {
		return captured.Stack
	}
	return string(debug.Stack())
}
