// transport.go instruments outbound HTTP calls with an http.RoundTripper
// decorator registered on a client the application owns.

package diag

import (
	"net/http"
	"time"
)

// Transport times every request from dispatch to settlement and records the
// outcome on a NetworkMonitor.
type Transport struct {
	inner   http.RoundTripper
	monitor *NetworkMonitor
	enabled func() bool
	now     func() time.Time
}

// NewTransport wraps inner. A nil inner uses http.DefaultTransport. enabled is
// consulted per request; a nil enabled always records.
func NewTransport(inner http.RoundTripper, monitor *NetworkMonitor, enabled func() bool, now func() time.Time) *Transport {
	if inner == nil {
		inner = http.DefaultTransport
	}
	if now == nil {
		now = time.Now
	}
	return &Transport{
		inner:   inner,
		monitor: monitor,
		enabled: enabled,
		now:     now,
	}
}

// RoundTrip implements http.RoundTripper. Transport errors and non-2xx
// responses are recorded as failed requests; 2xx responses record latency.
// The response and error of the inner transport are returned unchanged.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.enabled != nil && !t.enabled() {
		return t.inner.RoundTrip(req)
	}

	// start is per call so concurrent requests never share it
	start := t.now()
	resp, err := t.inner.RoundTrip(req)
	elapsed := t.now().Sub(start)

	rawURL := req.URL.String()
	switch {
	case err != nil:
		t.monitor.RecordFailedRequest(rawURL, req.Method, 0, err.Error())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		t.monitor.RecordFailedRequest(rawURL, req.Method, resp.StatusCode, "")
	default:
		t.monitor.RecordAPILatency(rawURL, elapsed)
	}
	return resp, err
}
