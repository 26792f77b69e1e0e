// fingerprint.go derives a grouping key for error reports.

package diag

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// fingerprintFrames is how many leading stack frames take part in a fingerprint.
const fingerprintFrames = 3

var (
	// funcNamePattern matches "main.doSomething" or "example.com/pkg/sub.(*T).Method".
	funcNamePattern = regexp.MustCompile(`^[a-zA-Z0-9_./\-]+\.[a-zA-Z0-9_().*]+`)

	memAddrPattern = regexp.MustCompile(`0x[0-9a-fA-F]+`)
)

// Fingerprint returns 32 hex characters identifying the class of a report:
// error type, component, action, the simplified URL path and the function
// names of the top stack frames. Messages, IDs, timestamps, query strings,
// line numbers and addresses do not contribute, so recurring failures share
// a fingerprint.
func Fingerprint(report ErrorReport) string {
	var path string
	if report.Context.URL != "" {
		path = SimplifyPath(report.Context.URL)
	}

	h := sha256.New()
	for _, part := range append([]string{
		report.Error.Type,
		report.Context.Component,
		report.Context.Action,
		path,
	}, normalizeStackTrace(report.Error.Stack)...) {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// normalizeStackTrace returns the function names of the first frames of a
// Go stack trace, without arguments, receivers' addresses or file lines.
func normalizeStackTrace(trace string) []string {
	var frames []string
	sc := bufio.NewScanner(strings.NewReader(trace))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	for sc.Scan() && len(frames) < fingerprintFrames {
		raw := sc.Text()
		// file:line lines are tab-indented in runtime traces
		if strings.HasPrefix(raw, "\t") {
			continue
		}
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "goroutine ") || strings.HasPrefix(line, "/") {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "created by "); ok {
			line, _, _ = strings.Cut(rest, " in goroutine")
		}
		if i := strings.LastIndex(line, "("); i > 0 && strings.HasSuffix(line, ")") {
			line = line[:i]
		}
		if name := funcNamePattern.FindString(line); name != "" {
			frames = append(frames, name)
		}
	}
	return frames
}
