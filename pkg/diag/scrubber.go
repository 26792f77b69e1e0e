// scrubber.go redacts secrets and PII from error reports before they leave
// the process. It fails closed: anything it cannot inspect is replaced.

package diag

import (
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	redacted           = "[REDACTED]"
	redactedScrubError = "[REDACTED:SCRUB_ERROR]"
	redactedSizeLimit  = "[REDACTED:SIZE_LIMIT]"
	truncationMarker   = "...[TRUNCATED]"
)

// ScrubberConfig controls scrubbing behavior.
type ScrubberConfig struct {
	// SensitiveKeys contains additional case-insensitive substrings that mark
	// a data key as sensitive.
	SensitiveKeys []string

	// MaxMessageSize caps error and log messages (default: 4096).
	MaxMessageSize int

	// MaxStackTraceSize caps stack traces (default: 32768).
	MaxStackTraceSize int

	// MaxUserInputSize caps the captured user input (default: 8192).
	MaxUserInputSize int

	// MaxDataSize caps the encoded size of one log payload or JSON document
	// (default: 16384).
	MaxDataSize int

	// MaxDataValueSize caps each string value inside a payload (default: 1024).
	MaxDataValueSize int

	// ScrubMessages applies the secret and PII patterns to free text (default: true).
	ScrubMessages bool

	// FailClosed replaces input that cannot be decoded or encoded instead of
	// passing it through (default: true).
	FailClosed bool
}

// DefaultScrubberConfig returns production-safe defaults.
func DefaultScrubberConfig() ScrubberConfig {
	return ScrubberConfig{
		MaxMessageSize:    4096,
		MaxStackTraceSize: 32768,
		MaxUserInputSize:  8192,
		MaxDataSize:       16384,
		MaxDataValueSize:  1024,
		ScrubMessages:     true,
		FailClosed:        true,
	}
}

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token)[=:\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)[=:\s]+['"]?[\w\-\.]+['"]?[\s]+['"]?[\w\-\.]+['"]?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`(?i)gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`(?i)github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`(?i)xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`(?i)eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`), // JWT

	regexp.MustCompile(`(?i)(password|passwd|secret|credential)[=:\s]+['"]?[^\s'"",]+['"]?`),

	regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Z|a-z]{2,}\b`), // email
	regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`),                                 // SSN
	regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`),           // card number
}

// sensitiveKeys are matched as case-insensitive substrings of data keys.
var sensitiveKeys = []string{"token", "key", "secret", "password", "passwd", "credential", "auth"}

// userDirPatterns match per-user path prefixes in stack traces.
var userDirPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/home/[^/]+/`),
	regexp.MustCompile(`/Users/[^/]+/`),
	regexp.MustCompile(`C:\\Users\\[^\\]+\\`),
	regexp.MustCompile(`/tmp/[^/]+/`),
}

// Scrubber redacts sensitive data from error reports. It holds no mutable
// state and is safe for concurrent use.
type Scrubber struct {
	cfg  ScrubberConfig
	keys []string
}

// NewScrubber creates a scrubber with the given configuration.
func NewScrubber(cfg ScrubberConfig) *Scrubber {
	keys := append([]string{}, sensitiveKeys...)
	for _, k := range cfg.SensitiveKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Scrubber{cfg: cfg, keys: keys}
}

// ScrubReport returns a copy of report with message, stack, user input and
// every log entry scrubbed. The input report is not modified.
func (s *Scrubber) ScrubReport(report ErrorReport) ErrorReport {
	report.Error.Message = s.ScrubMessage(report.Error.Message)
	report.Error.Stack = s.ScrubStackTrace(report.Error.Stack)
	report.Context.UserInput = s.scrubUserInput(report.Context.UserInput)

	logs := make([]LogEntry, len(report.Logs))
	for i, entry := range report.Logs {
		entry.Message = s.ScrubMessage(entry.Message)
		entry.Stack = s.ScrubStackTrace(entry.Stack)
		entry.Data = s.ScrubData(entry.Data)
		logs[i] = entry
	}
	report.Logs = logs
	return report
}

// scrubUserInput treats a JSON object or array as structured form data so
// sensitive fields are redacted by key; anything else is free text.
func (s *Scrubber) scrubUserInput(input string) string {
	if input == "" {
		return input
	}
	trimmed := strings.TrimSpace(input)
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		input = s.ScrubJSON(trimmed)
	} else {
		input = s.ScrubMessage(input)
	}
	return truncate(input, s.cfg.MaxUserInputSize)
}

// ScrubData recursively redacts sensitive keys and string values in a log
// payload. A payload that cannot be encoded, or encodes larger than
// MaxDataSize, is replaced by a single marker.
func (s *Scrubber) ScrubData(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	result := s.scrubMap(data)

	encoded, err := json.Marshal(result)
	switch {
	case err != nil && s.cfg.FailClosed:
		return map[string]any{"redacted": redactedScrubError}
	case err == nil && s.cfg.MaxDataSize > 0 && len(encoded) > s.cfg.MaxDataSize:
		return map[string]any{"redacted": redactedSizeLimit}
	}
	return result
}

// ScrubMessage truncates msg to MaxMessageSize and replaces every secret and
// PII match with [REDACTED].
func (s *Scrubber) ScrubMessage(msg string) string {
	if !s.cfg.ScrubMessages {
		return msg
	}
	msg = truncate(msg, s.cfg.MaxMessageSize)
	for _, pattern := range secretPatterns {
		msg = pattern.ReplaceAllString(msg, redacted)
	}
	return msg
}

// ScrubStackTrace removes user directories and memory addresses and caps the
// trace at MaxStackTraceSize.
func (s *Scrubber) ScrubStackTrace(trace string) string {
	if trace == "" {
		return trace
	}
	for _, pattern := range userDirPatterns {
		trace = pattern.ReplaceAllString(trace, "/[PATH]/")
	}
	trace = memAddrPattern.ReplaceAllString(trace, "0x...")
	return truncate(trace, s.cfg.MaxStackTraceSize)
}

// ScrubJSON redacts a JSON document by key and value and re-encodes it,
// capped at MaxDataSize. Invalid JSON becomes [REDACTED:SCRUB_ERROR] when
// FailClosed is set.
func (s *Scrubber) ScrubJSON(doc string) string {
	var v any
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		if s.cfg.FailClosed {
			return redactedScrubError
		}
		return doc
	}

	out, err := json.Marshal(s.scrubValue(v))
	if err != nil {
		if s.cfg.FailClosed {
			return redactedScrubError
		}
		return doc
	}
	return truncate(string(out), s.cfg.MaxDataSize)
}

func (s *Scrubber) sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, k := range s.keys {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

func (s *Scrubber) scrubValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return s.scrubMap(v)
	case map[string]string:
		m := make(map[string]any, len(v))
		for key, value := range v {
			m[key] = value
		}
		return s.scrubMap(m)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = s.scrubValue(item)
		}
		return out
	case string:
		return truncate(s.ScrubMessage(v), s.cfg.MaxDataValueSize)
	}
	return v
}

func (s *Scrubber) scrubMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for key, value := range m {
		if s.sensitive(key) {
			out[key] = redacted
			continue
		}
		out[key] = s.scrubValue(value)
	}
	return out
}

// truncate cuts s to at most max bytes on a rune boundary, ending with a
// truncation marker.
// A non-positive max disables the limit.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= len(truncationMarker) {
		return truncationMarker[:max]
	}
	cut := max - len(truncationMarker)
	// never split a multi-byte rune
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + truncationMarker
}
