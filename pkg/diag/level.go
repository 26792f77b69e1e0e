// level.go defines log levels and the accepted-level set.

package diag

import (
	"fmt"
	"strings"
)

// Level is the severity of a log entry.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// AllLevels lists every level in ascending severity.
var AllLevels = []Level{LevelDebug, LevelInfo, LevelWarn, LevelError}

// ParseLevel converts a level name such as "warn" or "WARNING" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return true
	}
	return false
}

// levelSet is the set of levels accepted at the public Log entry point.
type levelSet map[Level]struct{}

func newLevelSet(levels []Level) levelSet {
	set := make(levelSet, len(levels))
	for _, l := range levels {
		set[l] = struct{}{}
	}
	return set
}

func (s levelSet) has(l Level) bool {
	_, ok := s[l]
	return ok
}
